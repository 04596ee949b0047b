// Package colorspec turns free-text colour expressions into RGB triples.
package colorspec

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// ErrInvalidColorSpec is returned for any expression that does not describe a colour.
var ErrInvalidColorSpec = errors.New("invalid color spec")

var (
	hexPattern        = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3,4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
	rgbPattern        = regexp.MustCompile(`(?i)^rgb\(\s*(\d+)\s*,\s*(\d+)\s*,\s*(\d+)\s*\)$`)
	rgbPercentPattern = regexp.MustCompile(`(?i)^rgb\(\s*(\d+)%\s*,\s*(\d+)%\s*,\s*(\d+)%\s*\)$`)
	hslPattern        = regexp.MustCompile(`(?i)^hsl\(\s*(\d+(?:\.\d+)?)\s*,\s*(\d+(?:\.\d+)?)%\s*,\s*(\d+(?:\.\d+)?)%\s*\)$`)
)

// RGB is a colour triple. Components are ints so that out-of-range values
// coming from storage or user input can be detected instead of wrapping.
type RGB struct {
	R int `json:"r" yaml:"r"`
	G int `json:"g" yaml:"g"`
	B int `json:"b" yaml:"b"`
}

// Valid reports whether every channel lies in [0, 255].
func (c RGB) Valid() bool {
	return inRange(c.R) && inRange(c.G) && inRange(c.B)
}

// Hex formats the colour as #rrggbb.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// RGBA converts the colour to an opaque color.RGBA. Channels are clamped.
func (c RGB) RGBA() color.RGBA {
	return color.RGBA{R: clamp(c.R), G: clamp(c.G), B: clamp(c.B), A: 0xff}
}

func (c RGB) String() string {
	return fmt.Sprintf("rgb(%d,%d,%d)", c.R, c.G, c.B)
}

// Parse joins tokens with single spaces and interprets the result as a hex
// string, an rgb()/hsl() functional form or a named colour, in that order.
func Parse(tokens []string) (RGB, error) {
	expr := strings.TrimSpace(strings.Join(tokens, " "))
	if expr == "" {
		return RGB{}, fmt.Errorf("%w: empty expression", ErrInvalidColorSpec)
	}

	if strings.HasPrefix(expr, "#") {
		return parseHex(expr)
	}

	if m := rgbPattern.FindStringSubmatch(expr); m != nil {
		return channels(expr, m[1:], func(v int) int { return v })
	}

	if m := rgbPercentPattern.FindStringSubmatch(expr); m != nil {
		return channels(expr, m[1:], func(v int) int {
			return int(float64(v)*255/100 + 0.5)
		})
	}

	if m := hslPattern.FindStringSubmatch(expr); m != nil {
		return parseHSL(expr, m[1], m[2], m[3])
	}

	if named, ok := colornames.Map[strings.ToLower(expr)]; ok {
		return RGB{R: int(named.R), G: int(named.G), B: int(named.B)}, nil
	}

	return RGB{}, fmt.Errorf("%w: unknown color %q", ErrInvalidColorSpec, expr)
}

func parseHex(expr string) (RGB, error) {
	if !hexPattern.MatchString(expr) {
		return RGB{}, fmt.Errorf("%w: malformed hex %q", ErrInvalidColorSpec, expr)
	}

	digits := expr[1:]
	if len(digits) <= 4 {
		// #rgb and #rgba expand each nibble.
		var expanded strings.Builder
		for _, d := range digits {
			expanded.WriteRune(d)
			expanded.WriteRune(d)
		}
		digits = expanded.String()
	}

	var out [3]int
	for i := range out {
		v, err := strconv.ParseUint(digits[i*2:i*2+2], 16, 8)
		if err != nil {
			return RGB{}, fmt.Errorf("%w: malformed hex %q", ErrInvalidColorSpec, expr)
		}
		out[i] = int(v)
	}
	return RGB{R: out[0], G: out[1], B: out[2]}, nil
}

func channels(expr string, values []string, scale func(int) int) (RGB, error) {
	var out [3]int
	for i, raw := range values {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return RGB{}, fmt.Errorf("%w: bad channel %q in %q", ErrInvalidColorSpec, raw, expr)
		}
		v = scale(v)
		if !inRange(v) {
			return RGB{}, fmt.Errorf("%w: channel %d out of range in %q", ErrInvalidColorSpec, v, expr)
		}
		out[i] = v
	}
	return RGB{R: out[0], G: out[1], B: out[2]}, nil
}

func parseHSL(expr, hRaw, sRaw, lRaw string) (RGB, error) {
	h, errH := strconv.ParseFloat(hRaw, 64)
	s, errS := strconv.ParseFloat(sRaw, 64)
	l, errL := strconv.ParseFloat(lRaw, 64)
	if errH != nil || errS != nil || errL != nil {
		return RGB{}, fmt.Errorf("%w: malformed hsl %q", ErrInvalidColorSpec, expr)
	}
	if s > 100 || l > 100 {
		return RGB{}, fmt.Errorf("%w: hsl percentage out of range in %q", ErrInvalidColorSpec, expr)
	}

	r, g, b := hlsToRGB(h/360, l/100, s/100)
	return RGB{R: unit(r), G: unit(g), B: unit(b)}, nil
}

func hlsToRGB(h, l, s float64) (float64, float64, float64) {
	if s == 0 {
		return l, l, l
	}
	var m2 float64
	if l <= 0.5 {
		m2 = l * (1 + s)
	} else {
		m2 = l + s - l*s
	}
	m1 := 2*l - m2
	return hue(m1, m2, h+1.0/3), hue(m1, m2, h), hue(m1, m2, h-1.0/3)
}

func hue(m1, m2, h float64) float64 {
	h = math.Mod(h, 1)
	if h < 0 {
		h++
	}
	switch {
	case h < 1.0/6:
		return m1 + (m2-m1)*h*6
	case h < 0.5:
		return m2
	case h < 2.0/3:
		return m1 + (m2-m1)*(2.0/3-h)*6
	}
	return m1
}

func unit(v float64) int {
	return int(v*255 + 0.5)
}

func inRange(v int) bool {
	return v >= 0 && v <= 255
}

func clamp(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}
