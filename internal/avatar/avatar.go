// Package avatar renders fixed-size avatars with a coloured ring around the
// portrait.
package avatar

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"  // for decoding gif uploads
	_ "image/jpeg" // for decoding jpeg uploads
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // for processing bmp images
	_ "golang.org/x/image/webp" // for processing webp images

	"avatarbot/internal/colorspec"
)

// Size is the edge length of every rendered avatar.
const Size = 640

// MaxSourceSide bounds the width and height of a decoded source picture.
const MaxSourceSide = 4096

const (
	blurSigma   = 2.0
	minBlurSize = 100
)

// ErrUnreadableImage is returned when the source bytes are not a raster image.
var ErrUnreadableImage = errors.New("unreadable image")

// Options tune rendering.
type Options struct {
	// Blur anti-aliases the portrait edge with a small gaussian blur of the mask.
	Blur bool
}

// Compositor renders avatars. It holds no mutable state and may be shared
// between goroutines.
type Compositor struct {
	opts Options
}

// New returns a Compositor configured with opts.
func New(opts Options) *Compositor {
	return &Compositor{opts: opts}
}

// Compose renders src inside a ring of rgb and returns the PNG encoding.
// An empty src produces a flat square of rgb.
func (c *Compositor) Compose(src []byte, rgb colorspec.RGB) ([]byte, error) {
	canvas := image.NewRGBA(image.Rect(0, 0, Size, Size))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(rgb.RGBA()), image.Point{}, draw.Src)

	if len(src) > 0 {
		portrait, err := decode(src)
		if err != nil {
			return nil, err
		}
		resized := imaging.Resize(portrait, Size, Size, imaging.Lanczos)
		flatten(resized)
		draw.DrawMask(canvas, canvas.Bounds(), resized, image.Point{}, Mask(Size, c.opts.Blur), image.Point{}, draw.Over)
	}

	return encode(canvas)
}

// Mask returns a size×size alpha mask holding a filled circle inset by
// size/10 on every side. With blur set and size above 100 the edge is
// softened with a gaussian blur.
func Mask(size int, blur bool) *image.Alpha {
	delta := size / 10
	circle := image.NewGray(image.Rect(0, 0, size, size))

	// The ellipse covers pixels delta..size-delta inclusive on both axes.
	center := float64(size+1) / 2
	radius := float64(size-2*delta+1) / 2
	for y := delta; y <= size-delta && y < size; y++ {
		dy := float64(y) + 0.5 - center
		for x := delta; x <= size-delta && x < size; x++ {
			dx := float64(x) + 0.5 - center
			if dx*dx+dy*dy <= radius*radius {
				circle.Pix[y*circle.Stride+x] = 0xff
			}
		}
	}

	var source image.Image = circle
	if blur && size > minBlurSize {
		source = imaging.Blur(circle, blurSigma)
	}

	mask := image.NewAlpha(image.Rect(0, 0, size, size))
	switch m := source.(type) {
	case *image.Gray:
		copy(mask.Pix, m.Pix)
	case *image.NRGBA:
		for i := 0; i < len(mask.Pix); i++ {
			mask.Pix[i] = m.Pix[i*4]
		}
	}
	return mask
}

// decode reads the header first so oversized pictures are rejected before
// their pixels are allocated.
func decode(src []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: image.DecodeConfig: %v", ErrUnreadableImage, err)
	}
	if cfg.Width > MaxSourceSide {
		return nil, fmt.Errorf("%w: image width is too large: %d > %d", ErrUnreadableImage, cfg.Width, MaxSourceSide)
	}
	if cfg.Height > MaxSourceSide {
		return nil, fmt.Errorf("%w: image height is too large: %d > %d", ErrUnreadableImage, cfg.Height, MaxSourceSide)
	}

	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}
	return img, nil
}

// flatten discards source transparency so the portrait always covers the
// ring background where the mask is opaque.
func flatten(img *image.NRGBA) {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
