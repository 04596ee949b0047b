package models

import (
	"gorm.io/gorm"

	"avatarbot/internal/colorspec"
)

// Color is a named palette entry. Inactive colours are hidden from the
// selector but still render for users who picked them earlier.
type Color struct {
	gorm.Model
	Name   string `gorm:"uniqueIndex;not null" json:"name"`
	R      int    `gorm:"not null;check:r >= 0 AND r <= 255" json:"r"`
	G      int    `gorm:"not null;check:g >= 0 AND g <= 255" json:"g"`
	B      int    `gorm:"not null;check:b >= 0 AND b <= 255" json:"b"`
	Active bool   `gorm:"not null;default:false" json:"active"`
}

// RGB returns the stored channels.
func (c Color) RGB() colorspec.RGB {
	return colorspec.RGB{R: c.R, G: c.G, B: c.B}
}
