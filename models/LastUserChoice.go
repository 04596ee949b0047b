package models

import (
	"gorm.io/gorm"
)

// LastUserChoice remembers the colour a user selected most recently.
type LastUserChoice struct {
	gorm.Model
	UserID  int64  `gorm:"uniqueIndex;not null" json:"user_id"`
	ColorID uint   `gorm:"not null" json:"color_id"`
	Color   *Color `gorm:"foreignKey:ColorID" json:"color,omitempty"`
}
