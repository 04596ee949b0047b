// Package palette stores the colour palette and every user's last choice.
//
// Each mutation is a single SQL statement, so concurrent writers race at the
// database and the last write wins without any in-process locking.
package palette

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"avatarbot/internal/colorspec"
	applog "avatarbot/internal/log"
	"avatarbot/models"
)

var (
	ErrColorNotFound           = errors.New("color not found")
	ErrMissingColorForNewEntry = errors.New("color is required for a new entry")
	ErrInvalidRGBRange         = errors.New("rgb channel out of range")
	ErrInvalidName             = errors.New("color name must not be empty")
	ErrNoChoiceRecorded        = errors.New("no color chosen yet")
	ErrColorNoLongerExists     = errors.New("chosen color no longer exists")
)

// Store is the gorm-backed palette registry and last-choice tracker.
type Store struct {
	db *gorm.DB
}

// NewStore wraps db. A nil db makes every call fail with gorm.ErrInvalidDB.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Upsert creates or updates the colour called name and marks it active.
// A nil rgb keeps the stored channels and is only allowed for known names.
func (s *Store) Upsert(ctx context.Context, name string, rgb *colorspec.RGB) (models.Color, error) {
	if s.db == nil {
		return models.Color{}, gorm.ErrInvalidDB
	}
	if strings.TrimSpace(name) == "" {
		return models.Color{}, ErrInvalidName
	}

	if rgb == nil {
		res := s.db.WithContext(ctx).Model(&models.Color{}).Where("name = ?", name).Update("active", true)
		if res.Error != nil {
			return models.Color{}, fmt.Errorf("reactivate color %q: %w", name, res.Error)
		}
		if res.RowsAffected == 0 {
			return models.Color{}, ErrMissingColorForNewEntry
		}
		applog.Debug(ctx, "color reactivated", "name", name)
		return s.Get(ctx, name)
	}

	if !rgb.Valid() {
		return models.Color{}, fmt.Errorf("%w: %s", ErrInvalidRGBRange, rgb)
	}

	color := models.Color{Name: name, R: rgb.R, G: rgb.G, B: rgb.B, Active: true}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"r", "g", "b", "active", "updated_at"}),
	}).Create(&color).Error
	if err != nil {
		return models.Color{}, fmt.Errorf("upsert color %q: %w", name, err)
	}

	applog.Debug(ctx, "color upserted", "name", name, "rgb", rgb.Hex())
	return s.Get(ctx, name)
}

// Deactivate hides the colour from new selections. The row and any choices
// pointing at it are kept.
func (s *Store) Deactivate(ctx context.Context, name string) (models.Color, error) {
	if s.db == nil {
		return models.Color{}, gorm.ErrInvalidDB
	}

	res := s.db.WithContext(ctx).Model(&models.Color{}).Where("name = ?", name).Update("active", false)
	if res.Error != nil {
		return models.Color{}, fmt.Errorf("deactivate color %q: %w", name, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.Color{}, ErrColorNotFound
	}

	applog.Debug(ctx, "color deactivated", "name", name)
	return s.Get(ctx, name)
}

// Get looks a colour up by its exact name.
func (s *Store) Get(ctx context.Context, name string) (models.Color, error) {
	if s.db == nil {
		return models.Color{}, gorm.ErrInvalidDB
	}

	var color models.Color
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&color).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Color{}, ErrColorNotFound
		}
		return models.Color{}, fmt.Errorf("find color %q: %w", name, err)
	}
	return color, nil
}

// ListActive returns active colours in insertion order.
func (s *Store) ListActive(ctx context.Context) ([]models.Color, error) {
	return s.list(ctx, true)
}

// List returns the whole palette in insertion order.
func (s *Store) List(ctx context.Context) ([]models.Color, error) {
	return s.list(ctx, false)
}

func (s *Store) list(ctx context.Context, activeOnly bool) ([]models.Color, error) {
	if s.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	query := s.db.WithContext(ctx).Order("id")
	if activeOnly {
		query = query.Where("active = ?", true)
	}

	var colors []models.Color
	if err := query.Find(&colors).Error; err != nil {
		return nil, fmt.Errorf("list colors: %w", err)
	}
	return colors, nil
}

// RecordChoice remembers color as the latest choice of userID, replacing any
// previous one.
func (s *Store) RecordChoice(ctx context.Context, userID int64, color models.Color) error {
	if s.db == nil {
		return gorm.ErrInvalidDB
	}
	if color.ID == 0 {
		return ErrColorNotFound
	}

	choice := models.LastUserChoice{UserID: userID, ColorID: color.ID}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"color_id", "updated_at"}),
	}).Create(&choice).Error
	if err != nil {
		return fmt.Errorf("record choice for user %d: %w", userID, err)
	}

	applog.Debug(ctx, "choice recorded", "userID", userID, "color", color.Name)
	return nil
}

// GetChoice resolves the colour userID picked last.
func (s *Store) GetChoice(ctx context.Context, userID int64) (models.Color, error) {
	if s.db == nil {
		return models.Color{}, gorm.ErrInvalidDB
	}

	var choice models.LastUserChoice
	err := s.db.WithContext(ctx).Preload("Color").Where("user_id = ?", userID).First(&choice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Color{}, ErrNoChoiceRecorded
		}
		return models.Color{}, fmt.Errorf("find choice for user %d: %w", userID, err)
	}
	if choice.Color == nil {
		return models.Color{}, ErrColorNoLongerExists
	}
	return *choice.Color, nil
}
