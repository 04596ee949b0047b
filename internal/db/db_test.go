package db

import (
	"path/filepath"
	"testing"

	"avatarbot/internal/config"
	"avatarbot/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestInitializeRequiresURL(t *testing.T) {
	t.Parallel()

	db, err := Initialize(config.DatabaseConfig{URL: ""})
	if err == nil {
		t.Fatal("expected error when database URL is empty")
	}
	if db != nil {
		t.Fatal("expected returned db handle to be nil on error")
	}
}

func TestDialectorSelection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		url      string
		wantName string
		wantErr  bool
	}{
		{"postgres", "postgres://user:pw@localhost/bot", "postgres", false},
		{"postgresql", "postgresql://localhost/bot", "postgres", false},
		{"pg shorthand", "pg://user@localhost/bot", "postgres", false},
		{"sqlite scheme", "sqlite://bot.db", "sqlite", false},
		{"bare path", "bot.db", "sqlite", false},
		{"unknown scheme", "mysql://localhost/bot", "", true},
		{"blank", "   ", "", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dialector, err := Dialector(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Dialector(%q) expected error", tt.url)
				}
				return
			}
			if err != nil {
				t.Fatalf("Dialector(%q) error = %v", tt.url, err)
			}
			if got := dialector.Name(); got != tt.wantName {
				t.Fatalf("Dialector(%q).Name() = %q, want %q", tt.url, got, tt.wantName)
			}
		})
	}
}

func TestDialectorRewritesPgScheme(t *testing.T) {
	t.Parallel()

	dialector, err := Dialector("pg://user@localhost/bot")
	if err != nil {
		t.Fatalf("Dialector() error = %v", err)
	}
	pg, ok := dialector.(*postgres.Dialector)
	if !ok {
		t.Fatalf("expected postgres dialector, got %T", dialector)
	}
	if pg.Config.DSN != "postgres://user@localhost/bot" {
		t.Fatalf("DSN = %q", pg.Config.DSN)
	}
}

func TestAutoMigrateRejectsNilDatabase(t *testing.T) {
	t.Parallel()

	if err := AutoMigrate(nil); err == nil {
		t.Fatal("expected error when database handle is nil")
	}
}

func TestAutoMigrateWithSQLite(t *testing.T) {
	t.Parallel()

	sqliteDB, err := gorm.Open(sqlite.Open("file:memdb?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}

	if err := AutoMigrate(sqliteDB); err != nil {
		t.Fatalf("automigrate sqlite database: %v", err)
	}

	if !sqliteDB.Migrator().HasTable(&models.Color{}) || !sqliteDB.Migrator().HasTable(&models.LastUserChoice{}) {
		t.Fatal("expected palette tables to exist")
	}
}

func TestConfigureWithSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.db")

	database, err := Configure(config.DatabaseConfig{URL: "sqlite://" + path, MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := database.DB(); err == nil {
			sqlDB.Close()
		}
	})

	if !database.Migrator().HasTable(&models.Color{}) {
		t.Fatal("expected Configure to migrate the schema")
	}
	if err := database.Create(&models.Color{Name: "Bread", R: 1, G: 2, B: 3, Active: true}).Error; err != nil {
		t.Fatalf("create color: %v", err)
	}
}

func TestCheckConstraintRejectsOutOfRangeChannel(t *testing.T) {
	t.Parallel()

	sqliteDB, err := gorm.Open(sqlite.Open("file:checkdb?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	if err := AutoMigrate(sqliteDB); err != nil {
		t.Fatalf("automigrate sqlite database: %v", err)
	}

	if err := sqliteDB.Create(&models.Color{Name: "Hot", R: 300}).Error; err == nil {
		t.Fatal("expected check constraint to reject r=300")
	}
}

func TestConfigurePropagatesInitializationError(t *testing.T) {
	t.Parallel()

	if _, err := Configure(config.DatabaseConfig{}); err == nil {
		t.Fatal("expected configuration error when initialize fails")
	}
}
