package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"avatarbot/internal/bot"
	"avatarbot/internal/colorspec"
)

// entry is one palette row of an import file. An empty Color reactivates a
// known name; Active false stores the colour hidden.
type entry struct {
	Name   string `yaml:"name"`
	Color  string `yaml:"color"`
	Active *bool  `yaml:"active"`
}

func (a *app) importCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Upsert colours from a .csv or .yaml file",
		Long: `Upsert colours from a file.

CSV files need a header with "name" and "color" columns and may add "active".
YAML files hold a list of {name, color, active} mappings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := readEntries(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			store, err := a.store()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			for idx, e := range entries {
				if bot.IsReservedName(e.Name) {
					return fmt.Errorf("entry %d: %q is reserved for the refresh button", idx+1, e.Name)
				}
				var rgb *colorspec.RGB
				if strings.TrimSpace(e.Color) != "" {
					parsed, err := colorspec.Parse(strings.Fields(e.Color))
					if err != nil {
						return fmt.Errorf("entry %d (%s): %w", idx+1, e.Name, err)
					}
					rgb = &parsed
				}
				if _, err := store.Upsert(ctx, e.Name, rgb); err != nil {
					return fmt.Errorf("entry %d (%s): %w", idx+1, e.Name, err)
				}
				if e.Active != nil && !*e.Active {
					if _, err := store.Deactivate(ctx, e.Name); err != nil {
						return fmt.Errorf("entry %d (%s): %w", idx+1, e.Name, err)
					}
				}
			}

			fmt.Fprintf(a.out, "Imported %d colors from %s\n", len(entries), filepath.Base(args[0]))
			return nil
		},
	}
}

func readEntries(path string) ([]entry, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path)
	case ".yaml", ".yml":
		return readYAML(path)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

func readYAML(path string) ([]entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Name = strings.TrimSpace(entries[i].Name)
	}
	return entries, nil
}

func readCSV(path string) ([]entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("csv is empty")
	}

	columns := make(map[string]int, len(rows[0]))
	for idx, key := range rows[0] {
		columns[strings.ToLower(strings.TrimSpace(key))] = idx
	}
	nameCol, ok := columns["name"]
	if !ok {
		return nil, errors.New(`csv header must contain a "name" column`)
	}
	colorCol, ok := columns["color"]
	if !ok {
		return nil, errors.New(`csv header must contain a "color" column`)
	}
	activeCol, hasActive := columns["active"]

	field := func(row []string, idx int) string {
		if idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	entries := make([]entry, 0, len(rows)-1)
	for line, row := range rows[1:] {
		e := entry{Name: field(row, nameCol), Color: field(row, colorCol)}
		if e.Name == "" && e.Color == "" {
			continue
		}
		if hasActive {
			if raw := field(row, activeCol); raw != "" {
				active, err := strconv.ParseBool(raw)
				if err != nil {
					return nil, fmt.Errorf("line %d: invalid active value %q", line+2, raw)
				}
				e.Active = &active
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}
