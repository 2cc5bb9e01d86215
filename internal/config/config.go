// Package config loads coordinator settings from an optional YAML file.
// Every field has a working default so the zero configuration is usable.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings are the externally supplied knobs consumed by the job
// coordinator. All values are read-only once loaded.
type Settings struct {
	// HistorySizeMB is the soft budget for retained generation results,
	// per document, in megabytes.
	HistorySizeMB float64 `yaml:"history_size_mb"`

	// SelectionGrow expands the selection mask by a percentage of its
	// size before generation.
	SelectionGrow float64 `yaml:"selection_grow"`

	// SelectionFeather softens the mask edge by a percentage.
	SelectionFeather float64 `yaml:"selection_feather"`

	// SelectionPadding adds surrounding context to the working region,
	// as a percentage.
	SelectionPadding float64 `yaml:"selection_padding"`

	// StylesDir is the directory scanned for style preset files.
	StylesDir string `yaml:"styles_dir"`

	// HistoryDB is the path of the sqlite archive of finished
	// generations. Empty disables archiving.
	HistoryDB string `yaml:"history_db"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		HistorySizeMB:    1000,
		SelectionGrow:    5,
		SelectionFeather: 5,
		SelectionPadding: 7,
		StylesDir:        "styles",
	}
}

// Load reads settings from path, applying defaults for absent fields.
// A missing file is not an error; the defaults are returned as-is.
func Load(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return s, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

func (s Settings) validate() error {
	if s.HistorySizeMB < 0 {
		return fmt.Errorf("history_size_mb must be >= 0, got %v", s.HistorySizeMB)
	}
	for name, v := range map[string]float64{
		"selection_grow":    s.SelectionGrow,
		"selection_feather": s.SelectionFeather,
		"selection_padding": s.SelectionPadding,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s must be a percentage in [0, 100], got %v", name, v)
		}
	}
	return nil
}
