// Package settings persists the user's display preferences.
package settings

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	FileName = "settings.toml"

	MinFontScale     = 0.8
	MaxFontScale     = 1.2
	DefaultFontScale = 1.0
)

// ColorScheme selects the palette.
type ColorScheme string

const (
	SchemeSystem ColorScheme = "system"
	SchemeLight  ColorScheme = "light"
	SchemeDark   ColorScheme = "dark"
)

// Settings are the recognized preferences.
type Settings struct {
	FontScale    float64     `toml:"font_scale"`
	ColorScheme  ColorScheme `toml:"color_scheme"`
	ReduceMotion bool        `toml:"reduce_motion"`
}

// Default returns default settings values.
func Default() Settings {
	return Settings{FontScale: DefaultFontScale, ColorScheme: SchemeSystem}
}

var allowedKeys = []string{"font_scale", "color_scheme", "reduce_motion"}

// AllowedKeys returns the set of valid settings keys.
func AllowedKeys() []string {
	return allowedKeys
}

// Path returns the settings file inside dir, or the user config dir.
func Path(dir string) (string, error) {
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(base, "hangar")
	}
	return filepath.Join(dir, FileName), nil
}

// Load reads settings from path. A missing file yields defaults; values out
// of range are brought back into range.
func Load(path string) (Settings, error) {
	s := Default()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, err
	}
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return Default(), fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	s.normalize()
	return s, nil
}

// Save writes settings to path, creating its directory.
func Save(path string, s Settings) error {
	s.normalize()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(s)
}

func (s *Settings) normalize() {
	if s.FontScale == 0 || math.IsNaN(s.FontScale) {
		s.FontScale = DefaultFontScale
	}
	s.FontScale = min(max(s.FontScale, MinFontScale), MaxFontScale)
	switch s.ColorScheme {
	case SchemeSystem, SchemeLight, SchemeDark:
	default:
		s.ColorScheme = SchemeSystem
	}
}

// Get returns the value of a settings key.
func (s Settings) Get(key string) (string, error) {
	switch key {
	case "font_scale":
		return strconv.FormatFloat(s.FontScale, 'f', -1, 64), nil
	case "color_scheme":
		return string(s.ColorScheme), nil
	case "reduce_motion":
		return strconv.FormatBool(s.ReduceMotion), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// Set parses value for key. Font scales outside the allowed range are
// clamped; unknown schemes are rejected.
func (s *Settings) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "font_scale":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsNaN(f) {
			return fmt.Errorf("font_scale: %q is not a number", value)
		}
		s.FontScale = min(max(f, MinFontScale), MaxFontScale)
	case "color_scheme":
		scheme := ColorScheme(strings.ToLower(value))
		switch scheme {
		case SchemeSystem, SchemeLight, SchemeDark:
			s.ColorScheme = scheme
		default:
			return fmt.Errorf("color_scheme: expected system, light or dark, got %q", value)
		}
	case "reduce_motion":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("reduce_motion: %q is not a boolean", value)
		}
		s.ReduceMotion = b
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

// SetKey loads path, sets key and writes the result back.
func SetKey(path, key, value string) (Settings, error) {
	s, err := Load(path)
	if err != nil {
		return s, err
	}
	if err := s.Set(key, value); err != nil {
		return s, err
	}
	return s, Save(path, s)
}
