package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
}

func TestSetKeyPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)

	_, err := SetKey(path, "color_scheme", "Dark")
	require.NoError(t, err)
	_, err = SetKey(path, "reduce_motion", "true")
	require.NoError(t, err)
	_, err = SetKey(path, "font_scale", "1.1")
	require.NoError(t, err)

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, SchemeDark, s.ColorScheme)
	assert.True(t, s.ReduceMotion)
	assert.InDelta(t, 1.1, s.FontScale, 1e-9)
}

func TestSetRejectsBadValues(t *testing.T) {
	s := Default()
	assert.Error(t, s.Set("color_scheme", "sepia"))
	assert.Error(t, s.Set("reduce_motion", "maybe"))
	assert.Error(t, s.Set("font_scale", "big"))
	assert.Error(t, s.Set("volume", "11"))
	assert.Equal(t, Default(), s)
}

func TestLoadNormalizesHandEditedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("font_scale = 3.0\ncolor_scheme = \"neon\"\n"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, MaxFontScale, s.FontScale)
	assert.Equal(t, SchemeSystem, s.ColorScheme)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("font_scale = [\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestGetRoundTripsAllowedKeys(t *testing.T) {
	s := Settings{FontScale: 0.9, ColorScheme: SchemeLight, ReduceMotion: true}
	for _, key := range AllowedKeys() {
		v, err := s.Get(key)
		require.NoError(t, err)
		other := Default()
		require.NoError(t, other.Set(key, v))
		got, err := other.Get(key)
		require.NoError(t, err)
		assert.Equal(t, v, got, key)
	}
}

func TestFontScaleAlwaysInRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := rapid.Float64Range(-10, 10).Draw(t, "scale")
		s := Default()
		if err := s.Set("font_scale", formatFloat(f)); err != nil {
			t.Fatalf("set: %v", err)
		}
		if s.FontScale < MinFontScale || s.FontScale > MaxFontScale {
			t.Fatalf("font scale %v out of range", s.FontScale)
		}
	})
}

func formatFloat(f float64) string {
	s := Settings{FontScale: f}
	v, _ := s.Get("font_scale")
	return v
}
