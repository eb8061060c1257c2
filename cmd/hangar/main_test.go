package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/hangar/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEnv points config, cache, log and secrets at a temp dir.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HANGAR_CACHE_DIR", filepath.Join(dir, "data"))
	t.Setenv("HANGAR_LOGGING_FILE", filepath.Join(dir, "hangar.log"))
	t.Setenv("HANGAR_SECRETS_BACKEND", "memory")
	return dir
}

func execute(t *testing.T, dir, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config-dir", dir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	dir := testEnv(t)
	out, err := execute(t, dir, "", "--version")
	require.NoError(t, err)
	assert.Equal(t, "hangar version dev\n", out)
}

func TestSettingsCommands(t *testing.T) {
	dir := testEnv(t)

	out, err := execute(t, dir, "", "settings", "show")
	require.NoError(t, err)
	assert.Equal(t, "font_scale = 1\ncolor_scheme = system\nreduce_motion = false\n", out)

	out, err = execute(t, dir, "", "settings", "set", "color_scheme", "Dark")
	require.NoError(t, err)
	assert.Equal(t, "color_scheme = dark\n", out)

	out, err = execute(t, dir, "", "settings", "set", "font_scale", "3")
	require.NoError(t, err)
	assert.Equal(t, "font_scale = 1.2\n", out, "clamped")

	out, err = execute(t, dir, "", "settings", "get", "color_scheme")
	require.NoError(t, err)
	assert.Equal(t, "dark\n", out)

	_, err = os.Stat(filepath.Join(dir, "settings.toml"))
	assert.NoError(t, err)
}

func TestSettingsRejectsBadInput(t *testing.T) {
	dir := testEnv(t)

	_, err := execute(t, dir, "", "settings", "get", "volume")
	assert.ErrorContains(t, err, "unknown key: volume")

	_, err = execute(t, dir, "", "settings", "set", "reduce_motion", "sometimes")
	assert.ErrorContains(t, err, "not a boolean")

	_, err = execute(t, dir, "", "settings", "set", "color_scheme")
	assert.Error(t, err)
}

func TestConfigCommands(t *testing.T) {
	dir := testEnv(t)

	out, err := execute(t, dir, "", "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yaml")+"\n", out)

	out, err = execute(t, dir, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "service.url = https://bsky.social\n")
	assert.Contains(t, out, "secrets.backend = memory\n")

	_, err = execute(t, dir, "", "config", "init")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	_, err = execute(t, dir, "", "config", "init")
	assert.ErrorContains(t, err, "already exists")
	_, err = execute(t, dir, "", "config", "init", "--force")
	assert.NoError(t, err)
}

func TestCacheCommands(t *testing.T) {
	dir := testEnv(t)

	out, err := execute(t, dir, "", "cache", "stats")
	require.NoError(t, err)
	assert.Equal(t, "cache is empty\n", out)

	out, err = execute(t, dir, "", "cache", "evict")
	require.NoError(t, err)
	assert.Equal(t, "removed 0 stale, evicted 0 rows and 0 images (0 B)\n", out)

	out, err = execute(t, dir, "", "cache", "clear")
	require.NoError(t, err)
	assert.Equal(t, "cache cleared\n", out)
	_, err = os.Stat(filepath.Join(dir, "data", "hangar.db"))
	assert.True(t, os.IsNotExist(err))
}

func TestLoginValidatesInput(t *testing.T) {
	dir := testEnv(t)

	_, err := execute(t, dir, "\n", "login", "alice.test", "--password-stdin")
	assert.EqualError(t, err, "password cannot be empty")

	_, err = execute(t, dir, "  \n", "login")
	assert.EqualError(t, err, "handle cannot be empty")
}

func TestWhoamiWithoutSession(t *testing.T) {
	dir := testEnv(t)

	out, err := execute(t, dir, "", "whoami")
	require.NoError(t, err)
	assert.Equal(t, "Not logged in\n", out)

	out, err = execute(t, dir, "", "logout")
	require.NoError(t, err)
	assert.Equal(t, "Not logged in\n", out)

	_, err = execute(t, dir, "", "timeline")
	assert.ErrorContains(t, err, "not logged in")
}

func TestFormatPostLine(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := domain.Post{
		Author:      domain.Actor{Handle: "bob.test"},
		Text:        "hello\n  world",
		CreatedAt:   now.Add(-5 * time.Minute),
		LikeCount:   3,
		RepostCount: 1,
	}
	assert.Equal(t, "5m     @bob.test: hello world  [↩ 0 ⟲ 1 ♥ 3]", formatPostLine(p, now))

	p.RepostedBy = &domain.Actor{Handle: "carol.test"}
	assert.Contains(t, formatPostLine(p, now), "@carol.test ⟲ @bob.test:")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "100.0 MiB", formatBytes(100<<20))
}
