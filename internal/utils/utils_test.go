package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/stella/internal/models"
)

func TestHistoryCSVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	bars := []models.Bar{
		{Symbol: "TSLA", Date: time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100},
		{Symbol: "TSLA", Date: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), Open: 1.5, High: 2.5, Low: 1, Close: 2.25, Volume: 200},
	}

	path, err := WriteHistoryCSV(dir, "tsla", bars)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "TSLA_history.csv"), path)

	got, err := ReadHistoryCSV(path)
	require.NoError(t, err)
	assert.Equal(t, bars, got)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestReadHistoryCSVEmpty(t *testing.T) {
	path, err := WriteHistoryCSV(t.TempDir(), "X", nil)
	require.NoError(t, err)
	_, err = ReadHistoryCSV(path)
	assert.Error(t, err)
}

func TestResolveConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("STELLA_CONFIG", "")

	path, err := ResolveConfigPath("")
	require.NoError(t, err)
	assert.Empty(t, path)

	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFilename), []byte(""), 0644))
	path, err = ResolveConfigPath("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigFilename, filepath.Base(path))

	t.Setenv("STELLA_CONFIG", "/etc/stella/prod.toml")
	path, err = ResolveConfigPath("")
	require.NoError(t, err)
	assert.Equal(t, "/etc/stella/prod.toml", path)

	path, err = ResolveConfigPath("custom.toml")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))
	assert.Equal(t, "custom.toml", filepath.Base(path))
}
