package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// TestLoad_Defaults verifies an empty path and a missing file both yield
// the defaults.
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://guide-orientation.rnu.tn", cfg.BaseURL)
	assert.Equal(t, 5, cfg.Harvest.Workers)

	cfg, err = Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "tunisia_specializations", cfg.OutputBase)
}

// TestLoad_FullFile verifies every field can be overridden.
func TestLoad_FullFile(t *testing.T) {
	path := writeConfig(t, `
base_url: http://localhost:8080
seeds_path: data/ids.csv
codes_path: data/codes.csv
output_dir: /tmp/out
output_base: specializations
db_path: /tmp/runs.db
harvest:
  workers: 10
  delay: 250ms
  fetch_timeout: 30s
  max_attempts: 5
  retry_delay: 1s
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, "data/ids.csv", cfg.SeedsPath)
	assert.Equal(t, "/tmp/out", cfg.OutputDir)
	assert.Equal(t, "specializations", cfg.OutputBase)
	assert.Equal(t, "/tmp/runs.db", cfg.DBPath)

	hc, err := cfg.HarvestConfig()
	require.NoError(t, err)
	assert.Equal(t, 10, hc.Workers)
	assert.Equal(t, 250*time.Millisecond, hc.Delay)
	assert.Equal(t, 30*time.Second, hc.FetchTimeout)
	assert.Equal(t, 5, hc.MaxAttempts)
	assert.Equal(t, time.Second, hc.RetryDelay)
}

// TestLoad_PartialFile verifies unset fields keep their defaults.
func TestLoad_PartialFile(t *testing.T) {
	path := writeConfig(t, `
harvest:
  workers: 2
  delay: 500ms
  fetch_timeout: 15s
  max_attempts: 3
  retry_delay: 2s
output_dir: results
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://guide-orientation.rnu.tn", cfg.BaseURL, "Unset fields keep defaults")
	assert.Equal(t, "results", cfg.OutputDir)
	assert.Equal(t, 2, cfg.Harvest.Workers)
}

// TestLoad_InvalidValues verifies load-time validation.
func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "harvest: [not a map"},
		{"bad duration", "harvest:\n  workers: 1\n  max_attempts: 1\n  delay: soon\n"},
		{"negative duration", "harvest:\n  workers: 1\n  max_attempts: 1\n  delay: -5s\n"},
		{"zero workers", "harvest:\n  workers: 0\n  max_attempts: 1\n"},
		{"empty base url", "base_url: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}
