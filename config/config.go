// Package config loads scraper configuration from a YAML file with
// sensible defaults for the Tunisian orientation guide.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hbouazizi/tawjih/harvest"
	"github.com/hbouazizi/tawjih/scrape"
)

// HarvestConfig represents worker pool settings from the config file.
// Durations are strings in time.ParseDuration format ("500ms", "2s").
type HarvestConfig struct {
	Workers      int    `yaml:"workers"`
	Delay        string `yaml:"delay"`
	FetchTimeout string `yaml:"fetch_timeout"`
	MaxAttempts  int    `yaml:"max_attempts"`
	RetryDelay   string `yaml:"retry_delay"`
}

// FileConfig represents the structure of the scraper config file.
type FileConfig struct {
	BaseURL    string        `yaml:"base_url"`
	SeedsPath  string        `yaml:"seeds_path"`
	CodesPath  string        `yaml:"codes_path"`
	OutputDir  string        `yaml:"output_dir"`
	OutputBase string        `yaml:"output_base"`
	DBPath     string        `yaml:"db_path"`
	Harvest    HarvestConfig `yaml:"harvest"`
}

// Default returns the configuration used when no file is given.
func Default() *FileConfig {
	hc := harvest.DefaultConfig()
	return &FileConfig{
		BaseURL:    scrape.DefaultBaseURL,
		SeedsPath:  "seeds.csv",
		CodesPath:  "codes.csv",
		OutputDir:  "output",
		OutputBase: "tunisia_specializations",
		DBPath:     "tawjih.db",
		Harvest: HarvestConfig{
			Workers:      hc.Workers,
			Delay:        hc.Delay.String(),
			FetchTimeout: hc.FetchTimeout.String(),
			MaxAttempts:  hc.MaxAttempts,
			RetryDelay:   hc.RetryDelay.String(),
		},
	}
}

// Load reads configuration from path. A missing file yields the defaults
// (not an error); a file that exists but cannot be parsed is an error.
// Fields absent from the file keep their default values.
func Load(path string) (*FileConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HarvestConfig converts the file's harvest section to runtime settings.
func (c *FileConfig) HarvestConfig() (*harvest.Config, error) {
	delay, err := parseDuration("harvest.delay", c.Harvest.Delay)
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDuration("harvest.fetch_timeout", c.Harvest.FetchTimeout)
	if err != nil {
		return nil, err
	}
	retryDelay, err := parseDuration("harvest.retry_delay", c.Harvest.RetryDelay)
	if err != nil {
		return nil, err
	}

	return &harvest.Config{
		Workers:      c.Harvest.Workers,
		Delay:        delay,
		FetchTimeout: fetchTimeout,
		MaxAttempts:  c.Harvest.MaxAttempts,
		RetryDelay:   retryDelay,
	}, nil
}

func (c *FileConfig) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	if c.Harvest.Workers < 1 {
		return fmt.Errorf("harvest.workers must be at least 1, got %d", c.Harvest.Workers)
	}
	if c.Harvest.MaxAttempts < 1 {
		return fmt.Errorf("harvest.max_attempts must be at least 1, got %d", c.Harvest.MaxAttempts)
	}
	// Surface bad duration strings at load time rather than at run start
	_, err := c.HarvestConfig()
	return err
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", field, value)
	}
	return d, nil
}
