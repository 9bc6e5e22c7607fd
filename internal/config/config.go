package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingCredentials indicates the processing service credentials are not
// set in the environment. Nothing is submitted or downloaded without them.
var ErrMissingCredentials = errors.New("HYP3_USERNAME and HYP3_PASSWORD are required")

// Config models sarbatch.yml.
type Config struct {
	Service struct {
		APIURL     string `yaml:"api_url"`
		CatalogURL string `yaml:"catalog_url"`
	} `yaml:"service"`
	Processing struct {
		Looks               string `yaml:"looks"`
		BatchSize           int    `yaml:"batch_size"`
		MaxWorkers          int    `yaml:"max_workers"`
		MinTemporalBaseline int    `yaml:"min_temporal_baseline"`
		MaxTemporalBaseline int    `yaml:"max_temporal_baseline"`
		PollInterval        string `yaml:"poll_interval"`
	} `yaml:"processing"`
	Credits struct {
		// Costs maps job type -> looks mode -> credits per pair.
		Costs map[string]map[string]int `yaml:"costs"`
	} `yaml:"credits"`
}

// Load reads and validates config from the workspace, falling back to the
// built-in defaults when no sarbatch.yml exists.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Fields left out
// of the file keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Service.APIURL == "" {
		return fmt.Errorf("config.service.api_url is required")
	}
	if c.Service.CatalogURL == "" {
		return fmt.Errorf("config.service.catalog_url is required")
	}
	if c.Processing.BatchSize <= 0 {
		return fmt.Errorf("config.processing.batch_size must be positive")
	}
	if c.Processing.MaxWorkers <= 0 {
		return fmt.Errorf("config.processing.max_workers must be positive")
	}
	if c.Processing.MinTemporalBaseline < 0 || c.Processing.MaxTemporalBaseline < 0 {
		return fmt.Errorf("temporal baseline bounds must be non-negative")
	}
	if _, err := c.PollInterval(); err != nil {
		return fmt.Errorf("config.processing.poll_interval: %w", err)
	}
	if len(c.Credits.Costs) == 0 {
		return fmt.Errorf("config.credits.costs is required")
	}
	for jobType, table := range c.Credits.Costs {
		if len(table) == 0 {
			return fmt.Errorf("config.credits.costs.%s has no looks entries", jobType)
		}
		for looks, cost := range table {
			if cost <= 0 {
				return fmt.Errorf("cost for %s/%s must be positive", jobType, looks)
			}
		}
	}
	return nil
}

// CostPerPair returns the credit cost for one pair of the given job type and
// looks mode.
func (c *Config) CostPerPair(jobType, looks string) (int, error) {
	table, ok := c.Credits.Costs[jobType]
	if !ok {
		return 0, fmt.Errorf("no cost table for job type %s", jobType)
	}
	cost, ok := table[looks]
	if !ok {
		return 0, fmt.Errorf("no cost entry for %s looks %s", jobType, looks)
	}
	return cost, nil
}

// PollInterval parses the watch polling interval.
func (c *Config) PollInterval() (time.Duration, error) {
	return time.ParseDuration(c.Processing.PollInterval)
}

// Credentials reads the processing service credentials from the environment.
func Credentials() (username, password string, err error) {
	username = os.Getenv("HYP3_USERNAME")
	password = os.Getenv("HYP3_PASSWORD")
	if username == "" || password == "" {
		return "", "", ErrMissingCredentials
	}
	return username, password, nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "sarbatch.yml")
}

// Default returns the built-in default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

const defaultTemplate = `service:
  api_url: https://hyp3-api.asf.alaska.edu
  catalog_url: https://api.daac.asf.alaska.edu

processing:
  looks: 20x4
  batch_size: 50
  max_workers: 10
  min_temporal_baseline: 0
  max_temporal_baseline: 24
  poll_interval: 60s

credits:
  costs:
    INSAR_GAMMA:
      20x4: 10
      10x2: 15
    INSAR_ISCE_BURST:
      20x5: 5
      10x5: 10
      5x1: 15
`
