// Package config loads the daemon configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir string `yaml:"dataDir"`

	Checkpoint struct {
		Every uint64 `yaml:"every"`
		Keep  int    `yaml:"keep"`
	} `yaml:"checkpoint"`

	Queue struct {
		SegmentSize int64 `yaml:"segmentSize"`
	} `yaml:"queue"`

	Responses struct {
		Brokers  []string      `yaml:"brokers"`
		Topic    string        `yaml:"topic"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"responses"`

	Trades struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"trades"`

	MetricsAddr string `yaml:"metricsAddr"`

	// Markets bootstrapped on a fresh data directory.
	Markets []MarketConfig `yaml:"markets"`
}

type MarketConfig struct {
	ID                string `yaml:"id"` // "BASE/QUOTE"
	TickSize          string `yaml:"tickSize"`
	MarketPrice       string `yaml:"marketPrice"`
	MaxLevels         int    `yaml:"maxLevels"`
	MaxOrdersPerLevel int    `yaml:"maxOrdersPerLevel"`
	BaseDecimals      int32  `yaml:"baseDecimals"`
	QuoteDecimals     int32  `yaml:"quoteDecimals"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("config %s: dataDir is required", path)
	}
	return cfg, nil
}

func Default() *Config {
	cfg := &Config{
		DataDir:     "./data",
		MetricsAddr: ":9100",
	}
	cfg.Checkpoint.Every = 10_000
	cfg.Checkpoint.Keep = 2
	cfg.Queue.SegmentSize = 64 << 20
	cfg.Responses.Topic = "sequencer.responses"
	cfg.Responses.Interval = 250 * time.Millisecond
	cfg.Trades.Topic = "sequencer.trades"
	return cfg
}
