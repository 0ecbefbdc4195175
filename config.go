package sealfeed

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/sealfeed/sealfeed/pkg/logging"
)

// Config configures a Client. The zero value plus a PackageID is usable
// on testnet.
type Config struct {
	// PackageID is the deployed contract package.
	PackageID string

	// PublisherURL and AggregatorURL override the walrus endpoints.
	// Empty selects the public testnet services.
	PublisherURL  string
	AggregatorURL string

	// Epochs is the storage duration for published blobs.
	Epochs int

	// SessionTTL bounds how long an authorized session stays usable.
	SessionTTL time.Duration

	// Logger is an optional structured logger. If nil, a stderr logger
	// is used.
	Logger *slog.Logger
}

// LoadConfig reads a YAML config file. Durations use Go notation, for
// example "10m".
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("sealfeed: read config: %w", err)
	}
	var raw struct {
		PackageID     string `yaml:"package_id"`
		PublisherURL  string `yaml:"publisher_url"`
		AggregatorURL string `yaml:"aggregator_url"`
		Epochs        int    `yaml:"epochs"`
		SessionTTL    string `yaml:"session_ttl"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("sealfeed: parse config %s: %w", path, err)
	}
	conf := Config{
		PackageID:     raw.PackageID,
		PublisherURL:  raw.PublisherURL,
		AggregatorURL: raw.AggregatorURL,
		Epochs:        raw.Epochs,
	}
	if raw.SessionTTL != "" {
		conf.SessionTTL, err = time.ParseDuration(raw.SessionTTL)
		if err != nil {
			return Config{}, fmt.Errorf("sealfeed: parse session_ttl: %w", err)
		}
	}
	return conf, nil
}

// defaultLogger returns a stderr logger at Info level. Applications can
// inject their own slog.Logger for JSON, different levels, etc.
func defaultLogger() *slog.Logger {
	return logging.Default()
}
