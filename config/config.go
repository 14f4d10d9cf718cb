// Package config resolves the run configuration of the harvester from
// defaults, an optional YAML file and ULTSCAN_* environment variables, in
// increasing order of priority.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/idaraty-prod/ultscan-cfw/fetcher"
	"github.com/idaraty-prod/ultscan-cfw/state"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ULTSCAN_"

// Config is the resolved run configuration.
type Config struct {
	// SourceTable is the CSV source table. Ignored when SourcesDSN is set.
	SourceTable string
	// SourcesDSN is the SQLite source store.
	SourcesDSN string

	State     state.Paths
	OutputDir string
	ImagesDir string

	// Concurrency is the number of sources harvested at once.
	Concurrency     int
	DeepScan        bool
	MonitoringPages int
	SaveImages      bool

	Fetch fetcher.Options

	// TelemetryDSN is the SQLite event store. Empty logs events only.
	TelemetryDSN string

	LogLevel  string
	LogFormat string
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		SourceTable: "post_models.csv",
		State: state.Paths{
			Posts:        "processed_posts.csv",
			Images:       "processed_images.csv",
			Publications: "processed_publications.csv",
		},
		OutputDir:       "outputs",
		ImagesDir:       "images",
		Concurrency:     4,
		MonitoringPages: 3,
		SaveImages:      true,
		Fetch:           fetcher.DefaultOptions(),
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load resolves the configuration. path may be empty to use the default
// file location; a missing file is not an error.
func Load(path string) (*Config, error) {
	fc, err := LoadConfigFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := cfg.apply(fc); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Validate checks the values no component can recover from.
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("harvest concurrency must be positive, got %d", c.Concurrency)
	}
	if c.MonitoringPages < 1 {
		return fmt.Errorf("monitoring pages must be positive, got %d", c.MonitoringPages)
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %s", c.Fetch.Timeout)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

// Logger builds the logger described by the log settings.
func (c *Config) Logger() *logrus.Logger {
	log := logrus.New()
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(level)
	}
	if c.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

func (c *Config) apply(fc *FileConfig) error {
	if fc == nil {
		return nil
	}
	setString(&c.SourceTable, fc.Sources.Table)
	setString(&c.SourcesDSN, fc.Sources.DSN)
	setString(&c.State.Posts, fc.State.Posts)
	setString(&c.State.Images, fc.State.Images)
	setString(&c.State.Publications, fc.State.Publications)
	setString(&c.OutputDir, fc.Output.Dir)
	setString(&c.ImagesDir, fc.Output.ImagesDir)
	setString(&c.TelemetryDSN, fc.Telemetry.DSN)
	setString(&c.LogLevel, fc.Log.Level)
	setString(&c.LogFormat, fc.Log.Format)

	if fc.Harvest.Concurrency != 0 {
		c.Concurrency = fc.Harvest.Concurrency
	}
	if fc.Harvest.MonitoringPages != 0 {
		c.MonitoringPages = fc.Harvest.MonitoringPages
	}
	if fc.Harvest.DeepScan != nil {
		c.DeepScan = *fc.Harvest.DeepScan
	}
	if fc.Harvest.SaveImages != nil {
		c.SaveImages = *fc.Harvest.SaveImages
	}
	if err := setDuration(&c.Fetch.Timeout, fc.Fetch.Timeout, "fetch.timeout"); err != nil {
		return err
	}
	return setDuration(&c.Fetch.HostInterval, fc.Fetch.HostInterval, "fetch.host_interval")
}

// applyEnv applies ULTSCAN_* overrides read through getenv.
func (c *Config) applyEnv(getenv func(string) string) error {
	env := func(key string) string { return strings.TrimSpace(getenv(EnvPrefix + key)) }

	setString(&c.SourceTable, env("SOURCE_TABLE"))
	setString(&c.SourcesDSN, env("SOURCES_DSN"))
	setString(&c.State.Posts, env("PROCESSED_POSTS"))
	setString(&c.State.Images, env("PROCESSED_IMAGES"))
	setString(&c.State.Publications, env("PROCESSED_PUBLICATIONS"))
	setString(&c.OutputDir, env("OUTPUT_DIR"))
	setString(&c.ImagesDir, env("IMAGES_DIR"))
	setString(&c.TelemetryDSN, env("TELEMETRY_DSN"))
	setString(&c.LogLevel, env("LOG_LEVEL"))
	setString(&c.LogFormat, env("LOG_FORMAT"))

	if err := setInt(&c.Concurrency, env("CONCURRENCY"), "CONCURRENCY"); err != nil {
		return err
	}
	if err := setInt(&c.MonitoringPages, env("MONITORING_PAGES"), "MONITORING_PAGES"); err != nil {
		return err
	}
	if err := setBool(&c.DeepScan, env("DEEP_SCAN"), "DEEP_SCAN"); err != nil {
		return err
	}
	if err := setBool(&c.SaveImages, env("SAVE_IMAGES"), "SAVE_IMAGES"); err != nil {
		return err
	}
	if err := setDuration(&c.Fetch.Timeout, env("FETCH_TIMEOUT"), "FETCH_TIMEOUT"); err != nil {
		return err
	}
	return setDuration(&c.Fetch.HostInterval, env("HOST_INTERVAL"), "HOST_INTERVAL")
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v, name string) error {
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, v, name string) error {
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, v, name string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = d
	return nil
}
