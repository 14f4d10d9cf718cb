package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileConfig represents the structure of the YAML configuration file. Every
// field is optional; unset fields keep their defaults.
type FileConfig struct {
	Sources struct {
		Table string `yaml:"table"`
		DSN   string `yaml:"dsn"`
	} `yaml:"sources"`
	State struct {
		Posts        string `yaml:"posts"`
		Images       string `yaml:"images"`
		Publications string `yaml:"publications"`
	} `yaml:"state"`
	Output struct {
		Dir       string `yaml:"dir"`
		ImagesDir string `yaml:"images_dir"`
	} `yaml:"output"`
	Harvest struct {
		Concurrency     int   `yaml:"concurrency"`
		DeepScan        *bool `yaml:"deep_scan"`
		MonitoringPages int   `yaml:"monitoring_pages"`
		SaveImages      *bool `yaml:"save_images"`
	} `yaml:"harvest"`
	Fetch struct {
		Timeout      string `yaml:"timeout"`
		HostInterval string `yaml:"host_interval"`
	} `yaml:"fetch"`
	Telemetry struct {
		DSN string `yaml:"dsn"`
	} `yaml:"telemetry"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// ConfigFilePath returns the default configuration path,
// ~/.ultscan/config.yaml.
func ConfigFilePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".ultscan", "config.yaml"), nil
}

// LoadConfigFile loads configuration from path, or from ConfigFilePath when
// path is empty. Returns nil if the file doesn't exist (not an error).
// Returns error if the file exists but cannot be parsed.
func LoadConfigFile(path string) (*FileConfig, error) {
	if path == "" {
		var err error
		if path, err = ConfigFilePath(); err != nil {
			return nil, err
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// WriteDefaultConfigFile writes the defaults to path unless the file
// already exists and force is false. It reports whether a file was written.
func WriteDefaultConfigFile(path string, force bool) (bool, error) {
	if _, err := os.Stat(path); err == nil && !force {
		return false, nil
	}

	d := Default()
	var fc FileConfig
	fc.Sources.Table = d.SourceTable
	fc.State.Posts = d.State.Posts
	fc.State.Images = d.State.Images
	fc.State.Publications = d.State.Publications
	fc.Output.Dir = d.OutputDir
	fc.Output.ImagesDir = d.ImagesDir
	fc.Harvest.Concurrency = d.Concurrency
	fc.Harvest.DeepScan = &d.DeepScan
	fc.Harvest.MonitoringPages = d.MonitoringPages
	fc.Harvest.SaveImages = &d.SaveImages
	fc.Fetch.Timeout = d.Fetch.Timeout.String()
	fc.Fetch.HostInterval = d.Fetch.HostInterval.String()
	fc.Log.Level = d.LogLevel

	data, err := yaml.Marshal(&fc)
	if err != nil {
		return false, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return false, fmt.Errorf("failed to write config file: %w", err)
	}
	return true, nil
}
