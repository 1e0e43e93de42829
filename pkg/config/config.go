/*
Package config loads deltadb's process-wide engine configuration: the
working directory for repository/blob/ISAM files, the application name
registered with the ADP, the log level, and the mirror daemon address used
to bootstrap pkg/deltaclient when the caller does not supply one directly.

This is ambient bootstrap configuration, distinct from the ADP profile
(§6, XML, bit-exact) and the mirror cluster address file
(/etc/hzDelta.d/cluster.xml) which are both wire/file-format contracts
owned by pkg/adp and pkg/deltaclient respectively.
*/
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the engine's bootstrap configuration.
type Config struct {
	// AppName is the application name registered with the ADP and used to
	// locate /etc/hzDelta.d/<AppName>.adp.
	AppName string `yaml:"app_name"`

	// DataDir is the working directory holding repository, blob and ISAM
	// files (spec §6 file layouts are all relative to this directory).
	DataDir string `yaml:"data_dir"`

	// LogLevel and LogJSON configure pkg/log.
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	// MirrorAddr is the default host:port of the local mirroring daemon.
	// Empty means pkg/deltaclient falls back to reading
	// /etc/hzDelta.d/cluster.xml.
	MirrorAddr string `yaml:"mirror_addr"`
}

// Default returns a Config with the engine's baked-in defaults.
func Default() *Config {
	return &Config{
		AppName:  "app",
		DataDir:  "./data",
		LogLevel: "info",
		LogJSON:  false,
	}
}

// Load reads and parses a YAML config file, applying defaults for any
// field left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.AppName == "" {
		return nil, fmt.Errorf("config: %s: app_name is required", path)
	}
	return cfg, nil
}
