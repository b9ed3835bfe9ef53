// Package config loads the YAML configuration used by the command
// line tools.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// File is the on-disk configuration. Zero values fall back to the
// defaults below.
type File struct {
	StorePath     string `yaml:"storePath"`
	MinimumFreeGB uint   `yaml:"minimumFreeGB"`
	BlockSize     int64  `yaml:"blockSize"`
	TupleSize     int    `yaml:"tupleSize"`
	ParityShards  int    `yaml:"parityShards"`
	Compress      *bool  `yaml:"compress"`
	LogLevel      string `yaml:"logLevel"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() File {
	on := true
	return File{
		StorePath:     defaultStorePath(),
		MinimumFreeGB: 1,
		BlockSize:     1 << 20,
		TupleSize:     3,
		ParityShards:  2,
		Compress:      &on,
		LogLevel:      "info",
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".brightchain"
	}
	return filepath.Join(home, ".brightchain")
}

// Load reads the YAML file at path and fills unset fields with
// defaults. A missing file yields the defaults without error.
func Load(path string) (File, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if f.StorePath != "" {
		cfg.StorePath = f.StorePath
	}
	if f.MinimumFreeGB != 0 {
		cfg.MinimumFreeGB = f.MinimumFreeGB
	}
	if f.BlockSize != 0 {
		cfg.BlockSize = f.BlockSize
	}
	if f.TupleSize != 0 {
		cfg.TupleSize = f.TupleSize
	}
	if f.ParityShards != 0 {
		cfg.ParityShards = f.ParityShards
	}
	if f.Compress != nil {
		cfg.Compress = f.Compress
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	return cfg, nil
}

// CompressEnabled reports the effective compression setting.
func (f File) CompressEnabled() bool {
	return f.Compress != nil && *f.Compress
}
