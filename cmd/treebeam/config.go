package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config is the treebeam configuration file (~/.config/treebeam/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	ModelPath string `yaml:"model_path"`
	VocabPath string `yaml:"vocab_path"`

	BeamSize *int64 `yaml:"beam_size"`
	MaxLen   *int64 `yaml:"max_len"`

	LenNormBase *float64 `yaml:"len_norm_base"`
	LenNormPow  *float64 `yaml:"len_norm_pow"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "treebeam", "config.yaml")
}

func loadConfig() Config {
	var cfg Config
	path := configPath()
	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	// A malformed config file is ignored rather than fatal; flags still work.
	_ = yaml.Unmarshal(data, &cfg)
	return cfg
}

// applyConfig fills in defaults from the config file for flags the user did
// not set explicitly.
func applyConfig(c *cli.Command, cfg Config) {
	if cfg.ModelPath != "" && !c.IsSet("model") {
		modelPath = cfg.ModelPath
	}
	if cfg.VocabPath != "" && !c.IsSet("vocab") {
		vocabPath = cfg.VocabPath
	}
	if cfg.BeamSize != nil && !c.IsSet("beam-size") {
		beamSize = *cfg.BeamSize
	}
	if cfg.MaxLen != nil && !c.IsSet("max-len") {
		maxLen = *cfg.MaxLen
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}
