package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/scopegrab/internal/protocol/session"
)

const defaultOutput = "grab.png"

type fileConfig struct {
	Address         string `toml:"address"`
	Output          string `toml:"output"`
	Identify        bool   `toml:"identify"`
	ConnectTimeout  string `toml:"connect_timeout"`
	Timeout         string `toml:"timeout"`
	MaxBlockBytes   int64  `toml:"max_block_bytes"`
	LogLevel        string `toml:"log_level"`
	MetricsTextfile string `toml:"metrics_textfile"`
}

// runConfig is everything one capture run needs.
type runConfig struct {
	Address  string
	Output   string
	Identify bool
	// Timeout bounds the whole run after connecting; zero waits forever.
	Timeout         time.Duration
	LogLevel        string
	MetricsTextfile string
	Session         session.Config
}

func defaultRunConfig() runConfig {
	return runConfig{
		Output:  defaultOutput,
		Session: session.DefaultConfig(),
	}
}

func loadRunConfig(path string, cfg runConfig) (runConfig, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runConfig{}, fmt.Errorf("load scopegrab config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return runConfig{}, fmt.Errorf("load scopegrab config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}

	if meta.IsDefined("output") {
		if out := strings.TrimSpace(raw.Output); out != "" {
			cfg.Output = out
		}
	}

	if meta.IsDefined("identify") {
		cfg.Identify = raw.Identify
	}

	if meta.IsDefined("connect_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ConnectTimeout))
		if err != nil {
			return runConfig{}, fmt.Errorf("parse connect_timeout: %w", err)
		}
		cfg.Session.ConnectTimeout = d
	}

	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return runConfig{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}

	if meta.IsDefined("max_block_bytes") {
		if raw.MaxBlockBytes < 0 {
			return runConfig{}, fmt.Errorf("max_block_bytes must be >= 0, got %d", raw.MaxBlockBytes)
		}
		cfg.Session.Limits.MaxPayloadBytes = uint64(raw.MaxBlockBytes)
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if meta.IsDefined("metrics_textfile") {
		cfg.MetricsTextfile = strings.TrimSpace(raw.MetricsTextfile)
	}

	return cfg, nil
}
