package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/rspstub/internal/protocol/packet"
	"github.com/danmuck/rspstub/internal/server"
)

// ServiceConfig is the resolved runtime config for `rspstub serve`.
type ServiceConfig struct {
	Listen      string
	AdminAddr   string
	CORSOrigins []string
	AdminToken  string
	Limits      packet.Limits
	// TargetPath is empty for the built-in target.
	TargetPath string
	LogLevel   string
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Listen:      server.DefaultConfig().ListenAddr,
		AdminAddr:   "",
		CORSOrigins: []string{},
		Limits:      packet.DefaultLimits(),
		LogLevel:    "",
	}
}

type fileConfig struct {
	Listen         string   `toml:"listen"`
	AdminAddr      string   `toml:"admin_addr"`
	CORSOrigins    []string `toml:"cors_origins"`
	AdminToken     string   `toml:"admin_token"`
	MaxPacketSize  int      `toml:"max_packet_size"`
	ReadBufferSize int      `toml:"read_buffer_size"`
	Target         string   `toml:"target"`
	LogLevel       string   `toml:"log_level"`
}

func loadServiceConfig(path string) (ServiceConfig, error) {
	cfg := DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ServiceConfig{}, fmt.Errorf("load rspstub config: %w", err)
	}

	if meta.IsDefined("listen") {
		if v := strings.TrimSpace(raw.Listen); v != "" {
			cfg.Listen = v
		}
	}

	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}

	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = normalizeOrigins(raw.CORSOrigins)
	}

	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}

	if meta.IsDefined("max_packet_size") {
		if raw.MaxPacketSize <= 0 {
			return ServiceConfig{}, fmt.Errorf("max_packet_size must be positive: %d", raw.MaxPacketSize)
		}
		cfg.Limits.MaxPacketSize = raw.MaxPacketSize
	}

	if meta.IsDefined("read_buffer_size") {
		if raw.ReadBufferSize <= 0 {
			return ServiceConfig{}, fmt.Errorf("read_buffer_size must be positive: %d", raw.ReadBufferSize)
		}
		cfg.Limits.ReadBufferSize = raw.ReadBufferSize
	}

	if meta.IsDefined("target") {
		cfg.TargetPath = resolveRelative(path, strings.TrimSpace(raw.Target))
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return ServiceConfig{}, fmt.Errorf("unknown config key: %s", undecoded[0].String())
	}
	return cfg, nil
}

// resolveRelative anchors a relative target path at the config file's directory.
func resolveRelative(configPath, target string) string {
	if target == "" || filepath.IsAbs(target) {
		return target
	}
	return filepath.Join(filepath.Dir(configPath), target)
}

func normalizeOrigins(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
