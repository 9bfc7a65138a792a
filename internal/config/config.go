package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/rspstub/internal/protocol/feature"
	"github.com/pelletier/go-toml/v2"
)

// TargetConfig is the on-disk description of the simulated debug target.
type TargetConfig struct {
	Name          string   `toml:"name"`
	ThreadID      uint64   `toml:"thread_id"`
	RegisterBytes int      `toml:"register_bytes"`
	Registers     string   `toml:"registers"`
	Features      []string `toml:"features"`
}

func LoadTargetConfig(path string) (TargetConfig, error) {
	var cfg TargetConfig
	if err := loadToml(path, &cfg); err != nil {
		return TargetConfig{}, err
	}
	cfg = cfg.withDefaults()
	if err := ValidateTargetConfig(cfg); err != nil {
		return TargetConfig{}, err
	}
	return cfg, nil
}

func ParseTargetConfig(data []byte) (TargetConfig, error) {
	var cfg TargetConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return TargetConfig{}, fmt.Errorf("config parse failed: %w", err)
	}
	cfg = cfg.withDefaults()
	if err := ValidateTargetConfig(cfg); err != nil {
		return TargetConfig{}, err
	}
	return cfg, nil
}

func (c TargetConfig) withDefaults() TargetConfig {
	if strings.TrimSpace(c.Name) == "" {
		c.Name = "stub"
	}
	if c.ThreadID == 0 {
		c.ThreadID = 1
	}
	if c.RegisterBytes == 0 && c.Registers == "" {
		c.RegisterBytes = 16 * 8
	}
	return c
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateTargetConfig(cfg TargetConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("target config missing name")
	}
	if cfg.RegisterBytes < 0 {
		return fmt.Errorf("target config register_bytes must not be negative")
	}
	if _, err := decodeRegisters(cfg); err != nil {
		return err
	}
	for i, raw := range cfg.Features {
		if err := ValidateFeatureEntry(raw); err != nil {
			return fmt.Errorf("features[%d] invalid: %w", i, err)
		}
	}
	return nil
}

// ValidateFeatureEntry checks one advertised qSupported entry. Separators
// would split the entry on the wire.
func ValidateFeatureEntry(raw string) error {
	if strings.ContainsAny(raw, ";#$") {
		return fmt.Errorf("%q contains a reserved byte", raw)
	}
	if _, err := feature.ParseEntry([]byte(raw)); err != nil {
		return err
	}
	return nil
}
