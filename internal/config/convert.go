package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/danmuck/rspstub/internal/protocol/feature"
	"github.com/danmuck/rspstub/internal/target"
)

// Target converts a validated description into the stub's runtime config
// and its initial register file.
func Target(cfg TargetConfig) (target.Config, []byte, error) {
	regs, err := decodeRegisters(cfg)
	if err != nil {
		return target.Config{}, nil, err
	}
	features := make([]feature.Supported, 0, len(cfg.Features))
	for i, raw := range cfg.Features {
		f, err := feature.ParseEntry([]byte(raw))
		if err != nil {
			return target.Config{}, nil, fmt.Errorf("features[%d] invalid: %w", i, err)
		}
		features = append(features, f)
	}
	return target.Config{
		Name:          cfg.Name,
		ThreadID:      cfg.ThreadID,
		RegisterBytes: len(regs),
		Features:      features,
	}, regs, nil
}

// NewStub builds a ready stub from a description.
func NewStub(cfg TargetConfig) (*target.Stub, error) {
	tc, regs, err := Target(cfg)
	if err != nil {
		return nil, err
	}
	stub := target.NewStub(tc)
	stub.SetRegisters(regs)
	return stub, nil
}

// decodeRegisters returns the initial register file: the hex string when
// set, otherwise register_bytes zero bytes.
func decodeRegisters(cfg TargetConfig) ([]byte, error) {
	raw := strings.TrimSpace(cfg.Registers)
	if raw == "" {
		if cfg.RegisterBytes < 0 {
			return nil, fmt.Errorf("target config register_bytes must not be negative")
		}
		return make([]byte, cfg.RegisterBytes), nil
	}
	regs, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("target config registers: %w", err)
	}
	if cfg.RegisterBytes > 0 && len(regs) != cfg.RegisterBytes {
		return nil, fmt.Errorf("target config registers: got %d bytes, register_bytes=%d", len(regs), cfg.RegisterBytes)
	}
	return regs, nil
}
