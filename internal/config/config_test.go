package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/rspstub/internal/protocol/feature"
	"github.com/danmuck/rspstub/internal/testutil/testlog"
)

func TestParseTargetConfigTemplate(t *testing.T) {
	testlog.Start(t)
	tmpl, err := Template("target")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	cfg, err := ParseTargetConfig([]byte(tmpl))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Name != "stub" || cfg.ThreadID != 1 || cfg.RegisterBytes != 128 || len(cfg.Features) != 4 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	tc, regs, err := Target(cfg)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(regs) != 128 || tc.RegisterBytes != 128 {
		t.Fatalf("unexpected registers: len=%d cfg=%d", len(regs), tc.RegisterBytes)
	}
	if got := feature.FormatList(tc.Features); got != "PacketSize=4000;swbreak+;hwbreak+;multiprocess-" {
		t.Fatalf("unexpected features: %q", got)
	}
}

func TestParseTargetConfigDefaults(t *testing.T) {
	testlog.Start(t)
	cfg, err := ParseTargetConfig([]byte(""))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Name != "stub" || cfg.ThreadID != 1 || cfg.RegisterBytes != 128 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestParseTargetConfigRegisters(t *testing.T) {
	testlog.Start(t)
	cfg, err := ParseTargetConfig([]byte(`registers = "deadbeef"`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	stub, err := NewStub(cfg)
	if err != nil {
		t.Fatalf("new stub: %v", err)
	}
	if stub.Name() != "stub" {
		t.Fatalf("unexpected stub name %q", stub.Name())
	}
	if _, err := ParseTargetConfig([]byte(`registers = "xyz"`)); err == nil {
		t.Fatalf("expected bad hex to fail")
	}
	if _, err := ParseTargetConfig([]byte("registers = \"00\"\nregister_bytes = 4")); err == nil {
		t.Fatalf("expected register size mismatch to fail")
	}
}

func TestParseTargetConfigRejectsBadFeatures(t *testing.T) {
	testlog.Start(t)
	_, err := ParseTargetConfig([]byte(`features = ["swbreak+", "hwbreak"]`))
	if !errors.Is(err, feature.ErrMalformedEntry) {
		t.Fatalf("expected ErrMalformedEntry, got %v", err)
	}
	if !strings.Contains(err.Error(), "features[1]") {
		t.Fatalf("error should name the entry: %v", err)
	}
	if _, err := ParseTargetConfig([]byte(`features = ["a+;b+"]`)); err == nil {
		t.Fatalf("expected separator in entry to fail")
	}
}

func TestLoadTargetConfigFromFile(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "target.toml")
	if err := WriteTemplate(path, "target", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, "target", false); err == nil {
		t.Fatalf("expected existing file to be kept")
	}
	cfg, err := LoadTargetConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "stub" {
		t.Fatalf("unexpected name %q", cfg.Name)
	}
	if _, err := LoadTargetConfig(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
	if _, err := Template("ghost"); err == nil {
		t.Fatalf("expected unknown template kind to fail")
	}
}
