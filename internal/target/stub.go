// Package target is an in-memory debug target that answers the commands a
// gdb client sends while connecting. It does not run or inspect a process.
package target

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"

	"github.com/danmuck/rspstub/internal/protocol/command"
	"github.com/danmuck/rspstub/internal/protocol/feature"
	"github.com/danmuck/rspstub/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// HaltSignal is reported for '?'; 5 is SIGTRAP.
const HaltSignal = 0x05

// Config describes the simulated target.
type Config struct {
	Name          string
	ThreadID      uint64
	RegisterBytes int
	Features      []feature.Supported
}

func DefaultConfig() Config {
	return Config{
		Name:          "stub",
		ThreadID:      1,
		RegisterBytes: 16 * 8,
		Features: []feature.Supported{
			{Feature: feature.Resolve("PacketSize"), Status: feature.Status{Support: feature.Value, Value: "4000"}},
			{Feature: feature.Resolve("swbreak"), Status: feature.Status{Support: feature.Yes}},
			{Feature: feature.Resolve("hwbreak"), Status: feature.Status{Support: feature.Yes}},
			{Feature: feature.Resolve("multiprocess"), Status: feature.Status{Support: feature.No}},
		},
	}
}

// Stub implements session.Backend. It is safe for use by several sessions.
type Stub struct {
	cfg Config

	mu        sync.Mutex
	registers []byte
	extended  bool
	peer      []feature.Supported
}

var _ session.Backend = (*Stub)(nil)

func NewStub(cfg Config) *Stub {
	if cfg.RegisterBytes < 0 {
		cfg.RegisterBytes = 0
	}
	return &Stub{
		cfg:       cfg,
		registers: make([]byte, cfg.RegisterBytes),
	}
}

func (s *Stub) Name() string {
	return s.cfg.Name
}

// SetRegisters replaces the register file returned by 'g'.
func (s *Stub) SetRegisters(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registers = append(s.registers[:0], b...)
}

// Extended reports whether a peer has sent '!'.
func (s *Stub) Extended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extended
}

// PeerFeatures returns the most recent qSupported list received.
func (s *Stub) PeerFeatures() []feature.Supported {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]feature.Supported, len(s.peer))
	copy(out, s.peer)
	return out
}

func (s *Stub) HandleCommand(cmd command.Command) ([]byte, error) {
	switch cmd.Kind {
	case command.EnableExtendedMode:
		s.mu.Lock()
		s.extended = true
		s.mu.Unlock()
		return []byte("OK"), nil
	case command.TargetHaltReason:
		return []byte(fmt.Sprintf("S%02x", HaltSignal)), nil
	case command.ReadGeneralRegisters:
		s.mu.Lock()
		defer s.mu.Unlock()
		return []byte(hex.EncodeToString(s.registers)), nil
	case command.Query:
		return s.handleQuery(cmd.Query)
	}
	return nil, fmt.Errorf("%w: %s", session.ErrNotImplemented, cmd.Name())
}

func (s *Stub) handleQuery(q command.QueryArgs) ([]byte, error) {
	switch q.Kind {
	case command.CurrentThread:
		return []byte("QC" + strconv.FormatUint(s.cfg.ThreadID, 16)), nil
	case command.SupportedFeatures:
		s.recordPeer(q.Features)
		return []byte(feature.FormatList(s.cfg.Features)), nil
	}
	return nil, fmt.Errorf("%w: query %s", session.ErrNotImplemented, q.Kind)
}

func (s *Stub) recordPeer(features []feature.Supported) {
	unknown := make([]string, 0)
	for _, f := range features {
		if !f.Feature.IsKnown() {
			unknown = append(unknown, f.Feature.Name)
		}
	}
	log.Debug().
		Str("target", s.cfg.Name).
		Int("features", len(features)).
		Strs("unknown", unknown).
		Msg("target.Stub peer features")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.peer = append(s.peer[:0], features...)
}
