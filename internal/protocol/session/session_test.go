package session

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/danmuck/rspstub/internal/protocol/command"
	"github.com/danmuck/rspstub/internal/protocol/packet"
	"github.com/danmuck/rspstub/internal/testutil/testlog"
)

type recordingBackend struct {
	calls []command.Command
	reply []byte
	err   error
}

func (b *recordingBackend) HandleCommand(cmd command.Command) ([]byte, error) {
	b.calls = append(b.calls, cmd)
	return b.reply, b.err
}

type brokenWriter struct{}

func (brokenWriter) Write(p []byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func serve(t *testing.T, in string, backend Backend, cfg Config) (string, *Session, error) {
	t.Helper()
	var out bytes.Buffer
	s, err := New(strings.NewReader(in), &out, backend, cfg)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	err = s.Serve(context.Background())
	return out.String(), s, err
}

func TestServeValidFrameAcksThenDispatches(t *testing.T) {
	testlog.Start(t)
	b := &recordingBackend{reply: []byte("OK")}
	out, s, err := serve(t, "$g#67", b, DefaultConfig())
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if out != "+$OK#9a" {
		t.Fatalf("unexpected output %q", out)
	}
	if len(b.calls) != 1 || b.calls[0].Kind != command.ReadGeneralRegisters {
		t.Fatalf("unexpected dispatches: %+v", b.calls)
	}
	st := s.Stats()
	if st.AcksSent != 1 || st.NacksSent != 0 || st.Dispatched != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if s.State() != StateClosed {
		t.Fatalf("state after serve=%v", s.State())
	}
}

func TestServeCorruptChecksumNacksWithoutDispatch(t *testing.T) {
	testlog.Start(t)
	b := &recordingBackend{reply: []byte("OK")}
	out, s, err := serve(t, "$g#00", b, DefaultConfig())
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if out != "-" {
		t.Fatalf("unexpected output %q", out)
	}
	if len(b.calls) != 0 {
		t.Fatalf("backend called on corrupt frame: %+v", b.calls)
	}
	if s.Stats().NacksSent != 1 {
		t.Fatalf("unexpected stats: %+v", s.Stats())
	}
}

func TestServeRetransmitAfterNackMatchesFirstAttempt(t *testing.T) {
	testlog.Start(t)
	b := &recordingBackend{reply: []byte("QC1")}
	out, _, err := serve(t, "$qC#00$qC#b4$qC#b4", b, DefaultConfig())
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if out != "-+$QC1#c5+$QC1#c5" {
		t.Fatalf("unexpected output %q", out)
	}
	if len(b.calls) != 2 || b.calls[0].Kind != b.calls[1].Kind {
		t.Fatalf("unexpected dispatches: %+v", b.calls)
	}
}

func TestServeUnsupportedCommandRepliesEmptyFrame(t *testing.T) {
	testlog.Start(t)
	b := &recordingBackend{reply: []byte("OK")}
	out, s, err := serve(t, "$c#63$qTStatus#49", b, DefaultConfig())
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if out != "+$#00+$#00" {
		t.Fatalf("unexpected output %q", out)
	}
	if len(b.calls) != 0 {
		t.Fatalf("backend called for undecodable commands: %+v", b.calls)
	}
	if s.Stats().Unsupported != 2 {
		t.Fatalf("unexpected stats: %+v", s.Stats())
	}
}

func TestServeBackendErrorRepliesEmptyFrame(t *testing.T) {
	testlog.Start(t)
	b := &recordingBackend{err: ErrNotImplemented}
	out, _, err := serve(t, "$k#6b", b, DefaultConfig())
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if out != "+$#00" {
		t.Fatalf("unexpected output %q", out)
	}
	if len(b.calls) != 1 || b.calls[0].Kind != command.Kill {
		t.Fatalf("unexpected dispatches: %+v", b.calls)
	}
}

func TestServeIgnoresPeerAckNack(t *testing.T) {
	testlog.Start(t)
	b := &recordingBackend{reply: []byte("OK")}
	out, s, err := serve(t, "+-+", b, DefaultConfig())
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if out != "" {
		t.Fatalf("unexpected output %q", out)
	}
	st := s.Stats()
	if st.PeerAcks != 2 || st.PeerNacks != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestServeReassemblesFramesAcrossReads(t *testing.T) {
	testlog.Start(t)
	b := &recordingBackend{reply: []byte("S05")}
	var out bytes.Buffer
	in := iotest.OneByteReader(strings.NewReader("+$?#3f$?#3f"))
	s, err := New(in, &out, b, DefaultConfig())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.Serve(context.Background()); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if out.String() != "+$S05#b8+$S05#b8" {
		t.Fatalf("unexpected output %q", out.String())
	}
	if len(b.calls) != 2 {
		t.Fatalf("unexpected dispatch count %d", len(b.calls))
	}
}

func TestServeDiscardsBytesOutsideFrames(t *testing.T) {
	testlog.Start(t)
	b := &recordingBackend{reply: []byte("OK")}
	out, s, err := serve(t, "\x03xy$g#67zz", b, DefaultConfig())
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if out != "+$OK#9a" {
		t.Fatalf("unexpected output %q", out)
	}
	if got := s.Stats().DiscardedBytes; got != 5 {
		t.Fatalf("discarded=%d want 5", got)
	}
}

func TestServeMalformedChecksumFieldNacks(t *testing.T) {
	testlog.Start(t)
	b := &recordingBackend{reply: []byte("OK")}
	out, _, err := serve(t, "$g#zz$g#67", b, DefaultConfig())
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if out != "-+$OK#9a" {
		t.Fatalf("unexpected output %q", out)
	}
	if len(b.calls) != 1 {
		t.Fatalf("unexpected dispatch count %d", len(b.calls))
	}
}

func TestServeEOFWithPartialFrameEndsCleanly(t *testing.T) {
	testlog.Start(t)
	b := &recordingBackend{reply: []byte("OK")}
	out, _, err := serve(t, "$g#6", b, DefaultConfig())
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if out != "" || len(b.calls) != 0 {
		t.Fatalf("partial frame produced output=%q calls=%d", out, len(b.calls))
	}
}

func TestServeWriteFailureStopsSession(t *testing.T) {
	testlog.Start(t)
	b := &recordingBackend{reply: []byte("OK")}
	s, err := New(strings.NewReader("$g#67$g#67"), brokenWriter{}, b, DefaultConfig())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	err = s.Serve(context.Background())
	if !errors.Is(err, ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}
	if len(b.calls) != 0 {
		t.Fatalf("dispatched after failed ack: %+v", b.calls)
	}
}

func TestServeReadFailureStopsSession(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("line dropped")
	s, err := New(iotest.ErrReader(boom), &bytes.Buffer{}, &recordingBackend{}, DefaultConfig())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	err = s.Serve(context.Background())
	if !errors.Is(err, ErrRead) || !errors.Is(err, boom) {
		t.Fatalf("expected ErrRead wrapping cause, got %v", err)
	}
}

func TestServeOversizedPendingFrame(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.Limits = packet.Limits{MaxPacketSize: 8, ReadBufferSize: 4}
	_, _, err := serve(t, "$"+strings.Repeat("a", 32), &recordingBackend{}, cfg)
	if !errors.Is(err, ErrPacketTooLarge) {
		t.Fatalf("expected ErrPacketTooLarge, got %v", err)
	}
}

func TestServeCancelledContextReturnsWithoutReading(t *testing.T) {
	testlog.Start(t)
	b := &recordingBackend{reply: []byte("OK")}
	var out bytes.Buffer
	s, err := New(strings.NewReader("$g#67"), &out, b, Config{ID: "cancelled"})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Serve(ctx); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if out.Len() != 0 || len(b.calls) != 0 {
		t.Fatalf("cancelled session did work: out=%q calls=%d", out.String(), len(b.calls))
	}
	if s.ID() != "cancelled" {
		t.Fatalf("unexpected id %q", s.ID())
	}
}

func TestNewRejectsNilBackend(t *testing.T) {
	testlog.Start(t)
	if _, err := New(strings.NewReader(""), &bytes.Buffer{}, nil, DefaultConfig()); !errors.Is(err, ErrNilBackend) {
		t.Fatalf("expected ErrNilBackend, got %v", err)
	}
}

func TestBackendFuncReceivesDecodedQuery(t *testing.T) {
	testlog.Start(t)
	var got command.Command
	fn := BackendFunc(func(cmd command.Command) ([]byte, error) {
		got = cmd
		return []byte("PacketSize=3fff"), nil
	})
	payload := "qSupported:multiprocess+;xmlRegisters=i386"
	frame := string(packet.Encode([]byte(payload)))
	out, _, err := serve(t, frame, fn, DefaultConfig())
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if out != "+"+string(packet.Encode([]byte("PacketSize=3fff"))) {
		t.Fatalf("unexpected output %q", out)
	}
	if got.Kind != command.Query || got.Query.Kind != command.SupportedFeatures || len(got.Query.Features) != 2 {
		t.Fatalf("unexpected command: %+v", got)
	}
}
