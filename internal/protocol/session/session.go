package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/danmuck/rspstub/internal/observability"
	"github.com/danmuck/rspstub/internal/protocol/checksum"
	"github.com/danmuck/rspstub/internal/protocol/command"
	"github.com/danmuck/rspstub/internal/protocol/packet"
	"github.com/rs/zerolog"
)

var (
	ErrRead           = errors.New("session: transport read failed")
	ErrWrite          = errors.New("session: transport write failed")
	ErrPacketTooLarge = errors.New("session: pending frame exceeds max packet size")
	ErrNilBackend     = errors.New("session: nil backend")
)

// State is the loop position of a session.
type State uint32

const (
	StateIdle State = iota
	StateValidating
	StateDispatching
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateDispatching:
		return "dispatching"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}

// Stats counts what one session has seen and sent.
type Stats struct {
	PeerAcks       uint64 `json:"peer_acks"`
	PeerNacks      uint64 `json:"peer_nacks"`
	AcksSent       uint64 `json:"acks_sent"`
	NacksSent      uint64 `json:"nacks_sent"`
	Dispatched     uint64 `json:"dispatched"`
	Unsupported    uint64 `json:"unsupported"`
	DiscardedBytes uint64 `json:"discarded_bytes"`
}

type counters struct {
	peerAcks       atomic.Uint64
	peerNacks      atomic.Uint64
	acksSent       atomic.Uint64
	nacksSent      atomic.Uint64
	dispatched     atomic.Uint64
	unsupported    atomic.Uint64
	discardedBytes atomic.Uint64
}

// Session serves RSP over one reader/writer pair. Serve must not be called
// concurrently; State and Stats are safe to read from other goroutines.
type Session struct {
	cfg     Config
	r       io.Reader
	w       *bufio.Writer
	backend Backend
	logger  zerolog.Logger

	buf   []byte
	state atomic.Uint32
	stats counters
}

func New(r io.Reader, w io.Writer, backend Backend, cfg Config) (*Session, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}
	cfg = cfg.WithDefaults()
	logger := cfg.Logger.With().Logger()
	if cfg.ID != "" {
		logger = logger.With().Str("session", cfg.ID).Logger()
	}
	return &Session{
		cfg:     cfg,
		r:       r,
		w:       bufio.NewWriter(w),
		backend: backend,
		logger:  logger,
		buf:     make([]byte, 0, cfg.Limits.ReadBufferSize),
	}, nil
}

func (s *Session) ID() string {
	return s.cfg.ID
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) Stats() Stats {
	return Stats{
		PeerAcks:       s.stats.peerAcks.Load(),
		PeerNacks:      s.stats.peerNacks.Load(),
		AcksSent:       s.stats.acksSent.Load(),
		NacksSent:      s.stats.nacksSent.Load(),
		Dispatched:     s.stats.dispatched.Load(),
		Unsupported:    s.stats.unsupported.Load(),
		DiscardedBytes: s.stats.discardedBytes.Load(),
	}
}

// Serve reads and answers packets until the transport reaches EOF, a write
// fails, or ctx is done. EOF and cancellation return nil. Cancellation is
// only observed between reads; close the transport to interrupt a read.
func (s *Session) Serve(ctx context.Context) error {
	s.setState(StateIdle)
	defer s.setState(StateClosed)

	chunk := make([]byte, s.cfg.Limits.ReadBufferSize)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, rerr := s.r.Read(chunk)
		if n > 0 {
			s.buf = append(s.buf, chunk[:n]...)
			if err := s.drain(); err != nil {
				return err
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				if len(s.buf) > 0 {
					s.logger.Debug().Int("pending", len(s.buf)).Msg("session.Serve eof with partial frame")
				}
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrRead, rerr)
		}
	}
}

// drain handles every complete frame in the buffer and keeps the rest.
func (s *Session) drain() error {
	off := 0
	defer func() {
		s.buf = s.buf[:copy(s.buf, s.buf[off:])]
	}()

	for off < len(s.buf) {
		pkt, n, err := packet.Read(s.buf[off:])
		switch {
		case errors.Is(err, packet.ErrIncomplete):
			if pending := len(s.buf) - off; pending > s.cfg.Limits.MaxPacketSize {
				return fmt.Errorf("%w: %d bytes pending, limit %d", ErrPacketTooLarge, pending, s.cfg.Limits.MaxPacketSize)
			}
			return nil
		case errors.Is(err, packet.ErrNoPacket):
			// caller-level resync: drop bytes up to the next lead byte
			off += n
			s.stats.discardedBytes.Add(uint64(n))
			observability.RecordPacket("garbage")
			s.logger.Debug().Int("bytes", n).Msg("session.drain discarded bytes outside a frame")
			continue
		case errors.Is(err, packet.ErrMalformedChecksum):
			off += n
			observability.RecordPacket("malformed")
			s.logger.Warn().Err(err).Msg("session.drain malformed checksum field")
			if err := s.nack(); err != nil {
				return err
			}
			continue
		case err != nil:
			return err
		}
		off += n
		if err := s.handle(pkt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) handle(pkt packet.Packet) error {
	observability.RecordPacket(pkt.Kind.String())
	switch pkt.Kind {
	case packet.Ack:
		s.stats.peerAcks.Add(1)
		return nil
	case packet.Nack:
		// we never retransmit; the peer's nack is only counted
		s.stats.peerNacks.Add(1)
		return nil
	}

	s.setState(StateValidating)
	defer s.setState(StateIdle)

	if !checksum.Verify(pkt.Payload, pkt.Checksum) {
		s.logger.Warn().
			Hex("claimed", []byte{pkt.Checksum}).
			Hex("computed", []byte{checksum.Compute(pkt.Payload)}).
			Msg("session.handle checksum mismatch")
		return s.nack()
	}
	if err := s.ack(); err != nil {
		return err
	}

	s.setState(StateDispatching)
	return s.dispatch(pkt.Payload)
}

func (s *Session) dispatch(payload []byte) error {
	cmd, err := command.Decode(payload)
	if err != nil {
		s.logger.Debug().Err(err).Bytes("payload", payload).Msg("session.dispatch decode failed")
		observability.RecordCommand("undecoded", "unsupported", 0)
		return s.unsupported()
	}

	start := time.Now()
	reply, err := s.backend.HandleCommand(cmd)
	elapsed := time.Since(start)
	s.stats.dispatched.Add(1)
	if err != nil {
		s.logger.Debug().Err(err).Str("command", cmd.String()).Msg("session.dispatch backend declined")
		observability.RecordCommand(cmd.Name(), "unsupported", elapsed)
		return s.unsupported()
	}
	observability.RecordCommand(cmd.Name(), "ok", elapsed)
	s.logger.Debug().Str("command", cmd.String()).Int("reply_bytes", len(reply)).Msg("session.dispatch")
	return s.send("reply", packet.Encode(reply))
}

func (s *Session) ack() error {
	if err := s.send("ack", []byte{packet.LeadAck}); err != nil {
		return err
	}
	s.stats.acksSent.Add(1)
	return nil
}

func (s *Session) nack() error {
	if err := s.send("nack", []byte{packet.LeadNack}); err != nil {
		return err
	}
	s.stats.nacksSent.Add(1)
	return nil
}

func (s *Session) unsupported() error {
	s.stats.unsupported.Add(1)
	return s.send("unsupported", packet.Unsupported())
}

// send writes and flushes one response so the peer never waits on a
// buffered ack.
func (s *Session) send(kind string, b []byte) error {
	if _, err := s.w.Write(b); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWrite, kind, err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWrite, kind, err)
	}
	observability.RecordResponse(kind)
	return nil
}

func (s *Session) setState(st State) {
	s.state.Store(uint32(st))
}
