// Package server accepts debugger connections and runs one RSP session per
// connection against a shared backend.
package server

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/rspstub/internal/observability"
	"github.com/danmuck/rspstub/internal/protocol/packet"
	"github.com/danmuck/rspstub/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrNilBackend     = errors.New("server: nil backend")
	ErrMissingAddress = errors.New("server: missing listen address")
)

// Config configures the listener and the sessions it starts.
type Config struct {
	Name       string
	ListenAddr string
	Limits     packet.Limits
	Backoff    BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Name:       "rspstub",
		ListenAddr: "127.0.0.1:2331",
		Limits:     packet.DefaultLimits(),
		Backoff:    DefaultBackoff(),
	}
}

// SessionInfo describes one live session for the admin surface.
type SessionInfo struct {
	ID        string        `json:"id"`
	Remote    string        `json:"remote"`
	StartedAt time.Time     `json:"started_at"`
	State     string        `json:"state"`
	Stats     session.Stats `json:"stats"`
}

type liveSession struct {
	remote    string
	startedAt time.Time
	sess      *session.Session
}

// Server owns the session registry. Sessions share the backend, so the
// backend must be safe for concurrent use.
type Server struct {
	cfg     Config
	backend session.Backend
	started time.Time

	mu       sync.RWMutex
	sessions map[string]liveSession
	served   atomic.Uint64
}

func New(backend session.Backend, cfg Config) (*Server, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "rspstub"
	}
	cfg.Limits = cfg.Limits.WithDefaults()
	return &Server{
		cfg:      cfg,
		backend:  backend,
		started:  time.Now(),
		sessions: make(map[string]liveSession),
	}, nil
}

func (s *Server) Name() string {
	return s.cfg.Name
}

func (s *Server) Uptime() time.Duration {
	return time.Since(s.started)
}

// Served counts sessions that have finished.
func (s *Server) Served() uint64 {
	return s.served.Load()
}

// ListenAndServe listens on cfg.ListenAddr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.ListenAddr)
	if addr == "" {
		return ErrMissingAddress
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts on ln until ctx is done, then closes ln and every open
// connection. Temporary accept failures are retried with backoff.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	log.Info().Str("addr", ln.Addr().String()).Str("server", s.cfg.Name).Msg("server.Serve listening")

	// cancel must run before wg.Wait so a fatal accept error closes open
	// connections instead of waiting for peers to hang up.
	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	attempt := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				attempt++
				delay := NextBackoffDelay(s.cfg.Backoff, attempt, rng)
				log.Warn().Err(err).Dur("retry_in", delay).Msg("server.Serve accept failed")
				select {
				case <-time.After(delay):
					continue
				case <-ctx.Done():
					return nil
				}
			}
			return err
		}
		attempt = 0
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// handleConn runs one session and closes conn when it ends or ctx is done.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	if err := s.ServeStream(ctx, conn, conn, conn.RemoteAddr().String()); err != nil {
		log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("server.handleConn session ended")
	}
}

// ServeStream runs one session over r and w, registered under a fresh id.
// It is used for TCP connections and for stdio.
func (s *Server) ServeStream(ctx context.Context, r io.Reader, w io.Writer, remote string) error {
	id := uuid.NewString()
	sess, err := session.New(r, w, s.backend, session.Config{ID: id, Limits: s.cfg.Limits})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.sessions[id] = liveSession{remote: remote, startedAt: time.Now(), sess: sess}
	active := len(s.sessions)
	s.mu.Unlock()
	observability.SessionOpened()
	log.Info().Str("session", id).Str("remote", remote).Int("active_sessions", active).Msg("server session opened")

	defer func() {
		s.mu.Lock()
		delete(s.sessions, id)
		remaining := len(s.sessions)
		s.mu.Unlock()
		s.served.Add(1)
		observability.SessionClosed()
		st := sess.Stats()
		log.Info().
			Str("session", id).
			Int("active_sessions", remaining).
			Uint64("dispatched", st.Dispatched).
			Uint64("nacks_sent", st.NacksSent).
			Msg("server session closed")
	}()

	return sess.Serve(ctx)
}

// Sessions lists live sessions ordered by start time.
func (s *Server) Sessions() []SessionInfo {
	s.mu.RLock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for id, ls := range s.sessions {
		out = append(out, SessionInfo{
			ID:        id,
			Remote:    ls.remote,
			StartedAt: ls.startedAt,
			State:     ls.sess.State().String(),
			Stats:     ls.sess.Stats(),
		})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
