package session

import (
	"github.com/danmuck/rspstub/internal/protocol/packet"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config defines per-session limits and identity.
type Config struct {
	ID     string
	Limits packet.Limits
	Logger *zerolog.Logger
}

func DefaultConfig() Config {
	return Config{
		Limits: packet.DefaultLimits(),
	}
}

// WithDefaults fills zero fields. A nil Logger uses the global logger.
func (c Config) WithDefaults() Config {
	c.Limits = c.Limits.WithDefaults()
	if c.Logger == nil {
		l := log.Logger
		c.Logger = &l
	}
	return c
}
