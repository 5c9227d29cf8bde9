package session

import (
	"time"

	"github.com/danmuck/scopegrab/internal/protocol/block"
	"github.com/rs/zerolog"
)

// Config defines connection and decode defaults.
type Config struct {
	ConnectTimeout time.Duration
	ReadBufferSize int
	Limits         block.Limits
	// Logger defaults to the global zerolog logger when nil.
	Logger *zerolog.Logger
}

// DefaultConfig returns defaults sized for a full-screen PNG capture.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
		ReadBufferSize: 64 * 1024,
		Limits:         block.DefaultLimits(),
	}
}
