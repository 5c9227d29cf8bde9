package testlog

import (
	"testing"

	"github.com/danmuck/scopegrab/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Str("test", t.Name()).Msg("start")
}

// Logger returns a logger that writes through t.Log.
func Logger(t *testing.T) *zerolog.Logger {
	t.Helper()
	l := zerolog.New(zerolog.NewTestWriter(t)).With().Str("test", t.Name()).Logger()
	return &l
}
