package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LoggerOptions shapes the console logger built by InitLogger.
type LoggerOptions struct {
	Out       io.Writer
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
}

func InitLogger(app string, opts LoggerOptions) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	output := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    opts.NoColor,
		TimeFormat: time.RFC3339,
	}
	if !opts.Timestamp {
		output.PartsExclude = []string{zerolog.TimestampFieldName}
	}
	logger := zerolog.New(output).Level(opts.Level).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}
