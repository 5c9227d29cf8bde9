package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/scopegrab/internal/logging"
	"github.com/danmuck/scopegrab/internal/observability"
	"github.com/danmuck/scopegrab/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("scopegrab", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: scopegrab [flags] <host:port>\n\n")
		fs.PrintDefaults()
	}
	configPath := fs.StringP("config", "c", "", "TOML config file")
	output := fs.StringP("output", "o", defaultOutput, "PNG file to write the screen capture to")
	identify := fs.BoolP("identify", "i", false, "print the instrument identity before capturing")
	timeout := fs.Duration("timeout", 0, "bound for the whole capture after connecting (0 waits forever)")
	connectTimeout := fs.Duration("connect-timeout", session.DefaultConfig().ConnectTimeout, "TCP connect timeout")
	logLevel := fs.String("log-level", "", "trace, debug, info, warn, error or off")
	metricsTextfile := fs.String("metrics-textfile", "", "write session metrics to this file in textfile collector format")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	logging.ConfigureRuntime()

	cfg := defaultRunConfig()
	if *configPath != "" {
		loaded, err := loadRunConfig(*configPath, cfg)
		if err != nil {
			fmt.Fprintf(stderr, "scopegrab: %v\n", err)
			return exitUsage
		}
		cfg = loaded
	}
	if fs.Changed("output") {
		cfg.Output = *output
	}
	if fs.Changed("identify") {
		cfg.Identify = *identify
	}
	if fs.Changed("timeout") {
		cfg.Timeout = *timeout
	}
	if fs.Changed("connect-timeout") {
		cfg.Session.ConnectTimeout = *connectTimeout
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if fs.Changed("metrics-textfile") {
		cfg.MetricsTextfile = *metricsTextfile
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return exitUsage
	}
	if fs.NArg() == 1 {
		cfg.Address = fs.Arg(0)
	}
	if cfg.Address == "" {
		fs.Usage()
		return exitUsage
	}
	if err := logging.SetLevel(cfg.LogLevel); err != nil {
		fmt.Fprintf(stderr, "scopegrab: %v\n", err)
		return exitUsage
	}

	err := capture(ctx, cfg, stdout)
	if cfg.MetricsTextfile != "" {
		if merr := observability.WriteTextfile(cfg.MetricsTextfile); merr != nil {
			log.Warn().Err(merr).Str("path", cfg.MetricsTextfile).Msg("metrics textfile not written")
		}
	}
	if err != nil {
		fmt.Fprintf(stderr, "scopegrab: %v\n", err)
		return exitFail
	}
	return exitOK
}

func capture(ctx context.Context, cfg runConfig, stdout io.Writer) error {
	sess, err := session.Dial(ctx, cfg.Address, cfg.Session)
	if err != nil {
		return err
	}
	defer sess.Close()

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	if cfg.Identify {
		id, err := sess.QueryIdentity(ctx)
		if err != nil {
			return fmt.Errorf("identify: %w", err)
		}
		fmt.Fprintln(stdout, id)
	}

	bmp, err := sess.CaptureScreen(ctx)
	if err != nil {
		return fmt.Errorf("capture screen: %w", err)
	}
	if err := bmp.Save(cfg.Output); err != nil {
		return err
	}
	log.Info().
		Str("session_id", sess.ID()).
		Str("path", cfg.Output).
		Int("width", bmp.Width()).
		Int("height", bmp.Height()).
		Msg("capture saved")
	return nil
}
