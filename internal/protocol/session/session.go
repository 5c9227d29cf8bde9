package session

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/danmuck/scopegrab/internal/bitmap"
	"github.com/danmuck/scopegrab/internal/observability"
	"github.com/danmuck/scopegrab/internal/protocol"
	"github.com/danmuck/scopegrab/internal/protocol/block"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Session is one exclusive connection to an instrument.
type Session struct {
	id     string
	stream io.ReadWriter
	r      *bufio.Reader
	w      *bufio.Writer
	limits block.Limits
	log    zerolog.Logger

	// pending is the mnemonic of the last command sent and not yet answered.
	pending string
}

// Dial connects to addr over TCP and returns a Session that owns the
// connection.
func Dial(ctx context.Context, addr string, cfg Config) (*Session, error) {
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", strings.TrimSpace(addr))
	if err != nil {
		observability.RecordError("dial", "connection")
		return nil, &protocol.ConnectionError{Addr: addr, Err: err}
	}
	s := New(conn, cfg)
	s.log.Info().Str("addr", conn.RemoteAddr().String()).Msg("connected")
	return s, nil
}

// New wraps any duplex stream. The Session takes exclusive ownership of it.
func New(stream io.ReadWriter, cfg Config) *Session {
	if stream == nil {
		panic("session: nil stream")
	}
	size := cfg.ReadBufferSize
	if size <= 0 {
		size = DefaultConfig().ReadBufferSize
	}
	base := log.Logger
	if cfg.Logger != nil {
		base = *cfg.Logger
	}
	id := uuid.NewString()
	return &Session{
		id:     id,
		stream: stream,
		r:      bufio.NewReaderSize(stream, size),
		w:      bufio.NewWriter(stream),
		limits: cfg.Limits,
		log:    base.With().Str("component", "session").Str("session_id", id).Logger(),
	}
}

// ID returns the session's log correlation id.
func (s *Session) ID() string { return s.id }

// Close closes the underlying stream when it is an io.Closer.
func (s *Session) Close() error {
	if c, ok := s.stream.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Send formats one command and writes it fully, flushing so the instrument
// sees it immediately. After a failed Send the session is unusable.
func (s *Session) Send(ctx context.Context, mnemonic string, args ...protocol.Argument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	release := s.watch(ctx)
	defer release()

	line := protocol.FormatCommand(mnemonic, args...)
	if _, err := s.w.Write(line); err != nil {
		return s.fail(ctx, "send", "write command", err)
	}
	if err := s.w.Flush(); err != nil {
		return s.fail(ctx, "send", "flush command", err)
	}
	if s.pending != "" {
		s.log.Debug().Str("unanswered", s.pending).Msg("command sent before previous reply was read")
	}
	s.pending = mnemonic
	observability.RecordCommand(mnemonic)
	s.log.Debug().Str("command", strings.TrimSuffix(string(line), "\n")).Msg("sent")
	return nil
}

// ReadLine returns the next reply line without its terminator. A stream
// closed with no pending data returns ("", io.EOF); a stream closed mid-line
// is an *protocol.IOError wrapping io.ErrUnexpectedEOF.
func (s *Session) ReadLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.checkPending("line")
	release := s.watch(ctx)
	defer release()

	line, err := s.r.ReadString(protocol.Terminator)
	if err != nil {
		if errors.Is(err, io.EOF) {
			if line == "" {
				return "", io.EOF
			}
			err = io.ErrUnexpectedEOF
		}
		return "", s.fail(ctx, "read_line", "read line", err)
	}
	s.pending = ""
	observability.RecordLine()
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	s.log.Debug().Int("len", len(line)).Msg("line read")
	return line, nil
}

// ReadBlock decodes one block data reply and returns its payload.
func (s *Session) ReadBlock(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.checkPending("block")
	release := s.watch(ctx)
	defer release()

	start := time.Now()
	payload, err := block.Read(s.r, s.limits)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = &protocol.IOError{Op: "read block", Err: ctxErr}
		}
		observability.RecordError("read_block", protocol.Kind(err))
		s.log.Debug().Err(err).Msg("block read failed")
		return nil, err
	}
	s.pending = ""
	elapsed := time.Since(start)
	observability.RecordBlock(len(payload), elapsed)
	s.log.Debug().Int("bytes", len(payload)).Dur("elapsed", elapsed).Msg("block read")
	return payload, nil
}

// Query sends one command and returns its single-line reply, trimmed.
func (s *Session) Query(ctx context.Context, mnemonic string, args ...protocol.Argument) (string, error) {
	if err := s.Send(ctx, mnemonic, args...); err != nil {
		return "", err
	}
	line, err := s.ReadLine(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// QueryIdentity asks the instrument to identify itself (*IDN?).
func (s *Session) QueryIdentity(ctx context.Context) (string, error) {
	return s.Query(ctx, protocol.IdentityQuery)
}

// CaptureScreen requests the current display as PNG block data and decodes
// it. Either a complete bitmap is returned or an error; never both.
func (s *Session) CaptureScreen(ctx context.Context) (*bitmap.Bitmap, error) {
	// color on, invert off, PNG
	err := s.Send(ctx, protocol.DisplayDataQuery,
		protocol.Discrete("ON"),
		protocol.Bool(false),
		protocol.Discrete("PNG"),
	)
	if err != nil {
		return nil, err
	}
	data, err := s.ReadBlock(ctx)
	if err != nil {
		return nil, err
	}
	bmp, err := bitmap.Decode(data)
	if err != nil {
		observability.RecordError("capture", protocol.Kind(err))
		return nil, err
	}
	s.log.Info().Int("width", bmp.Width()).Int("height", bmp.Height()).Msg("screen captured")
	return bmp, nil
}

func (s *Session) checkPending(kind string) {
	if s.pending == "" {
		s.log.Debug().Str("reply", kind).Msg("read with no command pending")
	}
}

// watch interrupts a blocked call on the stream once ctx is done. The stream
// deadline is only touched after ctx ends, so ctx.Err is always set by the
// time the interrupted call returns.
func (s *Session) watch(ctx context.Context) (release func()) {
	d, ok := s.stream.(deadliner)
	if !ok {
		return func() {}
	}
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		_ = d.SetDeadline(time.Now())
	})
	return func() {
		if !stop() {
			<-fired
		}
		_ = d.SetDeadline(time.Time{})
	}
}

func (s *Session) fail(ctx context.Context, metricOp, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	wrapped := &protocol.IOError{Op: op, Err: err}
	observability.RecordError(metricOp, protocol.Kind(wrapped))
	s.log.Debug().Err(wrapped).Msg("io failure")
	return wrapped
}
