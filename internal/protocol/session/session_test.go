package session

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/scopegrab/internal/protocol"
	"github.com/danmuck/scopegrab/internal/testutil/scopetest"
	"github.com/danmuck/scopegrab/internal/testutil/testlog"
)

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.Logger = testlog.Logger(t)
	return cfg
}

func TestQueryIdentityStripsTerminator(t *testing.T) {
	testlog.Start(t)
	stream := scopetest.NewStream("RIGOL,DS1054Z,X,Y\n")
	s := New(stream, testConfig(t))

	id, err := s.QueryIdentity(context.Background())
	if err != nil {
		t.Fatalf("query identity: %v", err)
	}
	if id != "RIGOL,DS1054Z,X,Y" {
		t.Fatalf("unexpected identity: %q", id)
	}
	if stream.Written() != "*IDN?\n" {
		t.Fatalf("unexpected command bytes: %q", stream.Written())
	}
}

func TestQueryIdentityRepeated(t *testing.T) {
	testlog.Start(t)
	stream := scopetest.NewStream("RIGOL,A\r\nRIGOL,B\n")
	s := New(stream, testConfig(t))
	ctx := context.Background()

	first, err := s.QueryIdentity(ctx)
	if err != nil {
		t.Fatalf("first query: %v", err)
	}
	second, err := s.QueryIdentity(ctx)
	if err != nil {
		t.Fatalf("second query: %v", err)
	}
	if first != "RIGOL,A" || second != "RIGOL,B" {
		t.Fatalf("unexpected replies: %q %q", first, second)
	}
	if stream.Written() != "*IDN?\n*IDN?\n" {
		t.Fatalf("unexpected command bytes: %q", stream.Written())
	}
}

func TestReadLineEOF(t *testing.T) {
	testlog.Start(t)
	s := New(scopetest.NewStream(""), testConfig(t))
	line, err := s.ReadLine(context.Background())
	if !errors.Is(err, io.EOF) || line != "" {
		t.Fatalf("expected empty result at EOF, got %q %v", line, err)
	}
}

func TestReadLineClosedMidLine(t *testing.T) {
	testlog.Start(t)
	s := New(scopetest.NewStream("RIGOL,DS10"), testConfig(t))
	_, err := s.ReadLine(context.Background())
	var ioErr *protocol.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected IOError, got %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestReadBlockZeroBytesThenDecodeFailsAtCapture(t *testing.T) {
	testlog.Start(t)
	reply := "#800000010" + strings.Repeat("\x00", 10) + "\n"

	raw := New(scopetest.NewStream(reply), testConfig(t))
	payload, err := raw.ReadBlock(context.Background())
	if err != nil {
		t.Fatalf("read block: %v", err)
	}
	if len(payload) != 10 {
		t.Fatalf("unexpected payload len: %d", len(payload))
	}
	for _, b := range payload {
		if b != 0 {
			t.Fatalf("unexpected payload: %v", payload)
		}
	}

	stream := scopetest.NewStream(reply)
	s := New(stream, testConfig(t))
	bmp, err := s.CaptureScreen(context.Background())
	if bmp != nil {
		t.Fatalf("expected no bitmap on decode failure")
	}
	var decodeErr *protocol.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if stream.Written() != ":DISPlay:DATA? ON,0,PNG\n" {
		t.Fatalf("unexpected command bytes: %q", stream.Written())
	}
}

func TestCaptureScreenDecodesPNG(t *testing.T) {
	testlog.Start(t)
	stream := scopetest.NewStreamBytes(scopetest.Frame(scopetest.PNG(t, 8, 6)))
	s := New(stream, testConfig(t))

	bmp, err := s.CaptureScreen(context.Background())
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if bmp.Width() != 8 || bmp.Height() != 6 {
		t.Fatalf("unexpected size: %dx%d", bmp.Width(), bmp.Height())
	}
	if len(bmp.Data()) != 8*6*3 {
		t.Fatalf("unexpected buffer len: %d", len(bmp.Data()))
	}
}

func TestCaptureScreenBadHeader(t *testing.T) {
	testlog.Start(t)
	s := New(scopetest.NewStream("#:\n"), testConfig(t))
	_, err := s.CaptureScreen(context.Background())
	if !errors.Is(err, protocol.ErrBadDigitCount) {
		t.Fatalf("expected ErrBadDigitCount, got %v", err)
	}
	if protocol.Kind(err) != "format" {
		t.Fatalf("expected format error, got %q", protocol.Kind(err))
	}
}

func TestBlockThenLineStaysAligned(t *testing.T) {
	testlog.Start(t)
	reply := string(scopetest.Frame([]byte("abc"))) + "RIGOL,DS1054Z,X,Y\n"
	s := New(scopetest.NewStream(reply), testConfig(t))
	ctx := context.Background()

	payload, err := s.ReadBlock(ctx)
	if err != nil || string(payload) != "abc" {
		t.Fatalf("read block: %q %v", payload, err)
	}
	line, err := s.ReadLine(ctx)
	if err != nil || line != "RIGOL,DS1054Z,X,Y" {
		t.Fatalf("read line after block: %q %v", line, err)
	}
}

type failingWriter struct {
	io.Reader
}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestSendWriteFailureIsIOError(t *testing.T) {
	testlog.Start(t)
	s := New(failingWriter{Reader: strings.NewReader("")}, testConfig(t))
	err := s.Send(context.Background(), protocol.IdentityQuery)
	if protocol.Kind(err) != "io" {
		t.Fatalf("expected io error, got %v", err)
	}
}

func TestSessionOverPipe(t *testing.T) {
	testlog.Start(t)
	inst := scopetest.NewInstrument(scopetest.PNG(t, 16, 9))
	s := New(scopetest.Pipe(t, inst), testConfig(t))
	ctx := context.Background()

	id, err := s.QueryIdentity(ctx)
	if err != nil {
		t.Fatalf("query identity: %v", err)
	}
	if id != scopetest.DefaultIdentity {
		t.Fatalf("unexpected identity: %q", id)
	}
	bmp, err := s.CaptureScreen(ctx)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if bmp.Width() != 16 || bmp.Height() != 9 {
		t.Fatalf("unexpected size: %dx%d", bmp.Width(), bmp.Height())
	}

	cmds := inst.Commands()
	if len(cmds) != 2 {
		t.Fatalf("unexpected commands: %+v", cmds)
	}
	capture := cmds[1]
	if !capture.Is(protocol.DisplayDataQuery) {
		t.Fatalf("unexpected capture mnemonic: %q", capture.Mnemonic)
	}
	if v, _ := capture.Arg(0); v != "ON" {
		t.Fatalf("arg0=%q", v)
	}
	if flag, err := capture.ArgBool(1); err != nil || flag {
		t.Fatalf("arg1=%v err=%v", flag, err)
	}
	if v, _ := capture.Arg(2); v != "PNG" {
		t.Fatalf("arg2=%q", v)
	}
}

func TestReadLineHonorsContextDeadline(t *testing.T) {
	testlog.Start(t)
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	s := New(client, testConfig(t))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.ReadLine(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestReadBlockHonorsCancel(t *testing.T) {
	testlog.Start(t)
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	s := New(client, testConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := s.ReadBlock(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestDialAndClose(t *testing.T) {
	testlog.Start(t)
	inst := scopetest.NewInstrument(nil)
	addr := scopetest.Listen(t, inst)

	s, err := Dial(context.Background(), addr, testConfig(t))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer s.Close()
	if s.ID() == "" {
		t.Fatalf("expected session id")
	}
	id, err := s.QueryIdentity(context.Background())
	if err != nil || id != scopetest.DefaultIdentity {
		t.Fatalf("query identity: %q %v", id, err)
	}
}

func TestDialFailureIsConnectionError(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = Dial(context.Background(), addr, testConfig(t))
	var connErr *protocol.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
}
