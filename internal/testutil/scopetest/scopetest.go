// Package scopetest provides instrument doubles for session and CLI tests.
package scopetest

import (
	"bufio"
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/danmuck/scopegrab/internal/protocol"
	"github.com/danmuck/scopegrab/internal/protocol/block"
)

const DefaultIdentity = "RIGOL TECHNOLOGIES,DS1054Z,DS1ZA000000001,00.04.04.SP4"

// Instrument is a fake oscilloscope that answers the identity query and the
// display data query. Commands it does not know are recorded and ignored,
// like instrument set commands that produce no reply.
type Instrument struct {
	Identity string
	// Screen is the raw payload wrapped in block framing for display data
	// queries. It does not have to be a valid PNG.
	Screen []byte

	mu       sync.Mutex
	commands []protocol.Command
}

func NewInstrument(screen []byte) *Instrument {
	return &Instrument{Identity: DefaultIdentity, Screen: screen}
}

// Commands returns every command the instrument has parsed so far.
func (in *Instrument) Commands() []protocol.Command {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]protocol.Command, len(in.commands))
	copy(out, in.commands)
	return out
}

// Serve answers commands on conn until it is closed.
func (in *Instrument) Serve(conn io.ReadWriter) error {
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString(protocol.Terminator)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		cmd, err := protocol.ParseCommand(line)
		if err != nil {
			continue
		}
		in.mu.Lock()
		in.commands = append(in.commands, cmd)
		in.mu.Unlock()

		switch {
		case cmd.Is(protocol.IdentityQuery):
			_, err = io.WriteString(conn, in.Identity+"\n")
		case cmd.Is(protocol.DisplayDataQuery):
			err = block.Write(conn, in.Screen)
		}
		if err != nil {
			return err
		}
	}
}

// Pipe returns the client end of an in-memory connection served by in.
func Pipe(t *testing.T, in *Instrument) net.Conn {
	t.Helper()
	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = in.Serve(server)
	}()
	t.Cleanup(func() {
		client.Close()
		server.Close()
		<-done
	})
	return client
}

// Listen serves in on a loopback TCP listener and returns its address.
func Listen(t *testing.T, in *Instrument) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	var conns []net.Conn
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer conn.Close()
				_ = in.Serve(conn)
			}()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		for _, c := range conns {
			c.Close()
		}
		mu.Unlock()
		wg.Wait()
	})
	return ln.Addr().String()
}

// Stream is a scripted duplex stream: reads come from a fixed reply script,
// writes are captured.
type Stream struct {
	r       io.Reader
	written bytes.Buffer
}

func NewStream(replies string) *Stream {
	return &Stream{r: strings.NewReader(replies)}
}

func NewStreamBytes(replies []byte) *Stream {
	return &Stream{r: bytes.NewReader(replies)}
}

func (s *Stream) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *Stream) Write(p []byte) (int, error) { return s.written.Write(p) }

// Written returns everything written to the stream so far.
func (s *Stream) Written() string { return s.written.String() }

// Frame wraps payload in block framing.
func Frame(payload []byte) []byte {
	var buf bytes.Buffer
	_ = block.Write(&buf, payload)
	return buf.Bytes()
}

// PNG encodes a w x h gradient image.
func PNG(t testing.TB, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
