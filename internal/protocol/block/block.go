// Package block decodes and encodes the instrument's length-prefixed
// block data framing: '#' D <D length digits> <payload> '\n'.
package block

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/danmuck/scopegrab/internal/protocol"
)

// MaxDigits is the largest digit count the header can declare.
const MaxDigits = 9

// Limits constrains block decode memory use.
type Limits struct {
	MaxPayloadBytes uint64
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 64 * 1024 * 1024,
	}
}

// Read decodes one block from r and returns its payload.
//
// After the payload, the rest of the line is consumed so the stream is
// aligned for the next reply. A framing error leaves the stream wherever
// decoding stopped; callers should not rely on alignment afterwards.
func Read(r *bufio.Reader, limits Limits) ([]byte, error) {
	var header [2 + MaxDigits]byte
	if _, err := io.ReadFull(r, header[:2]); err != nil {
		return nil, &protocol.IOError{Op: "read block header", Err: err}
	}
	if header[0] != protocol.BlockMarker {
		return nil, &protocol.FormatError{
			Op:     "read block",
			Detail: fmt.Sprintf("marker %q", header[0]),
			Err:    protocol.ErrBadHeader,
		}
	}

	digits := int(header[1]) - '0'
	if digits < 0 || digits > MaxDigits {
		return nil, &protocol.FormatError{
			Op:     "read block",
			Detail: fmt.Sprintf("digit count %q", header[1]),
			Err:    protocol.ErrBadDigitCount,
		}
	}

	field := header[2 : 2+digits]
	if _, err := io.ReadFull(r, field); err != nil {
		return nil, &protocol.IOError{Op: "read block length", Err: err}
	}
	n, err := parseLength(field)
	if err != nil {
		return nil, &protocol.FormatError{
			Op:     "read block",
			Detail: fmt.Sprintf("length %q", field),
			Err:    protocol.ErrBadLength,
		}
	}
	if limits.MaxPayloadBytes > 0 && n > limits.MaxPayloadBytes {
		return nil, &protocol.FormatError{
			Op:     "read block",
			Detail: fmt.Sprintf("%d > %d", n, limits.MaxPayloadBytes),
			Err:    protocol.ErrPayloadTooLarge,
		}
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, &protocol.IOError{Op: "read block payload", Err: err}
	}

	// trailing terminator; a stream that closes right after the payload is fine
	if _, err := r.ReadString(protocol.Terminator); err != nil && !errors.Is(err, io.EOF) {
		return nil, &protocol.IOError{Op: "read block trailer", Err: err}
	}
	return payload, nil
}

// Write encodes payload as one block followed by the terminator.
func Write(w io.Writer, payload []byte) error {
	length := strconv.Itoa(len(payload))
	if len(length) > MaxDigits {
		return protocol.ErrPayloadTooLarge
	}
	header := make([]byte, 0, 2+len(length))
	header = append(header, protocol.BlockMarker, byte('0'+len(length)))
	header = append(header, length...)
	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	_, err := w.Write([]byte{protocol.Terminator})
	return err
}

func parseLength(field []byte) (uint64, error) {
	if len(field) == 0 {
		return 0, protocol.ErrBadLength
	}
	return strconv.ParseUint(string(field), 10, 64)
}
