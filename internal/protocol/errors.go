package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrBadHeader       = errors.New("protocol: bad block header")
	ErrBadDigitCount   = errors.New("protocol: block digit count out of range")
	ErrBadLength       = errors.New("protocol: block length is not decimal")
	ErrPayloadTooLarge = errors.New("protocol: block payload too large")
	ErrEmptyCommand    = errors.New("protocol: empty command line")
	ErrArgIndex        = errors.New("protocol: argument index out of range")
	ErrBadBool         = errors.New("protocol: argument is not a boolean")
)

// ConnectionError reports a transport that could not be established.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed: %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IOError reports a read or write failure on an established stream,
// including an unexpected close.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io error: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// FormatError reports malformed block framing.
type FormatError struct {
	Op     string
	Detail string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("format error: %s: %v (%s)", e.Op, e.Err, e.Detail)
	}
	return fmt.Sprintf("format error: %s: %v", e.Op, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// DecodeError reports a block payload that is not a valid image in the
// expected encoding.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: bad %s data: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Kind classifies err into one of the taxonomy names used for logs and
// metric labels: connection, io, format, decode, or other.
func Kind(err error) string {
	var (
		connErr   *ConnectionError
		ioErr     *IOError
		formatErr *FormatError
		decodeErr *DecodeError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &connErr):
		return "connection"
	case errors.As(err, &formatErr):
		return "format"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.As(err, &ioErr):
		return "io"
	default:
		return "other"
	}
}
