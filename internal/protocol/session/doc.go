// Package session owns one instrument connection.
//
// Ownership boundary:
// - dialing the instrument and wrapping the stream in buffered I/O
// - line and block read primitives
// - identity query and screen capture built on those primitives
//
// A Session is not safe for concurrent use. Each Send must be paired with
// exactly one matching read (ReadLine or ReadBlock); replies arrive in the
// order commands were sent and nothing enforces the pairing. Reading with no
// command pending is logged at debug level and otherwise proceeds, blocking
// until the instrument writes something or the stream closes.
//
// The session applies no timeouts of its own. When the stream supports
// deadlines (net.Conn does), a context deadline or cancellation interrupts
// the blocked call.
package session
