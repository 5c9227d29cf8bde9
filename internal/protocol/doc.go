// Package protocol owns the instrument wire contract.
//
// Ownership boundary:
// - command line formatting and the reference command parser
// - error taxonomy shared by block, session and bitmap
//
// Outbound lines are ASCII: <mnemonic>[ <arg>{,<arg>}]\n.
// Inbound replies are either a single text line or block data:
// '#' + digit D + D decimal digits giving length L + L raw bytes + '\n'.
package protocol
