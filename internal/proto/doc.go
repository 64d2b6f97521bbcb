// Package proto encapsulates the envelope exchanged between standby clients
// and server nodes, as well as the functions for reading and writing it off
// the wire.
//
// Every datagram carries exactly one envelope. The envelope is fixed size and
// big-endian:
//
//	offset size field
//	0      1    version
//	1      1    kind
//	2      1    actor
//	3      1    reserved, always 0
//	4      4    sequence number (uint32)
//	8      4    error code (int32, 0 or -1)
//	12     4    row (int32)
//	16     4    col (int32)
//
// Which fields are meaningful depends on the kind: a MOVE uses seq, row, col
// and actor; an ACK additionally uses the error code; a STATE uses row, col
// and actor; REGISTER_BACKUP, PROMOTE, CHECK and PROMOTE_BACKUP carry nothing.
// Unused fields are written as zero. The recipient infers the sender's role
// from the kind alone.
//
// The transport underneath is a lossy datagram medium, so envelopes may be
// lost, duplicated or reordered. Nothing here defends against that; the
// sequence number lets the client session match replies to requests, and
// cell updates are idempotent on the receiving side.
package proto
