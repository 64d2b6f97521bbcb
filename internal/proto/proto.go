package proto

// Envelope is the decoded form of a datagram. It is flat; the
// standby package maps it onto one Go type per kind.
type Envelope struct {
	Version   uint8
	Kind      Kind
	Actor     byte
	Reserved  uint8
	Seq       uint32
	ErrorCode int32
	Row       int32
	Col       int32
}
