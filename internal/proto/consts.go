package proto

const (
	// Version is the protocol version written into every envelope. Peers
	// speaking another version are dropped by the decoder.
	Version = 1

	// EnvelopeSize is the exact size of an encoded envelope, in bytes.
	EnvelopeSize = 20

	// ErrorNone is the error code of an accepted move.
	ErrorNone int32 = 0
	// ErrorRejected is the error code of a rejected move.
	ErrorRejected int32 = -1
)

// Kind tags the purpose of an envelope. The numbering is part of the wire
// format and must not be reordered.
type Kind uint8

const (
	KindMove Kind = iota
	KindAck
	KindState
	KindRegisterBackup
	KindPromote
	KindCheck
	KindPromoteBackup

	numKinds
)

func (k Kind) String() string {
	switch k {
	case KindMove:
		return "MOVE"
	case KindAck:
		return "ACK"
	case KindState:
		return "STATE"
	case KindRegisterBackup:
		return "REGISTER_BACKUP"
	case KindPromote:
		return "PROMOTE"
	case KindCheck:
		return "CHECK"
	case KindPromoteBackup:
		return "PROMOTE_BACKUP"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k < numKinds
}
