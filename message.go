package standby

import (
	"fmt"

	"github.com/ngrok/standby/internal/proto"
	"github.com/pkg/errors"
)

// Message is one of Move, Ack, State, RegisterBackup, Promote, Check or
// PromoteBackup. Each kind carries only the fields meaningful for it.
type Message interface {
	Kind() proto.Kind
	envelope() proto.Envelope
}

// Move asks the active node to place Actor at (Row, Col).
type Move struct {
	Seq   uint32
	Row   int
	Col   int
	Actor Actor
}

// Ack answers a Move, echoing its sequence number. A rejected Ack carries no
// cell.
type Ack struct {
	Seq      uint32
	Rejected bool
	Row      int
	Col      int
	Actor    Actor
}

// State is an authoritative single-cell update sent to standbys.
type State struct {
	Row   int
	Col   int
	Actor Actor
}

// RegisterBackup asks the active node to add the sender to its fan-out set.
type RegisterBackup struct{}

// Promote tells a standby to take over as the active node.
type Promote struct{}

// Check is a liveness probe; the active node echoes it back.
type Check struct{}

// PromoteBackup is sent by a freshly promoted node to the standbys it knows
// about.
type PromoteBackup struct{}

func (Move) Kind() proto.Kind { return proto.KindMove }
func (Ack) Kind() proto.Kind { return proto.KindAck }
func (State) Kind() proto.Kind { return proto.KindState }
func (RegisterBackup) Kind() proto.Kind { return proto.KindRegisterBackup }
func (Promote) Kind() proto.Kind { return proto.KindPromote }
func (Check) Kind() proto.Kind { return proto.KindCheck }
func (PromoteBackup) Kind() proto.Kind { return proto.KindPromoteBackup }

func (m Move) envelope() proto.Envelope {
	return proto.Envelope{Kind: proto.KindMove, Seq: m.Seq, Row: int32(m.Row), Col: int32(m.Col), Actor: byte(m.Actor)}
}

func (m Ack) envelope() proto.Envelope {
	if m.Rejected {
		return proto.Envelope{Kind: proto.KindAck, Seq: m.Seq, ErrorCode: proto.ErrorRejected}
	}
	return proto.Envelope{Kind: proto.KindAck, Seq: m.Seq, ErrorCode: proto.ErrorNone, Row: int32(m.Row), Col: int32(m.Col), Actor: byte(m.Actor)}
}

func (m State) envelope() proto.Envelope {
	return proto.Envelope{Kind: proto.KindState, Row: int32(m.Row), Col: int32(m.Col), Actor: byte(m.Actor)}
}

func (RegisterBackup) envelope() proto.Envelope { return proto.Envelope{Kind: proto.KindRegisterBackup} }
func (Promote) envelope() proto.Envelope { return proto.Envelope{Kind: proto.KindPromote} }
func (Check) envelope() proto.Envelope { return proto.Envelope{Kind: proto.KindCheck} }
func (PromoteBackup) envelope() proto.Envelope { return proto.Envelope{Kind: proto.KindPromoteBackup} }

func (m Move) String() string {
	return fmt.Sprintf("MOVE(seq=%d,row=%d,col=%d,actor=%s)", m.Seq, m.Row, m.Col, m.Actor)
}

func (m Ack) String() string {
	if m.Rejected {
		return fmt.Sprintf("ACK(seq=%d,rejected)", m.Seq)
	}
	return fmt.Sprintf("ACK(seq=%d,row=%d,col=%d,actor=%s)", m.Seq, m.Row, m.Col, m.Actor)
}

func (m State) String() string {
	return fmt.Sprintf("STATE(row=%d,col=%d,actor=%s)", m.Row, m.Col, m.Actor)
}

// EncodeMessage returns the wire form of m.
func EncodeMessage(m Message) ([]byte, error) {
	return proto.Encode(m.envelope())
}

// DecodeMessage parses a datagram. Decode failures have proto.ErrMalformed as
// their cause.
func DecodeMessage(data []byte) (Message, error) {
	env, err := proto.Decode(data)
	if err != nil {
		return nil, err
	}
	switch env.Kind {
	case proto.KindMove:
		return Move{Seq: env.Seq, Row: int(env.Row), Col: int(env.Col), Actor: Actor(env.Actor)}, nil
	case proto.KindAck:
		if env.ErrorCode != proto.ErrorNone {
			return Ack{Seq: env.Seq, Rejected: true}, nil
		}
		return Ack{Seq: env.Seq, Row: int(env.Row), Col: int(env.Col), Actor: Actor(env.Actor)}, nil
	case proto.KindState:
		return State{Row: int(env.Row), Col: int(env.Col), Actor: Actor(env.Actor)}, nil
	case proto.KindRegisterBackup:
		return RegisterBackup{}, nil
	case proto.KindPromote:
		return Promote{}, nil
	case proto.KindCheck:
		return Check{}, nil
	case proto.KindPromoteBackup:
		return PromoteBackup{}, nil
	}
	// proto.Decode already validated the kind.
	panic(errors.Errorf("BUG: unhandled kind %v", env.Kind))
}
