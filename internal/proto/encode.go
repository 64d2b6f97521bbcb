package proto

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// ErrMalformed is the cause of every decode failure.
var ErrMalformed = errors.New("malformed envelope")

// Encode writes env as a fixed-size datagram payload. The version field is
// always overwritten with the current Version.
func Encode(env Envelope) ([]byte, error) {
	if !env.Kind.Valid() {
		return nil, errors.Errorf("cannot encode unknown kind %d", env.Kind)
	}
	env.Version = Version
	env.Reserved = 0

	var buf bytes.Buffer
	buf.Grow(EnvelopeSize)
	if err := binary.Write(&buf, binary.BigEndian, env); err != nil {
		return nil, errors.Wrap(err, "could not binary encode envelope")
	}
	if buf.Len() != EnvelopeSize {
		panic(fmt.Errorf("envelope should be %d bytes, not: %d", EnvelopeSize, buf.Len()))
	}
	return buf.Bytes(), nil
}

// Decode parses a datagram payload written by Encode. Payloads of the wrong
// size, version or kind fail with an error whose cause is ErrMalformed.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if len(data) != EnvelopeSize {
		return env, errors.Wrapf(ErrMalformed, "expected %d bytes, got %d", EnvelopeSize, len(data))
	}
	if err := binary.Read(bytes.NewReader(data), binary.BigEndian, &env); err != nil {
		return env, errors.Wrapf(ErrMalformed, "protocol error: %v", err)
	}
	if env.Version != Version {
		return env, errors.Wrapf(ErrMalformed, "unsupported version %d", env.Version)
	}
	if !env.Kind.Valid() {
		return env, errors.Wrapf(ErrMalformed, "unknown kind %d", env.Kind)
	}
	return env, nil
}
