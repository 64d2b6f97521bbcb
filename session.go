package standby

import (
	"context"
	"sync"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"
)

const (
	// DefaultBaseTimeout is the first wait for an acknowledgement, and the
	// value the wait is reset to after an acknowledgement or a switch.
	DefaultBaseTimeout time.Duration = 100 * time.Millisecond
	// DefaultSwitchAfter is the number of consecutive timeouts after which
	// the session switches to the other endpoint.
	DefaultSwitchAfter = 5
)

// Outcome is the result of a submitted move.
type Outcome struct {
	// Rejected is set when the active node refused the move. The caller must
	// choose another one.
	Rejected bool
	// Ack is the acknowledgement that settled the move.
	Ack Ack
}

// Session drives one outstanding move at a time against one of two server
// endpoints. It is not safe for concurrent use; Submit blocks until the move
// is settled.
type Session struct {
	baseTimeout time.Duration
	switchAfter int

	open   Opener
	ch     Channel
	roster [2]Endpoint
	// current indexes roster.
	current int

	seq      uint32
	timeout  time.Duration
	attempts int
	board    Board

	clock clock.PassiveClock
	l     log15.Logger

	closeOnce sync.Once
}

// SessionOption is an option function for Session.
type SessionOption func(s *Session)

// WithSessionLogger configures the logger to use for session operations.
// By default, nothing will be logged.
func WithSessionLogger(l log15.Logger) SessionOption {
	return func(s *Session) {
		s.l = l
	}
}

// WithSessionClock sets the clock used to track the remaining wait.
func WithSessionClock(c clock.PassiveClock) SessionOption {
	return func(s *Session) {
		s.clock = c
	}
}

// WithBaseTimeout configures the initial acknowledgement wait. A value of 0
// or less selects the default.
func WithBaseTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		s.baseTimeout = d
		if s.baseTimeout <= 0 {
			s.baseTimeout = DefaultBaseTimeout
		}
	}
}

// WithSwitchAfter configures how many consecutive timeouts trigger an
// endpoint switch. A value of 0 or less selects the default.
func WithSwitchAfter(attempts int) SessionOption {
	return func(s *Session) {
		s.switchAfter = attempts
		if s.switchAfter <= 0 {
			s.switchAfter = DefaultSwitchAfter
		}
	}
}

// NewSession opens a channel and targets primary first. alternate is used
// after repeated timeouts, and the session keeps alternating between the two
// for as long as neither answers.
func NewSession(open Opener, primary, alternate Endpoint, opts ...SessionOption) (*Session, error) {
	if primary.IsZero() {
		return nil, errors.New("a session needs a primary endpoint")
	}
	if alternate.IsZero() {
		// switching then only rebinds the channel
		alternate = primary
	}
	noopLogger := log15.New()
	noopLogger.SetHandler(log15.DiscardHandler())
	s := &Session{
		baseTimeout: DefaultBaseTimeout,
		switchAfter: DefaultSwitchAfter,
		open:        open,
		roster:      [2]Endpoint{primary, alternate},
		board:       NewBoard(),
		clock:       clock.RealClock{},
		l:           noopLogger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.timeout = s.baseTimeout

	ch, err := open()
	if err != nil {
		return nil, errors.Wrap(err, "can't open session channel")
	}
	s.ch = ch
	return s, nil
}

// Submit sends a move and blocks until it is acknowledged. An accepted move
// is applied to the session's board. Timeouts and endpoint switches are not
// surfaced; the returned error is either a transport failure or ctx's error.
//
// A cell off the board is rejected locally without being sent, since the wire
// only carries 32-bit coordinates. The seq is not consumed.
func (s *Session) Submit(ctx context.Context, row, col int, actor Actor) (Outcome, error) {
	move := Move{Seq: s.seq, Row: row, Col: col, Actor: actor}
	if !InBounds(row, col) {
		s.l.Info("rejecting off board move", "move", move)
		return Outcome{Rejected: true, Ack: Ack{Seq: move.Seq, Rejected: true}}, nil
	}
	if err := s.send(move); err != nil {
		return Outcome{}, err
	}

	deadline := s.clock.Now().Add(s.timeout)
	for {
		remaining := deadline.Sub(s.clock.Now())
		if remaining <= 0 {
			if err := s.retry(move); err != nil {
				return Outcome{}, err
			}
			deadline = s.clock.Now().Add(s.timeout)
			continue
		}

		msg, from, err := s.ch.Receive(ctx, remaining)
		switch {
		case err == nil:
		case err == ErrTimeout:
			if err := s.retry(move); err != nil {
				return Outcome{}, err
			}
			deadline = s.clock.Now().Add(s.timeout)
			continue
		case errors.Cause(err) == ErrMalformed:
			s.l.Debug("dropping malformed datagram", "from", from, "err", err)
			continue
		case ctx.Err() != nil:
			return Outcome{}, ctx.Err()
		default:
			return Outcome{}, err
		}

		ack, ok := msg.(Ack)
		if !ok || ack.Seq != move.Seq {
			s.l.Debug("discarding unmatched reply", "msg", msg, "from", from, "seq", move.Seq)
			continue
		}

		s.seq++
		s.timeout = s.baseTimeout
		s.attempts = 0
		if ack.Rejected {
			s.l.Info("move rejected", "move", move, "server", from)
			return Outcome{Rejected: true, Ack: ack}, nil
		}
		if InBounds(ack.Row, ack.Col) {
			s.board[ack.Row][ack.Col] = ack.Actor
		}
		s.l.Info("move acknowledged", "move", move, "server", from)
		return Outcome{Ack: ack}, nil
	}
}

// retry handles one timeout: it doubles the wait, or switches endpoints once
// enough attempts went unanswered, and resends the move.
func (s *Session) retry(move Move) error {
	s.attempts++
	if s.attempts >= s.switchAfter {
		if err := s.switchEndpoint(); err != nil {
			return err
		}
	} else {
		s.timeout *= 2
	}
	s.l.Debug("resending move", "move", move, "server", s.Endpoint(), "attempts", s.attempts, "timeout", s.timeout)
	return s.send(move)
}

// switchEndpoint flips to the other endpoint on a fresh channel. The
// sequence number is carried over.
func (s *Session) switchEndpoint() error {
	if err := s.ch.Close(); err != nil {
		s.l.Warn("error closing session channel", "err", err)
	}
	ch, err := s.open()
	if err != nil {
		return errors.Wrap(err, "can't reopen session channel")
	}
	s.ch = ch
	previous := s.Endpoint()
	s.current = 1 - s.current
	s.timeout = s.baseTimeout
	s.attempts = 0
	s.l.Warn("switching server", "from", previous, "to", s.Endpoint(), "seq", s.seq)
	return nil
}

func (s *Session) send(move Move) error {
	if err := s.ch.Send(move, s.Endpoint()); err != nil {
		return errors.Wrap(err, "can't send move")
	}
	return nil
}

// Endpoint returns the server the session is currently talking to.
func (s *Session) Endpoint() Endpoint {
	return s.roster[s.current]
}

// Seq returns the sequence number the next move will carry.
func (s *Session) Seq() uint32 {
	return s.seq
}

// Timeout returns the current acknowledgement wait.
func (s *Session) Timeout() time.Duration {
	return s.timeout
}

// Attempts returns the number of consecutive unacknowledged retries.
func (s *Session) Attempts() int {
	return s.attempts
}

// Board returns the session's view of the board, built from acknowledged
// moves.
func (s *Session) Board() Board {
	return s.board
}

// Close releases the session's channel.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.ch.Close()
	})
	return err
}
