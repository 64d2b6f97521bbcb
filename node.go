package standby

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"
)

const (
	// DefaultLivenessInterval is how often a standby probes the active node.
	DefaultLivenessInterval time.Duration = time.Second
	// DefaultLivenessTimeout is how long a standby waits for any reply from
	// the active node after probing it before promoting itself.
	DefaultLivenessTimeout time.Duration = 500 * time.Millisecond
)

// inboxSize bounds how many received datagrams may be queued ahead of the
// node loop.
const inboxSize = 64

// Assignment is the startup decision handed to a node: its role and, for a
// standby, where the active node is.
type Assignment struct {
	Role   Role
	Active Endpoint
}

// Node is a server process in the active/standby scheme. It owns a single
// Channel, the replicated board and both endpoint registries.
type Node struct {
	livenessInterval time.Duration
	livenessTimeout  time.Duration

	ch    Channel
	rules Rules
	clock clock.Clock
	l     log15.Logger

	// stateLock guards every field below it.
	stateLock sync.Mutex
	role      Role
	board     Board
	// active is the node a standby believes is active. Once promoted it
	// holds the placeholder identity adopted at promotion.
	active       Endpoint
	formerActive Endpoint
	lastSender   Endpoint
	// standbys is the fan-out set of an active node.
	standbys *Registry
	// peers are the nodes a standby notifies when it promotes itself.
	peers *Registry
	// replies holds the last Ack sent to each client, for retransmitted moves.
	replies map[Endpoint]Ack

	// probe is owned by the run loop.
	probe clock.Timer

	runOnce sync.Once
}

// Option is an option function for Node.
type Option func(n *Node)

// WithLogger configures the logger to use for node operations.
// By default, nothing will be logged.
func WithLogger(l log15.Logger) Option {
	return func(n *Node) {
		n.l = l
	}
}

// WithClock sets the clock liveness timers are taken from.
func WithClock(c clock.Clock) Option {
	return func(n *Node) {
		n.clock = c
	}
}

// WithLivenessInterval configures how often a standby probes the active
// node. A value of 0 or less selects the default.
func WithLivenessInterval(d time.Duration) Option {
	return func(n *Node) {
		n.livenessInterval = d
		if n.livenessInterval <= 0 {
			n.livenessInterval = DefaultLivenessInterval
		}
	}
}

// WithLivenessTimeout configures how long a probe may go unanswered. A value
// of 0 or less selects the default.
func WithLivenessTimeout(d time.Duration) Option {
	return func(n *Node) {
		n.livenessTimeout = d
		if n.livenessTimeout <= 0 {
			n.livenessTimeout = DefaultLivenessTimeout
		}
	}
}

// WithPeers seeds the set of peer standbys to notify on promotion.
func WithPeers(peers ...Endpoint) Option {
	return func(n *Node) {
		for _, p := range peers {
			n.peers.Register(p)
		}
	}
}

// NewNode constructs a node serving on ch. It does not send or receive
// anything until Run is called.
func NewNode(ch Channel, rules Rules, assignment Assignment, opts ...Option) (*Node, error) {
	if !assignment.Role.valid() {
		return nil, errors.Errorf("unknown role %q", assignment.Role)
	}
	if assignment.Role == RoleStandby && assignment.Active.IsZero() {
		return nil, errors.New("a standby needs the active node's endpoint")
	}

	noopLogger := log15.New()
	noopLogger.SetHandler(log15.DiscardHandler())
	n := &Node{
		livenessInterval: DefaultLivenessInterval,
		livenessTimeout:  DefaultLivenessTimeout,
		ch:               ch,
		rules:            rules,
		clock:            clock.RealClock{},
		l:                noopLogger,
		role:             assignment.Role,
		board:            NewBoard(),
		active:           assignment.Active,
		standbys:         newRegistry(),
		peers:            newRegistry(),
		replies:          make(map[Endpoint]Ack),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.l = n.l.New("local", ch.LocalEndpoint())
	return n, nil
}

type datagram struct {
	msg  Message
	from Endpoint
}

// Run serves until ctx is canceled, the board reaches a terminal position,
// or the transport fails. Transport failures are returned; they are not
// recoverable. Run may only be called once.
func (n *Node) Run(ctx context.Context) error {
	err := errors.New("node already ran")
	n.runOnce.Do(func() {
		err = n.run(ctx)
	})
	return err
}

func (n *Node) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	inbox := make(chan datagram, inboxSize)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.pump(gctx, inbox)
	})
	g.Go(func() error {
		// the loop finishing for any reason also stops the pump
		defer cancel()
		return n.loop(gctx, inbox)
	})
	return g.Wait()
}

// pump moves datagrams from the channel to the inbox so that the loop never
// blocks on the transport.
func (n *Node) pump(ctx context.Context, inbox chan<- datagram) error {
	for {
		msg, from, err := n.ch.Receive(ctx, 0)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Cause(err) == ErrMalformed {
				n.l.Warn("dropping malformed datagram", "from", from, "err", err)
				continue
			}
			return errors.Wrap(err, "receive failed")
		}
		select {
		case inbox <- datagram{msg: msg, from: from}:
		case <-ctx.Done():
			return nil
		}
	}
}

func (n *Node) loop(ctx context.Context, inbox <-chan datagram) error {
	n.l.Info("node running", "role", n.Role())
	if err := n.registerWithActive(); err != nil {
		return err
	}

	tick := n.clock.NewTimer(n.livenessInterval)
	defer tick.Stop()
	defer n.cancelProbe()
	for {
		var probeC <-chan time.Time
		if n.probe != nil {
			probeC = n.probe.C()
		}
		select {
		case <-ctx.Done():
			n.l.Info("node stopping", "reason", ctx.Err())
			return nil
		case d := <-inbox:
			if stop, err := n.deliver(d); stop || err != nil {
				return err
			}
		case <-tick.C():
			tick.Reset(n.livenessInterval)
			if err := n.startProbe(); err != nil {
				return err
			}
		case <-probeC:
			// a reply may already be queued behind other traffic
			if stop, err := n.drain(inbox); stop || err != nil {
				return err
			}
			if n.probe == nil {
				continue
			}
			n.probe = nil
			n.livenessFailed()
		}
	}
}

// deliver handles one datagram. stop is set once the board is terminal.
func (n *Node) deliver(d datagram) (stop bool, err error) {
	if err := n.handle(d.msg, d.from); err != nil {
		return true, err
	}
	if n.gameOver() {
		n.l.Info("board is terminal, node stopping")
		return true, nil
	}
	return false, nil
}

// drain delivers whatever is already queued in the inbox, without waiting
// for more. It handles at most inboxSize datagrams.
func (n *Node) drain(inbox <-chan datagram) (stop bool, err error) {
	for i := 0; i < inboxSize; i++ {
		select {
		case d := <-inbox:
			if stop, err := n.deliver(d); stop || err != nil {
				return stop, err
			}
		default:
			return false, nil
		}
	}
	return false, nil
}

func (n *Node) handle(msg Message, from Endpoint) error {
	n.stateLock.Lock()
	defer n.stateLock.Unlock()

	n.lastSender = from
	n.l.Debug("handling message", "msg", msg, "from", from, "role", n.role)
	switch n.role {
	case RoleActive:
		return n.handleActiveLocked(msg, from)
	case RoleStandby:
		return n.handleStandbyLocked(msg, from)
	}
	panic(fmt.Sprintf("BUG: node in unknown role %q", n.role))
}

func (n *Node) gameOver() bool {
	n.stateLock.Lock()
	defer n.stateLock.Unlock()
	return n.rules.IsTerminal(n.board)
}

// Role returns the node's current role.
func (n *Node) Role() Role {
	n.stateLock.Lock()
	defer n.stateLock.Unlock()
	return n.role
}

// Board returns a copy of the node's board.
func (n *Node) Board() Board {
	n.stateLock.Lock()
	defer n.stateLock.Unlock()
	return n.board
}

// Standbys returns the endpoints an active node fans state out to.
func (n *Node) Standbys() []Endpoint {
	return n.standbys.Members()
}

// Peers returns the endpoints a standby will notify when it promotes itself.
func (n *Node) Peers() []Endpoint {
	return n.peers.Members()
}

// Status is a point-in-time view of a node.
type Status struct {
	Role         Role       `json:"role"`
	Local        Endpoint   `json:"local"`
	Active       Endpoint   `json:"active"`
	FormerActive Endpoint   `json:"former_active"`
	Board        []string   `json:"board"`
	Standbys     []Endpoint `json:"standbys"`
	Peers        []Endpoint `json:"peers"`
}

// Status returns a snapshot of the node. It is safe to call while Run is
// serving.
func (n *Node) Status() Status {
	n.stateLock.Lock()
	defer n.stateLock.Unlock()
	rows := make([]string, 0, BoardSize)
	for _, row := range n.board {
		b := make([]byte, 0, BoardSize)
		for _, cell := range row {
			b = append(b, byte(cell))
		}
		rows = append(rows, string(b))
	}
	return Status{
		Role:         n.role,
		Local:        n.ch.LocalEndpoint(),
		Active:       n.active,
		FormerActive: n.formerActive,
		Board:        rows,
		Standbys:     n.standbys.Members(),
		Peers:        n.peers.Members(),
	}
}

// Close releases the node's channel.
func (n *Node) Close() error {
	return n.ch.Close()
}
