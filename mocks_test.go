package standby

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// memNetwork delivers messages between memChannels in process. Like UDP, a
// message to an unbound endpoint, or one the drop filter rejects, is lost
// without an error.
type memNetwork struct {
	mu    sync.Mutex
	ports map[Endpoint]*memChannel
	next  uint16
	drop  func(from, to Endpoint, m Message) bool
}

func newMemNetwork() *memNetwork {
	return &memNetwork{ports: make(map[Endpoint]*memChannel), next: 40000}
}

type memPacket struct {
	msg  Message
	from Endpoint
	err  error
}

func (n *memNetwork) listen() *memChannel {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.next++
	c := &memChannel{
		net:    n,
		local:  EndpointFrom(netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), n.next)),
		inbox:  make(chan memPacket, 256),
		closed: make(chan struct{}),
	}
	n.ports[c.local] = c
	return c
}

func (n *memNetwork) opener() Opener {
	return func() (Channel, error) {
		return n.listen(), nil
	}
}

// setDrop installs a filter; messages for which it returns true are lost.
func (n *memNetwork) setDrop(drop func(from, to Endpoint, m Message) bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.drop = drop
}

func (n *memNetwork) deliver(p memPacket, to Endpoint) {
	n.mu.Lock()
	dst, ok := n.ports[to]
	drop := n.drop
	n.mu.Unlock()
	if !ok || (drop != nil && p.msg != nil && drop(p.from, to, p.msg)) {
		return
	}
	select {
	case dst.inbox <- p:
	default:
	}
}

// injectMalformed delivers an undecodable datagram to `to`.
func (n *memNetwork) injectMalformed(from, to Endpoint) {
	n.deliver(memPacket{from: from, err: errors.Wrap(ErrMalformed, "datagram is 3 bytes")}, to)
}

func (n *memNetwork) unbind(e Endpoint) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.ports, e)
}

type memChannel struct {
	net       *memNetwork
	local     Endpoint
	inbox     chan memPacket
	closed    chan struct{}
	closeOnce sync.Once
}

var _ Channel = &memChannel{}

func (c *memChannel) Send(m Message, to Endpoint) error {
	select {
	case <-c.closed:
		return errors.New("send on closed channel")
	default:
	}
	c.net.deliver(memPacket{msg: m, from: c.local}, to)
	return nil
}

func (c *memChannel) Receive(ctx context.Context, timeout time.Duration) (Message, Endpoint, error) {
	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}
	select {
	case p := <-c.inbox:
		return p.msg, p.from, p.err
	case <-timeoutC:
		return nil, Endpoint{}, ErrTimeout
	case <-c.closed:
		return nil, Endpoint{}, errors.New("receive on closed channel")
	case <-ctx.Done():
		return nil, Endpoint{}, ctx.Err()
	}
}

func (c *memChannel) LocalEndpoint() Endpoint {
	return c.local
}

func (c *memChannel) Close() error {
	c.closeOnce.Do(func() {
		c.net.unbind(c.local)
		close(c.closed)
	})
	return nil
}

// scriptChannel answers Receive from a fixed script, one entry per call, and
// records everything it was asked to do. A nil entry is a timeout. Once the
// script runs out every Receive fails with errScriptDone.
type scriptChannel struct {
	local    Endpoint
	script   []memPacket
	timeouts []time.Duration
	sent     []sentMessage
	closed   bool
}

type sentMessage struct {
	msg Message
	to  Endpoint
}

var errScriptDone = errors.New("script exhausted")

var _ Channel = &scriptChannel{}

func (c *scriptChannel) Send(m Message, to Endpoint) error {
	if c.closed {
		return errors.New("send on closed channel")
	}
	c.sent = append(c.sent, sentMessage{msg: m, to: to})
	return nil
}

func (c *scriptChannel) Receive(ctx context.Context, timeout time.Duration) (Message, Endpoint, error) {
	c.timeouts = append(c.timeouts, timeout)
	if len(c.script) == 0 {
		return nil, Endpoint{}, errScriptDone
	}
	p := c.script[0]
	c.script = c.script[1:]
	if p.msg == nil && p.err == nil {
		return nil, Endpoint{}, ErrTimeout
	}
	return p.msg, p.from, p.err
}

func (c *scriptChannel) LocalEndpoint() Endpoint {
	return c.local
}

func (c *scriptChannel) Close() error {
	c.closed = true
	return nil
}

// scriptOpener hands out the given channels in order, then empty ones.
type scriptOpener struct {
	channels []*scriptChannel
	opened   []*scriptChannel
}

func (o *scriptOpener) open() (Channel, error) {
	var c *scriptChannel
	if len(o.channels) > 0 {
		c, o.channels = o.channels[0], o.channels[1:]
	} else {
		c = &scriptChannel{}
	}
	o.opened = append(o.opened, c)
	return c, nil
}

func timeouts(n int) []memPacket {
	return make([]memPacket, n)
}

func reply(m Message, from Endpoint) memPacket {
	return memPacket{msg: m, from: from}
}

// openRules accepts any move onto an empty cell and never ends the game.
type openRules struct{}

func (openRules) IsLegal(b Board, row, col int) bool {
	return b[row][col] == Empty
}

func (openRules) Apply(b Board, row, col int, actor Actor) Board {
	b[row][col] = actor
	return b
}

func (openRules) IsTerminal(b Board) bool {
	return false
}

// cornerRules ends the game once the top-left cell is taken.
type cornerRules struct {
	openRules
}

func (cornerRules) IsTerminal(b Board) bool {
	return b[0][0] != Empty
}
