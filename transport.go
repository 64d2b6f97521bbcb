package standby

import (
	"context"
	"net"
	"syscall"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/ngrok/standby/internal/proto"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrTimeout is returned by Channel.Receive when a bounded wait elapses
// without a datagram.
var ErrTimeout = errors.New("timed out waiting for a datagram")

// ErrMalformed is the cause of Receive errors for datagrams that could not be
// decoded. Callers are expected to skip them.
var ErrMalformed = proto.ErrMalformed

// Channel sends and receives messages over a connectionless, lossy medium.
// Messages may be lost, duplicated or reordered.
type Channel interface {
	// Send writes m to a single datagram addressed to `to`.
	Send(m Message, to Endpoint) error
	// Receive waits for the next datagram. A positive timeout bounds the wait
	// and ErrTimeout is returned when it elapses; otherwise only ctx bounds
	// it. A canceled ctx returns ctx.Err().
	Receive(ctx context.Context, timeout time.Duration) (Message, Endpoint, error)
	// LocalEndpoint returns the address this channel is bound to.
	LocalEndpoint() Endpoint
	Close() error
}

// Opener acquires a fresh Channel. The session uses it to rebind after an
// endpoint switch.
type Opener func() (Channel, error)

// UDPChannel is a Channel over a single UDP socket. Send may be called
// concurrently; Receive must only be called from one goroutine at a time.
type UDPChannel struct {
	conn *net.UDPConn
	l    log15.Logger
}

var _ Channel = &UDPChannel{}

// ListenUDP binds a UDP socket on addr, e.g. ":9000". The socket has
// SO_REUSEADDR set so a restarted node can rebind its port immediately.
func ListenUDP(ctx context.Context, l log15.Logger, addr string) (*UDPChannel, error) {
	lc := net.ListenConfig{Control: reuseAddr}
	pc, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "can't bind udp %s", addr)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, errors.Errorf("%T is not a *net.UDPConn", pc)
	}
	ch := &UDPChannel{conn: conn, l: l}
	ch.l.Debug("bound udp socket", "local", ch.LocalEndpoint())
	return ch, nil
}

// OpenUDP returns an Opener that binds a new socket on an ephemeral port for
// every call.
func OpenUDP(l log15.Logger) Opener {
	return func() (Channel, error) {
		conn, err := net.ListenUDP("udp", nil)
		if err != nil {
			return nil, errors.Wrap(err, "can't bind client udp socket")
		}
		ch := &UDPChannel{conn: conn, l: l}
		ch.l.Debug("bound udp socket", "local", ch.LocalEndpoint())
		return ch, nil
	}
}

func reuseAddr(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return errors.Wrap(sockErr, "can't set SO_REUSEADDR")
}

func (c *UDPChannel) Send(m Message, to Endpoint) error {
	data, err := EncodeMessage(m)
	if err != nil {
		return err
	}
	if _, err := c.conn.WriteToUDPAddrPort(data, to.AddrPort()); err != nil {
		return errors.Wrapf(err, "can't send %v to %v", m.Kind(), to)
	}
	return nil
}

// aLongTimeAgo is a deadline that has always passed.
var aLongTimeAgo = time.Unix(1, 0)

func (c *UDPChannel) Receive(ctx context.Context, timeout time.Duration) (Message, Endpoint, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, Endpoint{}, errors.Wrap(err, "can't set read deadline")
	}

	functionEnd := make(chan struct{})
	go func() {
		select {
		case <-functionEnd:
		case <-ctx.Done():
			select {
			case <-functionEnd:
				return
			default:
			}
			// expire the deadline to fail the pending read
			_ = c.conn.SetReadDeadline(aLongTimeAgo)
		}
	}()
	defer close(functionEnd)

	// one extra byte so oversized datagrams are seen as malformed rather
	// than silently truncated
	buf := make([]byte, proto.EnvelopeSize+1)
	n, addr, err := c.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, Endpoint{}, ctxErr
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, Endpoint{}, ErrTimeout
		}
		return nil, Endpoint{}, errors.Wrap(err, "can't receive datagram")
	}
	from := EndpointFrom(addr)
	msg, err := DecodeMessage(buf[:n])
	if err != nil {
		return nil, from, err
	}
	return msg, from, nil
}

func (c *UDPChannel) LocalEndpoint() Endpoint {
	return EndpointFrom(c.conn.LocalAddr().(*net.UDPAddr).AddrPort())
}

func (c *UDPChannel) Close() error {
	c.l.Debug("closing udp socket", "local", c.LocalEndpoint())
	return c.conn.Close()
}
