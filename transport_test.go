package standby

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func listenLoopback(t *testing.T) *UDPChannel {
	t.Helper()
	ch, err := ListenUDP(testCtx(t), l, "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ch.Close() })
	return ch
}

func TestUDPChannelSendReceive(t *testing.T) {
	a := listenLoopback(t)
	b := listenLoopback(t)

	require.NoError(t, a.Send(Move{Seq: 1, Row: 2, Col: 0, Actor: 'X'}, b.LocalEndpoint()))
	msg, from := recv(t, b)
	require.Equal(t, Move{Seq: 1, Row: 2, Col: 0, Actor: 'X'}, msg)
	require.Equal(t, a.LocalEndpoint(), from)
}

func TestUDPChannelTimeout(t *testing.T) {
	ch := listenLoopback(t)
	start := time.Now()
	_, _, err := ch.Receive(testCtx(t), 20*time.Millisecond)
	require.Equal(t, ErrTimeout, err)
	require.True(t, time.Since(start) >= 20*time.Millisecond)
}

// TestUDPChannelCtxCancel tests that an unbounded receive can be canceled by
// canceling the passed in context.
func TestUDPChannelCtxCancel(t *testing.T) {
	ch := listenLoopback(t)
	ctx, cancel := context.WithCancel(testCtx(t))
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, _, err := ch.Receive(ctx, 0)
	require.Equal(t, context.Canceled, err)

	// the channel is still usable afterwards
	other := listenLoopback(t)
	require.NoError(t, other.Send(Check{}, ch.LocalEndpoint()))
	msg, _ := recv(t, ch)
	require.Equal(t, Check{}, msg)
}

func TestUDPChannelMalformed(t *testing.T) {
	ch := listenLoopback(t)
	conn, err := net.DialUDP("udp", nil, ch.LocalEndpoint().UDPAddr())
	require.NoError(t, err)
	defer conn.Close()

	for _, datagram := range [][]byte{
		{1, 2, 3},
		make([]byte, 64),
	} {
		_, err = conn.Write(datagram)
		require.NoError(t, err)
		_, from, err := ch.Receive(testCtx(t), time.Second)
		require.Equal(t, ErrMalformed, errors.Cause(err))
		require.False(t, from.IsZero())
	}
}

// TestLoopbackReplication runs an active node and a standby on real sockets
// and plays a move through a session.
func TestLoopbackReplication(t *testing.T) {
	activeCh := listenLoopback(t)
	active, err := NewNode(activeCh, openRules{}, Assignment{Role: RoleActive}, WithLogger(l))
	require.NoError(t, err)
	runNode(t, active)

	backupCh := listenLoopback(t)
	backup, err := NewNode(backupCh, openRules{}, Assignment{Role: RoleStandby, Active: activeCh.LocalEndpoint()}, WithLogger(l))
	require.NoError(t, err)
	runNode(t, backup)
	require.Eventually(t, func() bool {
		return len(active.Standbys()) == 1
	}, time.Second, 5*time.Millisecond)

	s, err := NewSession(OpenUDP(l), activeCh.LocalEndpoint(), backupCh.LocalEndpoint(), WithSessionLogger(l))
	require.NoError(t, err)
	defer s.Close()

	out, err := s.Submit(testCtx(t), 0, 0, 'X')
	require.NoError(t, err)
	require.False(t, out.Rejected)
	require.Equal(t, Actor('X'), s.Board()[0][0])
	require.Eventually(t, func() bool {
		return backup.Board()[0][0] == 'X'
	}, time.Second, 5*time.Millisecond)

	out, err = s.Submit(testCtx(t), 0, 0, 'O')
	require.NoError(t, err)
	require.True(t, out.Rejected)
	require.Equal(t, uint32(2), s.Seq())
}

// TestLoopbackOffBoardMove checks that coordinates which would wrap to a
// legal cell on the wire never reach the server.
func TestLoopbackOffBoardMove(t *testing.T) {
	activeCh := listenLoopback(t)
	active, err := NewNode(activeCh, openRules{}, Assignment{Role: RoleActive}, WithLogger(l))
	require.NoError(t, err)
	runNode(t, active)

	s, err := NewSession(OpenUDP(l), activeCh.LocalEndpoint(), Endpoint{}, WithSessionLogger(l))
	require.NoError(t, err)
	defer s.Close()

	for _, cell := range [][2]int{{1 << 32, 1<<32 + 2}, {-1, 0}, {0, BoardSize}} {
		out, err := s.Submit(testCtx(t), cell[0], cell[1], 'X')
		require.NoError(t, err)
		require.True(t, out.Rejected, "cell %v", cell)
	}
	require.Equal(t, uint32(0), s.Seq())
	require.Equal(t, NewBoard(), s.Board())

	// the server saw nothing; the next legal move still gets seq 0
	out, err := s.Submit(testCtx(t), 0, 2, 'X')
	require.NoError(t, err)
	require.Equal(t, Ack{Seq: 0, Row: 0, Col: 2, Actor: 'X'}, out.Ack)
	want := NewBoard()
	want[0][2] = 'X'
	require.Equal(t, want, active.Board())
}
