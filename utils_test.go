package standby

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/stretchr/testify/require"
)

var l = log15.New()

func tmpDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "standby_test")
	if err != nil {
		panic(err)
	}
	t.Cleanup(func() {
		os.RemoveAll(dir)
	})
	return dir
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// running is a node serving in the background.
type running struct {
	done chan struct{}
	err  error
}

// wait returns Run's result, failing the test if the node is still running
// after a second.
func (r *running) wait(t *testing.T) error {
	t.Helper()
	select {
	case <-r.done:
		return r.err
	case <-time.After(time.Second):
		t.Fatal("node kept running")
	}
	return nil
}

// runNode serves n in the background until the test ends.
func runNode(t *testing.T, n *Node) *running {
	ctx, cancel := context.WithCancel(testCtx(t))
	r := &running{done: make(chan struct{})}
	go func() {
		defer close(r.done)
		r.err = n.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-r.done
	})
	return r
}

// recv waits for the next message on ch, failing the test after a second.
func recv(t *testing.T, ch Channel) (Message, Endpoint) {
	t.Helper()
	msg, from, err := ch.Receive(testCtx(t), time.Second)
	require.NoError(t, err)
	return msg, from
}

// recvUntil discards messages on ch until one satisfies match.
func recvUntil(t *testing.T, ch Channel, match func(Message) bool) Message {
	t.Helper()
	for {
		msg, _ := recv(t, ch)
		if match(msg) {
			return msg
		}
	}
}

func isKind(k Message) func(Message) bool {
	return func(m Message) bool {
		return m.Kind() == k.Kind()
	}
}

// requireQuiet asserts that nothing arrives on ch for a short while.
func requireQuiet(t *testing.T, ch Channel) {
	t.Helper()
	msg, from, err := ch.Receive(testCtx(t), 50*time.Millisecond)
	require.Equal(t, ErrTimeout, err, "unexpected %v from %v", msg, from)
}
