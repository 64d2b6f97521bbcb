package standby

import "github.com/pkg/errors"

// handleActiveLocked dispatches a message received while active. Every
// message, whatever its kind, is followed by a full snapshot re-broadcast to
// the standbys so that a standby which missed an update converges anyway.
func (n *Node) handleActiveLocked(msg Message, from Endpoint) error {
	switch m := msg.(type) {
	case Move:
		if err := n.handleMoveLocked(m, from); err != nil {
			return err
		}
	case RegisterBackup:
		if n.standbys.Register(from) {
			n.l.Info("registered standby", "standby", from)
		}
		n.sendSnapshotLocked(from)
	case Check:
		if err := n.ch.Send(Check{}, from); err != nil {
			return errors.Wrapf(err, "can't answer liveness check from %v", from)
		}
	default:
		n.l.Debug("active node ignoring message", "kind", msg.Kind(), "from", from)
	}
	n.broadcastSnapshotLocked()
	return nil
}

func (n *Node) handleMoveLocked(m Move, from Endpoint) error {
	if last, ok := n.replies[from]; ok && last.Seq == m.Seq {
		n.l.Debug("repeating reply to retransmitted move", "move", m, "client", from, "reply", last)
		return n.replyLocked(last, from)
	}

	var ack Ack
	if !InBounds(m.Row, m.Col) || !n.rules.IsLegal(n.board, m.Row, m.Col) {
		n.l.Info("rejected move", "move", m, "client", from)
		ack = Ack{Seq: m.Seq, Rejected: true}
	} else {
		n.board = n.rules.Apply(n.board, m.Row, m.Col, m.Actor)
		cell := State{Row: m.Row, Col: m.Col, Actor: n.board[m.Row][m.Col]}
		n.l.Info("applied move", "move", m, "client", from)
		n.fanOutLocked(cell)
		ack = Ack{Seq: m.Seq, Row: cell.Row, Col: cell.Col, Actor: cell.Actor}
	}
	n.replies[from] = ack
	return n.replyLocked(ack, from)
}

// replyLocked acknowledges a client. Failing to do so is fatal.
func (n *Node) replyLocked(ack Ack, to Endpoint) error {
	if err := n.ch.Send(ack, to); err != nil {
		return errors.Wrapf(err, "can't acknowledge client %v", to)
	}
	return nil
}

// fanOutLocked sends a single cell update to every standby. Failures are
// logged and skipped.
func (n *Node) fanOutLocked(cell State) {
	failed := n.standbys.ForEach(func(e Endpoint) error {
		return n.ch.Send(cell, e)
	})
	for e, err := range failed {
		n.l.Warn("failed to send state update to standby", "standby", e, "err", err)
	}
}

// sendSnapshotLocked sends one STATE per cell to a single standby.
func (n *Node) sendSnapshotLocked(to Endpoint) {
	for _, cell := range n.board.cells() {
		if err := n.ch.Send(cell, to); err != nil {
			n.l.Warn("failed to send snapshot to standby", "standby", to, "cell", cell, "err", err)
		}
	}
}

func (n *Node) broadcastSnapshotLocked() {
	for _, e := range n.standbys.Members() {
		n.sendSnapshotLocked(e)
	}
}
