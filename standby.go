package standby

import "github.com/pkg/errors"

// handleStandbyLocked dispatches a message received while standing by. Any
// datagram from the active node counts as an answer to an outstanding
// liveness probe.
func (n *Node) handleStandbyLocked(msg Message, from Endpoint) error {
	if from == n.active {
		n.cancelProbe()
	}

	switch m := msg.(type) {
	case State:
		if !InBounds(m.Row, m.Col) {
			n.l.Warn("dropping out of range state update", "state", m, "from", from)
			return nil
		}
		n.board[m.Row][m.Col] = m.Actor
	case Promote:
		n.formerActive = from
		n.promoteLocked("promotion requested")
	case Check:
		if from != n.active {
			n.l.Debug("ignoring liveness check from a node that is not active", "from", from)
		}
	case PromoteBackup:
		// a peer promoted itself; it is the active node now
		if n.peers.Register(from) {
			n.l.Info("learned peer", "peer", from)
		}
		n.l.Info("following newly promoted node", "active", from, "previous", n.active)
		n.active = from
		n.cancelProbe()
		if err := n.ch.Send(RegisterBackup{}, from); err != nil {
			n.l.Warn("failed to register with newly promoted node", "active", from, "err", err)
		}
	case Move:
		n.l.Debug("standby dropping client move", "move", m, "client", from)
	default:
		n.l.Debug("standby ignoring message", "kind", msg.Kind(), "from", from)
	}
	return nil
}

// registerWithActive asks the active node to start fanning state out to us.
func (n *Node) registerWithActive() error {
	n.stateLock.Lock()
	defer n.stateLock.Unlock()
	if n.role != RoleStandby {
		return nil
	}
	n.l.Info("registering with active node", "active", n.active)
	if err := n.ch.Send(RegisterBackup{}, n.active); err != nil {
		return errors.Wrapf(err, "can't register with active node %v", n.active)
	}
	return nil
}

// startProbe sends a CHECK to the active node and arms the probe deadline.
// It is a no-op while active or while a probe is already outstanding.
func (n *Node) startProbe() error {
	n.stateLock.Lock()
	defer n.stateLock.Unlock()
	if n.role != RoleStandby || n.probe != nil {
		return nil
	}
	n.probe = n.clock.NewTimer(n.livenessTimeout)
	if err := n.ch.Send(Check{}, n.active); err != nil {
		n.cancelProbe()
		return errors.Wrapf(err, "can't probe active node %v", n.active)
	}
	n.l.Debug("probing active node", "active", n.active, "timeout", n.livenessTimeout)
	return nil
}

func (n *Node) cancelProbe() {
	if n.probe != nil {
		n.probe.Stop()
		n.probe = nil
	}
}

// livenessFailed is called when a probe went unanswered.
func (n *Node) livenessFailed() {
	n.stateLock.Lock()
	defer n.stateLock.Unlock()
	if n.role != RoleStandby {
		return
	}
	n.l.Warn("active node failed liveness check", "active", n.active, "timeout", n.livenessTimeout)
	n.formerActive = n.active
	n.promoteLocked("liveness check failed")
}

// promoteLocked makes this node active, tells every known peer, and forgets
// them. Peers are expected to register with us again.
func (n *Node) promoteLocked(reason string) {
	if err := n.role.transitionTo(RoleActive); err != nil {
		n.l.Info("cannot promote", "reason", reason, "err", err)
		return
	}
	n.cancelProbe()
	// the most recent sender stands in for our own identity from here on
	n.active = n.lastSender
	n.l.Warn("promoted to active", "reason", reason, "formerActive", n.formerActive, "peers", n.peers.Len())

	failed := n.peers.ForEach(func(e Endpoint) error {
		return n.ch.Send(PromoteBackup{}, e)
	})
	for e, err := range failed {
		n.l.Warn("failed to notify peer of promotion", "peer", e, "err", err)
	}
	n.peers.Clear()
	n.standbys.Clear()
	n.replies = make(map[Endpoint]Ack)
}
