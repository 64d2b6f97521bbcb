// Package standby keeps a small authoritative game state available across a
// server failure, and lets a client submit moves to it reliably over UDP.
//
// There are two halves.
//
// A Session is the client side. It sends one move at a time, matches the
// acknowledgement by sequence number, doubles its wait after every timeout,
// and after five unanswered attempts switches to the other of its two
// configured servers on a fresh socket. A rejected move is reported to the
// caller; timeouts and switches only show up as delay.
//
// A Node is the server side. Exactly one node is active at a time under
// normal operation: it validates moves with the caller supplied Rules,
// applies them, fans every change out to its registered standbys and
// acknowledges the client. Standbys mirror the active node's board cell by
// cell and probe its liveness on a fixed interval. A standby whose probe goes
// unanswered promotes itself, tells the peers it knows of, and forgets them;
// they are expected to register with it again.
//
// This is not consensus. There is no quorum, no log and no election beyond a
// standby promoting itself, so a partition can briefly leave two nodes that
// both believe they are active. Which launched node starts as active is
// decided by AssignRole, a counter file in a shared directory guarded by an
// exclusive lock.
package standby
