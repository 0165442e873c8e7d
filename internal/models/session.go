// Package models holds the server-side records for connections and groups.
//
// None of these types lock; every read-modify-write happens under the owning
// hub's mutex so that membership changes, broadcast iteration and key-request
// bookkeeping stay mutually exclusive.
package models

import (
	"net"
	"time"

	"github.com/Douniahlt/Chat-securise/internal/wire"
)

const (
	// outboundBuffer is the per-session frame queue depth. A session that
	// cannot drain this many frames is treated as a failed delivery.
	outboundBuffer = 64

	// flushTimeout bounds how long a graceful detach waits for queued
	// frames to reach a slow peer.
	flushTimeout = time.Second
)

// Session is the server-side state for one client connection. Before an
// identity claim the nickname equals the server-assigned ID; after a claim it
// is the unique nickname. A disconnected session lingers as long as any group
// references it, accumulating pending deliveries.
type Session struct {
	ID        string
	Nickname  string
	PublicKey *wire.HexKey
	Connected bool

	// Pending maps group name to deliveries queued while disconnected.
	// They are kept but not replayed on reconnection.
	Pending map[string][]*wire.Message

	conn net.Conn
	out  chan *wire.Message
	done chan struct{}
}

// NewSession creates a session for a just-accepted connection and starts its
// writer. The temporary nickname is the ID itself.
func NewSession(id string, conn net.Conn) *Session {
	s := &Session{
		ID:       id,
		Nickname: id,
		Pending:  make(map[string][]*wire.Message),
	}
	s.Attach(conn)
	return s
}

// Attach binds a transport to the session and starts the single writer
// goroutine feeding it. Marks the session connected.
func (s *Session) Attach(conn net.Conn) {
	s.conn = conn
	s.out = make(chan *wire.Message, outboundBuffer)
	s.done = make(chan struct{})
	s.Connected = true

	go writeLoop(conn, s.out, s.done)
}

// writeLoop is the only writer on conn, so frames from concurrent logical
// senders never interleave. A write error ends the loop; cleanup is driven
// by the corresponding read loop failing.
func writeLoop(conn net.Conn, out <-chan *wire.Message, done chan<- struct{}) {
	defer close(done)
	for msg := range out {
		if err := wire.Encode(conn, msg); err != nil {
			return
		}
	}
}

// stopWriter closes the queue and waits for the writer to exit. Callers must
// make sure a writer blocked on the transport gets unblocked first, by
// closing the connection or arming a write deadline.
func (s *Session) stopWriter() {
	s.Connected = false
	if s.out != nil {
		close(s.out)
		<-s.done
		s.out = nil
		s.done = nil
	}
}

// Deliver queues a frame for the writer. Returns false when the session has
// no transport or its queue is full.
func (s *Session) Deliver(msg *wire.Message) bool {
	if !s.Connected || s.out == nil {
		return false
	}
	select {
	case s.out <- msg:
		return true
	default:
		return false
	}
}

// QueuePending stores a delivery for a disconnected member.
func (s *Session) QueuePending(group string, msg *wire.Message) {
	s.Pending[group] = append(s.Pending[group], msg)
}

// PendingFor returns the deliveries queued for a group.
func (s *Session) PendingFor(group string) []*wire.Message {
	return s.Pending[group]
}

// Detach closes the transport immediately, then stops the writer. Closing
// first unblocks a writer stuck on a peer that stopped reading, so cleaning
// up one dead connection never stalls the caller. Queued frames are dropped.
// The session record itself survives for pending-message bookkeeping.
func (s *Session) Detach() {
	if s.conn != nil {
		s.conn.Close()
	}
	s.stopWriter()
	s.conn = nil
}

// DetachGraceful gives the writer at most flushTimeout to put queued frames
// (the disconnect ack) on the wire before the transport is closed. A peer
// that stopped reading costs the bounded deadline, not a hang.
func (s *Session) DetachGraceful() {
	if s.conn != nil {
		s.conn.SetWriteDeadline(time.Now().Add(flushTimeout))
	}
	s.stopWriter()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// Release stops the writer and surrenders the transport without closing it,
// so it can be attached to another session record on reconnection. An
// immediate write deadline kicks loose a writer stuck on the old session's
// frames; the deadline is cleared before the transport is handed over.
func (s *Session) Release() net.Conn {
	conn := s.conn
	if conn != nil {
		conn.SetWriteDeadline(time.Now())
	}
	s.stopWriter()
	if conn != nil {
		conn.SetWriteDeadline(time.Time{})
	}
	s.conn = nil
	return conn
}
