package service

import (
	"net"

	"github.com/Douniahlt/Chat-securise/internal/models"
	"github.com/Douniahlt/Chat-securise/internal/wire"
)

// CreateSession registers a just-accepted connection under a temporary
// nickname and tells the client what it is.
func (h *Hub) CreateSession(conn net.Conn) *models.Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess := models.NewSession(h.nextID(), conn)
	h.sessions = append(h.sessions, sess)

	sess.Deliver(wire.NewTempNickname(sess.ID))

	h.log.Info("session created", "id", sess.ID, "remote", conn.RemoteAddr())
	return sess
}

// ClaimIdentity resolves a requestConnection: first-time bind, rejection, or
// merge of the new transport onto a disconnected holder of the nickname.
// The returned session is the record the connection speaks for from now on
// (it differs from sess after a reconnection merge).
func (h *Hub) ClaimIdentity(sess *models.Session, nickname string, publicKey *wire.HexKey) *models.Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	holder := h.findByNickname(nickname)

	// First-time connection: the nickname is free
	if holder == nil {
		sess.Nickname = nickname
		sess.PublicKey = publicKey
		sess.Deliver(wire.NewAccept(wire.ActionAcceptConnection, nickname, h.groupNames()))
		h.log.Info("identity claimed", "id", sess.ID, "nickname", nickname)
		return sess
	}

	if holder.Connected {
		sess.Deliver(wire.NewError(wire.ErrCodeAlreadyConnected, ""))
		h.log.Warn("identity claim rejected", "id", sess.ID, "nickname", nickname)
		return sess
	}

	// Reconnection: move the fresh transport onto the existing record and
	// drop the transient session. Frames queued while the holder was away
	// stay queued; they are not replayed here.
	conn := sess.Release()
	holder.PublicKey = publicKey
	holder.Attach(conn)
	h.removeSession(sess)

	holder.Deliver(wire.NewAccept(wire.ActionAcceptReconnection, nickname, h.groupNames()))
	h.log.Info("session merged on reconnection", "transient", sess.ID, "nickname", nickname)
	return holder
}

// RequestDisconnection honors a client's disconnect request: acknowledge,
// tear the transport down, notify the groups the client belongs to and run
// admin failover where needed.
func (h *Hub) RequestDisconnection(sess *models.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !sess.Connected {
		return
	}

	sess.Deliver(wire.NewDisconnect())
	sess.DetachGraceful()

	h.notifyDeparture(sess, sess.Nickname+" left the group")
	h.failoverAdmin(sess)

	h.log.Info("session disconnected", "id", sess.ID, "nickname", sess.Nickname)
}

// HandleReadFailure cleans up after a transport error on the session's read
// loop. Other sessions and the accept loop are unaffected.
func (h *Hub) HandleReadFailure(sess *models.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !sess.Connected {
		// Already torn down by an explicit disconnect or a merge
		return
	}

	sess.Detach()
	h.notifyDeparture(sess, sess.Nickname+" has left the group")
	h.failoverAdmin(sess)

	h.log.Info("session dropped on read failure", "id", sess.ID, "nickname", sess.Nickname)
}

// notifyDeparture broadcasts an info notice to every group the session
// belongs to, excluding the departed session itself. Caller holds mu.
func (h *Hub) notifyDeparture(sess *models.Session, notice string) {
	for _, g := range h.groups {
		if g.Contains(sess.Nickname) {
			h.broadcastLocked(g, wire.NewInfo(g.Name, notice), sess)
		}
	}
}

// failoverAdmin rotates the departed session out of the admin slot of every
// group it led and announces the change. The group key is not rotated; the
// outgoing admin keeps a valid copy. Caller holds mu.
func (h *Hub) failoverAdmin(sess *models.Session) {
	for _, g := range h.groups {
		if g.Admin() != sess {
			continue
		}
		if newAdmin := g.RotateAdmin(); newAdmin != nil {
			h.log.Info("admin rotated", "group", g.Name, "old", sess.Nickname, "new", newAdmin.Nickname)
		}
		notice := wire.NewInfo(g.Name, sess.Nickname+" is no longer the group admin")
		h.broadcastLocked(g, notice, sess)
	}
}

// removeSession drops a session record entirely. Caller holds mu.
func (h *Hub) removeSession(sess *models.Session) {
	for i, s := range h.sessions {
		if s == sess {
			h.sessions = append(h.sessions[:i], h.sessions[i+1:]...)
			return
		}
	}
}
