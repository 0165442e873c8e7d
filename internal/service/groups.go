package service

import (
	"github.com/Douniahlt/Chat-securise/internal/models"
	"github.com/Douniahlt/Chat-securise/internal/wire"
)

// AddGroup creates a group with the requester as sole admin, confirms the
// join to the creator (no key: the creator mints its own) and shares the
// updated group list with every connected session.
func (h *Hub) AddGroup(name string, creator *models.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.groups[name]; exists {
		creator.Deliver(wire.NewError(wire.ErrCodeGroupNameTaken, name))
		return
	}

	h.groups[name] = models.NewGroup(name, creator)
	creator.Deliver(wire.NewJoinGroup(name, ""))

	shareGroups := wire.NewShareGroups(h.groupNames())
	for _, s := range h.sessions {
		s.Deliver(shareGroups)
	}

	h.log.Info("group created", "group", name, "admin", creator.Nickname)
}

// JoinGroup starts a join. An empty (or unknown) group cannot hand out a
// key, so the request fails; otherwise the admin is asked for the key and
// the join completes in ResolveKeyShare.
func (h *Hub) JoinGroup(name string, requester *models.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	g, exists := h.groups[name]
	if !exists || len(g.Members) == 0 {
		requester.Deliver(wire.NewError(wire.ErrCodeEmptyGroup, name))
		return
	}
	// A requester that is already a member goes through the handshake
	// again (admission is idempotent): a reconnected client may have lost
	// its key material and needs a fresh copy.
	h.beginKeyExchange(g, requester)
}

// LeaveGroup removes a member, acknowledges the leaver and tells the
// remaining members.
func (h *Hub) LeaveGroup(name string, sess *models.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	g, exists := h.groups[name]
	if !exists {
		return
	}

	g.Remove(sess)
	sess.Deliver(wire.NewLeaveGroup(name))
	h.broadcastLocked(g, wire.NewInfo(name, sess.Nickname+" has left"), nil)

	h.log.Info("member left group", "group", name, "nickname", sess.Nickname)
}
