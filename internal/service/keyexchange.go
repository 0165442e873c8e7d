package service

import (
	"github.com/Douniahlt/Chat-securise/internal/models"
	"github.com/Douniahlt/Chat-securise/internal/wire"
)

// beginKeyExchange runs steps 2-3 of the join handshake: forward the
// requester's identity to the group admin and park a callback until the
// admin answers with the wrapped key. The server never sees the key in
// clear. Caller holds mu.
//
// Only one request per group is kept pending; a second requestJoinGroup for
// the same group before the admin answers overwrites the first, and the
// earlier requester never hears back.
func (h *Hub) beginKeyExchange(g *models.Group, requester *models.Session) {
	admin := g.Admin()

	var requesterKey wire.HexKey
	if requester.PublicKey != nil {
		requesterKey = *requester.PublicKey
	}
	admin.Deliver(wire.NewRequestKey(g.Name, requester.Nickname, requesterKey))

	name := g.Name
	h.keyCallbacks[name] = func(cipherKey string, target *models.Session) {
		h.admitMember(name, cipherKey, target)
	}

	h.log.Info("key requested from admin",
		"group", g.Name, "admin", admin.Nickname, "requester", requester.Nickname)
}

// ResolveKeyShare handles the admin's shareGroupKey answer: find the
// requester named in the delivery and fire the pending callback for the
// group. A share with no pending request is logged and dropped.
func (h *Hub) ResolveKeyShare(groupName string, delivery *wire.KeyDelivery) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if delivery == nil {
		h.log.Warn("key share without delivery payload", "group", groupName)
		return
	}

	callback, ok := h.keyCallbacks[groupName]
	if !ok {
		h.log.Warn("key share with no pending request", "group", groupName)
		return
	}

	target := h.findByNickname(delivery.Nickname)
	if target == nil {
		h.log.Warn("key share for unknown requester",
			"group", groupName, "nickname", delivery.Nickname)
		return
	}

	delete(h.keyCallbacks, groupName)
	callback(delivery.CipherKey, target)
}

// admitMember finishes the handshake: add the requester to the group
// (idempotent), announce the join to the existing members and hand the
// wrapped key to the requester. Caller holds mu.
func (h *Hub) admitMember(groupName, cipherKey string, requester *models.Session) {
	g, exists := h.groups[groupName]
	if !exists {
		return
	}

	g.Add(requester)

	h.broadcastLocked(g, wire.NewInfo(groupName, requester.Nickname+" has joined"), requester)
	requester.Deliver(wire.NewJoinGroup(groupName, cipherKey))

	h.log.Info("member admitted", "group", groupName, "nickname", requester.Nickname)
}
