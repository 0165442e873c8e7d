package service

import (
	"github.com/Douniahlt/Chat-securise/internal/models"
	"github.com/Douniahlt/Chat-securise/internal/wire"
)

// broadcastLocked delivers msg to every member of g except ignore. Connected
// members get it through their writer queue in call order; disconnected
// members get it appended to their per-group pending queue. Caller holds mu,
// so the member list cannot change mid-iteration.
func (h *Hub) broadcastLocked(g *models.Group, msg *wire.Message, ignore *models.Session) {
	for _, member := range g.Members {
		if member == ignore {
			continue
		}
		if !member.Connected {
			member.QueuePending(g.Name, msg)
			continue
		}
		if !member.Deliver(msg) {
			h.log.Warn("delivery failed, queue full",
				"group", g.Name, "nickname", member.Nickname)
		}
	}
}

// RelayChat forwards an encrypted content frame to every member of the
// target group, the sender included: clients render their own messages from
// the server's echo.
func (h *Hub) RelayChat(msg *wire.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	g, exists := h.groups[msg.Target]
	if !exists {
		h.log.Warn("chat for unknown group dropped", "group", msg.Target, "sender", msg.Sender)
		return
	}

	h.broadcastLocked(g, wire.NewChat(msg.Sender, msg.Target, msg.Content), nil)
}
