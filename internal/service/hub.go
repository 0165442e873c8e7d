// Package service implements the server side of the chat protocol: session
// and identity lifecycle, group membership with admin semantics, the blind
// relay for the group-key handshake, and message broadcast with offline
// queuing.
package service

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Douniahlt/Chat-securise/internal/logger"
	"github.com/Douniahlt/Chat-securise/internal/models"
)

// keyShareCallback finishes a pending join once the admin has shared the
// wrapped group key for the requester.
type keyShareCallback func(cipherKey string, requester *models.Session)

// Hub owns every piece of shared server state. The single mutex serializes
// session-table, group-membership and key-request mutation together, so a
// membership change, a broadcast iteration and a callback resolution for the
// same group can never interleave.
type Hub struct {
	log *logger.Logger

	mu       sync.Mutex
	counter  int
	sessions []*models.Session
	groups   map[string]*models.Group

	// One pending key request per group; a newer request for the same
	// group overwrites an unresolved older one (last writer wins).
	keyCallbacks map[string]keyShareCallback
}

// NewHub creates a hub. Seed groups start empty: they show up in group
// lists but cannot be joined until recreated, matching the legal inert
// zero-member state.
func NewHub(log *logger.Logger, seedGroups []string) *Hub {
	h := &Hub{
		log:          log.WithComponent("hub"),
		groups:       make(map[string]*models.Group),
		keyCallbacks: make(map[string]keyShareCallback),
	}
	for _, name := range seedGroups {
		h.groups[name] = models.NewGroup(name, nil)
	}
	return h
}

// nextID returns the next server-assigned session identifier. Caller holds mu.
func (h *Hub) nextID() string {
	h.counter++
	return fmt.Sprintf("__%d", h.counter)
}

// findByNickname returns the session holding a nickname, connected or not.
// Caller holds mu.
func (h *Hub) findByNickname(nickname string) *models.Session {
	for _, s := range h.sessions {
		if s.Nickname == nickname {
			return s
		}
	}
	return nil
}

// groupNames returns the sorted list of group names. Caller holds mu.
func (h *Hub) groupNames() []string {
	names := make([]string, 0, len(h.groups))
	for name := range h.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sessions returns a snapshot of all session records.
func (h *Hub) Sessions() []*models.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*models.Session, len(h.sessions))
	copy(out, h.sessions)
	return out
}

// Group returns the group with the given name, if any.
func (h *Hub) Group(name string) (*models.Group, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.groups[name]
	return g, ok
}

// GroupNames returns the sorted names of all groups.
func (h *Hub) GroupNames() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.groupNames()
}
