package models

// Group is a named chat group. Members is ordered: index 0 is the admin, the
// sole holder allowed to distribute the group key. A group with no members
// is legal but inert; join attempts against it fail.
type Group struct {
	Name    string
	Members []*Session
}

// NewGroup creates a group. The creator, when given, becomes sole admin.
func NewGroup(name string, creator *Session) *Group {
	g := &Group{Name: name}
	if creator != nil {
		g.Members = []*Session{creator}
	}
	return g
}

// Admin returns the member at index 0, or nil for an empty group.
func (g *Group) Admin() *Session {
	if len(g.Members) == 0 {
		return nil
	}
	return g.Members[0]
}

// Contains reports whether a session with the given nickname is a member.
func (g *Group) Contains(nickname string) bool {
	for _, m := range g.Members {
		if m.Nickname == nickname {
			return true
		}
	}
	return false
}

// Add appends a member unless already present.
func (g *Group) Add(s *Session) {
	if g.Contains(s.Nickname) {
		return
	}
	g.Members = append(g.Members, s)
}

// Remove drops a session from the member list. Removing the admin this way
// is only done on an explicit leave; disconnects go through RotateAdmin.
func (g *Group) Remove(s *Session) {
	for i, m := range g.Members {
		if m == s {
			g.Members = append(g.Members[:i], g.Members[i+1:]...)
			return
		}
	}
}

// RotateAdmin moves the current admin to the tail, promoting the member that
// was at index 1. Returns the new admin, or nil when the group has at most
// one member (rotation is then a no-op).
func (g *Group) RotateAdmin() *Session {
	if len(g.Members) < 2 {
		return nil
	}
	old := g.Members[0]
	g.Members = append(g.Members[1:], old)
	return g.Members[0]
}
