package models

import (
	"net"
	"testing"
)

func testSession(t *testing.T, nickname string) *Session {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	s := NewSession(nickname, server)
	return s
}

func TestAdminIsFirstMember(t *testing.T) {
	alice := testSession(t, "alice")
	bob := testSession(t, "bob")

	g := NewGroup("dev", alice)
	if g.Admin() != alice {
		t.Fatal("creator must be admin")
	}

	g.Add(bob)
	if g.Admin() != alice {
		t.Fatal("adding a member must not change the admin")
	}
}

func TestAddIsIdempotent(t *testing.T) {
	alice := testSession(t, "alice")
	g := NewGroup("dev", alice)

	g.Add(alice)
	g.Add(alice)
	if len(g.Members) != 1 {
		t.Fatalf("expected one member, got %d", len(g.Members))
	}
}

func TestRotateAdminOrder(t *testing.T) {
	alice := testSession(t, "alice")
	bob := testSession(t, "bob")
	carol := testSession(t, "carol")

	g := NewGroup("dev", alice)
	g.Add(bob)
	g.Add(carol)

	newAdmin := g.RotateAdmin()
	if newAdmin != bob {
		t.Fatalf("expected bob promoted, got %v", newAdmin)
	}

	want := []*Session{bob, carol, alice}
	for i, m := range g.Members {
		if m != want[i] {
			t.Fatalf("member order after rotation: got %v at %d", m.Nickname, i)
		}
	}
}

func TestRotateAdminSoloIsNoOp(t *testing.T) {
	alice := testSession(t, "alice")
	g := NewGroup("dev", alice)

	if g.RotateAdmin() != nil {
		t.Fatal("rotation with a single member must be a no-op")
	}
	if g.Admin() != alice {
		t.Fatal("solo admin must keep the slot")
	}

	empty := NewGroup("ghost", nil)
	if empty.RotateAdmin() != nil || empty.Admin() != nil {
		t.Fatal("empty group has no admin")
	}
}

func TestEmptyGroupIsLegalButAdminless(t *testing.T) {
	g := NewGroup("ghost", nil)
	if g.Admin() != nil {
		t.Fatal("empty group must have no admin")
	}
	if g.Contains("anyone") {
		t.Fatal("empty group contains nobody")
	}
}
