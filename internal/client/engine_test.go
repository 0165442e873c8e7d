package client

import (
	"bytes"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Douniahlt/Chat-securise/internal/crypto"
	"github.com/Douniahlt/Chat-securise/internal/logger"
	"github.com/Douniahlt/Chat-securise/internal/service"
	"github.com/Douniahlt/Chat-securise/internal/transport"
	"github.com/Douniahlt/Chat-securise/internal/wire"
)

func testLogger() *logger.Logger {
	return logger.New(logger.LevelError)
}

type event struct {
	kind string
	a, b string
}

// recordingSink funnels every sink callback into one channel so tests can
// assert on event order without locking.
type recordingSink struct {
	events chan event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(chan event, 64)}
}

func (s *recordingSink) OnMessage(content, sender string) {
	s.events <- event{kind: "message", a: content, b: sender}
}
func (s *recordingSink) OnGroupsChanged(names []string) {
	s.events <- event{kind: "groups", a: strings.Join(names, ",")}
}
func (s *recordingSink) OnJoined(group string) { s.events <- event{kind: "joined", a: group} }
func (s *recordingSink) OnLeft(group string)   { s.events <- event{kind: "left", a: group} }
func (s *recordingSink) OnError(kind, details string) {
	s.events <- event{kind: "error", a: kind, b: details}
}
func (s *recordingSink) OnDisconnected() { s.events <- event{kind: "disconnected"} }

// await drains events until one of the wanted kind arrives.
func await(t *testing.T, sink *recordingSink, kind string) event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-sink.events:
			if ev.kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %q event arrived", kind)
		}
	}
}

// awaitMessageFrom drains events until a chat message from sender arrives.
func awaitMessageFrom(t *testing.T, sink *recordingSink, sender string) event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-sink.events:
			if ev.kind == "message" && ev.b == sender {
				return ev
			}
		case <-deadline:
			t.Fatalf("no message from %q arrived", sender)
		}
	}
}

// scripted spins up an engine against the far end of a pipe the test drives
// by hand.
func scripted(t *testing.T) (*Engine, *recordingSink, net.Conn) {
	t.Helper()
	server, clientConn := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		clientConn.Close()
	})

	e := NewEngine(clientConn, testLogger())
	sink := newRecordingSink()
	e.AddSink(sink)
	go e.Run()
	return e, sink, server
}

func send(t *testing.T, conn net.Conn, msg *wire.Message) {
	t.Helper()
	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := wire.Encode(conn, msg); err != nil {
		t.Fatalf("sending frame: %v", err)
	}
}

func recv(t *testing.T, conn net.Conn) *wire.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msg, err := wire.Decode(conn)
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	return msg
}

func TestIdentificationHandshake(t *testing.T) {
	e, sink, server := scripted(t)

	if err := e.LogIn("alice"); err != nil {
		t.Fatalf("login: %v", err)
	}

	send(t, server, wire.NewTempNickname("__1"))

	claim := recv(t, server)
	if claim.Action != wire.ActionRequestConnection {
		t.Fatalf("expected requestConnection, got %q", claim.Action)
	}
	if claim.Sender != "__1" || claim.Nickname != "alice" {
		t.Fatalf("claim must carry the temp sender and the wanted nickname, got %+v", claim)
	}
	if claim.PublicKey == nil || claim.PublicKey.Mod == "" {
		t.Fatal("claim must carry the session public key")
	}

	send(t, server, wire.NewAccept(wire.ActionAcceptConnection, "alice", []string{"general"}))

	ev := await(t, sink, "groups")
	if ev.a != "general" {
		t.Fatalf("expected groups [general], got %q", ev.a)
	}
	if e.Nickname() != "alice" || e.State() != StateIdentified {
		t.Fatalf("engine state after accept: %q / %v", e.Nickname(), e.State())
	}
}

func TestCreatorMintsOwnGroupKey(t *testing.T) {
	e, sink, server := scripted(t)

	send(t, server, wire.NewJoinGroup("dev", ""))

	ev := await(t, sink, "joined")
	if ev.a != "dev" {
		t.Fatalf("expected join of dev, got %q", ev.a)
	}
	if e.ActiveGroup() != "dev" {
		t.Fatalf("active group %q", e.ActiveGroup())
	}
	if !e.keys.Has("dev") {
		t.Fatal("creator must hold a freshly minted key")
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestOwnMessageSurfacesOnceViaEcho(t *testing.T) {
	e, sink, server := scripted(t)

	send(t, server, wire.NewJoinGroup("dev", ""))
	await(t, sink, "joined")

	transcript := &lockedBuffer{}
	e.SetTranscript(transcript)

	// SendChat blocks on the synchronous pipe until the far end reads.
	sent := make(chan error, 1)
	go func() { sent <- e.SendChat("bonjour") }()

	out := recv(t, server)
	if err := <-sent; err != nil {
		t.Fatalf("send: %v", err)
	}
	if out.Target != "dev" || out.Content == "bonjour" {
		t.Fatalf("outbound frame must carry a sealed payload for dev, got %+v", out)
	}

	// Relay the frame back to its author the way the server does
	send(t, server, wire.NewChat(out.Sender, out.Target, out.Content))

	ev := await(t, sink, "message")
	if ev.a != "bonjour" {
		t.Fatalf("echo decrypted to %q", ev.a)
	}

	select {
	case extra := <-sink.events:
		if extra.kind == "message" {
			t.Fatalf("message surfaced twice: %+v", extra)
		}
	case <-time.After(200 * time.Millisecond):
	}
	if got := strings.Count(transcript.String(), "bonjour"); got != 1 {
		t.Fatalf("transcript holds %d copies of the message, want 1", got)
	}
}

func TestForeignGroupTrafficPassesThroughUndecrypted(t *testing.T) {
	_, sink, server := scripted(t)

	send(t, server, wire.NewJoinGroup("dev", ""))
	await(t, sink, "joined")

	// Traffic for a group the engine is not focused on is surfaced as-is.
	send(t, server, wire.NewChat("mallory", "ops", "opaque-token"))

	ev := await(t, sink, "message")
	if ev.a != "opaque-token" || ev.b != "mallory" {
		t.Fatalf("expected the raw token from mallory, got %+v", ev)
	}
}

func TestUndecryptableMessageAbortsOnlyItself(t *testing.T) {
	e, sink, server := scripted(t)

	send(t, server, wire.NewJoinGroup("dev", ""))
	await(t, sink, "joined")

	send(t, server, wire.NewChat("mallory", "dev", "not-a-valid-token"))
	await(t, sink, "error")

	// The session survives and later frames still flow
	send(t, server, wire.NewChat("mallory", "ops", "still-alive"))
	ev := await(t, sink, "message")
	if ev.a != "still-alive" {
		t.Fatalf("engine did not survive the bad token, got %+v", ev)
	}
	if e.ActiveGroup() != "dev" {
		t.Fatal("active group lost after a bad token")
	}
}

func TestAdminWrapsKeyForRequester(t *testing.T) {
	_, sink, server := scripted(t)

	send(t, server, wire.NewJoinGroup("dev", ""))
	await(t, sink, "joined")

	pub, priv, err := crypto.GenerateKeypair(crypto.DefaultKeypairBits)
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	exp, mod := pub.Hex()

	send(t, server, wire.NewRequestKey("dev", "bob", wire.HexKey{Exp: exp, Mod: mod}))

	share := recv(t, server)
	if share.Action != wire.ActionShareGroupKey || share.GroupName != "dev" {
		t.Fatalf("expected shareGroupKey for dev, got %+v", share)
	}
	if share.KeyDelivery == nil || share.KeyDelivery.Nickname != "bob" {
		t.Fatalf("delivery must name the requester, got %+v", share.KeyDelivery)
	}

	key, err := priv.Decrypt(share.KeyDelivery.CipherKey)
	if err != nil {
		t.Fatalf("unwrapping key: %v", err)
	}
	if len(key) != crypto.GroupKeySize {
		t.Fatalf("unwrapped key has %d bytes", len(key))
	}

	// The unwrapped key really is the group key: a message sealed with it
	// decrypts on the admin side.
	token, err := crypto.SealMessage(key, "hello dev")
	if err != nil {
		t.Fatalf("sealing: %v", err)
	}
	send(t, server, wire.NewChat("bob", "dev", token))

	ev := awaitMessageFrom(t, sink, "bob")
	if ev.a != "hello dev" {
		t.Fatalf("expected decrypted chat, got %q", ev.a)
	}
}

func TestLeaveKeepsKeyForLocalRejoin(t *testing.T) {
	e, sink, server := scripted(t)

	send(t, server, wire.NewJoinGroup("dev", ""))
	await(t, sink, "joined")

	send(t, server, wire.NewLeaveGroup("dev"))
	ev := await(t, sink, "left")
	if ev.a != "dev" {
		t.Fatalf("expected leave of dev, got %q", ev.a)
	}
	if e.ActiveGroup() != "" {
		t.Fatal("active group must clear on leave")
	}
	if err := e.SendChat("into the void"); err != ErrNoActiveGroup {
		t.Fatalf("expected ErrNoActiveGroup, got %v", err)
	}

	// The key is retained, so rejoining is local: no frame reaches the
	// server side.
	if err := e.JoinGroup("dev"); err != nil {
		t.Fatalf("local rejoin: %v", err)
	}
	ev = await(t, sink, "joined")
	if ev.a != "dev" || e.ActiveGroup() != "dev" {
		t.Fatalf("local rejoin did not restore dev, got %+v", ev)
	}
}

func TestInfoScopedToActiveGroup(t *testing.T) {
	_, sink, server := scripted(t)

	send(t, server, wire.NewJoinGroup("dev", ""))
	await(t, sink, "joined")

	// Notice for another group is silent; the one for the active group shows.
	send(t, server, wire.NewInfo("ops", "noise"))
	send(t, server, wire.NewInfo("dev", "bob has joined"))

	ev := await(t, sink, "message")
	if ev.a != "bob has joined" || ev.b != wire.ServerName {
		t.Fatalf("expected the dev notice first, got %+v", ev)
	}
}

func TestServerDisconnectEndsRun(t *testing.T) {
	server, clientConn := net.Pipe()
	defer server.Close()

	e := NewEngine(clientConn, testLogger())
	sink := newRecordingSink()
	e.AddSink(sink)

	runDone := make(chan error, 1)
	go func() { runDone <- e.Run() }()

	send(t, server, wire.NewDisconnect())
	await(t, sink, "disconnected")

	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("run after disconnect: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after disconnect")
	}
}

// TestTwoClientsExchangeEncryptedChat runs the full stack over TCP: a relay
// server and two engines doing identification, group creation, the brokered
// key handshake and encrypted chat both ways.
func TestTwoClientsExchangeEncryptedChat(t *testing.T) {
	ln, err := transport.Listen("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	hub := service.NewHub(testLogger(), nil)
	srv := service.NewServer(hub, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, ln)

	port := ln.Addr().(*net.TCPAddr).Port

	dial := func(nickname string) (*Engine, *recordingSink) {
		conn, err := transport.Dial("127.0.0.1", port)
		if err != nil {
			t.Fatalf("dial for %s: %v", nickname, err)
		}
		t.Cleanup(func() { conn.Close() })
		e := NewEngine(conn, testLogger())
		sink := newRecordingSink()
		e.AddSink(sink)
		go e.Run()
		if err := e.LogIn(nickname); err != nil {
			t.Fatalf("login %s: %v", nickname, err)
		}
		await(t, sink, "groups")
		return e, sink
	}

	alice, sinkA := dial("alice")
	bob, sinkB := dial("bob")

	if err := alice.AddGroup("dev"); err != nil {
		t.Fatalf("add group: %v", err)
	}
	await(t, sinkA, "joined")

	// Bob has no key for dev: this goes through the server-brokered
	// handshake with alice as admin.
	if err := bob.JoinGroup("dev"); err != nil {
		t.Fatalf("join group: %v", err)
	}
	await(t, sinkB, "joined")

	if err := bob.SendChat("salut alice"); err != nil {
		t.Fatalf("bob chat: %v", err)
	}
	if ev := awaitMessageFrom(t, sinkA, "bob"); ev.a != "salut alice" {
		t.Fatalf("alice got %q", ev.a)
	}
	// The sender renders from the server echo, decrypted the same way
	if ev := awaitMessageFrom(t, sinkB, "bob"); ev.a != "salut alice" {
		t.Fatalf("bob's echo was %q", ev.a)
	}

	if err := alice.SendChat("salut bob"); err != nil {
		t.Fatalf("alice chat: %v", err)
	}
	if ev := awaitMessageFrom(t, sinkB, "alice"); ev.a != "salut bob" {
		t.Fatalf("bob got %q", ev.a)
	}

	if err := bob.RequestDisconnection(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	await(t, sinkB, "disconnected")
}
