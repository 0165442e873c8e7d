// Package client implements the protocol engine driving one end-user session:
// identification, group membership, the key handshake and chat encryption.
// Presentation is delegated to registered EventSinks.
package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"

	"github.com/Douniahlt/Chat-securise/internal/crypto"
	"github.com/Douniahlt/Chat-securise/internal/interfaces"
	"github.com/Douniahlt/Chat-securise/internal/logger"
	"github.com/Douniahlt/Chat-securise/internal/wire"
)

// State tracks where the session is in its lifecycle.
type State int

const (
	StateUnauthenticated State = iota
	StateTempNickname
	StateIdentified
	StateDisconnected
)

var (
	ErrNoActiveGroup = errors.New("no active group selected")
	ErrNotIdentified = errors.New("not identified yet")
)

// Engine owns the client side of the protocol. All outbound frames funnel
// through a single write mutex; the read loop runs in Run and dispatches
// control traffic itself, so sinks are called from that goroutine.
type Engine struct {
	log  *logger.Logger
	conn net.Conn

	wmu sync.Mutex // serializes wire.Encode on conn

	priv *crypto.PrivateKey
	pub  *crypto.PublicKey
	keys *KeyStore

	mu          sync.RWMutex
	state       State
	nickname    string
	groups      map[string]bool // known group names
	activeGroup string
	sinks       []interfaces.EventSink
	transcript  io.Writer
	quitting    bool
	pendingNick string // claim deferred until the temp nickname arrives
}

func NewEngine(conn net.Conn, log *logger.Logger) *Engine {
	return &Engine{
		log:    log.WithComponent("engine"),
		conn:   conn,
		keys:   NewKeyStore(),
		groups: make(map[string]bool),
	}
}

func (e *Engine) AddSink(s interfaces.EventSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, s)
}

// SetTranscript directs decrypted traffic for the active group to w, one
// "sender: content" line per message.
func (e *Engine) SetTranscript(w io.Writer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transcript = w
}

func (e *Engine) Nickname() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.nickname
}

func (e *Engine) ActiveGroup() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.activeGroup
}

func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) Groups() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.groups))
	for name := range e.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LogIn generates the session keypair and claims nickname with the server.
// The claim is held back until the server has issued a temporary nickname,
// then answered with acceptConnection, acceptReconnection or an error.
func (e *Engine) LogIn(nickname string) error {
	pub, priv, err := crypto.GenerateKeypair(crypto.DefaultKeypairBits)
	if err != nil {
		return fmt.Errorf("generate keypair: %w", err)
	}
	e.mu.Lock()
	e.priv, e.pub = priv, pub
	if e.state == StateUnauthenticated {
		e.pendingNick = nickname
		e.mu.Unlock()
		return nil
	}
	sender := e.nickname
	e.mu.Unlock()
	return e.sendClaim(sender, nickname)
}

func (e *Engine) sendClaim(sender, nickname string) error {
	e.mu.RLock()
	pub := e.pub
	e.mu.RUnlock()
	exp, mod := pub.Hex()
	return e.send(wire.NewRequestConnection(sender, nickname, wire.HexKey{Exp: exp, Mod: mod}))
}

// AddGroup asks the server to create a group with the caller as sole member.
func (e *Engine) AddGroup(name string) error {
	return e.groupRequest(wire.ActionRequestAddGroup, name)
}

// JoinGroup enters a group. When the key is already cached the switch is
// purely local; otherwise the server brokers a key handshake with the admin
// and the join completes when joinGroup arrives.
func (e *Engine) JoinGroup(name string) error {
	if e.keys.Has(name) {
		if err := e.SetActiveGroup(name); err != nil {
			return err
		}
		e.fanout(func(s interfaces.EventSink) { s.OnJoined(name) })
		return nil
	}
	return e.groupRequest(wire.ActionRequestJoinGroup, name)
}

// SetActiveGroup focuses a group the engine already holds a key for.
func (e *Engine) SetActiveGroup(name string) error {
	if !e.keys.Has(name) {
		return fmt.Errorf("no key for group %q", name)
	}
	e.mu.Lock()
	e.groups[name] = true
	e.activeGroup = name
	e.mu.Unlock()
	return nil
}

// LeaveGroup asks the server to drop the caller from a group. The cached key
// is kept so a later rejoin needs no handshake.
func (e *Engine) LeaveGroup(name string) error {
	return e.groupRequest(wire.ActionRequestLeaveGroup, name)
}

func (e *Engine) groupRequest(action, name string) error {
	e.mu.RLock()
	sender := e.nickname
	identified := e.state == StateIdentified
	e.mu.RUnlock()
	if !identified {
		return ErrNotIdentified
	}
	return e.send(wire.NewGroupRequest(sender, action, name))
}

// SendChat encrypts content with the active group's key and sends it.
func (e *Engine) SendChat(content string) error {
	e.mu.RLock()
	group := e.activeGroup
	sender := e.nickname
	e.mu.RUnlock()
	if group == "" {
		return ErrNoActiveGroup
	}
	token, err := e.keys.Seal(group, content)
	if err != nil {
		return err
	}
	// Own messages surface through the server echo, like everyone else's
	return e.send(wire.NewChat(sender, group, token))
}

// RequestDisconnection starts a graceful shutdown; the server confirms with a
// disconnect frame, which ends Run.
func (e *Engine) RequestDisconnection() error {
	e.mu.Lock()
	e.quitting = true
	sender := e.nickname
	e.mu.Unlock()
	return e.send(wire.NewRequestDisconnection(sender))
}

// Close tears down the connection without the disconnect handshake.
func (e *Engine) Close() error {
	e.keys.Purge()
	return e.conn.Close()
}

// Run reads frames until the connection ends. It returns nil after a
// server-confirmed disconnect and the transport error otherwise.
func (e *Engine) Run() error {
	for {
		msg, err := wire.Decode(e.conn)
		if err != nil {
			e.mu.Lock()
			quitting := e.quitting || e.state == StateDisconnected
			e.state = StateDisconnected
			e.mu.Unlock()
			e.fanout(func(s interfaces.EventSink) { s.OnDisconnected() })
			if quitting || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if msg.IsControl() {
			if done := e.handleControl(msg); done {
				return nil
			}
			continue
		}
		e.handleChat(msg)
	}
}

func (e *Engine) handleChat(msg *wire.Message) {
	content := msg.Content
	e.mu.RLock()
	active := e.activeGroup
	e.mu.RUnlock()
	if msg.Target == active {
		plain, err := e.keys.Open(active, content)
		if err != nil {
			e.log.Warn("dropping undecryptable message", "group", active, "sender", msg.Sender)
			e.fanout(func(s interfaces.EventSink) { s.OnError("crypto", err.Error()) })
			return
		}
		content = plain
		e.writeTranscript(msg.Sender, content)
	}
	// Traffic for another group is surfaced as-is, still encrypted.
	sender := msg.Sender
	e.fanout(func(s interfaces.EventSink) { s.OnMessage(content, sender) })
}

// handleControl dispatches a frame from the server. It reports true when the
// session is over and Run should return.
func (e *Engine) handleControl(msg *wire.Message) bool {
	switch msg.Action {
	case wire.ActionGiveTempNickname:
		e.mu.Lock()
		e.nickname = msg.Nickname
		e.state = StateTempNickname
		pending := e.pendingNick
		e.pendingNick = ""
		e.mu.Unlock()
		if pending != "" {
			if err := e.sendClaim(msg.Nickname, pending); err != nil {
				e.log.Error("sending identification", "err", err)
			}
		}

	case wire.ActionAcceptConnection, wire.ActionAcceptReconnection:
		e.mu.Lock()
		e.nickname = msg.Nickname
		e.state = StateIdentified
		for _, name := range msg.GroupsList {
			e.groups[name] = true
		}
		e.mu.Unlock()
		names := e.Groups()
		e.fanout(func(s interfaces.EventSink) { s.OnGroupsChanged(names) })

	case wire.ActionError:
		kind, details := msg.ErrorType, msg.GroupName
		e.fanout(func(s interfaces.EventSink) { s.OnError(kind, details) })

	case wire.ActionInfo:
		e.mu.RLock()
		active := e.activeGroup
		e.mu.RUnlock()
		// Notices are scoped to a group; only the active one is shown.
		if msg.Target == active {
			content := msg.Content
			e.writeTranscript(wire.ServerName, content)
			e.fanout(func(s interfaces.EventSink) { s.OnMessage(content, wire.ServerName) })
		}

	case wire.ActionJoinGroup:
		e.completeJoin(msg)

	case wire.ActionLeaveGroup:
		name := msg.GroupName
		e.mu.Lock()
		if e.activeGroup == name {
			e.activeGroup = ""
		}
		e.mu.Unlock()
		e.fanout(func(s interfaces.EventSink) { s.OnLeft(name) })

	case wire.ActionShareGroups:
		e.mu.Lock()
		for _, name := range msg.GroupsList {
			e.groups[name] = true
		}
		e.mu.Unlock()
		names := e.Groups()
		e.fanout(func(s interfaces.EventSink) { s.OnGroupsChanged(names) })

	case wire.ActionRequestKey:
		e.shareKey(msg)

	case wire.ActionDisconnect:
		e.mu.Lock()
		e.state = StateDisconnected
		e.mu.Unlock()
		e.keys.Purge()
		e.conn.Close()
		e.fanout(func(s interfaces.EventSink) { s.OnDisconnected() })
		return true

	default:
		e.log.Warn("unknown control action ignored", "action", msg.Action)
	}
	return false
}

// completeJoin finishes a join: an empty groupKey means the caller created
// the group and mints a fresh key, otherwise the admin's wrapped key is
// unwrapped with the session keypair.
func (e *Engine) completeJoin(msg *wire.Message) {
	name := msg.GroupName
	if msg.GroupKey == "" {
		if !e.keys.Has(name) {
			key, err := crypto.NewGroupKey()
			if err != nil {
				e.log.Error("minting group key", "group", name, "err", err)
				e.fanout(func(s interfaces.EventSink) { s.OnError("crypto", err.Error()) })
				return
			}
			e.keys.Put(name, key)
		}
	} else {
		e.mu.RLock()
		priv := e.priv
		e.mu.RUnlock()
		key, err := priv.Decrypt(msg.GroupKey)
		if err != nil {
			e.log.Error("unwrapping group key", "group", name, "err", err)
			e.fanout(func(s interfaces.EventSink) { s.OnError("crypto", err.Error()) })
			return
		}
		e.keys.Put(name, key)
	}
	e.mu.Lock()
	e.groups[name] = true
	e.activeGroup = name
	e.mu.Unlock()
	e.fanout(func(s interfaces.EventSink) { s.OnJoined(name) })
}

// shareKey serves the admin side of the key handshake: wrap the group key
// under the requester's public key and hand it back through the server.
func (e *Engine) shareKey(msg *wire.Message) {
	if msg.KeyRequester == nil {
		e.log.Warn("key request without requester", "group", msg.GroupName)
		return
	}
	pub, err := crypto.PublicKeyFromHex(msg.KeyRequester.PublicKey.Exp, msg.KeyRequester.PublicKey.Mod)
	if err != nil {
		e.log.Error("decoding requester key", "group", msg.GroupName, "err", err)
		return
	}
	cipherKey, err := e.keys.WrapFor(msg.GroupName, pub)
	if err != nil {
		e.log.Error("wrapping group key", "group", msg.GroupName, "err", err)
		return
	}
	e.mu.RLock()
	sender := e.nickname
	e.mu.RUnlock()
	if err := e.send(wire.NewShareGroupKey(sender, msg.GroupName, msg.KeyRequester.Nickname, cipherKey)); err != nil {
		e.log.Error("sending group key", "group", msg.GroupName, "err", err)
	}
}

func (e *Engine) send(msg *wire.Message) error {
	e.wmu.Lock()
	defer e.wmu.Unlock()
	return wire.Encode(e.conn, msg)
}

func (e *Engine) fanout(f func(interfaces.EventSink)) {
	e.mu.RLock()
	sinks := make([]interfaces.EventSink, len(e.sinks))
	copy(sinks, e.sinks)
	e.mu.RUnlock()
	for _, s := range sinks {
		f(s)
	}
}

func (e *Engine) writeTranscript(sender, content string) {
	e.mu.RLock()
	w := e.transcript
	e.mu.RUnlock()
	if w != nil {
		fmt.Fprintf(w, "%s: %s\n", sender, content)
	}
}
