// Package wire defines the message schema and length-prefixed framing used
// between clients and the server.
package wire

// ServerName is the reserved sender/target identifying the server itself.
// Frames addressed to it carry control actions; frames from it drive the
// client's control handler. Every other target names a group.
const ServerName = "server"

// Actions sent by clients
const (
	ActionRequestConnection    = "requestConnection"
	ActionRequestAddGroup      = "requestAddGroup"
	ActionRequestJoinGroup     = "requestJoinGroup"
	ActionRequestLeaveGroup    = "requestLeaveGroup"
	ActionShareGroupKey        = "shareGroupKey"
	ActionRequestDisconnection = "requestDisconnection"
)

// Actions sent by the server
const (
	ActionGiveTempNickname   = "giveTempNickname"
	ActionAcceptConnection   = "acceptConnection"
	ActionAcceptReconnection = "acceptReconnection"
	ActionError              = "error"
	ActionJoinGroup          = "joinGroup"
	ActionLeaveGroup         = "leaveGroup"
	ActionShareGroups        = "shareGroups"
	ActionRequestKey         = "requestKey"
	ActionDisconnect         = "disconnect"
	ActionInfo               = "info"
)

// Error codes carried in the errorType field of error frames
const (
	ErrCodeNicknameTaken    = "nicknameTaken"
	ErrCodeAlreadyConnected = "alreadyConnected"
	ErrCodeGroupNameTaken   = "groupNameTaken"
	ErrCodeEmptyGroup       = "emptyGroup"
	ErrCodeAlreadyInGroup   = "alreadyInGroup"
)

// HexKey is the wire form of an asymmetric key half: exponent and modulus as
// lowercase hex strings.
type HexKey struct {
	Exp string `json:"exp"`
	Mod string `json:"mod"`
}

// KeyRequester identifies a participant asking to join a group, as forwarded
// to the group admin in a requestKey frame.
type KeyRequester struct {
	Nickname  string `json:"nickname"`
	PublicKey HexKey `json:"publicKey"`
}

// KeyDelivery carries a wrapped group key from the admin back through the
// server: the requester's nickname and the asymmetrically encrypted key.
type KeyDelivery struct {
	Nickname  string `json:"nickname"`
	CipherKey string `json:"cipherKey"`
}

// Message is one application-level frame: a flat JSON object. Sender and
// Target are always present; the rest depends on the action.
type Message struct {
	Sender       string        `json:"sender"`
	Target       string        `json:"target"`
	Content      string        `json:"content,omitempty"`
	Action       string        `json:"action,omitempty"`
	ErrorType    string        `json:"errorType,omitempty"`
	Nickname     string        `json:"nickname,omitempty"`
	PublicKey    *HexKey       `json:"publicKey,omitempty"`
	KeyRequester *KeyRequester `json:"keyRequester,omitempty"`
	GroupsList   []string      `json:"groupsList,omitempty"`
	GroupName    string        `json:"groupName,omitempty"`
	GroupKey     string        `json:"groupKey,omitempty"`
	KeyDelivery  *KeyDelivery  `json:"keyDelivery,omitempty"`
}

// IsControl reports whether the frame comes from the server and must be
// dispatched by action rather than displayed.
func (m *Message) IsControl() bool {
	return m.Sender == ServerName
}

// NewChat creates a content frame addressed to a group.
func NewChat(sender, group, content string) *Message {
	return &Message{Sender: sender, Target: group, Content: content}
}

// NewInfo creates a server notice shown in a group's transcript.
func NewInfo(group, content string) *Message {
	return &Message{
		Sender:  ServerName,
		Target:  group,
		Action:  ActionInfo,
		Content: content,
	}
}

// NewError creates a server error frame. groupName may be empty.
func NewError(code, groupName string) *Message {
	return &Message{
		Sender:    ServerName,
		Action:    ActionError,
		ErrorType: code,
		GroupName: groupName,
	}
}

// NewTempNickname creates the frame granting a just-accepted connection its
// temporary nickname.
func NewTempNickname(nickname string) *Message {
	return &Message{Sender: ServerName, Action: ActionGiveTempNickname, Nickname: nickname}
}

// NewAccept creates an acceptConnection or acceptReconnection frame carrying
// the confirmed nickname and the current group list.
func NewAccept(action, nickname string, groups []string) *Message {
	return &Message{
		Sender:     ServerName,
		Action:     action,
		Nickname:   nickname,
		GroupsList: groups,
	}
}

// NewJoinGroup creates the frame letting a client enter a group. cipherKey is
// empty on the creator path (the client mints its own key).
func NewJoinGroup(group, cipherKey string) *Message {
	return &Message{
		Sender:    ServerName,
		Action:    ActionJoinGroup,
		GroupName: group,
		GroupKey:  cipherKey,
	}
}

// NewLeaveGroup acknowledges a leave request.
func NewLeaveGroup(group string) *Message {
	return &Message{Sender: ServerName, Action: ActionLeaveGroup, GroupName: group}
}

// NewShareGroups broadcasts the current group-name list.
func NewShareGroups(groups []string) *Message {
	return &Message{Sender: ServerName, Action: ActionShareGroups, GroupsList: groups}
}

// NewRequestKey asks a group admin to wrap its group key for a joiner.
func NewRequestKey(group, nickname string, publicKey HexKey) *Message {
	return &Message{
		Sender:    ServerName,
		Action:    ActionRequestKey,
		GroupName: group,
		KeyRequester: &KeyRequester{
			Nickname:  nickname,
			PublicKey: publicKey,
		},
	}
}

// NewDisconnect tells a client its disconnection request was honored.
func NewDisconnect() *Message {
	return &Message{Sender: ServerName, Action: ActionDisconnect}
}

// NewRequestConnection creates the identity claim a client sends after
// receiving its temporary nickname.
func NewRequestConnection(sender, nickname string, publicKey HexKey) *Message {
	return &Message{
		Sender:    sender,
		Target:    ServerName,
		Action:    ActionRequestConnection,
		Nickname:  nickname,
		PublicKey: &publicKey,
	}
}

// NewGroupRequest creates a requestAddGroup/requestJoinGroup/requestLeaveGroup frame.
func NewGroupRequest(sender, action, group string) *Message {
	return &Message{Sender: sender, Target: ServerName, Action: action, GroupName: group}
}

// NewShareGroupKey creates the admin's answer to a requestKey: the group key
// wrapped under the requester's public key.
func NewShareGroupKey(sender, group, nickname, cipherKey string) *Message {
	return &Message{
		Sender:    sender,
		Target:    ServerName,
		Action:    ActionShareGroupKey,
		GroupName: group,
		KeyDelivery: &KeyDelivery{
			Nickname:  nickname,
			CipherKey: cipherKey,
		},
	}
}

// NewRequestDisconnection creates a client's disconnect request.
func NewRequestDisconnection(sender string) *Message {
	return &Message{Sender: sender, Target: ServerName, Action: ActionRequestDisconnection}
}
