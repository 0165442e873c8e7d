// Package interfaces declares the contracts between the protocol engine and
// its consumers.
package interfaces

// EventSink receives protocol events for presentation. The engine fans every
// event out to all registered sinks, so a UI, a logger and a test harness can
// observe the same session without coordinating.
//
// OnMessage content is the decrypted plaintext when the message targeted the
// active group; for any other group it is the still-encrypted token.
type EventSink interface {
	OnMessage(content, sender string)
	OnGroupsChanged(names []string)
	OnJoined(group string)
	OnLeft(group string)
	OnError(kind, details string)
	OnDisconnected()
}
