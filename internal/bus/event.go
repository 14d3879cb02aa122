package bus

import "time"

// Event kinds published by the console. Subscribers filter by prefix.
const (
	KindConfigUpdated      = "config.updated"
	KindConversationState  = "conversation.state_changed"
	KindConversationUpdate = "conversation.updated"
	KindSyncStarted        = "sync.started"
	KindSyncCompleted      = "sync.completed"
	KindSyncFailed         = "sync.failed"
	KindLinkState          = "link.state_changed"

	// Raw transport events, consumed by the inbox.
	KindWAMessage   = "wa.message"
	KindWAContact   = "wa.contact"
	KindWAReceipt   = "wa.receipt"
	KindWAHistory   = "wa.history_batch"
	KindWAConnected = "wa.connected"
	KindWALoggedOut = "wa.logged_out"

	// Normalized events republished by the inbox after persisting.
	KindInboxMessage = "inbox.message"
	KindInboxContact = "inbox.contact"
	KindInboxReceipt = "inbox.receipt"
)

// Event is a domain event carried on the bus.
type Event struct {
	ID        string
	Kind      string
	Timestamp time.Time
	Payload   any
}
