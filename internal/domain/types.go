package domain

import "time"

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusReceived  MessageStatus = "received"
)

// Valid reports whether s is one of the known statuses.
func (s MessageStatus) Valid() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusRead, StatusReceived:
		return true
	}
	return false
}

// Rank orders outgoing statuses: sent < delivered < read.
// Inbound ("received") and unknown statuses rank 0.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Advances reports whether moving from s to next is a forward transition
// for an outgoing message. "received" is terminal.
func (s MessageStatus) Advances(next MessageStatus) bool {
	if s == StatusReceived || next == StatusReceived {
		return false
	}
	return next.Rank() > s.Rank()
}

// AttachmentType enumerates media kinds.
type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentVideo    AttachmentType = "video"
	AttachmentDocument AttachmentType = "document"
	AttachmentAudio    AttachmentType = "audio"
)

// Attachment is media carried by a message.
type Attachment struct {
	ID   string         `json:"id"`
	Type AttachmentType `json:"type"`
	URL  string         `json:"url"`
	Name string         `json:"name,omitempty"`
	Size int64          `json:"size,omitempty"`
}

// Message is a single entry of a conversation. Timestamp is the ordering key.
type Message struct {
	ID          string        `json:"id"`
	ContactID   string        `json:"contactId"`
	Content     string        `json:"content"`
	Timestamp   time.Time     `json:"timestamp"`
	Status      MessageStatus `json:"status"`
	Attachments []Attachment  `json:"attachments,omitempty"`
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	if m.Attachments != nil {
		m.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	return m
}

// Before reports whether m sorts before o: by timestamp, then id.
func (m Message) Before(o Message) bool {
	if !m.Timestamp.Equal(o.Timestamp) {
		return m.Timestamp.Before(o.Timestamp)
	}
	return m.ID < o.ID
}

// Receipt is a delivery report for an outgoing message.
type Receipt struct {
	ContactID string        `json:"contactId"`
	MessageID string        `json:"messageId"`
	Status    MessageStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
}

// Contact is a conversation partner. LastMessage and UnreadCount are a
// materialized view over the contact's messages.
type Contact struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	PhoneNumber  string     `json:"phoneNumber"`
	ProfileImage string     `json:"profileImage,omitempty"`
	LastMessage  *Message   `json:"lastMessage,omitempty"`
	UnreadCount  int        `json:"unreadCount,omitempty"`
	LastSeen     *time.Time `json:"lastSeen,omitempty"`
}

// Clone returns a deep copy of c.
func (c Contact) Clone() Contact {
	if c.LastMessage != nil {
		lm := c.LastMessage.Clone()
		c.LastMessage = &lm
	}
	if c.LastSeen != nil {
		ls := *c.LastSeen
		c.LastSeen = &ls
	}
	return c
}

// LastActivity is the timestamp used for most-recent-first ordering.
func (c Contact) LastActivity() time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.Timestamp
	}
	return time.Time{}
}

// MessagingConfig holds the messaging API credentials.
type MessagingConfig struct {
	Token             string `json:"token"`
	PhoneNumberID     string `json:"phoneNumberId"`
	BusinessAccountID string `json:"businessAccountId"`
	IsConfigured      bool   `json:"isConfigured"`
}

// DefaultDatabasePort is used when DatabaseConfig.Port is zero.
const DefaultDatabasePort = 5432

// DatabaseConfig holds the durable database connection parameters.
type DatabaseConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Database     string `json:"database"`
	Driver       string `json:"driver,omitempty"`  // postgres (default) | sqlite
	SSLMode      string `json:"sslMode,omitempty"` // postgres only
	IsConfigured bool   `json:"isConfigured"`
}

// DatabaseStatus is derived state, never persisted.
type DatabaseStatus struct {
	IsConnected bool       `json:"isConnected"`
	LastSync    *time.Time `json:"lastSync,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Snapshot is a point-in-time copy of the cache pushed to the database.
type Snapshot struct {
	Contacts []Contact `json:"contacts"`
	Messages []Message `json:"messages"`
	TakenAt  time.Time `json:"takenAt"`
}
