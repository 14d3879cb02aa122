package store

import (
	"strings"
	"time"

	"github.com/matheus3301/waconsole/internal/domain"
)

// Contact is a conversation partner as reported by the network. Timestamps
// are unix milliseconds; zero means unknown.
type Contact struct {
	ID            string
	Name          string
	PushName      string
	PhoneNumber   string
	ProfileImage  string
	UnreadCount   int
	LastMessageAt int64
	LastSeen      int64
	Last          *Message // most recent message, filled by ListContacts
}

// Message is an inbox message. Status is one of the domain statuses;
// inbound messages are "received".
type Message struct {
	RowID       int64
	ContactID   string
	MsgID       string
	Body        string
	MessageType string
	FromMe      bool
	Status      string
	Timestamp   int64
	Attachments []Attachment
}

// Attachment is media metadata carried by a message.
type Attachment struct {
	ID   string
	Type string
	URL  string
	Name string
	Size int64
}

// DisplayName resolves the contact's name: name, push name, phone, id.
func (c Contact) DisplayName() string {
	for _, s := range []string{c.Name, c.PushName, c.PhoneNumber} {
		if s != "" {
			return s
		}
	}
	return c.ID
}

// ToDomain converts c, including its last message when known.
func (c Contact) ToDomain() domain.Contact {
	out := domain.Contact{
		ID:           c.ID,
		Name:         c.DisplayName(),
		PhoneNumber:  c.PhoneNumber,
		ProfileImage: c.ProfileImage,
		UnreadCount:  c.UnreadCount,
	}
	if out.PhoneNumber == "" {
		out.PhoneNumber = PhoneFromID(c.ID)
	}
	if c.Last != nil {
		last := c.Last.ToDomain()
		out.LastMessage = &last
	}
	if c.LastSeen > 0 {
		seen := time.UnixMilli(c.LastSeen)
		out.LastSeen = &seen
	}
	return out
}

// ToDomain converts m.
func (m Message) ToDomain() domain.Message {
	out := domain.Message{
		ID:        m.MsgID,
		ContactID: m.ContactID,
		Content:   m.Body,
		Timestamp: time.UnixMilli(m.Timestamp),
		Status:    domain.MessageStatus(m.Status),
	}
	if !out.Status.Valid() {
		out.Status = defaultStatus(m.FromMe)
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, domain.Attachment{
			ID:   a.ID,
			Type: domain.AttachmentType(a.Type),
			URL:  a.URL,
			Name: a.Name,
			Size: a.Size,
		})
	}
	return out
}

// FromDomain converts an outgoing or inbound domain message.
func FromDomain(m domain.Message, fromMe bool) *Message {
	out := &Message{
		ContactID:   m.ContactID,
		MsgID:       m.ID,
		Body:        m.Content,
		MessageType: "text",
		FromMe:      fromMe,
		Status:      string(m.Status),
		Timestamp:   m.Timestamp.UnixMilli(),
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, Attachment{ID: a.ID, Type: string(a.Type), URL: a.URL, Name: a.Name, Size: a.Size})
	}
	if len(out.Attachments) > 0 && out.Body == "" {
		out.MessageType = out.Attachments[0].Type
	}
	return out
}

// PhoneFromID derives an E.164-like number from a user id such as
// "5511987654321@s.whatsapp.net" or "5511987654321". Other ids yield "".
func PhoneFromID(id string) string {
	user, server, hasServer := strings.Cut(id, "@")
	if hasServer && server != "s.whatsapp.net" {
		return ""
	}
	if user == "" {
		return ""
	}
	for _, r := range user {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return "+" + user
}

func defaultStatus(fromMe bool) domain.MessageStatus {
	if fromMe {
		return domain.StatusSent
	}
	return domain.StatusReceived
}
