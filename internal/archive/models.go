package archive

import (
	"time"

	"github.com/matheus3301/waconsole/internal/domain"
)

// Contact is the archived form of domain.Contact.
type Contact struct {
	ID            string `gorm:"primaryKey;size:255"`
	Name          string `gorm:"size:255;not null"`
	PhoneNumber   string `gorm:"size:32;not null"`
	ProfileImage  string `gorm:"size:1024"`
	LastSeen      *time.Time
	LastMessageID string `gorm:"size:255"`
	UnreadCount   int    `gorm:"not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName implements the GORM tabler interface.
func (Contact) TableName() string { return "contacts" }

// Message is the archived form of domain.Message. Message ids are unique
// per conversation, so the key is (contact_id, id).
type Message struct {
	ContactID   string       `gorm:"primaryKey;size:255;index:idx_messages_contact_ts,priority:1"`
	ID          string       `gorm:"primaryKey;size:255"`
	Contact     Contact      `gorm:"foreignKey:ContactID;references:ID;constraint:OnDelete:CASCADE"`
	Content     string       `gorm:"type:text;not null"`
	Timestamp   time.Time    `gorm:"not null;index:idx_messages_contact_ts,priority:2"`
	Status      string       `gorm:"size:20;not null"`
	Attachments []Attachment `gorm:"foreignKey:ContactID,MessageID;references:ContactID,ID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName implements the GORM tabler interface.
func (Message) TableName() string { return "messages" }

// Attachment is the archived form of domain.Attachment.
type Attachment struct {
	ContactID string `gorm:"primaryKey;size:255"`
	MessageID string `gorm:"primaryKey;size:255"`
	ID        string `gorm:"primaryKey;size:255"`
	Type      string `gorm:"size:20;not null"`
	URL       string `gorm:"size:1024;not null"`
	Name      string `gorm:"size:255"`
	Size      int64
	CreatedAt time.Time
}

// TableName implements the GORM tabler interface.
func (Attachment) TableName() string { return "attachments" }

func contactRow(c domain.Contact) Contact {
	row := Contact{
		ID:           c.ID,
		Name:         c.Name,
		PhoneNumber:  c.PhoneNumber,
		ProfileImage: c.ProfileImage,
		LastSeen:     c.LastSeen,
		UnreadCount:  c.UnreadCount,
	}
	if c.LastMessage != nil {
		row.LastMessageID = c.LastMessage.ID
	}
	return row
}

func messageRow(m domain.Message) Message {
	return Message{
		ID:        m.ID,
		ContactID: m.ContactID,
		Content:   m.Content,
		Timestamp: m.Timestamp.UTC(),
		Status:    string(m.Status),
	}
}

func attachmentRows(m domain.Message) []Attachment {
	rows := make([]Attachment, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		rows = append(rows, Attachment{
			ContactID: m.ContactID,
			MessageID: m.ID,
			ID:        a.ID,
			Type:      string(a.Type),
			URL:       a.URL,
			Name:      a.Name,
			Size:      a.Size,
		})
	}
	return rows
}
