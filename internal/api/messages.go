package api

import (
	"encoding/json"

	"github.com/matheus3301/waconsole/internal/domain"
	"github.com/matheus3301/waconsole/internal/scheduler"
)

// Empty is the request or response of calls without fields.
type Empty struct{}

// StatusResponse summarizes the daemon.
type StatusResponse struct {
	Session             string                `json:"session"`
	Transport           string                `json:"transport"`
	Link                string                `json:"link,omitempty"`
	PhoneNumber         string                `json:"phoneNumber,omitempty"`
	UptimeMs            int64                 `json:"uptimeMs"`
	CachedContacts      int                   `json:"cachedContacts"`
	CachedMessages      int                   `json:"cachedMessages"`
	InboxContacts       int64                 `json:"inboxContacts"`
	InboxMessages       int64                 `json:"inboxMessages"`
	MessagingConfigured bool                  `json:"messagingConfigured"`
	Database            domain.DatabaseStatus `json:"database"`
	Syncing             bool                  `json:"syncing"`
	Schedule            *scheduler.Status     `json:"schedule,omitempty"`
}

// ConfigResponse carries both config records with secrets masked.
type ConfigResponse struct {
	Messaging domain.MessagingConfig `json:"messaging"`
	Database  domain.DatabaseConfig  `json:"database"`
}

// SetMessagingConfigRequest replaces the messaging API config.
type SetMessagingConfigRequest struct {
	Config domain.MessagingConfig `json:"config"`
}

// SetDatabaseConfigRequest replaces the database config.
type SetDatabaseConfigRequest struct {
	Config domain.DatabaseConfig `json:"config"`
}

// ListContactsRequest filters the cached contact list by name or phone.
type ListContactsRequest struct {
	Search string `json:"search,omitempty"`
}

// ContactView is a contact with its list timestamp rendered.
type ContactView struct {
	domain.Contact
	LastActivity string `json:"lastActivity,omitempty"`
}

// ContactsResponse lists contacts by most recent activity.
type ContactsResponse struct {
	Contacts []ContactView `json:"contacts"`
}

// OpenConversationRequest loads a contact's conversation.
type OpenConversationRequest struct {
	ContactID string `json:"contactId"`
}

// MessageView is a message with its clock time rendered.
type MessageView struct {
	domain.Message
	Time string `json:"time"`
}

// DateGroupView is a run of messages under one date header.
type DateGroupView struct {
	Header   string        `json:"header"`
	Messages []MessageView `json:"messages"`
}

// ConversationResponse is an opened conversation grouped by date.
type ConversationResponse struct {
	ContactID string          `json:"contactId"`
	State     string          `json:"state"`
	Groups    []DateGroupView `json:"groups"`
}

// SendMessageRequest sends text to a contact.
type SendMessageRequest struct {
	ContactID string `json:"contactId"`
	Content   string `json:"content"`
}

// SendMessageResponse is the acknowledged message.
type SendMessageResponse struct {
	Message domain.Message `json:"message"`
}

// DatabaseStatusResponse reports the database sync state.
type DatabaseStatusResponse struct {
	Status  domain.DatabaseStatus `json:"status"`
	Syncing bool                  `json:"syncing"`
}

// WatchEventsRequest selects events by kind prefix; empty means all.
type WatchEventsRequest struct {
	Namespace string `json:"namespace,omitempty"`
}

// EventEnvelope is one bus event on the watch stream.
type EventEnvelope struct {
	ID               string          `json:"id"`
	Session          string          `json:"session"`
	Kind             string          `json:"kind"`
	OccurredAtUnixMs int64           `json:"occurredAtUnixMs"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

// LogoutResponse reports the logout outcome.
type LogoutResponse struct {
	Message string `json:"message"`
}
