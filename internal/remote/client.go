// Package remote is the console's view of the messaging network. Listings
// come from the inbox store, fed by transport events; sends go through a
// Transport.
package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/waconsole/internal/domain"
	"github.com/matheus3301/waconsole/internal/metrics"
	"github.com/matheus3301/waconsole/internal/store"
	"go.uber.org/zap"
)

// Transport delivers a text message and returns the network's message id,
// which may be empty.
type Transport interface {
	SendText(ctx context.Context, to, text string) (string, error)
}

// ConfigSource provides the current messaging credentials.
type ConfigSource interface {
	Messaging() domain.MessagingConfig
}

// Inbox is the subset of the inbox store used by the client.
type Inbox interface {
	ListContacts() ([]store.Contact, error)
	ListMessages(contactID string) ([]store.Message, error)
	UpsertMessage(m *store.Message) (bool, error)
	MarkRead(contactID string) error
}

// Client implements the remote messaging operations.
type Client struct {
	config    ConfigSource
	inbox     Inbox
	transport Transport
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics records call counts and latencies.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithClock replaces time.Now for sent message timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a client.
func NewClient(config ConfigSource, inbox Inbox, transport Transport, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		config:    config,
		inbox:     inbox,
		transport: transport,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) requireConfig() error {
	if !c.config.Messaging().IsConfigured {
		return &domain.NotConfiguredError{Kind: domain.KindMessaging}
	}
	return nil
}

func (c *Client) observe(op string, started time.Time, err *error) {
	c.metrics.ObserveRemote(op, started, *err)
}

// ListContacts returns every known contact, most recent activity first.
func (c *Client) ListContacts(ctx context.Context) (contacts []domain.Contact, err error) {
	if err := c.requireConfig(); err != nil {
		return nil, err
	}
	defer c.observe("list_contacts", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return nil, domain.Remote("list contacts", err)
	}

	rows, err := c.inbox.ListContacts()
	if err != nil {
		return nil, domain.Remote("list contacts", err)
	}
	contacts = make([]domain.Contact, 0, len(rows))
	for _, r := range rows {
		contacts = append(contacts, r.ToDomain())
	}
	return contacts, nil
}

// ListMessages returns a contact's messages in ascending timestamp order.
// An unknown contact yields an empty slice.
func (c *Client) ListMessages(ctx context.Context, contactID string) (msgs []domain.Message, err error) {
	if err := c.requireConfig(); err != nil {
		return nil, err
	}
	defer c.observe("list_messages", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return nil, domain.Remote("list messages", err)
	}

	rows, err := c.inbox.ListMessages(contactID)
	if err != nil {
		return nil, domain.Remote("list messages", err)
	}
	msgs = make([]domain.Message, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, r.ToDomain())
	}
	return msgs, nil
}

// SendMessage delivers content to the contact. On success the returned
// message carries the network id (or a generated "msg-<ms>-<suffix>" id
// when the network returns none), the current time and status "sent", and it is recorded
// in the inbox. On failure nothing is recorded.
func (c *Client) SendMessage(ctx context.Context, contactID, content string) (msg domain.Message, err error) {
	if err := c.requireConfig(); err != nil {
		return domain.Message{}, err
	}
	defer c.observe("send", time.Now(), &err)

	serverID, err := c.transport.SendText(ctx, contactID, content)
	if err != nil {
		return domain.Message{}, domain.Remote("send message", err)
	}

	now := c.now()
	if serverID == "" {
		serverID = fmt.Sprintf("msg-%d-%s", now.UnixMilli(), uuid.NewString()[:8])
	}
	msg = domain.Message{
		ID:        serverID,
		ContactID: contactID,
		Content:   content,
		Timestamp: now,
		Status:    domain.StatusSent,
	}
	if _, err := c.inbox.UpsertMessage(store.FromDomain(msg, true)); err != nil {
		c.logger.Warn("failed to record sent message", zap.Error(err), zap.String("msg_id", serverID))
	}
	return msg, nil
}

// MarkRead clears the contact's unread counter.
func (c *Client) MarkRead(ctx context.Context, contactID string) error {
	if err := c.requireConfig(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return domain.Remote("mark read", err)
	}
	if err := c.inbox.MarkRead(contactID); err != nil {
		return domain.Remote("mark read", err)
	}
	return nil
}
