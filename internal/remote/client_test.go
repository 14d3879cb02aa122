package remote

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/waconsole/internal/domain"
	"github.com/matheus3301/waconsole/internal/metrics"
	"github.com/matheus3301/waconsole/internal/store"
)

type staticConfig domain.MessagingConfig

func (s staticConfig) Messaging() domain.MessagingConfig { return domain.MessagingConfig(s) }

var configured = staticConfig{Token: "t", PhoneNumberID: "p", BusinessAccountID: "b", IsConfigured: true}

type fakeTransport struct {
	id    string
	err   error
	calls []string
}

func (f *fakeTransport) SendText(_ context.Context, to, text string) (string, error) {
	f.calls = append(f.calls, to+":"+text)
	return f.id, f.err
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "inbox.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var clock = time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)

func newClient(t *testing.T, cfg ConfigSource, tr Transport) (*Client, *store.DB) {
	t.Helper()
	db := testDB(t)
	return NewClient(cfg, db, tr, nil, WithClock(func() time.Time { return clock }), WithMetrics(metrics.New())), db
}

func TestNotConfigured(t *testing.T) {
	tr := &fakeTransport{id: "x"}
	c, _ := newClient(t, staticConfig{}, tr)
	ctx := context.Background()

	checks := map[string]error{}
	_, checks["ListContacts"] = c.ListContacts(ctx)
	_, checks["ListMessages"] = c.ListMessages(ctx, "1")
	_, checks["SendMessage"] = c.SendMessage(ctx, "1", "hi")
	checks["MarkRead"] = c.MarkRead(ctx, "1")

	for op, err := range checks {
		var nc *domain.NotConfiguredError
		if !errors.As(err, &nc) || nc.Kind != domain.KindMessaging {
			t.Errorf("%s error = %v, want NotConfiguredError(messaging)", op, err)
		}
	}
	if len(tr.calls) != 0 {
		t.Errorf("transport called %d times while unconfigured", len(tr.calls))
	}
}

func TestSendMessageUsesServerID(t *testing.T) {
	tr := &fakeTransport{id: "wamid.ABC"}
	c, db := newClient(t, configured, tr)

	msg, err := c.SendMessage(context.Background(), "5511", "olá")
	if err != nil {
		t.Fatal(err)
	}
	want := domain.Message{ID: "wamid.ABC", ContactID: "5511", Content: "olá", Timestamp: clock, Status: domain.StatusSent}
	if msg.ID != want.ID || msg.ContactID != want.ContactID || msg.Content != want.Content ||
		!msg.Timestamp.Equal(want.Timestamp) || msg.Status != want.Status {
		t.Errorf("SendMessage = %+v, want %+v", msg, want)
	}

	stored, err := db.ListMessages("5511")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || stored[0].MsgID != "wamid.ABC" || !stored[0].FromMe {
		t.Errorf("inbox = %+v, want recorded outgoing message", stored)
	}
	ct, _ := db.GetContact("5511")
	if ct.UnreadCount != 0 {
		t.Errorf("outgoing message counted as unread")
	}
}

func TestSendMessageFallbackID(t *testing.T) {
	c, _ := newClient(t, configured, &fakeTransport{})
	msg, err := c.SendMessage(context.Background(), "5511", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if prefix := "msg-1709649000000-"; !strings.HasPrefix(msg.ID, prefix) {
		t.Errorf("ID = %q, want prefix %q", msg.ID, prefix)
	}
}

func TestSendMessageFallbackIDsAreDistinct(t *testing.T) {
	c, db := newClient(t, configured, &fakeTransport{})
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		msg, err := c.SendMessage(context.Background(), "5511", "hi")
		if err != nil {
			t.Fatal(err)
		}
		if seen[msg.ID] {
			t.Fatalf("duplicate id %q", msg.ID)
		}
		seen[msg.ID] = true
	}
	if n, _ := db.MessageCount(); n != 5 {
		t.Errorf("inbox has %d messages, want 5", n)
	}
}

func TestSendMessageFailureRecordsNothing(t *testing.T) {
	tr := &fakeTransport{err: errors.New("503 service unavailable")}
	c, db := newClient(t, configured, tr)

	_, err := c.SendMessage(context.Background(), "5511", "hi")
	var re *domain.RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want RemoteError", err)
	}
	if !errors.Is(err, tr.err) {
		t.Error("RemoteError does not unwrap to the transport error")
	}
	if n, _ := db.MessageCount(); n != 0 {
		t.Errorf("inbox has %d messages after failed send", n)
	}
}

func TestListContactsAndMessages(t *testing.T) {
	c, db := newClient(t, configured, &fakeTransport{})
	for _, m := range []*store.Message{
		{ContactID: "a", MsgID: "a1", Body: "old", Timestamp: 1000},
		{ContactID: "b", MsgID: "b2", Body: "newer", Timestamp: 3000},
		{ContactID: "b", MsgID: "b1", Body: "first", Timestamp: 2000},
	} {
		if _, err := db.UpsertMessage(m); err != nil {
			t.Fatal(err)
		}
	}
	ctx := context.Background()

	contacts, err := c.ListContacts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(contacts) != 2 || contacts[0].ID != "b" || contacts[1].ID != "a" {
		t.Fatalf("contacts = %+v, want b then a", contacts)
	}
	if contacts[0].LastMessage == nil || contacts[0].LastMessage.ID != "b2" {
		t.Errorf("last message = %+v, want b2", contacts[0].LastMessage)
	}

	msgs, err := c.ListMessages(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].ID != "b1" || msgs[1].ID != "b2" {
		t.Errorf("messages = %+v, want b1, b2", msgs)
	}

	empty, err := c.ListMessages(ctx, "unknown")
	if err != nil {
		t.Fatal(err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("unknown contact = %v, want empty slice", empty)
	}
}

func TestMarkRead(t *testing.T) {
	c, db := newClient(t, configured, &fakeTransport{})
	if _, err := db.UpsertMessage(&store.Message{ContactID: "a", MsgID: "1", Timestamp: 1}); err != nil {
		t.Fatal(err)
	}
	if err := c.MarkRead(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	ct, _ := db.GetContact("a")
	if ct.UnreadCount != 0 {
		t.Errorf("unread = %d after MarkRead", ct.UnreadCount)
	}
}

func TestCancelledContextIsRemoteError(t *testing.T) {
	c, _ := newClient(t, configured, &fakeTransport{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListContacts(ctx)
	if !domain.IsRemote(err) || !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want RemoteError wrapping context.Canceled", err)
	}
}

type brokenInbox struct{ Inbox }

func (brokenInbox) ListContacts() ([]store.Contact, error) { return nil, errors.New("disk I/O error") }

func TestInboxFailureIsRemoteError(t *testing.T) {
	c := NewClient(configured, brokenInbox{}, &fakeTransport{}, nil)
	_, err := c.ListContacts(context.Background())
	if !domain.IsRemote(err) {
		t.Errorf("err = %v, want RemoteError", err)
	}
}
