package api

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/matheus3301/waconsole/internal/bus"
	"github.com/matheus3301/waconsole/internal/cache"
	"github.com/matheus3301/waconsole/internal/configstore"
	"github.com/matheus3301/waconsole/internal/domain"
	"github.com/matheus3301/waconsole/internal/kv"
	"github.com/matheus3301/waconsole/internal/present"
	intsync "github.com/matheus3301/waconsole/internal/sync"
	"github.com/matheus3301/waconsole/internal/wa"
	"golang.org/x/text/language"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

var now = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

type fakeRemote struct {
	history map[string][]domain.Message
	sendErr error
}

func (f *fakeRemote) ListContacts(context.Context) ([]domain.Contact, error) {
	return []domain.Contact{
		{ID: "1", Name: "Ana", PhoneNumber: "+55 11 1111"},
		{ID: "2", Name: "Bruno", PhoneNumber: "+55 11 2222"},
	}, nil
}

func (f *fakeRemote) ListMessages(_ context.Context, id string) ([]domain.Message, error) {
	return f.history[id], nil
}

func (f *fakeRemote) SendMessage(_ context.Context, id, content string) (domain.Message, error) {
	if f.sendErr != nil {
		return domain.Message{}, f.sendErr
	}
	return domain.Message{ID: "wamid.1", ContactID: id, Content: content, Timestamp: now, Status: domain.StatusSent}, nil
}

func (f *fakeRemote) MarkRead(context.Context, string) error { return nil }

type harness struct {
	client *Client
	config *configstore.Store
	bus    *bus.Bus
	remote *fakeRemote
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend, err := kv.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = backend.Close() })

	b := bus.New()
	cfg := configstore.New(backend, b, nil)
	c := cache.New(b)
	r := &fakeRemote{history: map[string][]domain.Message{
		"1": {
			{ID: "a", ContactID: "1", Content: "ontem", Timestamp: now.Add(-24 * time.Hour), Status: domain.StatusReceived},
			{ID: "b", ContactID: "1", Content: "hoje", Timestamp: now.Add(-time.Hour), Status: domain.StatusReceived},
		},
	}}
	coord := intsync.New(r, c, cfg, nil, b, nil)

	svc := NewConsole(Deps{
		Session:     "test",
		Transport:   "cloud",
		Config:      cfg,
		Coordinator: coord,
		Cache:       c,
		Formatter:   present.New(language.English, present.WithLocation(time.UTC), present.WithClock(func() time.Time { return now })),
		Bus:         b,
	})

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterConsoleServer(srv, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{client: NewClient(conn), config: cfg, bus: b, remote: r}
}

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if got := grpcstatus.Code(err); got != code {
		t.Fatalf("code = %v (%v), want %v", got, err, code)
	}
}

func TestGetStatus(t *testing.T) {
	h := newHarness(t)

	resp, err := h.client.GetStatus(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if resp.Session != "test" || resp.Transport != "cloud" {
		t.Errorf("status = %+v", resp)
	}
	if resp.MessagingConfigured || resp.Database.IsConnected || resp.Syncing {
		t.Errorf("fresh daemon reports configured or connected: %+v", resp)
	}
	if resp.Link != "" {
		t.Errorf("Link = %q, want empty without linked transport", resp.Link)
	}
}

func TestSetMessagingConfig(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.client.SetMessagingConfig(ctx, &SetMessagingConfigRequest{Config: domain.MessagingConfig{PhoneNumberID: "p"}})
	wantCode(t, err, codes.InvalidArgument)

	resp, err := h.client.SetMessagingConfig(ctx, &SetMessagingConfigRequest{Config: domain.MessagingConfig{
		Token:             "EAAGsecrettoken",
		PhoneNumberID:     "p",
		BusinessAccountID: "b",
	}})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Messaging.IsConfigured || resp.Messaging.Token != "EAAG****" {
		t.Errorf("messaging = %+v, want configured with masked token", resp.Messaging)
	}
	if got := h.config.Messaging().Token; got != "EAAGsecrettoken" {
		t.Errorf("stored token = %q, want unmasked", got)
	}
}

func TestSyncDatabaseNotConfigured(t *testing.T) {
	h := newHarness(t)
	_, err := h.client.SyncDatabase(context.Background())
	wantCode(t, err, codes.FailedPrecondition)
}

func TestContactsAndConversation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	loaded, err := h.client.LoadContacts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Contacts) != 2 {
		t.Fatalf("loaded %d contacts, want 2", len(loaded.Contacts))
	}

	found, err := h.client.ListContacts(ctx, &ListContactsRequest{Search: "2222"})
	if err != nil {
		t.Fatal(err)
	}
	if len(found.Contacts) != 1 || found.Contacts[0].Name != "Bruno" {
		t.Errorf("search = %+v, want Bruno", found.Contacts)
	}

	conv, err := h.client.OpenConversation(ctx, &OpenConversationRequest{ContactID: "1"})
	if err != nil {
		t.Fatal(err)
	}
	if conv.State != "READY" {
		t.Errorf("state = %q, want READY", conv.State)
	}
	if len(conv.Groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(conv.Groups))
	}
	if conv.Groups[0].Header != "Yesterday" || conv.Groups[1].Header != "Today" {
		t.Errorf("headers = %q, %q; want Yesterday, Today", conv.Groups[0].Header, conv.Groups[1].Header)
	}
	if conv.Groups[1].Messages[0].Time != "11:00" {
		t.Errorf("time = %q, want 11:00", conv.Groups[1].Messages[0].Time)
	}

	list, err := h.client.ListContacts(ctx, &ListContactsRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if list.Contacts[0].ID != "1" || list.Contacts[0].LastActivity != "11:00" {
		t.Errorf("first contact = %+v, want Ana active at 11:00", list.Contacts[0])
	}

	_, err = h.client.OpenConversation(ctx, &OpenConversationRequest{})
	wantCode(t, err, codes.InvalidArgument)
}

func TestSendMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.client.SendMessage(ctx, &SendMessageRequest{ContactID: "1", Content: "   "})
	wantCode(t, err, codes.InvalidArgument)

	resp, err := h.client.SendMessage(ctx, &SendMessageRequest{ContactID: "1", Content: " oi "})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Message.ID != "wamid.1" || resp.Message.Content != "oi" || resp.Message.Status != domain.StatusSent {
		t.Errorf("message = %+v", resp.Message)
	}

	h.remote.sendErr = domain.Remote("send", errors.New("503"))
	_, err = h.client.SendMessage(ctx, &SendMessageRequest{ContactID: "1", Content: "again"})
	wantCode(t, err, codes.Unavailable)
}

func TestWatchEvents(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stream, err := h.client.WatchEvents(ctx, &WatchEventsRequest{Namespace: "config."})
	if err != nil {
		t.Fatal(err)
	}

	// The subscription is registered once the server handler runs.
	deadline := time.Now().Add(time.Second)
	for h.bus.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("watch subscription not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := h.config.SetDatabase(domain.DatabaseConfig{Host: "db", Username: "u", Database: "d"}); err != nil {
		t.Fatal(err)
	}

	evt, err := stream.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if evt.Kind != bus.KindConfigUpdated || evt.Session != "test" || string(evt.Payload) != `"database-config"` {
		t.Errorf("event = %+v payload %s", evt, evt.Payload)
	}
}

func TestLinkedOnlyCalls(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.client.Logout(ctx)
	wantCode(t, err, codes.FailedPrecondition)

	stream, err := h.client.StartAuth(ctx)
	if err != nil {
		t.Fatal(err)
	}
	_, err = stream.Recv()
	wantCode(t, err, codes.FailedPrecondition)
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{&domain.ValidationError{Fields: []string{"content"}}, codes.InvalidArgument},
		{&domain.NotConfiguredError{Kind: domain.KindDatabase}, codes.FailedPrecondition},
		{domain.ErrSyncInProgress, codes.Aborted},
		{wa.ErrAlreadyLoggedIn, codes.AlreadyExists},
		{domain.Remote("list", context.Canceled), codes.Canceled},
		{domain.Remote("send", errors.New("timeout")), codes.Unavailable},
		{errors.New("disk full"), codes.Internal},
	}
	for _, tt := range tests {
		if got := grpcstatus.Code(toStatus(tt.err)); got != tt.want {
			t.Errorf("toStatus(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
	if toStatus(nil) != nil {
		t.Error("toStatus(nil) != nil")
	}
}

func TestMask(t *testing.T) {
	tests := map[string]string{
		"":                "",
		"short":           "****",
		"EAAGsecrettoken": "EAAG****",
	}
	for in, want := range tests {
		if got := mask(in); got != want {
			t.Errorf("mask(%q) = %q, want %q", in, got, want)
		}
	}
}
