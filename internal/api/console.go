// Package api implements the daemon's gRPC control service. Messages are
// plain Go structs carried with a JSON codec.
package api

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/matheus3301/waconsole/internal/bus"
	"github.com/matheus3301/waconsole/internal/cache"
	"github.com/matheus3301/waconsole/internal/configstore"
	"github.com/matheus3301/waconsole/internal/domain"
	"github.com/matheus3301/waconsole/internal/present"
	"github.com/matheus3301/waconsole/internal/scheduler"
	"github.com/matheus3301/waconsole/internal/status"
	intsync "github.com/matheus3301/waconsole/internal/sync"
	"github.com/matheus3301/waconsole/internal/wa"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Linker is the linked-device transport's session control.
type Linker interface {
	Link() *status.Machine
	PhoneNumber() string
	StartQRAuth(ctx context.Context) (<-chan wa.AuthEvent, error)
	Logout(ctx context.Context) error
}

// Counter reports inbox row counts.
type Counter interface {
	ContactCount() (int64, error)
	MessageCount() (int64, error)
}

// Deps are the Console's collaborators. Linker, Inbox, and Scheduler
// may be nil.
type Deps struct {
	Session     string
	Transport   string
	Config      *configstore.Store
	Coordinator *intsync.Coordinator
	Cache       *cache.Cache
	Formatter   *present.Formatter
	Bus         *bus.Bus
	Linker      Linker
	Inbox       Counter
	Scheduler   *scheduler.Scheduler
	Logger      *zap.Logger
}

// Console implements ConsoleServer.
type Console struct {
	Deps
	startedAt time.Time
}

// NewConsole creates the service.
func NewConsole(d Deps) *Console {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Console{Deps: d, startedAt: time.Now()}
}

func (s *Console) GetStatus(_ context.Context, _ *Empty) (*StatusResponse, error) {
	contacts, messages := s.Cache.Len()
	resp := &StatusResponse{
		Session:             s.Session,
		Transport:           s.Transport,
		UptimeMs:            time.Since(s.startedAt).Milliseconds(),
		CachedContacts:      contacts,
		CachedMessages:      messages,
		MessagingConfigured: s.Config.Messaging().IsConfigured,
		Database:            s.Coordinator.DatabaseStatus(),
		Syncing:             s.Coordinator.Syncing(),
	}
	if s.Linker != nil {
		resp.Link = string(s.Linker.Link().Current())
		resp.PhoneNumber = s.Linker.PhoneNumber()
	}
	if s.Inbox != nil {
		if n, err := s.Inbox.ContactCount(); err == nil {
			resp.InboxContacts = n
		}
		if n, err := s.Inbox.MessageCount(); err == nil {
			resp.InboxMessages = n
		}
	}
	if s.Scheduler != nil {
		st := s.Scheduler.Status()
		resp.Schedule = &st
	}
	return resp, nil
}

func (s *Console) config() *ConfigResponse {
	return &ConfigResponse{
		Messaging: MaskMessaging(s.Config.Messaging()),
		Database:  MaskDatabase(s.Config.Database()),
	}
}

func (s *Console) GetConfig(_ context.Context, _ *Empty) (*ConfigResponse, error) {
	return s.config(), nil
}

func (s *Console) SetMessagingConfig(_ context.Context, req *SetMessagingConfigRequest) (*ConfigResponse, error) {
	if err := s.Config.SetMessaging(req.Config); err != nil {
		return nil, toStatus(err)
	}
	return s.config(), nil
}

func (s *Console) SetDatabaseConfig(_ context.Context, req *SetDatabaseConfigRequest) (*ConfigResponse, error) {
	if err := s.Config.SetDatabase(req.Config); err != nil {
		return nil, toStatus(err)
	}
	return s.config(), nil
}

func (s *Console) contactViews(contacts []domain.Contact) *ContactsResponse {
	views := make([]ContactView, 0, len(contacts))
	for _, c := range contacts {
		v := ContactView{Contact: c}
		if at := c.LastActivity(); !at.IsZero() {
			v.LastActivity = s.Formatter.FormatRelativeTimestamp(at)
		}
		views = append(views, v)
	}
	return &ContactsResponse{Contacts: views}
}

func (s *Console) LoadContacts(ctx context.Context, _ *Empty) (*ContactsResponse, error) {
	contacts, err := s.Coordinator.LoadContacts(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.contactViews(contacts), nil
}

func (s *Console) ListContacts(_ context.Context, req *ListContactsRequest) (*ContactsResponse, error) {
	if q := strings.TrimSpace(req.Search); q != "" {
		return s.contactViews(s.Cache.SearchContacts(q)), nil
	}
	return s.contactViews(s.Cache.Contacts()), nil
}

func (s *Console) OpenConversation(ctx context.Context, req *OpenConversationRequest) (*ConversationResponse, error) {
	msgs, err := s.Coordinator.OpenConversation(ctx, req.ContactID)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &ConversationResponse{
		ContactID: req.ContactID,
		State:     string(s.Coordinator.ConversationState(req.ContactID)),
		Groups:    []DateGroupView{},
	}
	loc := s.Formatter.Location()
	for _, g := range cache.GroupByDate(msgs, loc) {
		view := DateGroupView{Header: s.Formatter.FormatDateHeader(g.Date)}
		for _, m := range g.Messages {
			view.Messages = append(view.Messages, MessageView{Message: m, Time: m.Timestamp.In(loc).Format("15:04")})
		}
		resp.Groups = append(resp.Groups, view)
	}
	return resp, nil
}

func (s *Console) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	msg, err := s.Coordinator.Send(ctx, req.ContactID, req.Content)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SendMessageResponse{Message: msg}, nil
}

func (s *Console) SyncDatabase(ctx context.Context, _ *Empty) (*DatabaseStatusResponse, error) {
	st, err := s.Coordinator.SyncWithDatabase(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &DatabaseStatusResponse{Status: st, Syncing: s.Coordinator.Syncing()}, nil
}

func (s *Console) GetDatabaseStatus(_ context.Context, _ *Empty) (*DatabaseStatusResponse, error) {
	return &DatabaseStatusResponse{
		Status:  s.Coordinator.DatabaseStatus(),
		Syncing: s.Coordinator.Syncing(),
	}, nil
}

// watchable excludes raw transport events from the watch stream.
func watchable(kind string) bool {
	return !strings.HasPrefix(kind, "wa.")
}

func (s *Console) WatchEvents(req *WatchEventsRequest, stream grpc.ServerStreamingServer[EventEnvelope]) error {
	ch, unsub := s.Bus.Subscribe(req.Namespace, 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			if !watchable(evt.Kind) {
				continue
			}
			payload, err := json.Marshal(evt.Payload)
			if err != nil {
				s.Logger.Warn("event payload not encodable", zap.String("kind", evt.Kind), zap.Error(err))
				payload = nil
			}
			if err := stream.Send(&EventEnvelope{
				ID:               evt.ID,
				Session:          s.Session,
				Kind:             evt.Kind,
				OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
				Payload:          payload,
			}); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func (s *Console) StartAuth(_ *Empty, stream grpc.ServerStreamingServer[wa.AuthEvent]) error {
	if s.Linker == nil {
		return grpcstatus.Errorf(codes.FailedPrecondition, "transport %q does not use QR pairing", s.Transport)
	}
	authCh, err := s.Linker.StartQRAuth(stream.Context())
	if err != nil {
		return toStatus(err)
	}
	for evt := range authCh {
		if err := stream.Send(&evt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Console) Logout(ctx context.Context, _ *Empty) (*LogoutResponse, error) {
	if s.Linker == nil {
		return nil, grpcstatus.Errorf(codes.FailedPrecondition, "transport %q has no linked device", s.Transport)
	}
	if err := s.Linker.Logout(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &LogoutResponse{Message: "logged out"}, nil
}

// MaskMessaging hides the access token.
func MaskMessaging(cfg domain.MessagingConfig) domain.MessagingConfig {
	cfg.Token = mask(cfg.Token)
	return cfg
}

// MaskDatabase hides the password.
func MaskDatabase(cfg domain.DatabaseConfig) domain.DatabaseConfig {
	cfg.Password = mask(cfg.Password)
	return cfg
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****"
}
