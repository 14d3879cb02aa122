// Package sync coordinates conversation loading, sending, and database
// snapshots between the remote messaging side, the local cache, and the
// durable archive.
package sync

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/waconsole/internal/bus"
	"github.com/matheus3301/waconsole/internal/cache"
	"github.com/matheus3301/waconsole/internal/domain"
	"github.com/matheus3301/waconsole/internal/metrics"
	"github.com/matheus3301/waconsole/internal/status"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Remote is the messaging side.
type Remote interface {
	ListContacts(ctx context.Context) ([]domain.Contact, error)
	ListMessages(ctx context.Context, contactID string) ([]domain.Message, error)
	SendMessage(ctx context.Context, contactID, content string) (domain.Message, error)
	MarkRead(ctx context.Context, contactID string) error
}

// DatabaseConfigSource provides the durable database settings.
type DatabaseConfigSource interface {
	Database() domain.DatabaseConfig
}

// Archive receives snapshot pushes.
type Archive interface {
	Push(ctx context.Context, snap domain.Snapshot) error
	Close() error
}

// Opener connects to the archive described by cfg.
type Opener func(ctx context.Context, cfg domain.DatabaseConfig) (Archive, error)

// Coordinator owns the per-contact conversation machines and the
// process-wide database sync guard.
type Coordinator struct {
	remote  Remote
	cache   *cache.Cache
	config  DatabaseConfigSource
	open    Opener
	bus     *bus.Bus
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu    sync.Mutex
	convs map[string]*status.Machine
	locks map[string]*sync.Mutex

	db        *status.Machine
	dbMu      sync.RWMutex
	lastSync  *time.Time
	lastErr   string
	connected bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMetrics records sync and conversation metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock replaces time.Now for sync bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates a coordinator.
func New(remote Remote, c *cache.Cache, config DatabaseConfigSource, open Opener, b *bus.Bus, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	co := &Coordinator{
		remote: remote,
		cache:  c,
		config: config,
		open:   open,
		bus:    b,
		logger: logger,
		now:    time.Now,
		convs:  make(map[string]*status.Machine),
		locks:  make(map[string]*sync.Mutex),
		db:     status.NewMachine("database", status.DatabaseTable, status.Idle),
	}
	for _, opt := range opts {
		opt(co)
	}
	return co
}

func (c *Coordinator) conversation(contactID string) *status.Machine {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.convs[contactID]
	if !ok {
		m = status.NewMachine("conversation:"+contactID, status.ConversationTable, status.Idle,
			status.WithEvents(c.bus, bus.KindConversationState))
		c.convs[contactID] = m
	}
	return m
}

func (c *Coordinator) lockFor(contactID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[contactID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[contactID] = l
	}
	return l
}

// ConversationState reports where the contact's conversation load is.
func (c *Coordinator) ConversationState(contactID string) status.State {
	c.mu.Lock()
	m, ok := c.convs[contactID]
	c.mu.Unlock()
	if !ok {
		return status.Idle
	}
	return m.Current()
}

// LoadContacts fetches the contact list and merges it into the cache.
func (c *Coordinator) LoadContacts(ctx context.Context) ([]domain.Contact, error) {
	contacts, err := c.remote.ListContacts(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.UpsertContacts(contacts)
	c.logger.Debug("contacts loaded", zap.Int("count", len(contacts)))
	return c.cache.Contacts(), nil
}

// OpenConversation loads the contact's messages on first open and marks
// the conversation read. Later calls, including those made while a load
// is in flight, return the cached view without a remote call.
func (c *Coordinator) OpenConversation(ctx context.Context, contactID string) ([]domain.Message, error) {
	if strings.TrimSpace(contactID) == "" {
		return nil, &domain.ValidationError{Fields: []string{"contactId"}}
	}
	m := c.conversation(contactID)
	if err := m.Transition(status.Loading); err != nil {
		return c.cache.MessagesFor(contactID), nil
	}

	l := c.lockFor(contactID)
	l.Lock()
	defer l.Unlock()

	msgs, err := c.remote.ListMessages(ctx, contactID)
	if err != nil {
		_ = m.Transition(status.Idle)
		c.logger.Warn("conversation load failed", zap.String("contact_id", contactID), zap.Error(err))
		return nil, err
	}
	for _, msg := range msgs {
		c.cache.AppendMessage(msg)
	}
	c.cache.EnsureContact(domain.Contact{ID: contactID, Name: contactID})
	c.cache.MarkRead(contactID)
	if err := c.remote.MarkRead(ctx, contactID); err != nil {
		c.logger.Warn("remote mark read failed", zap.String("contact_id", contactID), zap.Error(err))
	}

	_ = m.Transition(status.Ready)
	c.metrics.ConversationReady()
	return c.cache.MessagesFor(contactID), nil
}

// OpenAll opens every cached conversation with at most limit loads in
// flight. It returns the first error.
func (c *Coordinator) OpenAll(ctx context.Context, limit int) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, ct := range c.cache.Contacts() {
		id := ct.ID
		g.Go(func() error {
			_, err := c.OpenConversation(gctx, id)
			return err
		})
	}
	return g.Wait()
}

// Send delivers content to the contact and appends the acknowledged
// message to the cache. Nothing is written when the remote call fails.
func (c *Coordinator) Send(ctx context.Context, contactID, content string) (domain.Message, error) {
	content = strings.TrimSpace(content)
	var missing []string
	if strings.TrimSpace(contactID) == "" {
		missing = append(missing, "contactId")
	}
	if content == "" {
		missing = append(missing, "content")
	}
	if len(missing) > 0 {
		return domain.Message{}, &domain.ValidationError{Fields: missing}
	}

	l := c.lockFor(contactID)
	l.Lock()
	defer l.Unlock()

	msg, err := c.remote.SendMessage(ctx, contactID, content)
	if err != nil {
		c.logger.Warn("send failed", zap.String("contact_id", contactID), zap.Error(err))
		return domain.Message{}, err
	}
	c.cache.AppendMessage(msg)
	return msg, nil
}

// ApplyReceipt upgrades a cached outgoing message's status. Unknown
// messages and non-forward transitions are ignored.
func (c *Coordinator) ApplyReceipt(r domain.Receipt) bool {
	l := c.lockFor(r.ContactID)
	l.Lock()
	defer l.Unlock()

	msg, ok := c.cache.Message(r.ContactID, r.MessageID)
	if !ok || !msg.Status.Advances(r.Status) {
		return false
	}
	msg.Status = r.Status
	c.cache.AppendMessage(msg)
	return true
}

// SyncWithDatabase pushes a cache snapshot to the archive. Only one run
// may be in flight; a concurrent request fails with
// domain.ErrSyncInProgress and is not queued. ctx is checked before the
// run starts; once started the push is not interrupted.
func (c *Coordinator) SyncWithDatabase(ctx context.Context) (domain.DatabaseStatus, error) {
	cfg := c.config.Database()
	if !cfg.IsConfigured {
		return c.DatabaseStatus(), &domain.NotConfiguredError{Kind: domain.KindDatabase}
	}
	if err := c.db.Transition(status.Syncing); err != nil {
		c.metrics.SyncRejected()
		return c.DatabaseStatus(), domain.ErrSyncInProgress
	}
	defer func() { _ = c.db.Transition(status.Idle) }()

	if err := ctx.Err(); err != nil {
		return c.DatabaseStatus(), err
	}

	started := c.now()
	c.bus.Emit(bus.KindSyncStarted, nil)
	snap := c.cache.Snapshot()
	err := c.push(context.WithoutCancel(ctx), cfg, snap)
	c.metrics.ObserveSync(started, err)

	c.dbMu.Lock()
	if err != nil {
		c.lastErr = err.Error()
		c.connected = false
	} else {
		done := c.now()
		c.lastSync = &done
		c.lastErr = ""
		c.connected = true
	}
	c.dbMu.Unlock()

	st := c.DatabaseStatus()
	if err != nil {
		c.logger.Error("database sync failed", zap.Error(err))
		c.bus.Emit(bus.KindSyncFailed, st)
		return st, domain.Remote("database sync", err)
	}
	c.logger.Info("database sync completed",
		zap.Int("contacts", len(snap.Contacts)),
		zap.Int("messages", len(snap.Messages)),
		zap.Duration("took", c.now().Sub(started)),
	)
	c.bus.Emit(bus.KindSyncCompleted, st)
	return st, nil
}

func (c *Coordinator) push(ctx context.Context, cfg domain.DatabaseConfig, snap domain.Snapshot) error {
	a, err := c.open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return a.Push(ctx, snap)
}

// Syncing reports whether a database sync is in flight.
func (c *Coordinator) Syncing() bool {
	return c.db.Current() == status.Syncing
}

// DatabaseStatus derives the database status from the current config and
// the outcome of the last run.
func (c *Coordinator) DatabaseStatus() domain.DatabaseStatus {
	configured := c.config.Database().IsConfigured
	c.dbMu.RLock()
	defer c.dbMu.RUnlock()
	st := domain.DatabaseStatus{
		IsConnected: configured && c.connected,
		Error:       c.lastErr,
	}
	if c.lastSync != nil {
		ls := *c.lastSync
		st.LastSync = &ls
	}
	return st
}

// Start applies inbox events to the cache until Stop is called.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	ch, unsub := c.bus.Subscribe("inbox.", 1024)

	go func() {
		defer close(c.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				c.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the event loop and waits for it to exit.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
}

func (c *Coordinator) handleEvent(evt bus.Event) {
	switch p := evt.Payload.(type) {
	case domain.Message:
		l := c.lockFor(p.ContactID)
		l.Lock()
		c.cache.AppendMessage(p)
		l.Unlock()
	case domain.Contact:
		c.cache.MergeContact(p)
	case domain.Receipt:
		c.ApplyReceipt(p)
	default:
		c.logger.Debug("ignoring inbox event", zap.String("kind", evt.Kind))
	}
}
