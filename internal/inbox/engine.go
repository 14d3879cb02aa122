// Package inbox persists transport events into the inbox store and
// republishes them as normalized domain events.
package inbox

import (
	"context"
	"fmt"

	"github.com/matheus3301/waconsole/internal/bus"
	"github.com/matheus3301/waconsole/internal/domain"
	"github.com/matheus3301/waconsole/internal/store"
	"go.uber.org/zap"
)

// Engine handles idempotent ingestion into the store. It subscribes to
// "wa." events on the bus and publishes "inbox." events for whatever it
// persisted.
type Engine struct {
	db         *store.DB
	bus        *bus.Bus
	reconciler *Reconciler
	logger     *zap.Logger
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewEngine creates a new ingest engine. reconciler may be nil.
func NewEngine(db *store.DB, b *bus.Bus, reconciler *Reconciler, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:         db,
		bus:        b,
		reconciler: reconciler,
		logger:     logger,
	}
}

// Start subscribes to inbound transport events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	ch, unsub := e.bus.Subscribe("wa.", 256)

	go func() {
		defer close(e.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and waits for the event loop to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func (e *Engine) handleEvent(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case bus.KindWAMessage:
		msg, ok := evt.Payload.(*store.Message)
		if !ok {
			return
		}
		if _, err := e.IngestMessage(msg); err != nil {
			e.logger.Error("failed to ingest message", zap.Error(err), zap.String("msg_id", msg.MsgID))
		}
	case bus.KindWAHistory:
		msgs, ok := evt.Payload.([]*store.Message)
		if !ok {
			return
		}
		n, err := e.IngestHistoryBatch(msgs)
		if err != nil {
			e.logger.Error("failed to ingest history batch", zap.Error(err), zap.Int("count", len(msgs)))
			return
		}
		e.logger.Info("history batch ingested", zap.Int("messages", len(msgs)), zap.Int("new", n))
		e.reconcile(ctx)
	case bus.KindWAContact:
		contacts, ok := evt.Payload.([]store.Contact)
		if !ok {
			return
		}
		if err := e.IngestContacts(contacts); err != nil {
			e.logger.Error("failed to ingest contacts", zap.Error(err), zap.Int("count", len(contacts)))
		}
	case bus.KindWAReceipt:
		r, ok := evt.Payload.(domain.Receipt)
		if !ok {
			return
		}
		if _, err := e.IngestReceipt(r); err != nil {
			e.logger.Error("failed to apply receipt", zap.Error(err), zap.String("msg_id", r.MessageID))
		}
	case bus.KindWAConnected:
		e.reconcile(ctx)
	}
}

func (e *Engine) reconcile(ctx context.Context) {
	if e.reconciler == nil {
		return
	}
	if _, err := e.reconciler.Reconcile(ctx); err != nil {
		e.logger.Warn("LID reconciliation failed", zap.Error(err))
	}
}

// IngestMessage stores one message and publishes it. It reports whether
// the message was new.
func (e *Engine) IngestMessage(msg *store.Message) (bool, error) {
	inserted, err := e.db.UpsertMessage(msg)
	if err != nil {
		return false, fmt.Errorf("upsert message: %w", err)
	}
	e.bus.Emit(bus.KindInboxMessage, msg.ToDomain())
	return inserted, nil
}

// IngestHistoryBatch stores a batch of messages in one transaction and
// publishes each of them.
func (e *Engine) IngestHistoryBatch(msgs []*store.Message) (int, error) {
	n, err := e.db.IngestBatch(msgs)
	if err != nil {
		return 0, err
	}
	for _, m := range msgs {
		e.bus.Emit(bus.KindInboxMessage, m.ToDomain())
	}
	return n, nil
}

// IngestContacts stores contact details and publishes the merged records.
func (e *Engine) IngestContacts(contacts []store.Contact) error {
	if err := e.db.BulkUpsertContacts(contacts); err != nil {
		return err
	}
	for _, c := range contacts {
		merged, err := e.db.GetContact(c.ID)
		if err != nil || merged == nil {
			continue
		}
		e.bus.Emit(bus.KindInboxContact, merged.ToDomain())
	}
	return nil
}

// IngestReceipt applies a delivery receipt and publishes it when the
// stored status moved forward.
func (e *Engine) IngestReceipt(r domain.Receipt) (bool, error) {
	changed, err := e.db.ApplyReceipt(r)
	if err != nil {
		return false, err
	}
	if changed {
		e.bus.Emit(bus.KindInboxReceipt, r)
	}
	return changed, nil
}
