package wa

import (
	"context"

	"github.com/matheus3301/waconsole/internal/bus"
	"github.com/matheus3301/waconsole/internal/domain"
	"github.com/matheus3301/waconsole/internal/status"
	"github.com/matheus3301/waconsole/internal/store"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// Resolver maps LID JIDs to phone number JIDs.
type Resolver interface {
	ResolveLID(ctx context.Context, jid types.JID) types.JID
}

// EventHandler processes whatsmeow events, drives the link state machine,
// and publishes raw transport events on the bus for the inbox to persist.
type EventHandler struct {
	bus      *bus.Bus
	link     *status.Machine
	resolver Resolver
	logger   *zap.Logger
}

// NewEventHandler creates a new event handler. resolver may be nil.
func NewEventHandler(b *bus.Bus, link *status.Machine, resolver Resolver, logger *zap.Logger) *EventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHandler{
		bus:      b,
		link:     link,
		resolver: resolver,
		logger:   logger,
	}
}

// Handle is the whatsmeow event handler function.
func (h *EventHandler) Handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		h.handleMessage(evt)
	case *events.Receipt:
		h.handleReceipt(evt)
	case *events.PushName:
		h.bus.Emit(bus.KindWAContact, []store.Contact{{
			ID:       h.resolveJID(evt.JID.String()),
			PushName: evt.NewPushName,
		}})
	case *events.Connected:
		h.logger.Info("whatsapp connected")
		if h.link.Current() == status.AuthRequired {
			_ = h.link.Transition(status.Connecting)
		}
		_ = h.link.Transition(status.Connected)
		h.bus.Emit(bus.KindWAConnected, nil)
	case *events.Disconnected:
		h.logger.Warn("whatsapp disconnected")
		_ = h.link.Transition(status.Reconnecting)
	case *events.HistorySync:
		h.handleHistorySync(evt)
	case *events.LoggedOut:
		h.logger.Warn("whatsapp logged out", zap.String("reason", evt.Reason.String()))
		_ = h.link.Transition(status.AuthRequired)
		h.bus.Emit(bus.KindWALoggedOut, evt.Reason.String())
	}
}

// resolveJID normalizes s and maps LIDs to phone numbers when possible.
func (h *EventHandler) resolveJID(s string) string {
	jid, err := types.ParseJID(s)
	if err != nil || jid.User == "" {
		return s
	}
	jid = jid.ToNonAD()
	if h.resolver != nil && jid.Server == types.HiddenUserServer {
		jid = h.resolver.ResolveLID(context.Background(), jid)
	}
	return jid.String()
}

func (h *EventHandler) handleMessage(evt *events.Message) {
	if !direct(evt.Info.Chat) {
		h.logger.Debug("skipping non-direct message", zap.String("chat", evt.Info.Chat.String()))
		return
	}
	parsed := ParseLiveMessage(evt)
	parsed.ContactID = h.resolveJID(evt.Info.Chat.String())

	if !parsed.FromMe && parsed.PushName != "" {
		h.bus.Emit(bus.KindWAContact, []store.Contact{{ID: parsed.ContactID, PushName: parsed.PushName}})
	}
	h.bus.Emit(bus.KindWAMessage, parsed.ToStoreMessage())
}

func receiptStatus(t types.ReceiptType) (domain.MessageStatus, bool) {
	switch t {
	case types.ReceiptTypeDelivered:
		return domain.StatusDelivered, true
	case types.ReceiptTypeRead, types.ReceiptTypePlayed:
		return domain.StatusRead, true
	}
	return "", false
}

func (h *EventHandler) handleReceipt(evt *events.Receipt) {
	if evt.IsFromMe || !direct(evt.Chat) {
		return
	}
	st, ok := receiptStatus(evt.Type)
	if !ok {
		return
	}
	contactID := h.resolveJID(evt.Chat.String())
	for _, id := range evt.MessageIDs {
		h.bus.Emit(bus.KindWAReceipt, domain.Receipt{
			ContactID: contactID,
			MessageID: id,
			Status:    st,
			Timestamp: evt.Timestamp,
		})
	}
}

func historyStatus(fromMe bool, st waWeb.WebMessageInfo_Status) domain.MessageStatus {
	if !fromMe {
		return domain.StatusReceived
	}
	switch st {
	case waWeb.WebMessageInfo_DELIVERY_ACK:
		return domain.StatusDelivered
	case waWeb.WebMessageInfo_READ, waWeb.WebMessageInfo_PLAYED:
		return domain.StatusRead
	}
	return domain.StatusSent
}

func (h *EventHandler) handleHistorySync(evt *events.HistorySync) {
	data := evt.Data
	if data == nil {
		return
	}

	var (
		msgs     []*store.Message
		contacts []store.Contact
	)
	for _, conv := range data.GetConversations() {
		chat, err := types.ParseJID(conv.GetID())
		if err != nil || !direct(chat) {
			continue
		}
		contactID := h.resolveJID(chat.String())
		if name := conv.GetName(); name != "" {
			contacts = append(contacts, store.Contact{ID: contactID, Name: name})
		}
		for _, hm := range conv.GetMessages() {
			wmsg := hm.GetMessage()
			if wmsg == nil || wmsg.GetMessage() == nil {
				continue
			}
			key := wmsg.GetKey()
			parsed := &ParsedMessage{
				ContactID:   contactID,
				MsgID:       key.GetID(),
				Body:        extractTextBody(wmsg.GetMessage()),
				MessageType: detectMessageType(wmsg.GetMessage()),
				FromMe:      key.GetFromMe(),
				Timestamp:   int64(wmsg.GetMessageTimestamp()) * 1000,
				Attachments: extractAttachments(key.GetID(), wmsg.GetMessage()),
			}
			m := parsed.ToStoreMessage()
			m.Status = string(historyStatus(parsed.FromMe, wmsg.GetStatus()))
			msgs = append(msgs, m)
		}
	}

	if len(contacts) > 0 {
		h.bus.Emit(bus.KindWAContact, contacts)
	}
	if len(msgs) > 0 {
		h.logger.Debug("history batch", zap.Int("messages", len(msgs)))
		h.bus.Emit(bus.KindWAHistory, msgs)
	}
}
