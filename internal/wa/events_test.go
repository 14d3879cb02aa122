package wa

import (
	"context"
	"testing"
	"time"

	"github.com/matheus3301/waconsole/internal/bus"
	"github.com/matheus3301/waconsole/internal/domain"
	"github.com/matheus3301/waconsole/internal/status"
	"github.com/matheus3301/waconsole/internal/store"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

// walkTo transitions the machine through the given states sequentially.
func walkTo(t *testing.T, m *status.Machine, states ...status.State) {
	t.Helper()
	for _, s := range states {
		if err := m.Transition(s); err != nil {
			t.Fatalf("transition to %s failed: %v", s, err)
		}
	}
}

func newHandler(r Resolver) (*EventHandler, *status.Machine, *bus.Bus) {
	b := bus.New()
	m := status.NewMachine("link", status.LinkTable, status.Booting)
	return NewEventHandler(b, m, r, nil), m, b
}

func next(t *testing.T, ch <-chan bus.Event, kind string) bus.Event {
	t.Helper()
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind {
				return evt
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s event", kind)
		}
	}
}

var user = types.JID{User: "558592403672", Server: types.DefaultUserServer}

func textMessage(id string, chat types.JID, fromMe bool) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			ID:        id,
			PushName:  "Eric",
			Timestamp: time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC),
			MessageSource: types.MessageSource{
				Chat:     chat,
				Sender:   chat,
				IsFromMe: fromMe,
			},
		},
		Message: &waE2E.Message{Conversation: proto.String("hello")},
	}
}

type staticResolver map[string]types.JID

func (r staticResolver) ResolveLID(_ context.Context, jid types.JID) types.JID {
	if pn, ok := r[jid.User]; ok {
		return pn
	}
	return jid
}

func TestHandleConnectedFromAuthRequired(t *testing.T) {
	h, m, b := newHandler(nil)
	walkTo(t, m, status.AuthRequired)

	ch, unsub := b.Subscribe("wa.", 10)
	defer unsub()

	h.Handle(&events.Connected{})

	if m.Current() != status.Connected {
		t.Errorf("state = %s, want CONNECTED", m.Current())
	}
	next(t, ch, bus.KindWAConnected)
}

func TestHandleConnectedFromReconnecting(t *testing.T) {
	h, m, _ := newHandler(nil)
	walkTo(t, m, status.Connecting, status.Connected, status.Reconnecting)

	h.Handle(&events.Connected{})

	if m.Current() != status.Connected {
		t.Errorf("state = %s, want CONNECTED", m.Current())
	}
}

func TestHandleDisconnected(t *testing.T) {
	h, m, _ := newHandler(nil)
	walkTo(t, m, status.Connecting, status.Connected)

	h.Handle(&events.Disconnected{})

	if m.Current() != status.Reconnecting {
		t.Errorf("state = %s, want RECONNECTING", m.Current())
	}
}

func TestHandleLoggedOut(t *testing.T) {
	h, m, b := newHandler(nil)
	walkTo(t, m, status.Connecting, status.Connected)

	ch, unsub := b.Subscribe("wa.", 10)
	defer unsub()

	h.Handle(&events.LoggedOut{})

	if m.Current() != status.AuthRequired {
		t.Errorf("state = %s, want AUTH_REQUIRED", m.Current())
	}
	next(t, ch, bus.KindWALoggedOut)
}

func TestHandleMessagePublishesStoreMessage(t *testing.T) {
	h, _, b := newHandler(nil)
	ch, unsub := b.Subscribe("wa.", 10)
	defer unsub()

	h.Handle(textMessage("m1", user, false))

	contacts := next(t, ch, bus.KindWAContact).Payload.([]store.Contact)
	if len(contacts) != 1 || contacts[0].PushName != "Eric" || contacts[0].ID != user.String() {
		t.Errorf("contacts = %+v, want push name for %s", contacts, user)
	}

	msg, ok := next(t, ch, bus.KindWAMessage).Payload.(*store.Message)
	if !ok {
		t.Fatal("payload is not *store.Message")
	}
	if msg.ContactID != user.String() || msg.Body != "hello" || msg.Status != "received" {
		t.Errorf("message = %+v", msg)
	}
}

func TestHandleOwnMessageSkipsContact(t *testing.T) {
	h, _, b := newHandler(nil)
	ch, unsub := b.Subscribe("wa.", 10)
	defer unsub()

	h.Handle(textMessage("m1", user, true))

	evt := next(t, ch, bus.KindWAMessage)
	if msg := evt.Payload.(*store.Message); msg.Status != "sent" || !msg.FromMe {
		t.Errorf("message = %+v, want sent and from me", msg)
	}
	if len(ch) != 0 {
		t.Errorf("unexpected extra events: %d", len(ch))
	}
}

func TestHandleGroupMessageIgnored(t *testing.T) {
	h, _, b := newHandler(nil)
	ch, unsub := b.Subscribe("wa.", 10)
	defer unsub()

	h.Handle(textMessage("g1", types.JID{User: "120363123456", Server: types.GroupServer}, false))

	if len(ch) != 0 {
		t.Errorf("group message produced %d events, want 0", len(ch))
	}
}

func TestLiveMessageWithDeviceSuffixNormalized(t *testing.T) {
	h, _, b := newHandler(nil)
	ch, unsub := b.Subscribe(bus.KindWAMessage, 10)
	defer unsub()

	chat := user
	chat.Device = 1
	h.Handle(textMessage("m1", chat, false))

	msg := next(t, ch, bus.KindWAMessage).Payload.(*store.Message)
	if msg.ContactID != "558592403672@s.whatsapp.net" {
		t.Errorf("ContactID = %q, want 558592403672@s.whatsapp.net", msg.ContactID)
	}
}

func TestLiveMessageLIDResolved(t *testing.T) {
	h, _, b := newHandler(staticResolver{"3917077286968": user})
	ch, unsub := b.Subscribe(bus.KindWAMessage, 10)
	defer unsub()

	h.Handle(textMessage("m1", types.JID{User: "3917077286968", Server: types.HiddenUserServer}, false))

	msg := next(t, ch, bus.KindWAMessage).Payload.(*store.Message)
	if msg.ContactID != user.String() {
		t.Errorf("ContactID = %q, want %s", msg.ContactID, user)
	}
}

func TestResolveJIDWithoutResolver(t *testing.T) {
	h, _, _ := newHandler(nil)

	tests := []struct {
		input string
		want  string
	}{
		{"558592403672@s.whatsapp.net", "558592403672@s.whatsapp.net"},
		{"558592403672:0@s.whatsapp.net", "558592403672@s.whatsapp.net"},
		{"3917077286968@lid", "3917077286968@lid"},
	}

	for _, tt := range tests {
		if got := h.resolveJID(tt.input); got != tt.want {
			t.Errorf("resolveJID(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestHandleReceipt(t *testing.T) {
	h, _, b := newHandler(nil)
	ch, unsub := b.Subscribe(bus.KindWAReceipt, 10)
	defer unsub()

	ts := time.Date(2025, 1, 15, 12, 5, 0, 0, time.UTC)
	h.Handle(&events.Receipt{
		MessageSource: types.MessageSource{Chat: user, Sender: user},
		MessageIDs:    []types.MessageID{"a", "b"},
		Timestamp:     ts,
		Type:          types.ReceiptTypeRead,
	})

	for _, id := range []string{"a", "b"} {
		r := next(t, ch, bus.KindWAReceipt).Payload.(domain.Receipt)
		if r.MessageID != id || r.Status != domain.StatusRead || r.ContactID != user.String() || !r.Timestamp.Equal(ts) {
			t.Errorf("receipt = %+v, want %s read", r, id)
		}
	}
}

func TestHandleReceiptIgnoresOwnAndUnknownTypes(t *testing.T) {
	h, _, b := newHandler(nil)
	ch, unsub := b.Subscribe(bus.KindWAReceipt, 10)
	defer unsub()

	h.Handle(&events.Receipt{
		MessageSource: types.MessageSource{Chat: user, IsFromMe: true},
		MessageIDs:    []types.MessageID{"a"},
		Type:          types.ReceiptTypeReadSelf,
	})
	h.Handle(&events.Receipt{
		MessageSource: types.MessageSource{Chat: user},
		MessageIDs:    []types.MessageID{"a"},
		Type:          types.ReceiptTypeRetry,
	})

	if len(ch) != 0 {
		t.Errorf("got %d receipts, want 0", len(ch))
	}
}

func TestPushNameContactJIDNormalized(t *testing.T) {
	h, _, b := newHandler(nil)
	ch, unsub := b.Subscribe(bus.KindWAContact, 10)
	defer unsub()

	h.Handle(&events.PushName{
		JID:         types.JID{User: "558592403672", Server: types.DefaultUserServer, Device: 5},
		NewPushName: "Eric",
	})

	contacts := next(t, ch, bus.KindWAContact).Payload.([]store.Contact)
	if len(contacts) != 1 {
		t.Fatalf("got %d contacts, want 1", len(contacts))
	}
	if contacts[0].ID != "558592403672@s.whatsapp.net" || contacts[0].PushName != "Eric" {
		t.Errorf("contact = %+v", contacts[0])
	}
}

func historyConv(id, name string, msgs ...*waWeb.WebMessageInfo) *waHistorySync.Conversation {
	conv := &waHistorySync.Conversation{ID: proto.String(id)}
	if name != "" {
		conv.Name = proto.String(name)
	}
	for _, m := range msgs {
		conv.Messages = append(conv.Messages, &waHistorySync.HistorySyncMsg{Message: m})
	}
	return conv
}

func historyMsg(id, remote string, fromMe bool, st waWeb.WebMessageInfo_Status) *waWeb.WebMessageInfo {
	ts := uint64(1736942400)
	return &waWeb.WebMessageInfo{
		Key: &waCommon.MessageKey{
			ID:        proto.String(id),
			FromMe:    proto.Bool(fromMe),
			RemoteJID: proto.String(remote),
		},
		MessageTimestamp: &ts,
		Status:           st.Enum(),
		Message:          &waE2E.Message{Conversation: proto.String("history " + id)},
	}
}

func TestHandleHistorySync(t *testing.T) {
	h, _, b := newHandler(nil)
	ch, unsub := b.Subscribe("wa.", 10)
	defer unsub()

	h.Handle(&events.HistorySync{
		Data: &waHistorySync.HistorySync{
			Conversations: []*waHistorySync.Conversation{
				historyConv("558592403672:0@s.whatsapp.net", "Eric",
					historyMsg("h1", "558592403672@s.whatsapp.net", false, waWeb.WebMessageInfo_SERVER_ACK),
					historyMsg("h2", "558592403672@s.whatsapp.net", true, waWeb.WebMessageInfo_READ),
				),
				historyConv("120363123456@g.us", "Team",
					historyMsg("g1", "120363123456@g.us", false, waWeb.WebMessageInfo_SERVER_ACK),
				),
			},
		},
	})

	contacts := next(t, ch, bus.KindWAContact).Payload.([]store.Contact)
	if len(contacts) != 1 || contacts[0].Name != "Eric" || contacts[0].ID != user.String() {
		t.Errorf("contacts = %+v, want Eric only", contacts)
	}

	msgs, ok := next(t, ch, bus.KindWAHistory).Payload.([]*store.Message)
	if !ok || len(msgs) != 2 {
		t.Fatalf("history batch = %v, want 2 direct messages", msgs)
	}
	if msgs[0].ContactID != user.String() || msgs[0].Status != "received" {
		t.Errorf("inbound = %+v", msgs[0])
	}
	if msgs[1].Status != "read" || !msgs[1].FromMe {
		t.Errorf("outbound = %+v, want read", msgs[1])
	}
	if msgs[0].Timestamp != 1736942400000 {
		t.Errorf("Timestamp = %d, want ms", msgs[0].Timestamp)
	}
}

func TestHandleHistorySyncNilData(t *testing.T) {
	h, _, b := newHandler(nil)
	ch, unsub := b.Subscribe("wa.", 10)
	defer unsub()

	h.Handle(&events.HistorySync{Data: nil})

	if len(ch) != 0 {
		t.Errorf("nil history produced %d events", len(ch))
	}
}

func TestResolveLIDNonLIDPassthrough(t *testing.T) {
	a := &Adapter{}
	got := a.ResolveLID(context.Background(), user)
	if got != user {
		t.Errorf("ResolveLID(user) = %v, want %v", got, user)
	}

	group := types.JID{User: "120363123456", Server: types.GroupServer}
	if got := a.ResolveLID(context.Background(), group); got != group {
		t.Errorf("ResolveLID(group) = %v, want %v", got, group)
	}
}

func TestResolveLIDWithoutStore(t *testing.T) {
	a := &Adapter{}
	lid := types.JID{User: "3917077286968", Server: types.HiddenUserServer}
	if got := a.ResolveLID(context.Background(), lid); got != lid {
		t.Errorf("ResolveLID(lid) = %v, want %v", got, lid)
	}
}

func TestAuthEvent(t *testing.T) {
	tests := []struct {
		event    string
		code     string
		wantType AuthEventType
		wantDone bool
	}{
		{"code", "2@abc", AuthEventQRCode, false},
		{"success", "", AuthEventAuthenticated, true},
		{"timeout", "", AuthEventTimeout, true},
	}
	for _, tt := range tests {
		evt, done := authEvent(whatsmeow.QRChannelItem{Event: tt.event, Code: tt.code})
		if evt.Type != tt.wantType || done != tt.wantDone {
			t.Errorf("authEvent(%s) = %v, %v; want %v, %v", tt.event, evt.Type, done, tt.wantType, tt.wantDone)
		}
		if tt.code != "" && evt.QRCode != tt.code {
			t.Errorf("QRCode = %q, want %q", evt.QRCode, tt.code)
		}
	}
}
