package wa

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/waconsole/internal/bus"
	"github.com/matheus3301/waconsole/internal/status"
	"github.com/matheus3301/waconsole/internal/store"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

// ErrAlreadyLoggedIn is returned by StartQRAuth when the device is linked.
var ErrAlreadyLoggedIn = errors.New("already logged in")

// Adapter wraps the whatsmeow client and manages the linked-device
// connection. It implements the remote transport for sends.
type Adapter struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	bus       *bus.Bus
	link      *status.Machine
	logger    *zap.Logger
}

// NewAdapter opens the device store at dbPath and registers the event
// handler. The link machine starts in Booting.
func NewAdapter(ctx context.Context, dbPath string, b *bus.Bus, logger *zap.Logger) (*Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	wastore.SetOSInfo("waconsole", [3]uint32{0, 1, 0})

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", dbPath),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device store: %w", err)
	}

	a := &Adapter{
		client:    whatsmeow.NewClient(deviceStore, nil),
		container: container,
		bus:       b,
		link:      status.NewMachine("link", status.LinkTable, status.Booting, status.WithEvents(b, bus.KindLinkState)),
		logger:    logger,
	}
	a.client.AddEventHandler(NewEventHandler(b, a.link, a, logger).Handle)
	return a, nil
}

// Link returns the connection state machine.
func (a *Adapter) Link() *status.Machine {
	return a.link
}

// IsLoggedIn returns whether the adapter has valid credentials.
func (a *Adapter) IsLoggedIn() bool {
	return a.client.Store.ID != nil
}

// Start connects when credentials exist and otherwise waits in
// AuthRequired for StartQRAuth.
func (a *Adapter) Start() error {
	if !a.IsLoggedIn() {
		_ = a.link.Transition(status.AuthRequired)
		a.logger.Info("whatsapp device not linked, waiting for QR auth")
		return nil
	}
	_ = a.link.Transition(status.Connecting)
	a.logger.Info("connecting to whatsapp")
	if err := a.client.Connect(); err != nil {
		_ = a.link.Transition(status.Error)
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Disconnect terminates the connection.
func (a *Adapter) Disconnect() {
	a.logger.Info("disconnecting from whatsapp")
	a.client.Disconnect()
}

// Logout unlinks the device.
func (a *Adapter) Logout(ctx context.Context) error {
	if !a.IsLoggedIn() {
		return nil
	}
	if err := a.client.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	_ = a.link.Transition(status.AuthRequired)
	return nil
}

// SendText sends a text message to the contact and returns the server
// message id.
func (a *Adapter) SendText(ctx context.Context, contactID, text string) (string, error) {
	to, err := ContactJID(contactID)
	if err != nil {
		return "", fmt.Errorf("parse JID: %w", err)
	}
	resp, err := a.client.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// SyncContacts publishes the device store's address book for the inbox.
func (a *Adapter) SyncContacts(ctx context.Context) int {
	contacts := a.GetContacts(ctx)
	if len(contacts) > 0 {
		a.bus.Emit(bus.KindWAContact, contacts)
	}
	return len(contacts)
}

// GetContacts returns the direct contacts from the device store.
func (a *Adapter) GetContacts(ctx context.Context) []store.Contact {
	all, err := a.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		a.logger.Warn("failed to get contacts from device store", zap.Error(err))
		return nil
	}
	contacts := make([]store.Contact, 0, len(all))
	for jid, info := range all {
		jid = jid.ToNonAD()
		if jid.Server != types.DefaultUserServer {
			continue
		}
		contacts = append(contacts, store.Contact{
			ID:          jid.String(),
			Name:        info.FullName,
			PushName:    info.PushName,
			PhoneNumber: "+" + jid.User,
		})
	}
	return contacts
}

// PhoneNumber returns the linked account's phone number, or "".
func (a *Adapter) PhoneNumber() string {
	if a.client.Store.ID == nil {
		return ""
	}
	return a.client.Store.ID.User
}

// GetLIDMappings returns LID-to-PN mappings for known contacts.
func (a *Adapter) GetLIDMappings(ctx context.Context) []store.LIDMapping {
	if a.client == nil || a.client.Store == nil || a.client.Store.LIDs == nil {
		return nil
	}
	all, err := a.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil
	}

	var mappings []store.LIDMapping
	for jid := range all {
		pn := jid.ToNonAD()
		if pn.Server != types.DefaultUserServer {
			continue
		}
		lid, err := a.client.Store.LIDs.GetLIDForPN(ctx, pn)
		if err == nil && !lid.IsEmpty() {
			mappings = append(mappings, store.LIDMapping{LID: lid.User, PN: pn.User})
		}
	}
	return mappings
}

// ResolveLID maps a LID JID to its phone number JID. Other JIDs, and
// LIDs without a known mapping, are returned unchanged.
func (a *Adapter) ResolveLID(ctx context.Context, jid types.JID) types.JID {
	if jid.Server != types.HiddenUserServer && jid.Server != types.HostedLIDServer {
		return jid
	}
	if a.client == nil || a.client.Store == nil || a.client.Store.LIDs == nil {
		return jid
	}
	pn, err := a.client.Store.LIDs.GetPNForLID(ctx, jid)
	if err != nil || pn.IsEmpty() {
		return jid
	}
	return pn
}
