package wa

import (
	"strings"

	"github.com/matheus3301/waconsole/internal/domain"
	"github.com/matheus3301/waconsole/internal/store"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// ParsedMessage is a normalized message ready for ingestion.
type ParsedMessage struct {
	ContactID   string
	MsgID       string
	PushName    string
	Body        string
	MessageType string
	FromMe      bool
	Timestamp   int64
	Attachments []store.Attachment
}

// NormalizeJID strips the device suffix from a JID string. Unparseable
// input is returned unchanged.
func NormalizeJID(s string) string {
	if s == "" {
		return ""
	}
	jid, err := types.ParseJID(s)
	if err != nil || jid.User == "" {
		return s
	}
	return jid.ToNonAD().String()
}

// ContactJID turns a contact id or bare phone number into a user JID.
func ContactJID(contactID string) (types.JID, error) {
	if !strings.Contains(contactID, "@") {
		return types.NewJID(strings.TrimPrefix(contactID, "+"), types.DefaultUserServer), nil
	}
	jid, err := types.ParseJID(contactID)
	if err != nil {
		return types.JID{}, err
	}
	return jid.ToNonAD(), nil
}

// ParseLiveMessage normalizes a live whatsmeow message event.
func ParseLiveMessage(evt *events.Message) *ParsedMessage {
	return &ParsedMessage{
		ContactID:   NormalizeJID(evt.Info.Chat.String()),
		MsgID:       evt.Info.ID,
		PushName:    evt.Info.PushName,
		Body:        extractTextBody(evt.Message),
		MessageType: detectMessageType(evt.Message),
		FromMe:      evt.Info.IsFromMe,
		Timestamp:   evt.Info.Timestamp.UnixMilli(),
		Attachments: extractAttachments(evt.Info.ID, evt.Message),
	}
}

// ToStoreMessage converts a ParsedMessage to a store.Message.
func (p *ParsedMessage) ToStoreMessage() *store.Message {
	st := domain.StatusReceived
	if p.FromMe {
		st = domain.StatusSent
	}
	return &store.Message{
		ContactID:   p.ContactID,
		MsgID:       p.MsgID,
		Body:        p.Body,
		MessageType: p.MessageType,
		FromMe:      p.FromMe,
		Status:      string(st),
		Timestamp:   p.Timestamp,
		Attachments: p.Attachments,
	}
}

// direct reports whether jid addresses a single user.
func direct(jid types.JID) bool {
	switch jid.Server {
	case types.DefaultUserServer, types.HiddenUserServer:
		return true
	}
	return false
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	switch {
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetCaption()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetCaption()
	}
	return ""
}

func extractAttachments(msgID string, msg *waE2E.Message) []store.Attachment {
	if msg == nil {
		return nil
	}
	var a *store.Attachment
	switch {
	case msg.GetImageMessage() != nil:
		a = &store.Attachment{Type: string(domain.AttachmentImage), Size: int64(msg.GetImageMessage().GetFileLength())}
	case msg.GetVideoMessage() != nil:
		a = &store.Attachment{Type: string(domain.AttachmentVideo), Size: int64(msg.GetVideoMessage().GetFileLength())}
	case msg.GetAudioMessage() != nil:
		a = &store.Attachment{Type: string(domain.AttachmentAudio), Size: int64(msg.GetAudioMessage().GetFileLength())}
	case msg.GetDocumentMessage() != nil:
		doc := msg.GetDocumentMessage()
		a = &store.Attachment{Type: string(domain.AttachmentDocument), Name: doc.GetFileName(), Size: int64(doc.GetFileLength())}
	default:
		return nil
	}
	a.ID = msgID
	return []store.Attachment{*a}
}

func detectMessageType(msg *waE2E.Message) string {
	if msg == nil {
		return "unknown"
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return "text"
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetContactMessage() != nil:
		return "contact"
	case msg.GetLocationMessage() != nil:
		return "location"
	default:
		return "unknown"
	}
}
