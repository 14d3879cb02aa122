package cloudapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/matheus3301/waconsole/internal/bus"
	"github.com/matheus3301/waconsole/internal/domain"
	"github.com/matheus3301/waconsole/internal/metrics"
	"github.com/matheus3301/waconsole/internal/store"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// Webhook receives Cloud API change notifications and publishes them on
// the bus as "wa." events for the inbox.
type Webhook struct {
	verifyToken string
	appSecret   string
	mediaBase   string
	bus         *bus.Bus
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// WebhookConfig configures a Webhook.
type WebhookConfig struct {
	// VerifyToken must match hub.verify_token during subscription.
	VerifyToken string
	// AppSecret, when set, requires a valid X-Hub-Signature-256 header.
	AppSecret string
	// MediaBase prefixes media ids to form attachment URLs.
	MediaBase string
}

// NewWebhook creates a webhook receiver.
func NewWebhook(cfg WebhookConfig, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MediaBase == "" {
		cfg.MediaBase = DefaultBaseURL + "/" + DefaultAPIVersion
	}
	return &Webhook{
		verifyToken: cfg.VerifyToken,
		appSecret:   cfg.AppSecret,
		mediaBase:   strings.TrimRight(cfg.MediaBase, "/"),
		bus:         b,
		metrics:     m,
		logger:      logger,
	}
}

// Routes mounts the webhook endpoints on r.
func (w *Webhook) Routes(r chi.Router) {
	r.Get("/webhook", w.handleVerify)
	r.Post("/webhook", w.handleNotify)
}

// handleVerify answers the subscription handshake by echoing hub.challenge.
func (w *Webhook) handleVerify(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || w.verifyToken == "" ||
		!hmac.Equal([]byte(q.Get("hub.verify_token")), []byte(w.verifyToken)) {
		w.logger.Warn("webhook verification rejected", zap.String("remote_addr", r.RemoteAddr))
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	rw.Header().Set("Content-Type", "text/plain")
	rw.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(rw, q.Get("hub.challenge"))
}

func (w *Webhook) handleNotify(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(rw, "read body", http.StatusBadRequest)
		return
	}
	if w.appSecret != "" && !validSignature(body, r.Header.Get("X-Hub-Signature-256"), w.appSecret) {
		w.logger.Warn("webhook signature mismatch", zap.String("remote_addr", r.RemoteAddr))
		http.Error(rw, "invalid signature", http.StatusUnauthorized)
		return
	}

	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		http.Error(rw, "invalid payload", http.StatusBadRequest)
		return
	}
	w.dispatch(n)
	rw.WriteHeader(http.StatusOK)
}

func validSignature(body []byte, header, secret string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

type notification struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string      `json:"field"`
			Value changeValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type changeValue struct {
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []inboundMessage `json:"messages"`
	Statuses []struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		Timestamp   string `json:"timestamp"`
		RecipientID string `json:"recipient_id"`
	} `json:"statuses"`
}

type media struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
}

type inboundMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *media `json:"image"`
	Video    *media `json:"video"`
	Audio    *media `json:"audio"`
	Document *media `json:"document"`
}

func (w *Webhook) dispatch(n notification) {
	for _, e := range n.Entry {
		for _, ch := range e.Changes {
			if ch.Field != "messages" {
				w.logger.Debug("ignoring webhook field", zap.String("field", ch.Field))
				continue
			}
			w.dispatchChange(ch.Value)
		}
	}
}

func (w *Webhook) dispatchChange(v changeValue) {
	if len(v.Contacts) > 0 {
		contacts := make([]store.Contact, 0, len(v.Contacts))
		for _, c := range v.Contacts {
			contacts = append(contacts, store.Contact{ID: c.WaID, PushName: c.Profile.Name})
		}
		w.metrics.WebhookEvent("contacts")
		w.bus.Emit(bus.KindWAContact, contacts)
	}
	for _, m := range v.Messages {
		w.metrics.WebhookEvent("messages")
		w.bus.Emit(bus.KindWAMessage, w.toStoreMessage(m))
	}
	for _, s := range v.Statuses {
		status := domain.MessageStatus(s.Status)
		if !status.Valid() || status == domain.StatusReceived {
			w.logger.Warn("delivery status not applied", zap.String("msg_id", s.ID), zap.String("status", s.Status))
			continue
		}
		w.metrics.WebhookEvent("statuses")
		w.bus.Emit(bus.KindWAReceipt, domain.Receipt{
			ContactID: s.RecipientID,
			MessageID: s.ID,
			Status:    status,
			Timestamp: parseUnix(s.Timestamp),
		})
	}
}

func (w *Webhook) toStoreMessage(m inboundMessage) *store.Message {
	out := &store.Message{
		ContactID:   m.From,
		MsgID:       m.ID,
		MessageType: m.Type,
		Status:      string(domain.StatusReceived),
		Timestamp:   parseUnix(m.Timestamp).UnixMilli(),
	}
	if m.Text != nil {
		out.Body = m.Text.Body
	}
	for _, att := range []struct {
		kind domain.AttachmentType
		m    *media
	}{
		{domain.AttachmentImage, m.Image},
		{domain.AttachmentVideo, m.Video},
		{domain.AttachmentAudio, m.Audio},
		{domain.AttachmentDocument, m.Document},
	} {
		if att.m == nil {
			continue
		}
		out.Attachments = append(out.Attachments, store.Attachment{
			ID:   att.m.ID,
			Type: string(att.kind),
			URL:  w.mediaBase + "/" + att.m.ID,
			Name: att.m.Filename,
		})
		if out.Body == "" {
			out.Body = att.m.Caption
		}
	}
	return out
}

// parseUnix parses a Graph API seconds timestamp, falling back to now.
func parseUnix(s string) time.Time {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil || sec <= 0 {
		return time.Now()
	}
	return time.Unix(sec, 0)
}
