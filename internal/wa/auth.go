package wa

import (
	"context"
	"fmt"

	"github.com/matheus3301/waconsole/internal/status"
	"go.mau.fi/whatsmeow"
	"go.uber.org/zap"
)

// AuthEventType enumerates auth event types.
type AuthEventType string

const (
	AuthEventQRCode        AuthEventType = "qr_code"
	AuthEventAuthenticated AuthEventType = "authenticated"
	AuthEventAuthFailed    AuthEventType = "auth_failed"
	AuthEventTimeout       AuthEventType = "timeout"
)

// AuthEvent is one step of the QR pairing flow.
type AuthEvent struct {
	Type    AuthEventType `json:"type"`
	QRCode  string        `json:"qrCode,omitempty"`
	Message string        `json:"message,omitempty"`
}

// StartQRAuth begins QR pairing and streams its events. The channel is
// closed when pairing succeeds, fails, or times out.
func (a *Adapter) StartQRAuth(ctx context.Context) (<-chan AuthEvent, error) {
	if a.IsLoggedIn() {
		return nil, ErrAlreadyLoggedIn
	}
	qrChan, err := a.client.GetQRChannel(ctx)
	if err != nil {
		return nil, fmt.Errorf("get QR channel: %w", err)
	}

	out := make(chan AuthEvent, 10)
	go func() {
		defer close(out)

		// GetQRChannel must precede Connect.
		_ = a.link.Transition(status.Connecting)
		if err := a.client.Connect(); err != nil {
			_ = a.link.Transition(status.Error)
			out <- AuthEvent{Type: AuthEventAuthFailed, Message: err.Error()}
			return
		}

		for item := range qrChan {
			evt, done := authEvent(item)
			if evt.Type == "" {
				continue
			}
			a.logger.Info("qr auth event", zap.String("type", string(evt.Type)))
			out <- evt
			if done {
				if evt.Type != AuthEventAuthenticated {
					_ = a.link.Transition(status.AuthRequired)
				}
				return
			}
		}
	}()

	return out, nil
}

// authEvent translates a QR channel item. done reports whether the flow
// has ended.
func authEvent(item whatsmeow.QRChannelItem) (evt AuthEvent, done bool) {
	switch item.Event {
	case "code":
		return AuthEvent{Type: AuthEventQRCode, QRCode: item.Code}, false
	case "success":
		return AuthEvent{Type: AuthEventAuthenticated, Message: "authenticated"}, true
	case "timeout":
		return AuthEvent{Type: AuthEventTimeout, Message: "QR code timeout"}, true
	}
	if item.Error != nil {
		return AuthEvent{Type: AuthEventAuthFailed, Message: item.Error.Error()}, true
	}
	return AuthEvent{}, false
}
