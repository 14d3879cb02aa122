// Package cloudapi talks to the WhatsApp Business Cloud API: sending text
// messages through the Graph API and receiving webhook notifications.
package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/matheus3301/waconsole/internal/domain"
	"github.com/matheus3301/waconsole/internal/remote"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL    = "https://graph.facebook.com"
	DefaultAPIVersion = "v21.0"
	defaultTimeout    = 30 * time.Second
	maxErrorBody      = 64 << 10
)

// Client sends messages through the Graph API. Credentials are read from
// the config source on every call so updates apply without a restart.
type Client struct {
	config     remote.ConfigSource
	baseURL    string
	version    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at another Graph endpoint.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithAPIVersion sets the Graph API version path segment.
func WithAPIVersion(v string) ClientOption {
	return func(c *Client) {
		if v != "" {
			c.version = v
		}
	}
}

// WithHTTPClient sets the transport used beneath the bearer token.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit caps sends per second. Zero or negative disables the cap.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewClient creates a Graph API client.
func NewClient(config remote.ConfigSource, logger *zap.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		config:     config,
		baseURL:    DefaultBaseURL,
		version:    DefaultAPIVersion,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.limiter == nil {
		c.limiter = rate.NewLimiter(rate.Limit(20), 20)
	}
	return c
}

// APIError is an error reported by the Graph API.
type APIError struct {
	Status    int
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	FBTraceID string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("graph api: HTTP %d", e.Status)
	}
	return fmt.Sprintf("graph api: HTTP %d: %s (code %d)", e.Status, e.Message, e.Code)
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendText posts a text message and returns its wamid.
func (c *Client) SendText(ctx context.Context, to, text string) (string, error) {
	cfg := c.config.Messaging()
	if !cfg.IsConfigured {
		return "", &domain.NotConfiguredError{Kind: domain.KindMessaging}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	payload, err := json.Marshal(sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               Recipient(to),
		Type:             "text",
		Text:             textBody{Body: text},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.version, cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.authorized(ctx, cfg.Token).Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", decodeError(resp)
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Messages) == 0 {
		c.logger.Warn("graph api accepted message without an id", zap.String("to", to))
		return "", nil
	}
	return out.Messages[0].ID, nil
}

// authorized wraps the base HTTP client with a static bearer token.
func (c *Client) authorized(ctx context.Context, token string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	envelope.Error.Status = resp.StatusCode
	return envelope.Error
}

// Recipient converts a contact id into the Cloud API "to" field.
func Recipient(contactID string) string {
	user, _, _ := strings.Cut(contactID, "@")
	return strings.TrimPrefix(user, "+")
}
