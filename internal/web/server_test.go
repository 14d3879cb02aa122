package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/matheus3301/waconsole/internal/metrics"
)

type pingMounter struct{}

func (pingMounter) Routes(r chi.Router) {
	r.Get("/webhook", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("pong")) })
}

func TestHealthz(t *testing.T) {
	s := New("127.0.0.1:0", nil, nil, func() map[string]string {
		return map[string]string{"link": "CONNECTED"}
	}, nil)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["link"] != "CONNECTED" {
		t.Errorf("body = %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.WebhookEvent("messages")
	s := New("127.0.0.1:0", nil, m.Handler(), nil, nil)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "waconsole_") {
		t.Errorf("metrics output missing waconsole_ series:\n%s", rec.Body.String())
	}
}

func TestWebhookMounted(t *testing.T) {
	s := New("127.0.0.1:0", pingMounter{}, nil, nil, nil)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook", nil))
	if rec.Body.String() != "pong" {
		t.Errorf("body = %q, want pong", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("/metrics without handler status = %d, want 404", rec.Code)
	}
}
