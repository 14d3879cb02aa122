package configstore

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/matheus3301/waconsole/internal/bus"
	"github.com/matheus3301/waconsole/internal/domain"
	"github.com/matheus3301/waconsole/internal/kv"
)

func testStore(t *testing.T) (*Store, kv.Store) {
	t.Helper()
	backend, err := kv.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	return New(backend, nil, nil), backend
}

func TestGetAbsentIsNotConfigured(t *testing.T) {
	s, _ := testStore(t)

	if got := s.Messaging(); got != (domain.MessagingConfig{}) {
		t.Errorf("Messaging() = %+v, want zero value", got)
	}
	if got := s.Database(); got.IsConfigured {
		t.Errorf("Database().IsConfigured = true, want false")
	}
}

func TestSetMessagingMissingToken(t *testing.T) {
	s, _ := testStore(t)

	err := s.SetMessaging(domain.MessagingConfig{Token: "", PhoneNumberID: "x", BusinessAccountID: "y"})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("SetMessaging error = %v, want ValidationError", err)
	}
	if diff := cmp.Diff([]string{"token"}, ve.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	if s.Messaging().IsConfigured {
		t.Error("failed Set must not persist anything")
	}
}

func TestSetMessagingListsAllMissing(t *testing.T) {
	s, _ := testStore(t)

	err := s.SetMessaging(domain.MessagingConfig{Token: "  "})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	want := []string{"token", "phoneNumberId", "businessAccountId"}
	if diff := cmp.Diff(want, ve.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestSetMessagingMarksConfigured(t *testing.T) {
	s, _ := testStore(t)

	in := domain.MessagingConfig{Token: "t", PhoneNumberID: "p", BusinessAccountID: "b"}
	if err := s.SetMessaging(in); err != nil {
		t.Fatal(err)
	}
	got := s.Messaging()
	in.IsConfigured = true
	if got != in {
		t.Errorf("Messaging() = %+v, want %+v", got, in)
	}
}

func TestSetDatabaseDefaultsPort(t *testing.T) {
	s, _ := testStore(t)

	if err := s.SetDatabase(domain.DatabaseConfig{Host: "db", Username: "u", Database: "chat"}); err != nil {
		t.Fatal(err)
	}
	got := s.Database()
	if !got.IsConfigured {
		t.Error("IsConfigured = false after SetDatabase")
	}
	if got.Port != domain.DefaultDatabasePort {
		t.Errorf("Port = %d, want %d", got.Port, domain.DefaultDatabasePort)
	}
}

func TestSetDatabaseValidation(t *testing.T) {
	s, _ := testStore(t)

	tests := []struct {
		name   string
		cfg    domain.DatabaseConfig
		fields []string
	}{
		{"missing all", domain.DatabaseConfig{Port: 5432}, []string{"host", "username", "database"}},
		{"missing db", domain.DatabaseConfig{Host: "h", Username: "u"}, []string{"database"}},
		{"bad port", domain.DatabaseConfig{Host: "h", Username: "u", Database: "d", Port: 70000}, []string{"port"}},
		{"bad driver", domain.DatabaseConfig{Host: "h", Username: "u", Database: "d", Driver: "oracle"}, []string{"driver"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.SetDatabase(tt.cfg)
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if diff := cmp.Diff(tt.fields, ve.Fields); diff != "" {
				t.Errorf("fields mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMalformedRecordReadsAsAbsent(t *testing.T) {
	s, backend := testStore(t)

	if err := backend.Set(string(domain.KindMessaging), []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if got := s.Messaging(); got.IsConfigured {
		t.Errorf("malformed record read as configured: %+v", got)
	}
}

type failingKV struct{ kv.Store }

func (failingKV) Get(string) ([]byte, bool, error) { return nil, false, errors.New("disk gone") }

func TestReadErrorReadsAsAbsent(t *testing.T) {
	s := New(failingKV{}, nil, nil)
	if s.Database().IsConfigured {
		t.Error("read error should surface as not configured")
	}
}

func TestGenericGetSet(t *testing.T) {
	s, _ := testStore(t)

	if err := s.Set(domain.KindDatabase, domain.MessagingConfig{}); !domain.IsValidation(err) {
		t.Errorf("mismatched kind error = %v, want ValidationError", err)
	}
	if _, err := s.Get("bogus"); !domain.IsValidation(err) {
		t.Errorf("unknown kind error = %v, want ValidationError", err)
	}

	cfg := domain.DatabaseConfig{Host: "h", Username: "u", Database: "d", Port: 6543}
	if err := s.Set(domain.KindDatabase, cfg); err != nil {
		t.Fatal(err)
	}
	v, err := s.Get(domain.KindDatabase)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := v.(domain.DatabaseConfig)
	if !ok || got.Port != 6543 || !got.IsConfigured {
		t.Errorf("Get(database) = %#v", v)
	}
}

func TestClearRevertsAndPublishes(t *testing.T) {
	backend, err := kv.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = backend.Close() }()
	b := bus.New()
	ch, unsub := b.Subscribe("config.", 10)
	defer unsub()
	s := New(backend, b, nil)

	if err := s.SetMessaging(domain.MessagingConfig{Token: "t", PhoneNumberID: "p", BusinessAccountID: "b"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(domain.KindMessaging); err != nil {
		t.Fatal(err)
	}
	if s.Messaging().IsConfigured {
		t.Error("Messaging still configured after Clear")
	}

	for i := 0; i < 2; i++ {
		select {
		case evt := <-ch:
			if evt.Payload != domain.KindMessaging {
				t.Errorf("payload = %v, want %s", evt.Payload, domain.KindMessaging)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for config.updated")
		}
	}
}
