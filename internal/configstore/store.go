// Package configstore persists the messaging API and database configuration
// records and is the single source of truth for whether they are configured.
package configstore

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/matheus3301/waconsole/internal/bus"
	"github.com/matheus3301/waconsole/internal/domain"
	"github.com/matheus3301/waconsole/internal/kv"
	"go.uber.org/zap"
)

// Store reads and writes configuration records in a kv.Store. Readers get
// copies; absent or malformed records read as not configured.
type Store struct {
	kv     kv.Store
	bus    *bus.Bus
	logger *zap.Logger
}

// New creates a config store over backend. b may be nil.
func New(backend kv.Store, b *bus.Bus, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kv: backend, bus: b, logger: logger}
}

// Messaging returns the messaging API configuration.
func (s *Store) Messaging() domain.MessagingConfig {
	var cfg domain.MessagingConfig
	if !s.load(domain.KindMessaging, &cfg) {
		return domain.MessagingConfig{}
	}
	return cfg
}

// Database returns the database configuration.
func (s *Store) Database() domain.DatabaseConfig {
	var cfg domain.DatabaseConfig
	if !s.load(domain.KindDatabase, &cfg) {
		return domain.DatabaseConfig{}
	}
	return cfg
}

// SetMessaging validates and persists cfg, marking it configured.
func (s *Store) SetMessaging(cfg domain.MessagingConfig) error {
	if err := ValidateMessaging(cfg); err != nil {
		return err
	}
	cfg.IsConfigured = true
	return s.save(domain.KindMessaging, cfg)
}

// SetDatabase validates and persists cfg, marking it configured.
func (s *Store) SetDatabase(cfg domain.DatabaseConfig) error {
	if err := ValidateDatabase(cfg); err != nil {
		return err
	}
	if cfg.Port == 0 {
		cfg.Port = domain.DefaultDatabasePort
	}
	cfg.IsConfigured = true
	return s.save(domain.KindDatabase, cfg)
}

// Get returns the record for kind as a domain config value.
func (s *Store) Get(kind domain.ConfigKind) (any, error) {
	switch kind {
	case domain.KindMessaging:
		return s.Messaging(), nil
	case domain.KindDatabase:
		return s.Database(), nil
	}
	return nil, &domain.ValidationError{Reason: fmt.Sprintf("unknown config kind %q", kind)}
}

// Set validates and persists v under kind. v must match the kind.
func (s *Store) Set(kind domain.ConfigKind, v any) error {
	switch cfg := v.(type) {
	case domain.MessagingConfig:
		if kind == domain.KindMessaging {
			return s.SetMessaging(cfg)
		}
	case domain.DatabaseConfig:
		if kind == domain.KindDatabase {
			return s.SetDatabase(cfg)
		}
	}
	return &domain.ValidationError{Reason: fmt.Sprintf("value of type %T does not match config kind %q", v, kind)}
}

// Clear removes the record for kind.
func (s *Store) Clear(kind domain.ConfigKind) error {
	if err := s.kv.Delete(string(kind)); err != nil {
		return err
	}
	s.bus.Emit(bus.KindConfigUpdated, kind)
	return nil
}

// ValidateMessaging reports the empty required messaging fields.
func ValidateMessaging(cfg domain.MessagingConfig) error {
	return required(
		field{"token", cfg.Token},
		field{"phoneNumberId", cfg.PhoneNumberID},
		field{"businessAccountId", cfg.BusinessAccountID},
	)
}

// ValidateDatabase reports the empty required database fields.
func ValidateDatabase(cfg domain.DatabaseConfig) error {
	err := required(
		field{"host", cfg.Host},
		field{"username", cfg.Username},
		field{"database", cfg.Database},
	)
	if err != nil {
		return err
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return &domain.ValidationError{Fields: []string{"port"}, Reason: "out of range"}
	}
	switch cfg.Driver {
	case "", "postgres", "sqlite":
	default:
		return &domain.ValidationError{Fields: []string{"driver"}, Reason: "unsupported"}
	}
	return nil
}

type field struct {
	name  string
	value string
}

func required(fields ...field) error {
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return &domain.ValidationError{Fields: missing}
	}
	return nil
}

func (s *Store) load(kind domain.ConfigKind, into any) bool {
	raw, found, err := s.kv.Get(string(kind))
	if err != nil {
		s.logger.Warn("config read failed", zap.String("kind", string(kind)), zap.Error(err))
		return false
	}
	if !found {
		return false
	}
	if err := json.Unmarshal(raw, into); err != nil {
		s.logger.Warn("config record malformed", zap.String("kind", string(kind)), zap.Error(err))
		return false
	}
	return true
}

func (s *Store) save(kind domain.ConfigKind, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	if err := s.kv.Set(string(kind), raw); err != nil {
		return err
	}
	s.logger.Info("config updated", zap.String("kind", string(kind)))
	s.bus.Emit(bus.KindConfigUpdated, kind)
	return nil
}
