// Package archive pushes cache snapshots into a durable SQL database.
package archive

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/matheus3301/waconsole/internal/domain"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	batchSize = 200
)

// Archive is an open connection to the durable database.
type Archive struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects using cfg and migrates the schema.
func Open(ctx context.Context, cfg domain.DatabaseConfig, log *zap.Logger) (*Archive, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(zap.NewStdLog(log.Named("gorm")), logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName(cfg), err)
	}
	a := &Archive{db: db, logger: log}
	if err := a.Ping(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := db.WithContext(ctx).AutoMigrate(&Contact{}, &Message{}, &Attachment{}); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return a, nil
}

// OpenDB wraps an existing gorm handle and migrates the schema.
func OpenDB(db *gorm.DB, log *zap.Logger) (*Archive, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := db.AutoMigrate(&Contact{}, &Message{}, &Attachment{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Archive{db: db, logger: log}, nil
}

// Dialector selects the gorm driver for cfg. For sqlite, Database is a
// file path or DSN.
func Dialector(cfg domain.DatabaseConfig) (gorm.Dialector, error) {
	switch driverName(cfg) {
	case DriverPostgres:
		return postgres.Open(PostgresDSN(cfg)), nil
	case DriverSQLite:
		return sqlite.Open(cfg.Database), nil
	default:
		return nil, &domain.ValidationError{Fields: []string{"driver"}, Reason: "unsupported database driver"}
	}
}

func driverName(cfg domain.DatabaseConfig) string {
	if cfg.Driver == "" {
		return DriverPostgres
	}
	return cfg.Driver
}

// PostgresDSN renders cfg as a postgres:// URL.
func PostgresDSN(cfg domain.DatabaseConfig) string {
	port := cfg.Port
	if port == 0 {
		port = domain.DefaultDatabasePort
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.Username, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:   "/" + cfg.Database,
	}
	q := url.Values{}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	q.Set("sslmode", sslMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Ping checks the connection.
func (a *Archive) Ping(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Push upserts every contact, message and attachment of snap in a single
// transaction. Rows absent from snap are left untouched.
func (a *Archive) Push(ctx context.Context, snap domain.Snapshot) error {
	contacts := make([]Contact, 0, len(snap.Contacts))
	for _, c := range snap.Contacts {
		contacts = append(contacts, contactRow(c))
	}
	messages := make([]Message, 0, len(snap.Messages))
	var attachments []Attachment
	for _, m := range snap.Messages {
		messages = append(messages, messageRow(m))
		attachments = append(attachments, attachmentRows(m)...)
	}

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := func(key ...string) *gorm.DB {
			cols := make([]clause.Column, len(key))
			for i, k := range key {
				cols[i] = clause.Column{Name: k}
			}
			return tx.Omit(clause.Associations).Clauses(clause.OnConflict{
				Columns:   cols,
				UpdateAll: true,
			})
		}
		if len(contacts) > 0 {
			if err := upsert("id").CreateInBatches(contacts, batchSize).Error; err != nil {
				return fmt.Errorf("contacts: %w", err)
			}
		}
		if len(messages) > 0 {
			if err := upsert("contact_id", "id").CreateInBatches(messages, batchSize).Error; err != nil {
				return fmt.Errorf("messages: %w", err)
			}
		}
		if len(attachments) > 0 {
			if err := upsert("contact_id", "message_id", "id").CreateInBatches(attachments, batchSize).Error; err != nil {
				return fmt.Errorf("attachments: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("push snapshot: %w", err)
	}
	a.logger.Info("snapshot pushed",
		zap.Int("contacts", len(contacts)),
		zap.Int("messages", len(messages)),
		zap.Int("attachments", len(attachments)),
	)
	return nil
}

// Counts returns the number of archived contacts and messages.
func (a *Archive) Counts(ctx context.Context) (contacts, messages int64, err error) {
	db := a.db.WithContext(ctx)
	if err = db.Model(&Contact{}).Count(&contacts).Error; err != nil {
		return 0, 0, err
	}
	err = db.Model(&Message{}).Count(&messages).Error
	return contacts, messages, err
}

// Close releases the connection pool.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
