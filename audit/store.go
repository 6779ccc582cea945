// Package audit persists emitted ledger events as queryable audit rows.
package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tokend/core/events"
	"tokend/core/types"
)

// Record is one persisted audit row. Attributes holds the event's flat string
// pairs as JSON.
type Record struct {
	ID         string    `gorm:"primaryKey;size:36"`
	Type       string    `gorm:"index;size:64"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (Record) TableName() string { return "audit_events" }

// Store is a gorm-backed audit sink. It satisfies events.Emitter; failures to
// persist are logged rather than propagated, since the sink runs after the
// originating operation has already committed.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to the audit database. DSNs beginning with postgres:// or
// postgresql:// select the postgres driver; anything else is treated as a
// sqlite path or URI.
func Open(dsn string, logger *slog.Logger) (*Store, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("audit: empty DSN")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", trimmed, err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

type eventPayload interface {
	Event() *types.Event
}

// Emit implements the events.Emitter interface.
func (s *Store) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	record := Record{
		ID:        uuid.NewString(),
		Type:      evt.EventType(),
		CreatedAt: time.Now().UTC(),
	}
	if payload, ok := evt.(eventPayload); ok {
		if wire := payload.Event(); wire != nil {
			encoded, err := json.Marshal(wire.Attributes)
			if err != nil {
				s.logger.Error("audit: encode attributes", slog.Any("error", err))
				return
			}
			record.Attributes = string(encoded)
		}
	}
	if err := s.db.Create(&record).Error; err != nil {
		s.logger.Error("audit: persist event",
			slog.String("type", record.Type),
			slog.Any("error", err))
	}
}

// Recent returns up to limit most recent audit rows, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []Record
	err := s.db.Order("created_at desc").Limit(limit).Find(&records).Error
	return records, err
}
