// Package storage provides the persistent event-store adapter backed by
// SQLite through GORM.
//
// The adapter implements eventlog.Store: every append is written inside
// the log's append lock, so the on-disk sequence matches the in-memory
// journal exactly. A monotonically increasing sequence column preserves
// append order independently of timestamps, and payloads are serialized to
// JSON losslessly so a replayed journal is field-for-field identical.
package storage

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/arontabacinik/itirp/internal/eventlog"
	"github.com/arontabacinik/itirp/pkg/types"
)

// eventRecord is the on-disk row format.
type eventRecord struct {
	Seq           uint64 `gorm:"primaryKey;autoIncrement"`
	EventID       string `gorm:"uniqueIndex;size:36"`
	EventType     string `gorm:"index;size:32"`
	CorrelationID string `gorm:"index;size:36"`
	OrderID       string `gorm:"index;size:36"`
	UserID        string `gorm:"size:64"`
	Timestamp     time.Time
	Payload       []byte
}

func (eventRecord) TableName() string { return "events" }

// EventStore persists events to SQLite.
type EventStore struct {
	db *gorm.DB
}

// Open creates (or opens) the event database at path and migrates the
// schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*EventStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	if err := db.AutoMigrate(&eventRecord{}); err != nil {
		return nil, fmt.Errorf("migrate event store: %w", err)
	}
	return &EventStore{db: db}, nil
}

// SaveEvent appends one event. Called by the log under its append lock, so
// rows land in append order.
func (s *EventStore) SaveEvent(ev types.Event) error {
	payload, err := eventlog.MarshalPayload(ev.Payload)
	if err != nil {
		return err
	}
	rec := eventRecord{
		EventID:       ev.EventID,
		EventType:     string(ev.Type),
		CorrelationID: ev.CorrelationID,
		OrderID:       ev.OrderID,
		UserID:        ev.UserID,
		Timestamp:     ev.Timestamp,
		Payload:       payload,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("insert event %s: %w", ev.EventID, err)
	}
	return nil
}

// LoadAll returns every persisted event in append order, ready to be fed
// into eventlog.Log.Restore.
func (s *EventStore) LoadAll() ([]types.Event, error) {
	var rows []eventRecord
	if err := s.db.Order("seq asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	events := make([]types.Event, 0, len(rows))
	for _, row := range rows {
		payload, err := eventlog.UnmarshalPayload(types.EventType(row.EventType), row.Payload)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", row.EventID, err)
		}
		events = append(events, types.Event{
			EventID:       row.EventID,
			Type:          types.EventType(row.EventType),
			CorrelationID: row.CorrelationID,
			OrderID:       row.OrderID,
			UserID:        row.UserID,
			Timestamp:     row.Timestamp,
			Payload:       payload,
		})
	}
	return events, nil
}

// Count returns the number of persisted events.
func (s *EventStore) Count() (int64, error) {
	var n int64
	if err := s.db.Model(&eventRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Close releases the underlying database handle.
func (s *EventStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
