package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"ethpool/core/events"
	"ethpool/core/types"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// MaxPage bounds the number of records returned by List.
	MaxPage = 500
)

// accountKeys are the event attributes that name the participant an event
// concerns, in precedence order.
var accountKeys = []string{"account", "member", "depositor", "caller"}

// Record is one committed ledger event.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"size:64;index;not null"`
	Epoch      *uint64   `gorm:"index"`
	Account    string    `gorm:"size:42;index"`
	Attributes string    `gorm:"type:text;not null"`
	CreatedAt  time.Time
}

// TableName pins the table name independent of the struct name.
func (Record) TableName() string { return "pool_events" }

// Decoded returns the stored attributes as an event.
func (r Record) Decoded() (*types.Event, error) {
	attrs := map[string]string{}
	if r.Attributes != "" {
		if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", r.Sequence, err)
		}
	}
	return &types.Event{Type: r.Type, Attributes: attrs}, nil
}

// Query filters List. Zero values match everything.
type Query struct {
	Type          string
	Account       string
	Epoch         *uint64
	AfterSequence uint64
	Limit         int
}

// Log is an append-only SQL index of committed ledger events. It implements
// events.Emitter.
type Log struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	seq uint64
}

// Open connects to driver/dsn and prepares the schema.
func Open(driver, dsn string, logger *slog.Logger) (*Log, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("eventlog: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", driver, err)
	}
	log, err := New(db, logger)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	return log, nil
}

// New wraps an existing gorm handle, migrating the schema and resuming the
// sequence counter.
func New(db *gorm.DB, logger *slog.Logger) (*Log, error) {
	if db == nil {
		return nil, errors.New("eventlog: db required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("eventlog: migrate: %w", err)
	}
	var last struct{ Max *uint64 }
	if err := db.Model(&Record{}).Select("MAX(sequence) AS max").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("eventlog: load sequence: %w", err)
	}
	l := &Log{db: db, logger: logger, now: time.Now}
	if last.Max != nil {
		l.seq = *last.Max
	}
	return l, nil
}

// Emit implements events.Emitter. Failures are logged; the ledger has
// already committed.
func (l *Log) Emit(evt events.Event) {
	if l == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	if _, err := l.Append(context.Background(), payload); err != nil {
		l.logger.Error("event log append failed",
			slog.String("event", payload.Type),
			slog.Any("error", err))
	}
}

// Append stores evt with the next sequence number.
func (l *Log) Append(ctx context.Context, evt *types.Event) (*Record, error) {
	if evt == nil || strings.TrimSpace(evt.Type) == "" {
		return nil, errors.New("eventlog: event type required")
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return nil, fmt.Errorf("eventlog: encode attributes: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	record := &Record{
		ID:         uuid.New(),
		Sequence:   l.seq + 1,
		Type:       evt.Type,
		Epoch:      epochOf(evt),
		Account:    accountOf(evt),
		Attributes: string(attrs),
		CreatedAt:  l.now().UTC(),
	}
	if err := l.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("eventlog: insert: %w", err)
	}
	l.seq = record.Sequence
	return record, nil
}

// List returns records matching q in sequence order.
func (l *Log) List(ctx context.Context, q Query) ([]Record, error) {
	limit := q.Limit
	if limit <= 0 || limit > MaxPage {
		limit = MaxPage
	}
	tx := l.db.WithContext(ctx).Model(&Record{}).Where("sequence > ?", q.AfterSequence)
	if q.Type != "" {
		tx = tx.Where("type = ?", q.Type)
	}
	if q.Account != "" {
		tx = tx.Where("account = ?", q.Account)
	}
	if q.Epoch != nil {
		tx = tx.Where("epoch = ?", *q.Epoch)
	}
	var out []Record
	if err := tx.Order("sequence ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("eventlog: list: %w", err)
	}
	return out, nil
}

// Sequence returns the last assigned sequence number.
func (l *Log) Sequence() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// Close releases the underlying connection pool.
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func epochOf(evt *types.Event) *uint64 {
	raw := evt.Attr("epoch")
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &value
}

func accountOf(evt *types.Event) string {
	for _, key := range accountKeys {
		if value := evt.Attr(key); value != "" {
			return value
		}
	}
	return ""
}
