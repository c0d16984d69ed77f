package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DATABASE - State blobs and trade journal
// ═══════════════════════════════════════════════════════════════════════════════

type Database struct {
	db *gorm.DB
}

// Models

// StateBlob is one opaque state value
type StateBlob struct {
	Name      string `gorm:"primaryKey"`
	Data      []byte
	UpdatedAt time.Time
}

// TradeRecord is one journaled order or fill
type TradeRecord struct {
	ID           uint            `gorm:"primaryKey;autoIncrement"`
	Symbol       string          `gorm:"index"`
	Kind         string          // market, reverse, trailing, stop_loss, fill
	Side         string          // buy or sell
	Size         decimal.Decimal `gorm:"type:decimal(20,8)"`
	Price        decimal.Decimal `gorm:"type:decimal(20,8)"`
	OrderID      string          `gorm:"index"`
	ClientOid    string
	Status       string // placed, failed, filled, protected, partial, unprotected
	ErrorMessage string
	CreatedAt    time.Time
}

// New opens a PostgreSQL database for postgres:// URLs and SQLite otherwise
func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Database connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&StateBlob{}, &TradeRecord{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// Close releases the underlying connection pool
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// State blob operations

// Load returns the blob stored under key, or ErrNotFound
func (d *Database) Load(ctx context.Context, key string) ([]byte, error) {
	var blob StateBlob
	err := d.db.WithContext(ctx).First(&blob, "name = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return blob.Data, nil
}

// Save upserts the blob under key
func (d *Database) Save(ctx context.Context, key string, data []byte) error {
	blob := StateBlob{Name: key, Data: data, UpdatedAt: time.Now()}
	return d.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&blob).Error
}

// Trade journal operations

// RecordTrade appends one journal entry
func (d *Database) RecordTrade(ctx context.Context, rec *TradeRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	return d.db.WithContext(ctx).Create(rec).Error
}

// RecentTrades returns the newest journal entries, for all symbols when symbol is empty
func (d *Database) RecentTrades(ctx context.Context, symbol string, limit int) ([]TradeRecord, error) {
	var trades []TradeRecord
	q := d.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	err := q.Find(&trades).Error
	return trades, err
}
