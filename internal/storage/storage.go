// internal/storage/storage.go
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rovshanmuradov/pumpbot/internal/domain"
	"github.com/rovshanmuradov/pumpbot/internal/events"
	"github.com/rovshanmuradov/pumpbot/internal/storage/models"
)

// Storage persists tracked positions and the trade log in SQLite or PostgreSQL.
type Storage struct {
	db     *gorm.DB
	logger *zap.Logger

	mu   sync.Mutex
	subs []events.Subscription
}

// Open connects to dsn. postgres:// and postgresql:// URLs select PostgreSQL,
// anything else is treated as a SQLite file path.
func Open(dsn string, zapLogger *zap.Logger) (*Storage, error) {
	zapLogger = zapLogger.Named("storage")
	cfg := &gorm.Config{
		Logger: newGormLogger(zapLogger.Named("gorm")),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
	}

	var (
		dialector gorm.Dialector
		driver    string
	)
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector, driver = postgres.Open(dsn), "postgres"
	} else {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dialector, driver = sqlite.Open(dsn), "sqlite"
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if driver == "sqlite" {
		// SQLite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	s := &Storage{db: db, logger: zapLogger}
	if err := s.RunMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	zapLogger.Info("Database connected", zap.String("driver", driver))
	return s, nil
}

// RunMigrations creates or updates the tables.
func (s *Storage) RunMigrations() error {
	if err := s.db.AutoMigrate(&models.Position{}, &models.Transaction{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// SavePositions replaces the stored positions with the given set.
func (s *Storage) SavePositions(ctx context.Context, positions []domain.Position) error {
	rows := make([]models.Position, 0, len(positions))
	ids := make([]string, 0, len(positions))
	for _, p := range positions {
		if p.Status == domain.StatusClosed {
			continue
		}
		rows = append(rows, models.FromDomain(p))
		ids = append(ids, p.TokenID)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		del := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if len(ids) > 0 {
			del = del.Where("token_id NOT IN ?", ids)
		}
		if err := del.Delete(&models.Position{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "token_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "entry_value", "peak_value", "history", "owned_amount",
				"origin", "status", "opened_at", "last_seen_at", "updated_at",
			}),
		}).Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("save positions: %w", err)
	}
	return nil
}

// LoadPositions returns every stored position ordered by token.
func (s *Storage) LoadPositions(ctx context.Context) ([]domain.Position, error) {
	var rows []models.Position
	if err := s.db.WithContext(ctx).Order("token_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	out := make([]domain.Position, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToDomain())
	}
	return out, nil
}

// SaveTransaction appends a trade attempt to the log.
func (s *Storage) SaveTransaction(ctx context.Context, tx *models.Transaction) error {
	return s.db.WithContext(ctx).Create(tx).Error
}

// ListTransactions returns the newest trade attempts for tokenID, or for all
// tokens when tokenID is empty.
func (s *Storage) ListTransactions(ctx context.Context, tokenID string, limit int) ([]*models.Transaction, error) {
	q := s.db.WithContext(ctx).Order("executed_at desc").Order("id desc")
	if tokenID != "" {
		q = q.Where("token_id = ?", tokenID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var txs []*models.Transaction
	err := q.Find(&txs).Error
	return txs, err
}

// Attach records trade outcomes published on bus.
func (s *Storage) Attach(bus *events.Bus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range []events.EventType{events.PositionOpened, events.PositionClosed, events.TradeFailed} {
		s.subs = append(s.subs, bus.SubscribeFunc(t, s.handle))
	}
}

func (s *Storage) handle(ctx context.Context, e events.Event) error {
	tx := transactionFromEvent(e)
	if tx == nil {
		return nil
	}
	if err := s.SaveTransaction(ctx, tx); err != nil {
		s.logger.Warn("Failed to record trade",
			zap.String("token", tx.TokenID),
			zap.String("action", tx.Action),
			zap.Error(err))
		return err
	}
	return nil
}

func transactionFromEvent(e events.Event) *models.Transaction {
	switch ev := e.(type) {
	case events.PositionOpenedEvent:
		return &models.Transaction{
			Signature:  ev.Reference,
			TokenID:    ev.Position.TokenID,
			Action:     string(domain.ActionBuy),
			Origin:     string(ev.Position.Origin),
			Status:     models.StatusConfirmed,
			AmountSOL:  ev.AmountSOL,
			EntryValue: ev.Position.EntryValue,
			ExecutedAt: ev.Timestamp(),
		}
	case events.PositionClosedEvent:
		exit := ev.Position.LastValue()
		tx := &models.Transaction{
			Signature:  ev.Reference,
			TokenID:    ev.Position.TokenID,
			Action:     string(domain.ActionSell),
			Origin:     string(ev.Position.Origin),
			Status:     models.StatusConfirmed,
			EntryValue: ev.Position.EntryValue,
			ExitValue:  exit,
			Reason:     ev.Reason,
			ExecutedAt: ev.Timestamp(),
		}
		if ev.Position.EntryValue > 0 {
			tx.PnLPercent = ev.Position.PercentChange(exit)
		}
		return tx
	case events.TradeFailedEvent:
		tx := &models.Transaction{
			IntentID:   ev.Intent.ID,
			TokenID:    ev.Intent.TokenID,
			Action:     string(ev.Intent.Action),
			Origin:     string(ev.Position.Origin),
			Status:     models.StatusFailed,
			EntryValue: ev.Position.EntryValue,
			Failures:   ev.Failures,
			ExecutedAt: ev.Timestamp(),
		}
		if ev.Err != nil {
			tx.ErrorMessage = ev.Err.Error()
		}
		return tx
	}
	return nil
}

// Close detaches from the bus and closes the connection pool.
func (s *Storage) Close() error {
	s.mu.Lock()
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
	s.mu.Unlock()

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
