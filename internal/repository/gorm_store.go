package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"SignalHub/internal/domain/models"
	domrepo "SignalHub/internal/domain/repository"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// GormStore is the durable Repository backed by Postgres or SQLite.
type GormStore struct {
	db *gorm.DB
}

// OpenGormStore connects, verifies and migrates the schema.
func OpenGormStore(ctx context.Context, driver, dsn string, maxOpenConns int) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get database: %w", err)
	}
	if maxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(maxOpenConns)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&models.Ticker{}, &models.Signal{}, &models.Candle{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) GetEnabledTickers(ctx context.Context) ([]models.Ticker, error) {
	var out []models.Ticker
	err := s.db.WithContext(ctx).Where(map[string]interface{}{"is_enabled": true}).Order("symbol").Find(&out).Error
	if err != nil {
		return nil, persistence("get enabled tickers", err)
	}
	return out, nil
}

func (s *GormStore) ListTickers(ctx context.Context, f models.TickerFilter) ([]models.Ticker, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Ticker{})
	if f.Search != "" {
		query = query.Where("symbol LIKE ?", "%"+strings.ToUpper(f.Search)+"%")
	}
	if f.Category != "" {
		query = query.Where("category = ?", f.Category)
	}
	if f.Enabled != nil {
		query = query.Where(map[string]interface{}{"is_enabled": *f.Enabled})
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, persistence("count tickers", err)
	}

	var out []models.Ticker
	q := query.Order("symbol").Offset(f.Offset)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, 0, persistence("list tickers", err)
	}
	return out, total, nil
}

func (s *GormStore) GetTickerBySymbol(ctx context.Context, symbol string) (*models.Ticker, error) {
	var t models.Ticker
	if err := s.db.WithContext(ctx).Where("symbol = ?", symbol).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domrepo.ErrNotFound
		}
		return nil, persistence("get ticker", err)
	}
	return &t, nil
}

func (s *GormStore) UpsertTicker(ctx context.Context, t models.Ticker) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"description", "category", "is_enabled", "updated_at"}),
	}).Create(&t).Error
	if err != nil {
		return persistence("upsert ticker", err)
	}
	return nil
}

// CreateSignal upserts by id in one statement. created_at is never
// overwritten, so the call created the row exactly when the stored
// created_at is the one it wrote.
func (s *GormStore) CreateSignal(ctx context.Context, sig models.Signal) (models.Signal, bool, error) {
	db := s.db.WithContext(ctx)
	now := time.Now().UTC().Truncate(time.Microsecond)
	sig.CreatedAt = now
	sig.UpdatedAt = now

	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"ticker", "direction", "price", "timestamp", "timeframe", "source", "note", "user_id", "updated_at",
		}),
	}).Create(&sig).Error
	if err != nil {
		return models.Signal{}, false, persistence("create signal", err)
	}

	var stored models.Signal
	if err := db.Where("id = ?", sig.ID).Take(&stored).Error; err != nil {
		return models.Signal{}, false, persistence("reload signal", err)
	}
	return stored, stored.CreatedAt.Equal(now), nil
}

func (s *GormStore) GetSignalByID(ctx context.Context, id string) (*models.Signal, error) {
	var sig models.Signal
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&sig).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domrepo.ErrNotFound
		}
		return nil, persistence("get signal", err)
	}
	return &sig, nil
}

func (s *GormStore) GetSignalsByTicker(ctx context.Context, ticker, timeframe string, limit int) ([]models.Signal, error) {
	query := s.db.WithContext(ctx).Where("ticker = ?", ticker)
	if timeframe != "" {
		query = query.Where("timeframe = ?", timeframe)
	}
	query = query.Order("timestamp DESC").Order("id")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var out []models.Signal
	if err := query.Find(&out).Error; err != nil {
		return nil, persistence("get signals", err)
	}
	return out, nil
}

func (s *GormStore) GetOhlcData(ctx context.Context, ticker, interval string, r domrepo.OhlcRange) ([]models.Candle, error) {
	query := s.db.WithContext(ctx).Where(&models.Candle{Ticker: ticker, Interval: interval})
	if r.Start != nil {
		query = query.Where("bucket >= ?", r.Start.UTC())
	}
	if r.End != nil {
		query = query.Where("bucket <= ?", r.End.UTC())
	}
	query = query.Order("bucket DESC")
	if r.Limit > 0 {
		query = query.Limit(r.Limit)
	}

	var out []models.Candle
	if err := query.Find(&out).Error; err != nil {
		return nil, persistence("get ohlc", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	for i := range out {
		out[i].Bucket = out[i].Bucket.UTC()
	}
	return out, nil
}

func (s *GormStore) UpsertOhlcData(ctx context.Context, candles ...models.Candle) error {
	rows := make([]models.Candle, 0, len(candles))
	for _, c := range candles {
		if c.IsFallback {
			continue
		}
		c.ID = 0
		c.Bucket = c.Bucket.UTC()
		rows = append(rows, c)
	}
	if len(rows) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ticker"}, {Name: "interval"}, {Name: "bucket"}},
		DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume", "updated_at"}),
	}).CreateInBatches(rows, 500).Error
	if err != nil {
		return persistence("upsert ohlc", err)
	}
	return nil
}

func (s *GormStore) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return persistence("health", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return persistence("health", err)
	}
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domrepo.ErrPersistence, err)
}
