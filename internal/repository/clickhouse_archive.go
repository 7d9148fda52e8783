package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"SignalHub/internal/domain/models"
	domrepo "SignalHub/internal/domain/repository"
	pkgch "SignalHub/pkg/clickhouse"
	applogger "SignalHub/pkg/logger"
)

const archiveChunkSize = 2000

// ArchiveSchema creates the candle archive table. ReplacingMergeTree keeps the
// newest version of each (ticker, interval, bucket).
func ArchiveSchema(table string) []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            ticker     LowCardinality(String),
            interval   LowCardinality(String),
            bucket     DateTime('UTC'),
            open       Decimal(38, 10),
            high       Decimal(38, 10),
            low        Decimal(38, 10),
            close      Decimal(38, 10),
            volume     Decimal(38, 10),
            fetched_at DateTime64(3, 'UTC')
        ) ENGINE = ReplacingMergeTree(fetched_at)
        ORDER BY (ticker, interval, bucket)
    `, table)}
}

// ClickHouseArchive implements CandleArchive for ClickHouse.
type ClickHouseArchive struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	l     *applogger.Logger
}

// NewClickHouseArchive creates the archive and ensures its table exists. The
// archive takes ownership of ch.
func NewClickHouseArchive(ctx context.Context, ch *pkgch.Client, table string, l *applogger.Logger) (*ClickHouseArchive, error) {
	if err := ch.InitSchema(ctx, ArchiveSchema(table)); err != nil {
		return nil, err
	}
	return &ClickHouseArchive{ch: ch, db: ch.DB(), table: table, l: l}, nil
}

var _ domrepo.CandleArchive = (*ClickHouseArchive)(nil)

func (s *ClickHouseArchive) StoreCandles(ctx context.Context, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	fetchedAt := time.Now().UTC()

	for start := 0; start < len(candles); start += archiveChunkSize {
		end := start + archiveChunkSize
		if end > len(candles) {
			end = len(candles)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*9)
		for _, c := range candles[start:end] {
			if c.IsFallback || c.Ticker == "" {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				c.Ticker,
				c.Interval,
				c.Bucket.UTC(),
				c.Open.String(),
				c.High.String(),
				c.Low.String(),
				c.Close.String(),
				c.Volume.String(),
				fetchedAt,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ticker, interval, bucket, open, high, low, close, volume, fetched_at) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse archive insert error",
				applogger.String("table", s.table),
				applogger.Int("rows", len(values)),
				applogger.Error(err),
			)
			return fmt.Errorf("archive candles: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseArchive) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseArchive) Close() error {
	if s.ch == nil {
		return nil
	}
	return s.ch.Close()
}
