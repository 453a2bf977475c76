// Package archive ships position history to ClickHouse for long-term,
// high-volume retention. The sink is optional; a nil *Sink is a no-op so
// the pipeline runs unchanged without it.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/skywatch-data/skywatch/internal/model"
)

// Config holds ClickHouse connection settings.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// Sink wraps a ClickHouse connection for position archival.
type Sink struct {
	conn driver.Conn
}

// Open connects and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return &Sink{conn: conn}, nil
}

// Close closes the connection.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	return s.conn.Close()
}

// CreateSchema creates the archive table.
func (s *Sink) CreateSchema(ctx context.Context) error {
	err := s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS position_history (
			hex             LowCardinality(String),
			time            DateTime64(3),
			lat             Float64,
			lon             Float64,
			altitude_ft     Nullable(Float64),
			ground_speed    Nullable(Float64),
			track           Nullable(Float64),
			vertical_rate   Nullable(Float64),
			source          LowCardinality(String),
			created_at      DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(time)
		ORDER BY (hex, time)
		SETTINGS index_granularity = 8192
	`)
	if err != nil {
		return fmt.Errorf("create archive schema: %w", err)
	}
	return nil
}

// WritePositions appends a batch. A nil sink drops the batch silently.
func (s *Sink) WritePositions(ctx context.Context, positions []model.Position) error {
	if s == nil || len(positions) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO position_history (hex, time, lat, lon, altitude_ft, ground_speed, track, vertical_rate, source)
	`)
	if err != nil {
		return fmt.Errorf("prepare archive batch: %w", err)
	}
	for _, p := range positions {
		if err := batch.Append(p.Hex, p.Time, p.Lat, p.Lon, p.AltitudeFt, p.GroundSpeed, p.Track, p.VerticalRate, p.Source); err != nil {
			return fmt.Errorf("append archive row %s: %w", p.Hex, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send archive batch: %w", err)
	}
	return nil
}
