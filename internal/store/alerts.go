package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/skywatch-data/skywatch/internal/alerts"
	"github.com/skywatch-data/skywatch/internal/news"
)

// InsertAlert persists one intelligence alert and fills in its id.
func (s *Store) InsertAlert(ctx context.Context, a *alerts.Alert) error {
	aircraftJSON, err := json.Marshal(a.Aircraft)
	if err != nil {
		return fmt.Errorf("encode alert aircraft: %w", err)
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO alerts (event_id, type, title, details, severity, aircraft, region, news_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, a.EventID, a.Type, a.Title, a.Details, a.Severity, aircraftJSON, a.Region, a.NewsURL, a.CreatedAt).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert alert %q: %w", a.Title, err)
	}
	return nil
}

// RecentAlertExists reports whether an alert with the same (type, title)
// was emitted after the cutoff.
func (s *Store) RecentAlertExists(ctx context.Context, alertType, title string, cutoff time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM alerts WHERE type = $1 AND title = $2 AND created_at > $3
		)
	`, alertType, title, cutoff).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("recent alert check %q: %w", title, err)
	}
	return exists, nil
}

// AlertsSince returns alerts newer than since, newest first.
func (s *Store) AlertsSince(ctx context.Context, since time.Time) ([]alerts.Alert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_id, type, title, details, severity, aircraft, region, news_url, created_at
		FROM alerts WHERE created_at >= $1 ORDER BY created_at DESC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("alerts since: %w", err)
	}
	defer rows.Close()

	var out []alerts.Alert
	for rows.Next() {
		var a alerts.Alert
		var aircraftJSON []byte
		if err := rows.Scan(&a.ID, &a.EventID, &a.Type, &a.Title, &a.Details, &a.Severity,
			&aircraftJSON, &a.Region, &a.NewsURL, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if err := json.Unmarshal(aircraftJSON, &a.Aircraft); err != nil {
			return nil, fmt.Errorf("decode alert %d aircraft: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// NewsEvent is one persisted news record.
type NewsEvent struct {
	ID            int64
	URL           string
	Title         string
	SeenDate      time.Time
	SourceCountry string
	Tone          float64
	Region        string
}

// UpsertNewsEvent inserts a news record; the URL deduplicates re-fetches.
func (s *Store) UpsertNewsEvent(ctx context.Context, ev *NewsEvent) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO news_events (url, title, seendate, source_country, tone, region)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (url) DO UPDATE SET
			title = EXCLUDED.title,
			seendate = EXCLUDED.seendate,
			tone = EXCLUDED.tone
		RETURNING id
	`, ev.URL, ev.Title, ev.SeenDate, ev.SourceCountry, ev.Tone, ev.Region).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("upsert news event %s: %w", ev.URL, err)
	}
	return nil
}

// SaveArticle persists one fetched article as a news event.
func (s *Store) SaveArticle(ctx context.Context, a news.Article) error {
	ev := NewsEvent{
		URL:           a.URL,
		Title:         a.Title,
		SeenDate:      a.SeenDate,
		SourceCountry: a.SourceCountry,
		Tone:          a.Tone,
		Region:        a.Region,
	}
	return s.UpsertNewsEvent(ctx, &ev)
}

// NewsEventsSince returns news records seen after since, as the alert
// generator consumes them.
func (s *Store) NewsEventsSince(ctx context.Context, since time.Time) ([]alerts.NewsEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT url, title, seendate
		FROM news_events WHERE seendate >= $1 ORDER BY seendate DESC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("news events since: %w", err)
	}
	defer rows.Close()

	var out []alerts.NewsEvent
	for rows.Next() {
		var ev alerts.NewsEvent
		if err := rows.Scan(&ev.URL, &ev.Title, &ev.SeenDate); err != nil {
			return nil, fmt.Errorf("scan news event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
