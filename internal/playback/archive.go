package playback

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Archive persists frames in a local SQLite file for later replay.
type Archive struct {
	db *sql.DB
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS frames (
	ts_unix_ms INTEGER PRIMARY KEY,
	aircraft   BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_frames_ts ON frames (ts_unix_ms);
`

// OpenArchive opens (creating if needed) a frame archive at path.
func OpenArchive(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open frame archive %s: %w", path, err)
	}
	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init frame archive %s: %w", path, err)
	}
	return &Archive{db: db}, nil
}

// Close releases the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// WriteFrame stores one frame, replacing any frame at the same instant.
func (a *Archive) WriteFrame(ctx context.Context, f Frame) error {
	payload, err := json.Marshal(f.Aircraft)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	_, err = a.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO frames (ts_unix_ms, aircraft) VALUES (?, ?)`,
		f.Time.UTC().UnixMilli(), payload)
	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// FramesBetween loads the ordered frames inside [from, to].
func (a *Archive) FramesBetween(ctx context.Context, from, to time.Time) ([]Frame, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT ts_unix_ms, aircraft FROM frames
		 WHERE ts_unix_ms BETWEEN ? AND ? ORDER BY ts_unix_ms`,
		from.UTC().UnixMilli(), to.UTC().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var out []Frame
	for rows.Next() {
		var ms int64
		var payload []byte
		if err := rows.Scan(&ms, &payload); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		f := Frame{Time: time.UnixMilli(ms).UTC()}
		if err := json.Unmarshal(payload, &f.Aircraft); err != nil {
			return nil, fmt.Errorf("decode frame at %d: %w", ms, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Prune deletes frames older than the cutoff and returns how many went.
func (a *Archive) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := a.db.ExecContext(ctx,
		`DELETE FROM frames WHERE ts_unix_ms < ?`, cutoff.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune frames: %w", err)
	}
	return res.RowsAffected()
}
