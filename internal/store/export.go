package store

import (
	"context"
	"time"
)

// Export is one row of export history.
type Export struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	Filename    string `json:"filename"`
	RecordCount int    `json:"record_count"`
	CreatedAt   int64  `json:"created_at"`
}

// InsertExport records a written export file.
func (s *Store) InsertExport(ctx context.Context, e *Export) error {
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO exports (id, session_id, filename, record_count, created_at)
		VALUES (?,?,?,?,?)`,
		e.ID, e.SessionID, e.Filename, e.RecordCount, e.CreatedAt,
	)
	return err
}

// ListExports returns export history for a session, newest first.
func (s *Store) ListExports(ctx context.Context, sessionID string) ([]*Export, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, session_id, filename, record_count, created_at
		FROM exports WHERE session_id = ? ORDER BY created_at DESC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exports []*Export
	for rows.Next() {
		e := &Export{}
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Filename, &e.RecordCount, &e.CreatedAt); err != nil {
			return nil, err
		}
		exports = append(exports, e)
	}
	return exports, rows.Err()
}
