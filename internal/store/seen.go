package store

import (
	"context"
	"time"
)

// AddSeen records logical ids as collected for a session. Already-known
// ids are ignored.
func (s *Store) AddSeen(ctx context.Context, sessionID string, logicalIDs ...string) error {
	if len(logicalIDs) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	for _, id := range logicalIDs {
		if id == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO seen_ids (session_id, logical_id, seen_at)
			VALUES (?,?,?) ON CONFLICT DO NOTHING`,
			sessionID, id, now,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SeenIDs returns all logical ids recorded for a session.
func (s *Store) SeenIDs(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT logical_id FROM seen_ids WHERE session_id = ? ORDER BY seen_at`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClearSeen forgets all logical ids for a session.
func (s *Store) ClearSeen(ctx context.Context, sessionID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM seen_ids WHERE session_id = ?`, sessionID)
	return err
}
