package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// DefaultSessionID names the implicit session used when the caller does
// not manage sessions explicitly.
const DefaultSessionID = "default"

// Session is the persisted state of one collection session. Active and
// LastCount survive restarts so an interrupted session can resume.
type Session struct {
	SessionID       string `json:"session_id"`
	Active          bool   `json:"active"`
	PageURL         string `json:"page_url,omitempty"`
	Selector        string `json:"selector"`
	ContentSelector string `json:"content_selector,omitempty"`
	LastCount       int    `json:"last_count"`
	UpdatedAt       int64  `json:"updated_at"`
}

// SaveSession inserts or replaces the session row.
func (s *Store) SaveSession(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = time.Now().UnixMilli()

	active := 0
	if sess.Active {
		active = 1
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO sessions (session_id, active, page_url, selector, content_selector, last_count, updated_at)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(session_id) DO UPDATE SET
			active=excluded.active,
			page_url=excluded.page_url,
			selector=excluded.selector,
			content_selector=excluded.content_selector,
			last_count=excluded.last_count,
			updated_at=excluded.updated_at`,
		sess.SessionID, active, sess.PageURL, sess.Selector, sess.ContentSelector, sess.LastCount, sess.UpdatedAt,
	)
	return err
}

// GetSession retrieves a session by id. Returns nil when absent.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	sess := &Session{}
	var active int

	err := s.DB.QueryRowContext(ctx, `
		SELECT session_id, active, page_url, selector, content_selector, last_count, updated_at
		FROM sessions WHERE session_id = ?`, id).Scan(
		&sess.SessionID, &active, &sess.PageURL, &sess.Selector, &sess.ContentSelector, &sess.LastCount, &sess.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sess.Active = active != 0
	return sess, nil
}

// SetActive flips just the active flag without touching selectors.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	v := 0
	if active {
		v = 1
	}
	_, err := s.DB.ExecContext(ctx, `
		UPDATE sessions SET active=?, updated_at=? WHERE session_id=?`,
		v, time.Now().UnixMilli(), id,
	)
	return err
}

// SetLastCount records the current collected-record count for a session.
func (s *Store) SetLastCount(ctx context.Context, id string, count int) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE sessions SET last_count=?, updated_at=? WHERE session_id=?`,
		count, time.Now().UnixMilli(), id,
	)
	return err
}

// ActiveSessions returns all sessions whose active flag is set.
func (s *Store) ActiveSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT session_id, active, page_url, selector, content_selector, last_count, updated_at
		FROM sessions WHERE active = 1 ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess := &Session{}
		var active int
		if err := rows.Scan(&sess.SessionID, &active, &sess.PageURL, &sess.Selector,
			&sess.ContentSelector, &sess.LastCount, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		sess.Active = active != 0
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
