package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/watchparty/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id           INTEGER PRIMARY KEY,
	username     TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	avatar_url   TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id INTEGER NOT NULL,
	user_id    INTEGER NOT NULL,
	body       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_session_idx ON messages (session_id, id);
`

type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = "./watchparty.db"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	// sqlite serialises writers anyway; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) PersistChat(ctx context.Context, sid domain.SessionID, uid domain.UserID, body string) (domain.Message, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (session_id, user_id, body, created_at) VALUES (?, ?, ?, ?)",
		int64(sid), int64(uid), body, now)
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to read message id: %w", err)
	}
	return domain.Message{ID: id, SessionID: sid, UserID: uid, Body: body, CreatedAt: now}, nil
}

func (s *SQLiteStore) LookupUser(ctx context.Context, uid domain.UserID) (domain.User, error) {
	var u domain.User
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, display_name, avatar_url FROM users WHERE id = ?", int64(uid)).
		Scan(&id, &u.Username, &u.DisplayName, &u.AvatarURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, fmt.Errorf("error querying user: %w", err)
	}
	u.ID = domain.UserID(id)
	return u, nil
}

func (s *SQLiteStore) PutUser(ctx context.Context, u domain.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, display_name, avatar_url) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET username = excluded.username,
		 display_name = excluded.display_name, avatar_url = excluded.avatar_url`,
		int64(u.ID), u.Username, u.DisplayName, u.AvatarURL)
	if err != nil {
		return fmt.Errorf("failed to upsert user %d: %w", u.ID, err)
	}
	return nil
}

// Messages lists one session's chat log oldest first.
func (s *SQLiteStore) Messages(ctx context.Context, sid domain.SessionID) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, body, created_at FROM messages WHERE session_id = ? ORDER BY id", int64(sid))
	if err != nil {
		return nil, fmt.Errorf("failed to query messages for %d: %w", sid, err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		var uid int64
		if err := rows.Scan(&m.ID, &uid, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.SessionID = sid
		m.UserID = domain.UserID(uid)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages for %d: %w", sid, err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
