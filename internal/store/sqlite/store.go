// Package sqlite provides the durable Store implementation backed by a
// local SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/parleychat/parley/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	login TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS topics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);
`

// Store persists accounts and topic metadata in SQLite. A single mutex
// serializes all calls; the database is shared by every session.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and bootstraps the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store open failed (%s): %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store schema failed (%s): %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) AuthenticateAccount(ctx context.Context, login, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hash string
	row := s.db.QueryRowContext(ctx, "SELECT password_hash FROM profiles WHERE login = ?", strings.TrimSpace(login))
	if err := row.Scan(&hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrBadCredentials
		}
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return store.ErrBadCredentials
	}
	return nil
}

func (s *Store) CreateAccount(ctx context.Context, login, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(login)
	var existing string
	row := s.db.QueryRowContext(ctx, "SELECT login FROM profiles WHERE login = ?", key)
	if err := row.Scan(&existing); err == nil {
		return store.ErrLoginExists
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "INSERT INTO profiles (login, password_hash) VALUES (?, ?)", key, string(hash))
	return err
}

func (s *Store) CreateTopic(ctx context.Context, name string) (store.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(name)
	var existing uint64
	row := s.db.QueryRowContext(ctx, "SELECT id FROM topics WHERE name = ?", key)
	if err := row.Scan(&existing); err == nil {
		return store.Topic{}, store.ErrTopicExists
	} else if !errors.Is(err, sql.ErrNoRows) {
		return store.Topic{}, err
	}

	res, err := s.db.ExecContext(ctx, "INSERT INTO topics (name) VALUES (?)", key)
	if err != nil {
		return store.Topic{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return store.Topic{}, err
	}
	return store.Topic{ID: uint64(id), Name: key}, nil
}

func (s *Store) GetTopic(ctx context.Context, id uint64) (store.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var name string
	row := s.db.QueryRowContext(ctx, "SELECT name FROM topics WHERE id = ?", id)
	if err := row.Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Topic{}, store.ErrTopicNotFound
		}
		return store.Topic{}, err
	}
	return store.Topic{ID: id, Name: name}, nil
}

func (s *Store) ListTopics(ctx context.Context) ([]store.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM topics ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]store.Topic, 0)
	for rows.Next() {
		var topic store.Topic
		if err := rows.Scan(&topic.ID, &topic.Name); err != nil {
			return nil, err
		}
		out = append(out, topic)
	}
	return out, rows.Err()
}
