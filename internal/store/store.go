package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"lmswatch/internal/core"
)

const defaultWindowWeeks = 2

// ErrNotRegistered is returned when a subscriber is not in the store.
var ErrNotRegistered = errors.New("subscriber not registered")

// Subscriber is a registered user with decrypted portal credentials and a
// look-ahead window preference.
type Subscriber struct {
	ID          string
	Username    string
	Password    string
	WindowWeeks int
}

// Store is the durable subscriber store. Portal passwords are encrypted at
// rest; they only exist in plaintext inside the returned Subscriber values.
type Store struct {
	db     *sql.DB
	box    *Box
	logger *core.Logger
}

// Open opens (creating if necessary) the subscriber database at path.
func Open(path string, box *Box, logger *core.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, box: box, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			encrypted_password TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_preferences (
			user_id TEXT PRIMARY KEY,
			time_window INTEGER NOT NULL
		)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

// AddUser registers a subscriber, replacing any existing registration.
func (s *Store) AddUser(ctx context.Context, id, username, password string) error {
	encrypted, err := s.box.Encrypt(password)
	if err != nil {
		return fmt.Errorf("failed to encrypt password: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO users (user_id, username, encrypted_password)
		VALUES (?, ?, ?)`, id, username, encrypted)
	if err != nil {
		return fmt.Errorf("failed to add user: %w", err)
	}

	s.logger.Info("Registered subscriber", "subscriber_id", id)
	return nil
}

// Get returns a single subscriber with decrypted credentials.
func (s *Store) Get(ctx context.Context, id string) (Subscriber, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT u.user_id, u.username, u.encrypted_password, COALESCE(p.time_window, ?)
		FROM users u
		LEFT JOIN user_preferences p ON p.user_id = u.user_id
		WHERE u.user_id = ?`, defaultWindowWeeks, id)

	return s.scanSubscriber(row)
}

// GetAll returns every registered subscriber with decrypted credentials.
func (s *Store) GetAll(ctx context.Context) ([]Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.user_id, u.username, u.encrypted_password, COALESCE(p.time_window, ?)
		FROM users u
		LEFT JOIN user_preferences p ON p.user_id = u.user_id
		ORDER BY u.user_id`, defaultWindowWeeks)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var subs []Subscriber
	for rows.Next() {
		sub, err := s.scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanSubscriber(row rowScanner) (Subscriber, error) {
	var sub Subscriber
	var encrypted string

	err := row.Scan(&sub.ID, &sub.Username, &encrypted, &sub.WindowWeeks)
	if errors.Is(err, sql.ErrNoRows) {
		return Subscriber{}, ErrNotRegistered
	}
	if err != nil {
		return Subscriber{}, fmt.Errorf("failed to scan subscriber: %w", err)
	}

	sub.Password, err = s.box.Decrypt(encrypted)
	if err != nil {
		return Subscriber{}, fmt.Errorf("subscriber %s: %w", sub.ID, err)
	}
	return sub, nil
}

// Exists reports whether a subscriber is registered.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE user_id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return true, nil
}

// Remove deletes a subscriber and their preferences.
func (s *Store) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove user: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_preferences WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove preferences: %w", err)
	}

	s.logger.Info("Removed subscriber", "subscriber_id", id)
	return nil
}

// RemoveAll deletes every subscriber. Used by the owner-only purge command.
func (s *Store) RemoveAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return fmt.Errorf("failed to remove users: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_preferences`); err != nil {
		return fmt.Errorf("failed to remove preferences: %w", err)
	}

	s.logger.Info("Removed all subscribers")
	return nil
}

// SetWindow stores a subscriber's look-ahead window preference in weeks.
func (s *Store) SetWindow(ctx context.Context, id string, weeks int) error {
	if weeks < 1 || weeks > 4 {
		return fmt.Errorf("window must be between 1 and 4 weeks, got %d", weeks)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO user_preferences (user_id, time_window)
		VALUES (?, ?)`, id, weeks)
	if err != nil {
		return fmt.Errorf("failed to set window: %w", err)
	}
	return nil
}

// GetWindow returns a subscriber's window preference, defaulting to 2 weeks.
func (s *Store) GetWindow(ctx context.Context, id string) (int, error) {
	var weeks int
	err := s.db.QueryRowContext(ctx,
		`SELECT time_window FROM user_preferences WHERE user_id = ?`, id).Scan(&weeks)
	if errors.Is(err, sql.ErrNoRows) {
		return defaultWindowWeeks, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get window: %w", err)
	}
	return weeks, nil
}

// Count returns the number of registered subscribers.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	s.logger.Info("Closing subscriber store")
	return s.db.Close()
}
