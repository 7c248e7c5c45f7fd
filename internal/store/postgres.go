package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/classchat/classchat/internal/types"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type PgMessageStore struct {
	conn *sql.DB
}

func NewPgMessageStore(dsn string) (*PgMessageStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgMessageStore{conn: db}, nil
}

// Migrate applies the embedded schema migrations. An already up-to-date
// schema is not an error.
func (s *PgMessageStore) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	driver, err := postgres.WithInstance(s.conn, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

func (s *PgMessageStore) Ping() error {
	return s.conn.Ping()
}

func (s *PgMessageStore) SaveMessage(params SaveMessageParams) (types.Message, error) {
	row := s.conn.QueryRow(
		"INSERT INTO messages (content, username, room, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, content, username, room, created_at",
		params.Content,
		params.Username,
		params.Room,
		time.Now().UTC(),
	)

	var msg types.Message
	err := row.Scan(
		&msg.Id,
		&msg.Content,
		&msg.Username,
		&msg.Room,
		&msg.CreatedAt,
	)

	return msg, err
}

// RoomHistory returns up to limit of the room's most recent messages in
// ascending order by created_at, ties broken by id.
func (s *PgMessageStore) RoomHistory(room string, limit int) ([]types.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.conn.Query(
		"SELECT id, content, username, room, created_at FROM messages "+
			"WHERE room = $1 ORDER BY created_at DESC, id DESC LIMIT $2",
		room,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]types.Message, 0, limit)
	for rows.Next() {
		var msg types.Message
		if err = rows.Scan(&msg.Id, &msg.Content, &msg.Username, &msg.Room, &msg.CreatedAt); err != nil {
			return nil, err
		}

		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// query is newest-first so LIMIT keeps the most recent rows;
	// replay order is oldest-first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (s *PgMessageStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
