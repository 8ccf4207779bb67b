package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ageapps/chatfeed/internal/chat"
)

// SQLiteStore keeps room history in a SQLite database.
type SQLiteStore struct {
	db       *sql.DB
	pageSize int
}

// Open opens (or creates) the database at path. Call Migrate before use.
func Open(path string, pageSize int) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &SQLiteStore{db: db, pageSize: pageSize}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			room TEXT NOT NULL,
			sender TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			mentions TEXT NOT NULL DEFAULT '[]',
			sent_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS messages_room_time_idx ON messages(room, sent_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize history schema: %w", err)
		}
	}
	return nil
}

// Append stores records, assigning ids to records without one. Records whose
// id already exists are left untouched. It returns the stored records.
func (s *SQLiteStore) Append(ctx context.Context, msgs ...chat.Message) ([]chat.Message, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	prepared := make([]chat.Message, 0, len(msgs))
	for _, msg := range msgs {
		out, err := prepare(msg)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, out)
	}

	err := withRetry(ctx, defaultRetryAttempts, defaultRetryBackoff, func() error {
		return s.insert(ctx, prepared)
	})
	if err != nil {
		return nil, err
	}
	return prepared, nil
}

func (s *SQLiteStore) insert(ctx context.Context, msgs []chat.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (id, room, sender, kind, body, mentions, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare history insert: %w", err)
	}
	defer stmt.Close()

	for _, msg := range msgs {
		mentions, err := json.Marshal(mentionsOrEmpty(msg.Mentions))
		if err != nil {
			return fmt.Errorf("failed to encode mentions: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			msg.ID,
			msg.Room,
			msg.From,
			string(msg.Kind),
			msg.Text,
			string(mentions),
			msg.Time.UnixMicro(),
		); err != nil {
			return fmt.Errorf("failed to store record %s: %w", msg.ID, err)
		}
	}
	return tx.Commit()
}

// RoomHistory implements Service.
func (s *SQLiteStore) RoomHistory(ctx context.Context, room string) (chat.RoomHistory, error) {
	msgs, err := s.page(ctx, Query{Room: room, Limit: s.pageSize})
	if err != nil {
		return nil, err
	}
	return roomHistory(room, msgs), nil
}

// MoreHistory implements Service.
func (s *SQLiteStore) MoreHistory(ctx context.Context, q Query) ([]chat.HistoryPage, error) {
	if q.Limit <= 0 {
		q.Limit = s.pageSize
	}
	msgs, err := s.page(ctx, q)
	if err != nil {
		return nil, err
	}
	return pagesOf(q.Room, msgs), nil
}

func (s *SQLiteStore) page(ctx context.Context, q Query) ([]chat.Message, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}

	query := `SELECT id, room, sender, kind, body, mentions, sent_at FROM messages WHERE room = ?`
	args := []any{q.Room}
	if !q.Before.IsZero() {
		query += ` AND sent_at < ?`
		args = append(args, q.Before.UnixMicro())
	}
	query += ` ORDER BY sent_at DESC, id DESC LIMIT ?`
	args = append(args, q.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var (
			msg      chat.Message
			kind     string
			mentions string
			sentAt   int64
		)
		if err := rows.Scan(&msg.ID, &msg.Room, &msg.From, &kind, &msg.Text, &mentions, &sentAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		msg.Kind = chat.Kind(kind)
		msg.Time = time.UnixMicro(sentAt).UTC()
		if err := json.Unmarshal([]byte(mentions), &msg.Mentions); err != nil {
			return nil, fmt.Errorf("decode mentions of %s: %w", msg.ID, err)
		}
		if len(msg.Mentions) == 0 {
			msg.Mentions = nil
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	// Rows arrive newest first; pages are ascending.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func mentionsOrEmpty(mentions []chat.Mention) []chat.Mention {
	if mentions == nil {
		return []chat.Mention{}
	}
	return mentions
}
