package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/emailmax/warmup/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite
// database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, enables
// WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// WAL for better concurrent read behavior.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const interactionColumns = `
	id, sender_id, receiver_id, type, status, subject, content,
	message_id, thread_id, failure_reason, created_at,
	sent_at, delivered_at, read_at, replied_at, rescued_at, failed_at`

func (s *SQLiteStore) CreateInteraction(ctx context.Context, in model.Interaction) error {
	const query = `
		INSERT INTO interactions (` + interactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		in.ID, in.SenderID, in.ReceiverID, in.Type, in.Status,
		in.Subject, in.Content, in.MessageID, in.ThreadID, in.FailureReason,
		in.CreatedAt, in.SentAt, in.DeliveredAt, in.ReadAt, in.RepliedAt,
		in.RescuedAt, in.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting interaction %s: %w", in.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateInteraction(ctx context.Context, in model.Interaction) error {
	const query = `
		UPDATE interactions SET
			status = ?, subject = ?, content = ?, message_id = ?,
			thread_id = ?, failure_reason = ?,
			sent_at = ?, delivered_at = ?, read_at = ?, replied_at = ?,
			rescued_at = ?, failed_at = ?
		WHERE id = ?`

	res, err := s.db.ExecContext(ctx, query,
		in.Status, in.Subject, in.Content, in.MessageID,
		in.ThreadID, in.FailureReason,
		in.SentAt, in.DeliveredAt, in.ReadAt, in.RepliedAt,
		in.RescuedAt, in.FailedAt,
		in.ID,
	)
	if err != nil {
		return fmt.Errorf("updating interaction %s: %w", in.ID, err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("interaction %s not found", in.ID)
	}
	return nil
}

func (s *SQLiteStore) GetInteractionByID(ctx context.Context, id string) (*model.Interaction, error) {
	const query = `SELECT ` + interactionColumns + ` FROM interactions WHERE id = ?`

	var in model.Interaction
	err := s.db.GetContext(ctx, &in, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching interaction %s: %w", id, err)
	}
	return &in, nil
}

func (s *SQLiteStore) GetInteractions(ctx context.Context, filter InteractionFilter) ([]model.Interaction, error) {
	var conditions []string
	var args []any

	if filter.SenderID != nil {
		conditions = append(conditions, "sender_id = ?")
		args = append(args, *filter.SenderID)
	}
	if filter.ReceiverID != nil {
		conditions = append(conditions, "receiver_id = ?")
		args = append(args, *filter.ReceiverID)
	}
	if filter.MessageID != nil {
		conditions = append(conditions, "message_id = ?")
		args = append(args, *filter.MessageID)
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			marks[i] = "?"
			args = append(args, st)
		}
		conditions = append(conditions, "status IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT ` + interactionColumns + ` FROM interactions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	var out []model.Interaction
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("listing interactions: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[model.InteractionStatus]int, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT status, COUNT(*) AS count FROM interactions GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("counting interactions: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.InteractionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[model.InteractionStatus(status)] = count
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) DeleteInteractionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM interactions WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting old interactions: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) SaveResult(ctx context.Context, res model.CrossSendResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding cross-send result: %w", err)
	}

	const query = `
		INSERT INTO cross_send_results (total, successful, failed, payload, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query,
		res.Total, res.Successful, res.Failed, string(payload),
		res.StartedAt, res.FinishedAt,
	); err != nil {
		return fmt.Errorf("inserting cross-send result: %w", err)
	}
	return nil
}

func (s *SQLiteStore) TopSenders(ctx context.Context, limit int) ([]model.AccountVolume, error) {
	return s.topAccounts(ctx, "sender_id", limit)
}

func (s *SQLiteStore) TopReceivers(ctx context.Context, limit int) ([]model.AccountVolume, error) {
	return s.topAccounts(ctx, "receiver_id", limit)
}

func (s *SQLiteStore) topAccounts(ctx context.Context, column string, limit int) ([]model.AccountVolume, error) {
	if limit <= 0 {
		limit = 5
	}
	// column is one of two compile-time constants; no user input.
	query := fmt.Sprintf(`
		SELECT %s AS account_id, COUNT(*) AS count
		FROM interactions
		GROUP BY %s
		ORDER BY count DESC, account_id ASC
		LIMIT ?`, column, column)

	var out []model.AccountVolume
	if err := s.db.SelectContext(ctx, &out, query, limit); err != nil {
		return nil, fmt.Errorf("ranking accounts by %s: %w", column, err)
	}
	return out, nil
}

func (s *SQLiteStore) AverageDeliveryTime(ctx context.Context) (time.Duration, error) {
	const query = `
		SELECT COALESCE(AVG((julianday(delivered_at) - julianday(sent_at)) * 86400.0), 0)
		FROM interactions
		WHERE sent_at IS NOT NULL AND delivered_at IS NOT NULL`

	var seconds float64
	if err := s.db.GetContext(ctx, &seconds, query); err != nil {
		return 0, fmt.Errorf("averaging delivery time: %w", err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
