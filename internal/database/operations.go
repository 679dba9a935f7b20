package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Operation is the persisted state of one activity log entry.
type Operation struct {
	ID        string
	AccountID int64
	State     string
	Error     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type OperationMessage struct {
	ID          int64
	OperationID string
	Level       string
	Message     string
	Meta        map[string]any
	CreatedAt   time.Time
}

// EnsureOperation creates the operation row if it does not exist yet.
func (db *DB) EnsureOperation(ctx context.Context, id string, accountID int64) error {
	now := time.Now()
	query := `INSERT INTO operations (id, account_id, state, created_at, updated_at)
              VALUES (?, ?, 'running', ?, ?)
              ON CONFLICT(id) DO NOTHING`
	if _, err := db.ExecContext(ctx, query, id, accountID, now, now); err != nil {
		return fmt.Errorf("failed to ensure operation: %w", err)
	}
	return nil
}

func (db *DB) AppendOperationMessage(ctx context.Context, operationID, level, message string, meta map[string]any) error {
	var rawMeta sql.NullString
	if len(meta) > 0 {
		raw, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("encode operation meta: %w", err)
		}
		rawMeta = sql.NullString{String: string(raw), Valid: true}
	}

	query := `INSERT INTO operation_messages (operation_id, level, message, meta, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, query, operationID, level, message, rawMeta, time.Now()); err != nil {
		return fmt.Errorf("failed to append operation message: %w", err)
	}
	return nil
}

func (db *DB) SetOperationState(ctx context.Context, id, state string) error {
	query := `UPDATE operations SET state = ?, updated_at = ? WHERE id = ?`
	if _, err := db.ExecContext(ctx, query, state, time.Now(), id); err != nil {
		return fmt.Errorf("failed to set operation state: %w", err)
	}
	return nil
}

func (db *DB) SetOperationError(ctx context.Context, id, errMsg string) error {
	query := `UPDATE operations SET error = ?, updated_at = ? WHERE id = ?`
	if _, err := db.ExecContext(ctx, query, errMsg, time.Now(), id); err != nil {
		return fmt.Errorf("failed to set operation error: %w", err)
	}
	return nil
}

func (db *DB) GetOperation(ctx context.Context, id string) (*Operation, error) {
	query := `SELECT id, account_id, state, error, created_at, updated_at FROM operations WHERE id = ?`

	var (
		op     Operation
		errMsg sql.NullString
	)
	err := db.QueryRowContext(ctx, query, id).Scan(&op.ID, &op.AccountID, &op.State, &errMsg, &op.CreatedAt, &op.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "operation")
	}
	if errMsg.Valid {
		op.Error = &errMsg.String
	}
	return &op, nil
}

func (db *DB) GetOperationMessages(ctx context.Context, operationID string) ([]OperationMessage, error) {
	query := `SELECT id, operation_id, level, message, meta, created_at
              FROM operation_messages WHERE operation_id = ? ORDER BY id ASC`
	rows, err := db.QueryContext(ctx, query, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get operation messages: %w", err)
	}
	defer rows.Close()

	var msgs []OperationMessage
	for rows.Next() {
		var (
			m    OperationMessage
			meta sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.OperationID, &m.Level, &m.Message, &meta, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan operation message: %w", err)
		}
		if meta.Valid {
			if err := json.Unmarshal([]byte(meta.String), &m.Meta); err != nil {
				return nil, fmt.Errorf("decode operation meta: %w", err)
			}
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
