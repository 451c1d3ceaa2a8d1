package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/planweaver/planweaver/engine"
)

// SQLiteStore implements InstanceStore on a SQLite database. Appends run
// in a transaction that assigns the next sequence number and applies the
// instance mutation, so each instance's history is linearizable.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("opening instance database: %w", err)
	}

	// SQLite works best with a single connection for writes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS instances (
			id TEXT PRIMARY KEY,
			workflow_type TEXT NOT NULL,
			input TEXT,
			status INTEGER NOT NULL DEFAULT 0,
			custom_status TEXT NOT NULL DEFAULT '',
			output TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS history_events (
			instance_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			kind INTEGER NOT NULL,
			activity TEXT NOT NULL DEFAULT '',
			payload TEXT,
			timestamp DATETIME NOT NULL,
			PRIMARY KEY (instance_id, sequence),
			FOREIGN KEY (instance_id) REFERENCES instances(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_instances_status
			ON instances(status, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	return nil
}

// CreateInstance implements InstanceStore.
func (s *SQLiteStore) CreateInstance(ctx context.Context, workflowType string, input json.RawMessage) (engine.Instance, error) {
	now := time.Now().UTC()
	inst := engine.Instance{
		ID:           uuid.New().String(),
		WorkflowType: workflowType,
		Input:        append(json.RawMessage(nil), input...),
		Status:       engine.StatusRunning,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO instances (id, workflow_type, input, status, custom_status, output, created_at, updated_at)
		 VALUES (?, ?, ?, ?, '', NULL, ?, ?)`,
		inst.ID, inst.WorkflowType, string(inst.Input), int(inst.Status), inst.CreatedAt, inst.UpdatedAt)
	if err != nil {
		return engine.Instance{}, fmt.Errorf("inserting instance: %w", err)
	}
	return inst, nil
}

// GetInstance implements InstanceStore.
func (s *SQLiteStore) GetInstance(ctx context.Context, id string) (engine.Instance, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_type, input, status, custom_status, output, created_at, updated_at
		 FROM instances WHERE id = ?`, id)
	return scanInstance(row)
}

func scanInstance(row *sql.Row) (engine.Instance, error) {
	var (
		inst   engine.Instance
		status int
		input  sql.NullString
		output sql.NullString
	)
	err := row.Scan(&inst.ID, &inst.WorkflowType, &input, &status,
		&inst.CustomStatus, &output, &inst.CreatedAt, &inst.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Instance{}, engine.ErrNotFound
	}
	if err != nil {
		return engine.Instance{}, fmt.Errorf("scanning instance: %w", err)
	}
	inst.Status = engine.InstanceStatus(status)
	if input.Valid {
		inst.Input = json.RawMessage(input.String)
	}
	if output.Valid {
		inst.Output = json.RawMessage(output.String)
	}
	return inst, nil
}

// History implements InstanceStore.
func (s *SQLiteStore) History(ctx context.Context, id string) ([]engine.HistoryEvent, error) {
	if _, err := s.GetInstance(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT sequence, kind, activity, payload, timestamp
		 FROM history_events WHERE instance_id = ? ORDER BY sequence ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var events []engine.HistoryEvent
	for rows.Next() {
		var (
			ev      engine.HistoryEvent
			kind    int
			payload sql.NullString
		)
		if err := rows.Scan(&ev.Sequence, &kind, &ev.Activity, &payload, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning history event: %w", err)
		}
		ev.Kind = engine.EventKind(kind)
		if payload.Valid {
			ev.Payload = json.RawMessage(payload.String)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// AppendEvent implements InstanceStore.
func (s *SQLiteStore) AppendEvent(ctx context.Context, id string, ev engine.HistoryEvent) (engine.HistoryEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return engine.HistoryEvent{}, fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	var status int
	err = tx.QueryRowContext(ctx, `SELECT status FROM instances WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.HistoryEvent{}, engine.ErrNotFound
	}
	if err != nil {
		return engine.HistoryEvent{}, fmt.Errorf("reading instance status: %w", err)
	}
	if engine.InstanceStatus(status).IsTerminal() {
		return engine.HistoryEvent{}, engine.ErrTerminal
	}

	var last int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM history_events WHERE instance_id = ?`, id).Scan(&last)
	if err != nil {
		return engine.HistoryEvent{}, fmt.Errorf("reading last sequence: %w", err)
	}

	ev.Sequence = last + 1
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	var payload any
	if ev.Payload != nil {
		payload = string(ev.Payload)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO history_events (instance_id, sequence, kind, activity, payload, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, ev.Sequence, int(ev.Kind), ev.Activity, payload, ev.Timestamp)
	if err != nil {
		return engine.HistoryEvent{}, fmt.Errorf("inserting history event: %w", err)
	}

	switch ev.Kind {
	case engine.EventOrchestrationCompleted:
		_, err = tx.ExecContext(ctx,
			`UPDATE instances SET status = ?, output = ?, updated_at = ? WHERE id = ?`,
			int(engine.StatusCompleted), payload, ev.Timestamp, id)
	case engine.EventOrchestrationFailed:
		_, err = tx.ExecContext(ctx,
			`UPDATE instances SET status = ?, output = ?, updated_at = ? WHERE id = ?`,
			int(engine.StatusFailed), payload, ev.Timestamp, id)
	default:
		_, err = tx.ExecContext(ctx,
			`UPDATE instances SET updated_at = ? WHERE id = ?`, ev.Timestamp, id)
	}
	if err != nil {
		return engine.HistoryEvent{}, fmt.Errorf("updating instance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return engine.HistoryEvent{}, fmt.Errorf("committing append: %w", err)
	}
	return ev, nil
}

// SetCustomStatus implements InstanceStore.
func (s *SQLiteStore) SetCustomStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE instances SET custom_status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		status, time.Now().UTC(), id, int(engine.StatusRunning))
	if err != nil {
		return fmt.Errorf("updating custom status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either unknown or terminal; unknown is the caller's bug.
		if _, err := s.GetInstance(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Terminate implements InstanceStore.
func (s *SQLiteStore) Terminate(ctx context.Context, id, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE instances SET status = ?, output = ?, updated_at = ? WHERE id = ? AND status = ?`,
		int(engine.StatusTerminated), string(engine.FailurePayload(reason)),
		time.Now().UTC(), id, int(engine.StatusRunning))
	if err != nil {
		return fmt.Errorf("terminating instance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetInstance(ctx, id); err != nil {
			return err
		}
		return engine.ErrTerminal
	}
	return nil
}

// ListRunnable implements InstanceStore.
func (s *SQLiteStore) ListRunnable(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM instances WHERE status = ? ORDER BY created_at ASC`,
		int(engine.StatusRunning))
	if err != nil {
		return nil, fmt.Errorf("listing runnable instances: %w", err)
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
