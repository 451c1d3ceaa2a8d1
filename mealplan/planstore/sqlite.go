package planstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/planweaver/planweaver/mealplan"
)

// SQLiteStore implements Store on a local SQLite database. Plans and
// profiles are stored as JSON payloads alongside the columns needed for
// lookup and the (user_id, week) uniqueness that makes SavePlan an
// idempotent upsert.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the plan database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening plan database: %w", err)
	}
	// A single connection keeps writes serialized under WAL.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS meal_plans (
	id         TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	week       TEXT NOT NULL,
	status     TEXT NOT NULL,
	payload    TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, week)
);

CREATE TABLE IF NOT EXISTS user_profiles (
	user_id TEXT PRIMARY KEY,
	payload TEXT NOT NULL
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrating plan database: %w", err)
	}
	return nil
}

// SavePlan implements Store.
func (s *SQLiteStore) SavePlan(ctx context.Context, plan mealplan.Plan) (string, error) {
	if plan.UserID == "" || plan.Week == "" {
		return "", errors.New("plan requires user_id and week")
	}
	id := plan.PlanID
	if id == "" {
		id = uuid.NewString()
	}
	plan.PlanID = id

	payload, err := json.Marshal(plan)
	if err != nil {
		return "", fmt.Errorf("encoding plan: %w", err)
	}

	// The insert ID only sticks on first save; conflicts keep the
	// existing ID and overwrite the content.
	_, err = s.db.ExecContext(ctx, `
INSERT INTO meal_plans (id, user_id, week, status, payload, updated_at)
VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (user_id, week) DO UPDATE SET
	status = excluded.status,
	payload = excluded.payload,
	updated_at = CURRENT_TIMESTAMP`,
		id, plan.UserID, plan.Week, plan.Status, string(payload))
	if err != nil {
		return "", fmt.Errorf("saving plan: %w", err)
	}

	var stored string
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM meal_plans WHERE user_id = ? AND week = ?`,
		plan.UserID, plan.Week).Scan(&stored)
	if err != nil {
		return "", fmt.Errorf("reading back plan id: %w", err)
	}
	return stored, nil
}

// GetPlan implements Store.
func (s *SQLiteStore) GetPlan(ctx context.Context, userID, week string) (*mealplan.Plan, error) {
	var id, payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, payload FROM meal_plans WHERE user_id = ? AND week = ?`,
		userID, week).Scan(&id, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}

	var plan mealplan.Plan
	if err := json.Unmarshal([]byte(payload), &plan); err != nil {
		return nil, fmt.Errorf("decoding plan: %w", err)
	}
	plan.PlanID = id
	return &plan, nil
}

// PlanExists implements Store.
func (s *SQLiteStore) PlanExists(ctx context.Context, userID, week string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM meal_plans WHERE user_id = ? AND week = ?`,
		userID, week).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking plan: %w", err)
	}
	return n > 0, nil
}

// SaveProfile implements Store.
func (s *SQLiteStore) SaveProfile(ctx context.Context, profile mealplan.Profile) error {
	if profile.UserID == "" {
		return errors.New("profile requires user_id")
	}
	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO user_profiles (user_id, payload) VALUES (?, ?)
ON CONFLICT (user_id) DO UPDATE SET payload = excluded.payload`,
		profile.UserID, string(payload))
	if err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	return nil
}

// GetProfile implements Store.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*mealplan.Profile, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM user_profiles WHERE user_id = ?`, userID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	var profile mealplan.Profile
	if err := json.Unmarshal([]byte(payload), &profile); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}
	return &profile, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
