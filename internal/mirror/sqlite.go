package mirror

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"submirror/internal/config"
)

// SQLiteStore is the default Store, backed by a single SQLite database file.
// The logical-field to column-name mapping is resolved once at construction
// from the engine config; queries are prepared strings, never built per call
// from caller input.
type SQLiteStore struct {
	db         *sql.DB
	autoCreate bool

	table    string
	identity string
	status   string
	plan     string

	selectSQL string
	insertSQL string
}

// NewSQLiteStore opens (or creates) the mirror database in dir.
func NewSQLiteStore(dir string, cfg *config.Config) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create mirror dir: %w", err)
	}

	dbPath := filepath.Join(dir, "mirror.db")
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mirror db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{
		db:         db,
		autoCreate: cfg.AutoCreateOnMiss,
		table:      cfg.Table,
		identity:   cfg.IdentityField,
		status:     cfg.StatusField,
		plan:       cfg.PlanField,
	}
	s.selectSQL = fmt.Sprintf(`SELECT
		%s, %s, %s,
		trial, trial_start, trial_end, payment_method,
		period_start, period_end, canceled_at, cancel_at_period_end,
		created_at, updated_at
		FROM %s WHERE %s = ?`,
		s.identity, s.status, s.plan, s.table, s.identity)
	s.insertSQL = fmt.Sprintf(`INSERT INTO %s (
		%s, %s, %s,
		trial, trial_start, trial_end, payment_method,
		period_start, period_end, canceled_at, cancel_at_period_end,
		created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.table, s.identity, s.status, s.plan)

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		%s TEXT PRIMARY KEY,
		%s TEXT NOT NULL DEFAULT '%s',
		%s TEXT,
		trial                INTEGER,
		trial_start          INTEGER,
		trial_end            INTEGER,
		payment_method       TEXT,
		period_start         INTEGER,
		period_end           INTEGER,
		canceled_at          INTEGER,
		cancel_at_period_end INTEGER,
		created_at           INTEGER NOT NULL,
		updated_at           INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s);
	`, s.table, s.identity, s.status, StatusInactive, s.plan,
		s.table, s.status, s.table, s.status)
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init mirror schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity (used for readiness probes).
func (s *SQLiteStore) Ping() error {
	return s.db.Ping()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// FindByIdentity returns the record for email, or (nil, nil) if absent.
func (s *SQLiteStore) FindByIdentity(ctx context.Context, email string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, s.selectSQL, email)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, &StoreError{Op: "find record", Err: err}
	}
	return rec, nil
}

// UpdateByIdentity applies u to the record for email. A miss inserts when
// auto-create is enabled and fails with ErrNotFound otherwise.
func (s *SQLiteStore) UpdateByIdentity(ctx context.Context, email string, u *Update) (*Record, error) {
	if u.Empty() {
		return s.FindByIdentity(ctx, email)
	}

	set, args := s.setClause(u)
	set = append(set, "updated_at = ?")
	args = append(args, time.Now().UTC().Unix(), email)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", s.table, strings.Join(set, ", "), s.identity)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, &StoreError{Op: "update record", Err: err}
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		if !s.autoCreate {
			return nil, ErrNotFound
		}
		return s.Insert(ctx, email, u)
	}
	return s.FindByIdentity(ctx, email)
}

// Insert creates a new record for email carrying u's fields.
func (s *SQLiteStore) Insert(ctx context.Context, email string, u *Update) (*Record, error) {
	now := time.Now().UTC().Unix()

	status := StatusInactive
	if u.Status != nil {
		status = *u.Status
	}
	var plan any
	if u.Plan != nil && !u.ClearPlan {
		plan = *u.Plan
	}

	_, err := s.db.ExecContext(ctx, s.insertSQL,
		email, status, plan,
		nullableBool(u.Trial), nullableTimeUnix(u.TrialStart), nullableTimeUnix(u.TrialEnd),
		nullableString(u.PaymentMethod),
		nullableTimeUnix(u.PeriodStart), nullableTimeUnix(u.PeriodEnd), nullableTimeUnix(u.CanceledAt),
		nullableBool(u.CancelAtPeriodEnd),
		now, now,
	)
	if err != nil {
		return nil, &StoreError{Op: "insert record", Err: err}
	}
	return s.FindByIdentity(ctx, email)
}

func (s *SQLiteStore) setClause(u *Update) (set []string, args []any) {
	if u.Status != nil {
		set = append(set, s.status+" = ?")
		args = append(args, *u.Status)
	}
	switch {
	case u.ClearPlan:
		set = append(set, s.plan+" = NULL")
	case u.Plan != nil:
		set = append(set, s.plan+" = ?")
		args = append(args, *u.Plan)
	}
	if u.Trial != nil {
		set = append(set, "trial = ?")
		args = append(args, boolToInt(*u.Trial))
	}
	if u.TrialStart != nil {
		set = append(set, "trial_start = ?")
		args = append(args, u.TrialStart.Unix())
	}
	if u.TrialEnd != nil {
		set = append(set, "trial_end = ?")
		args = append(args, u.TrialEnd.Unix())
	}
	if u.PaymentMethod != nil {
		set = append(set, "payment_method = ?")
		args = append(args, *u.PaymentMethod)
	}
	if u.PeriodStart != nil {
		set = append(set, "period_start = ?")
		args = append(args, u.PeriodStart.Unix())
	}
	if u.PeriodEnd != nil {
		set = append(set, "period_end = ?")
		args = append(args, u.PeriodEnd.Unix())
	}
	if u.CanceledAt != nil {
		set = append(set, "canceled_at = ?")
		args = append(args, u.CanceledAt.Unix())
	}
	if u.CancelAtPeriodEnd != nil {
		set = append(set, "cancel_at_period_end = ?")
		args = append(args, boolToInt(*u.CancelAtPeriodEnd))
	}
	return set, args
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var r Record
	var plan, paymentMethod sql.NullString
	var trial, cancelAtPeriodEnd sql.NullInt64
	var trialStart, trialEnd, periodStart, periodEnd, canceledAt sql.NullInt64
	var createdAt, updatedAt int64

	err := sc.Scan(
		&r.Email, &r.Status, &plan,
		&trial, &trialStart, &trialEnd, &paymentMethod,
		&periodStart, &periodEnd, &canceledAt, &cancelAtPeriodEnd,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan record: %w", err)
	}

	if plan.Valid {
		r.Plan = &plan.String
	}
	if paymentMethod.Valid {
		r.PaymentMethod = &paymentMethod.String
	}
	if trial.Valid {
		b := trial.Int64 != 0
		r.Trial = &b
	}
	if cancelAtPeriodEnd.Valid {
		b := cancelAtPeriodEnd.Int64 != 0
		r.CancelAtPeriodEnd = &b
	}
	r.TrialStart = unixTime(trialStart)
	r.TrialEnd = unixTime(trialEnd)
	r.PeriodStart = unixTime(periodStart)
	r.PeriodEnd = unixTime(periodEnd)
	r.CanceledAt = unixTime(canceledAt)
	r.CreatedAt = time.Unix(createdAt, 0).UTC()
	r.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &r, nil
}

func unixTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func nullableTimeUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func nullableBool(b *bool) any {
	if b == nil {
		return nil
	}
	return boolToInt(*b)
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
