package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/stagelinehq/stageline/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Runs ---

// SaveRun upserts a run record. The same id is written once when the run
// starts and again with the final report when it finishes.
func (s *LibSQLStore) SaveRun(ctx context.Context, run *Run) error {
	inputs, err := marshalMapOrNil(run.Inputs)
	if err != nil {
		return fmt.Errorf("marshal run inputs: %w", err)
	}
	payload, err := marshalMapOrNil(run.Payload)
	if err != nil {
		return fmt.Errorf("marshal run payload: %w", err)
	}
	var report any
	if run.Report != nil {
		raw, err := json.Marshal(run.Report)
		if err != nil {
			return fmt.Errorf("marshal run report: %w", err)
		}
		report = string(raw)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, workflow, status, partial, inputs, report, payload, started_at, completed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET
		   status=excluded.status, partial=excluded.partial, report=excluded.report,
		   payload=excluded.payload, completed_at=excluded.completed_at, updated_at=CURRENT_TIMESTAMP`,
		run.ID, run.Workflow, string(run.Status), boolInt(run.Partial),
		inputs, report, payload, timeOrNow(run.StartedAt), nullTime(run.CompletedAt),
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "save run %s: %s", run.ID, err.Error()).WithCause(err)
	}
	return nil
}

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workflow, status, partial, inputs, report, payload, started_at, completed_at
		 FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("run", id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs most recent first.
func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	query := `SELECT id, workflow, status, partial, inputs, report, payload, started_at, completed_at FROM runs`
	var conds []string
	var args []any
	if filter.Workflow != "" {
		conds = append(conds, "workflow = ?")
		args = append(args, filter.Workflow)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY started_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	run := &Run{}
	var status string
	var partial int
	var inputs, report, payload sql.NullString
	var completed sql.NullTime
	err := row.Scan(&run.ID, &run.Workflow, &status, &partial, &inputs, &report, &payload, &run.StartedAt, &completed)
	if err != nil {
		return nil, err
	}
	run.Status = schema.RunStatus(status)
	run.Partial = partial != 0
	if err := unmarshalMap(inputs, &run.Inputs); err != nil {
		return nil, fmt.Errorf("unmarshal run inputs: %w", err)
	}
	if err := unmarshalMap(payload, &run.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal run payload: %w", err)
	}
	if report.Valid && report.String != "" {
		run.Report = &schema.WorkflowReport{}
		if err := json.Unmarshal([]byte(report.String), run.Report); err != nil {
			return nil, fmt.Errorf("unmarshal run report: %w", err)
		}
	}
	if completed.Valid {
		run.CompletedAt = &completed.Time
	}
	return run, nil
}

// --- Run events ---

// AppendEvent persists one run event. The sequence is assigned by the
// emitter; the UNIQUE(run_id, seq) constraint rejects duplicates.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *schema.RunEvent) error {
	payload, err := marshalMapOrNil(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO run_events (run_id, seq, event_type, stage, payload, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.RunID, event.Seq, event.Type, nullStr(event.Stage), payload, ts,
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore,
			"append event %d for run %s: %s", event.Seq, event.RunID, err.Error()).WithCause(err)
	}
	return nil
}

// ListEvents returns events for a run with seq > since, ordered by seq ASC.
func (s *LibSQLStore) ListEvents(ctx context.Context, runID string, since int64) ([]*schema.RunEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, event_type, stage, payload, timestamp
		 FROM run_events WHERE run_id = ? AND seq > ? ORDER BY seq ASC`,
		runID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*schema.RunEvent
	for rows.Next() {
		ev := &schema.RunEvent{}
		var stage, payload sql.NullString
		if err := rows.Scan(&ev.RunID, &ev.Seq, &ev.Type, &stage, &payload, &ev.Timestamp); err != nil {
			return nil, err
		}
		ev.Stage = stage.String
		if err := unmarshalMap(payload, &ev.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal event payload: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// --- Schedules ---

func (s *LibSQLStore) CreateSchedule(ctx context.Context, sched *Schedule) error {
	inputs, err := marshalMapOrNil(sched.Inputs)
	if err != nil {
		return fmt.Errorf("marshal schedule inputs: %w", err)
	}
	now := time.Now().UTC()
	if sched.CreatedAt.IsZero() {
		sched.CreatedAt = now
	}
	sched.UpdatedAt = now
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedules (id, name, workflow, cron_expr, inputs, enabled, next_run_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sched.ID, sched.Name, sched.Workflow, sched.Cron, inputs, boolInt(sched.Enabled),
		nullTime(sched.NextRunAt), sched.CreatedAt, sched.UpdatedAt,
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "create schedule %s: %s", sched.Name, err.Error()).WithCause(err)
	}
	return nil
}

func (s *LibSQLStore) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, workflow, cron_expr, inputs, enabled, last_run_id, last_run_at, next_run_at, created_at, updated_at
		 FROM schedules WHERE id = ?`, id)
	sched, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("schedule", id)
	}
	if err != nil {
		return nil, err
	}
	return sched, nil
}

func (s *LibSQLStore) UpdateSchedule(ctx context.Context, id string, update ScheduleUpdate) error {
	var sets []string
	var args []any
	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, boolInt(*update.Enabled))
	}
	if update.LastRunID != nil {
		sets = append(sets, "last_run_id = ?")
		args = append(args, *update.LastRunID)
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if len(sets) == 0 {
		return nil
	}
	query := "UPDATE schedules SET "
	for i, set := range sets {
		if i > 0 {
			query += ", "
		}
		query += set
	}
	query += ", updated_at = CURRENT_TIMESTAMP WHERE id = ?"
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "schedule", id)
}

func (s *LibSQLStore) ListSchedules(ctx context.Context, onlyEnabled bool) ([]*Schedule, error) {
	query := `SELECT id, name, workflow, cron_expr, inputs, enabled, last_run_id, last_run_at, next_run_at, created_at, updated_at
	          FROM schedules`
	if onlyEnabled {
		query += " WHERE enabled = 1"
	}
	query += " ORDER BY name ASC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scheds []*Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		scheds = append(scheds, sched)
	}
	return scheds, rows.Err()
}

func (s *LibSQLStore) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "schedule", id)
}

func scanSchedule(row scanner) (*Schedule, error) {
	sched := &Schedule{}
	var inputs, lastRunID sql.NullString
	var enabled int
	var lastRunAt, nextRunAt sql.NullTime
	err := row.Scan(&sched.ID, &sched.Name, &sched.Workflow, &sched.Cron, &inputs, &enabled,
		&lastRunID, &lastRunAt, &nextRunAt, &sched.CreatedAt, &sched.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sched.Enabled = enabled != 0
	sched.LastRunID = lastRunID.String
	if err := unmarshalMap(inputs, &sched.Inputs); err != nil {
		return nil, fmt.Errorf("unmarshal schedule inputs: %w", err)
	}
	if lastRunAt.Valid {
		sched.LastRunAt = &lastRunAt.Time
	}
	if nextRunAt.Valid {
		sched.NextRunAt = &nextRunAt.Time
	}
	return sched, nil
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalMapOrNil(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func unmarshalMap(ns sql.NullString, dst *map[string]any) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), dst)
}
