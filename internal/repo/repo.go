package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/jercomio/LuT-1/internal/db"
	"github.com/jercomio/LuT-1/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// TimeLayout is fixed-width so that stored timestamps sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const taskColumns = `id,identifier,title,content,label,status,priority,ai_priority,user_priority,token,active,user_id,due_of_date,created_at,updated_at`

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repo struct {
	DB      Querier
	Dialect db.Dialect
	Now     func() time.Time
	NewID   func() string
}

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r Repo) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}

func (r Repo) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.DB.ExecContext(ctx, r.Dialect.Rebind(query), args...)
}

func (r Repo) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.DB.QueryContext(ctx, r.Dialect.Rebind(query), args...)
}

func (r Repo) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return r.DB.QueryRowContext(ctx, r.Dialect.Rebind(query), args...)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (domain.Task, error) {
	var (
		t                    domain.Task
		content, due         sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&t.ID, &t.Identifier, &t.Title, &content, &t.Label, &t.Status, &t.Priority,
		&t.AIPriority, &t.UserPriority, &t.Token, &t.Active, &t.UserID, &due, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if content.Valid {
		t.Content = &content.String
	}
	if due.Valid && due.String != "" {
		d, err := parseTime(due.String)
		if err != nil {
			return t, fmt.Errorf("due_of_date: %w", err)
		}
		t.DueOfDate = &d
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return t, fmt.Errorf("created_at: %w", err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return t, fmt.Errorf("updated_at: %w", err)
	}
	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// FindByIdentifier looks a task up by identifier, ignoring case.
func (r Repo) FindByIdentifier(ctx context.Context, identifier string) (domain.Task, error) {
	return scanTask(r.queryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE LOWER(identifier)=LOWER(?) LIMIT 1`, identifier))
}

// GetTask looks a task up by id.
func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return scanTask(r.queryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

// FindAll returns every task, newest first.
func (r Repo) FindAll(ctx context.Context) ([]domain.Task, error) {
	rows, err := r.query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC, identifier DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// MostRecentIdentifier returns the identifier of the most recently created task.
func (r Repo) MostRecentIdentifier(ctx context.Context) (string, bool, error) {
	var identifier string
	err := r.queryRow(ctx, `SELECT identifier FROM tasks ORDER BY created_at DESC, identifier DESC LIMIT 1`).Scan(&identifier)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return identifier, true, nil
}

// CreateTask inserts t, assigning id and timestamps when unset. A duplicate
// identifier yields ErrConflict.
func (r Repo) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	if t.ID == "" {
		t.ID = r.newID()
	}
	now := r.now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	_, err := r.exec(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Identifier, t.Title, nullableStringPtr(t.Content), t.Label, t.Status, t.Priority,
		t.AIPriority, t.UserPriority, t.Token, t.Active, t.UserID, nullableTime(t.DueOfDate),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Task{}, fmt.Errorf("identifier %s: %w", t.Identifier, ErrConflict)
		}
		return domain.Task{}, err
	}
	return r.GetTask(ctx, t.ID)
}

// UpdateTask applies the non-nil fields of p to the task with the given id.
func (r Repo) UpdateTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	var (
		fields []string
		args   []any
	)
	set := func(column string, v any) {
		fields = append(fields, column+"=?")
		args = append(args, v)
	}
	if p.Title != nil {
		set("title", *p.Title)
	}
	switch {
	case p.ClearContent:
		set("content", nil)
	case p.Content != nil:
		set("content", *p.Content)
	}
	if p.Label != nil {
		set("label", *p.Label)
	}
	if p.Status != nil {
		set("status", *p.Status)
	}
	if p.Priority != nil {
		set("priority", *p.Priority)
	}
	if p.AIPriority != nil {
		set("ai_priority", *p.AIPriority)
	}
	if p.UserPriority != nil {
		set("user_priority", *p.UserPriority)
	}
	switch {
	case p.ClearDueOfDate:
		set("due_of_date", nil)
	case p.DueOfDate != nil:
		set("due_of_date", formatTime(*p.DueOfDate))
	}
	set("updated_at", formatTime(r.now()))
	args = append(args, id)
	res, err := r.exec(ctx, fmt.Sprintf(`UPDATE tasks SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return domain.Task{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Task{}, ErrNotFound
	}
	return r.GetTask(ctx, id)
}

// DeleteTask removes the task with the given id and returns it as it was.
func (r Repo) DeleteTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := r.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	res, err := r.exec(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return domain.Task{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Task{}, ErrNotFound
	}
	return t, nil
}

// DeleteTasks removes every task whose id is listed, in one statement.
// Unknown ids are ignored; the returned count covers the rows actually removed.
func (r Repo) DeleteTasks(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := r.exec(ctx, `DELETE FROM tasks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LatestEvents returns the newest audit events, optionally filtered by type.
func (r Repo) LatestEvents(ctx context.Context, limit int, evtType string) ([]domain.Event, error) {
	query := `SELECT id,ts,type,COALESCE(task_id,''),COALESCE(identifier,''),actor_id,payload_json FROM events`
	var args []any
	if evtType != "" {
		query += ` WHERE type=?`
		args = append(args, evtType)
	}
	query += ` ORDER BY ts DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var (
			ev domain.Event
			ts string
		)
		if err := rows.Scan(&ev.ID, &ts, &ev.Type, &ev.TaskID, &ev.Identifier, &ev.ActorID, &ev.Payload); err != nil {
			return nil, err
		}
		if ev.TS, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("event ts: %w", err)
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return formatTime(*v)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
