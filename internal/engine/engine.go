package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jercomio/LuT-1/internal/db"
	"github.com/jercomio/LuT-1/internal/domain"
	"github.com/jercomio/LuT-1/internal/events"
	"github.com/jercomio/LuT-1/internal/repo"
)

const DefaultAllocAttempts = 5

// ErrIdentifierExhausted is returned when every allocation attempt collided
// with an existing identifier.
var ErrIdentifierExhausted = errors.New("task identifier allocation exhausted")

// Store is the persistence boundary the task operations compose against.
type Store interface {
	FindByIdentifier(ctx context.Context, identifier string) (domain.Task, error)
	FindAll(ctx context.Context) ([]domain.Task, error)
	MostRecentIdentifier(ctx context.Context) (string, bool, error)
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) (domain.Task, error)
	DeleteTasks(ctx context.Context, ids []string) (int64, error)
}

var _ Store = repo.Repo{}

type Engine struct {
	DB            *sql.DB
	Dialect       db.Dialect
	Events        events.Writer
	Now           func() time.Time
	NewID         func() string
	AllocAttempts int
}

func New(conn *sql.DB, dialect db.Dialect) Engine {
	return Engine{
		DB:            conn,
		Dialect:       dialect,
		Events:        events.Writer{Dialect: dialect},
		Now:           time.Now,
		AllocAttempts: DefaultAllocAttempts,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) store(q repo.Querier) repo.Repo {
	return repo.Repo{DB: q, Dialect: e.Dialect, Now: e.now, NewID: e.NewID}
}

func (e Engine) eventWriter() events.Writer {
	w := e.Events
	w.Dialect = e.Dialect
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

// session scopes one store connection to fn and releases it when fn returns.
func (e Engine) session(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := e.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire store connection: %w", err)
	}
	defer conn.Close()
	return fn(conn)
}

func inTx(ctx context.Context, conn *sql.Conn, fn func(tx *sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// ListTasks returns every task, unfiltered, newest first.
func (e Engine) ListTasks(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	err := e.session(ctx, func(conn *sql.Conn) error {
		var err error
		tasks, err = e.store(conn).FindAll(ctx)
		return err
	})
	return tasks, err
}

// GetTask looks a task up by its identifier, ignoring case.
func (e Engine) GetTask(ctx context.Context, identifier string) (domain.Task, error) {
	var t domain.Task
	err := e.session(ctx, func(conn *sql.Conn) error {
		var err error
		t, err = e.store(conn).FindByIdentifier(ctx, identifier)
		return err
	})
	return t, err
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title      string
	Content    *string
	Label      *string
	Status     *string
	Priority   *string
	AIPriority *float64
	UserID     string
	Token      string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, errors.New("title is required")
	}
	if opts.UserID == "" {
		return domain.Task{}, errors.New("user id is required")
	}
	t := domain.Task{
		Title:        opts.Title,
		Content:      opts.Content,
		Label:        valueOr(opts.Label, domain.DefaultLabel),
		Status:       valueOr(opts.Status, domain.DefaultStatus),
		Priority:     valueOr(opts.Priority, domain.DefaultPriority),
		UserPriority: domain.UserPriority(opts.Priority),
		Token:        opts.Token,
		Active:       true,
		UserID:       opts.UserID,
	}
	if opts.AIPriority != nil {
		t.AIPriority = *opts.AIPriority
	}
	attempts := e.AllocAttempts
	if attempts <= 0 {
		attempts = DefaultAllocAttempts
	}
	var created domain.Task
	err := e.session(ctx, func(conn *sql.Conn) error {
		var previous string
		for i := 0; i < attempts; i++ {
			err := inTx(ctx, conn, func(tx *sql.Tx) error {
				s := e.store(tx)
				candidate, err := e.allocate(ctx, s, previous)
				if err != nil {
					return err
				}
				previous = candidate
				t.Identifier = candidate
				created, err = s.CreateTask(ctx, t)
				if err != nil {
					return err
				}
				return e.eventWriter().Append(ctx, tx, events.TaskCreated, created.ID, created.Identifier, created.UserID, events.EventPayload{
					"title":    created.Title,
					"status":   created.Status,
					"priority": created.Priority,
				})
			})
			if errors.Is(err, repo.ErrConflict) {
				continue
			}
			return err
		}
		return fmt.Errorf("%w after %d attempts", ErrIdentifierExhausted, attempts)
	})
	if err != nil {
		return domain.Task{}, err
	}
	return created, nil
}

// allocate computes the next identifier from the most recent task. After a
// collision it never proposes a suffix at or below the rejected candidate.
func (e Engine) allocate(ctx context.Context, s Store, rejected string) (string, error) {
	last, found, err := s.MostRecentIdentifier(ctx)
	if err != nil {
		return "", err
	}
	candidate, err := domain.AllocateTaskIdentifier(last, found)
	if err != nil {
		return "", err
	}
	if rejected != "" && suffix(candidate) <= suffix(rejected) {
		return domain.NextTaskIdentifier(rejected)
	}
	return candidate, nil
}

func suffix(identifier string) int {
	_, s, _ := strings.Cut(identifier, "-")
	n, _ := strconv.Atoi(s)
	return n
}

// TaskUpdateOptions carries a partial update. UserPriority in Patch is ignored;
// it is derived from Patch.Priority when that is present.
type TaskUpdateOptions struct {
	ID     string
	UserID string
	Patch  domain.TaskPatch
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	p := opts.Patch
	p.UserPriority = nil
	if p.Priority != nil {
		rank := domain.UserPriority(p.Priority)
		p.UserPriority = &rank
	}
	var updated domain.Task
	err := e.session(ctx, func(conn *sql.Conn) error {
		return inTx(ctx, conn, func(tx *sql.Tx) error {
			var err error
			updated, err = e.store(tx).UpdateTask(ctx, opts.ID, p)
			if err != nil {
				return err
			}
			return e.eventWriter().Append(ctx, tx, events.TaskUpdated, updated.ID, updated.Identifier, opts.UserID, events.EventPayload{
				"fields": patchFields(p),
			})
		})
	})
	if err != nil {
		return domain.Task{}, err
	}
	return updated, nil
}

func (e Engine) DeleteTask(ctx context.Context, id, actorID string) (domain.Task, error) {
	var deleted domain.Task
	err := e.session(ctx, func(conn *sql.Conn) error {
		return inTx(ctx, conn, func(tx *sql.Tx) error {
			var err error
			deleted, err = e.store(tx).DeleteTask(ctx, id)
			if err != nil {
				return err
			}
			return e.eventWriter().Append(ctx, tx, events.TaskDeleted, deleted.ID, deleted.Identifier, actorID, events.EventPayload{
				"title": deleted.Title,
			})
		})
	})
	if err != nil {
		return domain.Task{}, err
	}
	return deleted, nil
}

// DeleteTasks removes the listed tasks in a single statement and reports how
// many rows were removed.
func (e Engine) DeleteTasks(ctx context.Context, ids []string, actorID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var count int64
	err := e.session(ctx, func(conn *sql.Conn) error {
		return inTx(ctx, conn, func(tx *sql.Tx) error {
			var err error
			count, err = e.store(tx).DeleteTasks(ctx, ids)
			if err != nil {
				return err
			}
			return e.eventWriter().Append(ctx, tx, events.TaskDeletedMany, "", "", actorID, events.EventPayload{
				"ids":   ids,
				"count": count,
			})
		})
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// LatestEvents returns the newest audit events.
func (e Engine) LatestEvents(ctx context.Context, limit int, evtType string) ([]domain.Event, error) {
	var evs []domain.Event
	err := e.session(ctx, func(conn *sql.Conn) error {
		var err error
		evs, err = e.store(conn).LatestEvents(ctx, limit, evtType)
		return err
	})
	return evs, err
}

func patchFields(p domain.TaskPatch) []string {
	var fields []string
	if p.Title != nil {
		fields = append(fields, "title")
	}
	if p.Content != nil || p.ClearContent {
		fields = append(fields, "content")
	}
	if p.Label != nil {
		fields = append(fields, "label")
	}
	if p.Status != nil {
		fields = append(fields, "status")
	}
	if p.Priority != nil {
		fields = append(fields, "priority", "userPriority")
	}
	if p.AIPriority != nil {
		fields = append(fields, "aiPriority")
	}
	if p.DueOfDate != nil || p.ClearDueOfDate {
		fields = append(fields, "dueOfDate")
	}
	return fields
}

func valueOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}
