package engine_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jercomio/LuT-1/internal/db"
	"github.com/jercomio/LuT-1/internal/domain"
	"github.com/jercomio/LuT-1/internal/engine"
	"github.com/jercomio/LuT-1/internal/events"
	"github.com/jercomio/LuT-1/internal/migrate"
	"github.com/jercomio/LuT-1/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(conn, dialect)
	require.NoError(t, err)
	eng := engine.New(conn, dialect)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	eng.Now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func strPtr(s string) *string { return &s }

func (env testEnv) create(t *testing.T, title string, priority *string) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:    title,
		Priority: priority,
		UserID:   "user-1",
		Token:    "tok",
	})
	require.NoError(t, err)
	return task
}

func TestCreateTaskDefaults(t *testing.T) {
	env := newTestEnv(t)
	task := env.create(t, "Write docs", nil)

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "TASK-0001", task.Identifier)
	assert.Equal(t, "others", task.Label)
	assert.Equal(t, "backlog", task.Status)
	assert.Equal(t, "no priority", task.Priority)
	assert.Equal(t, 5, task.UserPriority)
	assert.Zero(t, task.AIPriority)
	assert.True(t, task.Active)
	assert.Equal(t, "tok", task.Token)
	assert.Nil(t, task.Content)
	assert.False(t, task.CreatedAt.IsZero())
}

func TestIdentifiersIncreaseInCreationOrder(t *testing.T) {
	env := newTestEnv(t)
	for i := 1; i <= 12; i++ {
		task := env.create(t, fmt.Sprintf("task %d", i), strPtr("high"))
		assert.Equal(t, fmt.Sprintf("TASK-%04d", i), task.Identifier)
		assert.Equal(t, 2, task.UserPriority)
	}
}

func TestConcurrentCreatesGetDistinctIdentifiers(t *testing.T) {
	env := newTestEnv(t)
	const n = 16
	var wg sync.WaitGroup
	idents := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "parallel", UserID: "u"})
			idents[i], errs[i] = task.Identifier, err
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	sort.Strings(idents)
	for i, ident := range idents {
		assert.Equal(t, fmt.Sprintf("TASK-%04d", i+1), ident)
	}
}

func seedTask(t *testing.T, env testEnv, identifier string, createdAt time.Time) {
	t.Helper()
	r := repo.Repo{DB: env.Engine.DB, Dialect: env.Engine.Dialect}
	_, err := r.CreateTask(env.Ctx, domain.Task{
		Identifier: identifier,
		Title:      identifier,
		Label:      "others",
		Status:     "backlog",
		Priority:   "no priority",
		UserID:     "seed",
		Active:     true,
		CreatedAt:  createdAt,
	})
	require.NoError(t, err)
}

func TestCreateTaskRetriesOnIdentifierConflict(t *testing.T) {
	env := newTestEnv(t)
	// TASK-0002 is older than TASK-0001, so the first candidate collides.
	seedTask(t, env, "TASK-0002", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	seedTask(t, env, "TASK-0001", time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))

	task := env.create(t, "after conflict", nil)
	assert.Equal(t, "TASK-0003", task.Identifier)
}

func TestCreateTaskGivesUpAfterMaxAttempts(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.AllocAttempts = 1
	seedTask(t, env, "TASK-0002", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	seedTask(t, env, "TASK-0001", time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))

	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", UserID: "u"})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrIdentifierExhausted)
}

func TestGetTaskIsCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	created := env.create(t, "lookup", nil)

	got, err := env.Engine.GetTask(env.Ctx, "task-0001")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = env.Engine.GetTask(env.Ctx, "TASK-0404")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestUpdateTaskPriorityRecompute(t *testing.T) {
	env := newTestEnv(t)
	created := env.create(t, "prioritize", strPtr("low"))
	require.Equal(t, 4, created.UserPriority)

	// no priority in the patch: rank untouched, client rank ignored
	bogus := 1
	updated, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID:     created.ID,
		UserID: "user-1",
		Patch:  domain.TaskPatch{Title: strPtr("renamed"), UserPriority: &bogus},
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)
	assert.Equal(t, "low", updated.Priority)
	assert.Equal(t, 4, updated.UserPriority)

	updated, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID:     created.ID,
		UserID: "user-1",
		Patch:  domain.TaskPatch{Priority: strPtr("urgent")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.UserPriority)
	assert.Equal(t, created.Identifier, updated.Identifier)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
}

func TestUpdateTaskNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: "missing", UserID: "u"})
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestDeleteTaskAndDeleteMany(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "a", nil)
	b := env.create(t, "b", nil)
	c := env.create(t, "c", nil)

	deleted, err := env.Engine.DeleteTask(env.Ctx, a.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, deleted.ID)

	_, err = env.Engine.DeleteTask(env.Ctx, a.ID, "user-1")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	count, err := env.Engine.DeleteTasks(env.Ctx, []string{b.ID, c.ID, "unknown"}, "user-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	count, err = env.Engine.DeleteTasks(env.Ctx, nil, "user-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	tasks, err := env.Engine.ListTasks(env.Ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	evs, err := env.Engine.LatestEvents(env.Ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, evs, 5)
	assert.Equal(t, events.TaskDeletedMany, evs[0].Type)

	created, err := env.Engine.LatestEvents(env.Ctx, 10, events.TaskCreated)
	require.NoError(t, err)
	assert.Len(t, created, 3)
}
