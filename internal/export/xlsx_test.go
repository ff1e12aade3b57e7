package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jercomio/LuT-1/internal/domain"
)

func TestWriteTasks(t *testing.T) {
	due := time.Date(2024, 12, 24, 0, 0, 0, 0, time.UTC)
	created := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	tasks := []domain.Task{
		{Identifier: "TASK-0002", Title: "Ship", Status: "todo", Label: "feature", Priority: "high", UserPriority: 2, UserID: "u1", Token: "secret-token", DueOfDate: &due, CreatedAt: created, UpdatedAt: created},
		{Identifier: "TASK-0001", Title: "Plan", Status: "backlog", Label: "others", Priority: "no priority", UserPriority: 5, UserID: "u1", CreatedAt: created, UpdatedAt: created},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteTasks(&buf, tasks))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Identifier", rows[0][0])
	assert.Equal(t, "TASK-0002", rows[1][0])
	assert.Equal(t, "Ship", rows[1][1])
	assert.Equal(t, "2024-12-24", rows[1][7])
	assert.Equal(t, "2024-05-01T09:30:00Z", rows[2][9])
	for _, row := range rows {
		for _, cell := range row {
			assert.NotEqual(t, "secret-token", cell)
		}
	}
}

func TestWriteTasksEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTasks(&buf, nil))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
