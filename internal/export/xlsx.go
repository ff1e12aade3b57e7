package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jercomio/LuT-1/internal/domain"
)

// SheetName is the worksheet that holds exported tasks.
const SheetName = "Tasks"

type column struct {
	Header string
	Width  float64
	Value  func(t domain.Task) any
}

var taskColumns = []column{
	{Header: "Identifier", Width: 14, Value: func(t domain.Task) any { return t.Identifier }},
	{Header: "Title", Width: 40, Value: func(t domain.Task) any { return t.Title }},
	{Header: "Status", Width: 14, Value: func(t domain.Task) any { return t.Status }},
	{Header: "Label", Width: 16, Value: func(t domain.Task) any { return t.Label }},
	{Header: "Priority", Width: 14, Value: func(t domain.Task) any { return t.Priority }},
	{Header: "User priority", Width: 12, Value: func(t domain.Task) any { return t.UserPriority }},
	{Header: "AI priority", Width: 12, Value: func(t domain.Task) any { return t.AIPriority }},
	{Header: "Due", Width: 12, Value: func(t domain.Task) any {
		if t.DueOfDate == nil {
			return ""
		}
		return t.DueOfDate.UTC().Format(time.DateOnly)
	}},
	{Header: "User ID", Width: 24, Value: func(t domain.Task) any { return t.UserID }},
	{Header: "Created", Width: 22, Value: func(t domain.Task) any { return t.CreatedAt.UTC().Format(time.RFC3339) }},
	{Header: "Updated", Width: 22, Value: func(t domain.Task) any { return t.UpdatedAt.UTC().Format(time.RFC3339) }},
}

// WriteTasks streams tasks into a single-sheet workbook written to w. The
// bearer token stored on each task is never exported.
func WriteTasks(w io.Writer, tasks []domain.Task) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return err
	}
	header := make([]any, len(taskColumns))
	for i, col := range taskColumns {
		header[i] = col.Header
		if err := sw.SetColWidth(i+1, i+1, col.Width); err != nil {
			return err
		}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	for n, t := range tasks {
		row := make([]any, len(taskColumns))
		for i, col := range taskColumns {
			row[i] = col.Value(t)
		}
		cell, err := excelize.CoordinatesToCellName(1, n+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("write %s: %w", t.Identifier, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}
