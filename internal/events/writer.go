package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jercomio/LuT-1/internal/db"
)

const (
	TaskCreated     = "task.created"
	TaskUpdated     = "task.updated"
	TaskDeleted     = "task.deleted"
	TaskDeletedMany = "task.deleted_many"
)

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Writer struct {
	Dialect db.Dialect
	Now     func() time.Time
}

type EventPayload map[string]any

// Append records an event using q, normally the transaction of the mutation it describes.
func (w Writer) Append(ctx context.Context, q Execer, evtType, taskID, identifier, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = q.ExecContext(ctx, w.Dialect.Rebind(`INSERT INTO events(id,ts,type,task_id,identifier,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`),
		uuid.NewString(), ts, evtType, nullable(taskID), nullable(identifier), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
