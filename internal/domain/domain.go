package domain

import "time"

// Defaults applied to optional fields on create.
const (
	DefaultLabel    = "others"
	DefaultStatus   = "backlog"
	DefaultPriority = "no priority"
)

type Task struct {
	ID           string     `json:"id"`
	Identifier   string     `json:"identifier"`
	Title        string     `json:"title"`
	Content      *string    `json:"content"`
	Label        string     `json:"label"`
	Status       string     `json:"status"`
	Priority     string     `json:"priority"`
	AIPriority   float64    `json:"aiPriority"`
	UserPriority int        `json:"userPriority"`
	Token        string     `json:"token,omitempty"`
	Active       bool       `json:"active"`
	UserID       string     `json:"userId"`
	DueOfDate    *time.Time `json:"dueOfDate" format:"date-time"`
	CreatedAt    time.Time  `json:"createdAt" format:"date-time"`
	UpdatedAt    time.Time  `json:"updatedAt" format:"date-time"`
}

// TaskPatch holds a partial update. Nil fields leave the stored value unchanged.
type TaskPatch struct {
	Title        *string
	Content      *string
	Label        *string
	Status       *string
	Priority     *string
	AIPriority   *float64
	UserPriority *int
	DueOfDate    *time.Time
	// ClearContent and ClearDueOfDate store NULL and win over the value fields.
	ClearContent   bool
	ClearDueOfDate bool
}

type Event struct {
	ID         string    `json:"id"`
	TS         time.Time `json:"ts" format:"date-time"`
	Type       string    `json:"type"`
	TaskID     string    `json:"taskId,omitempty"`
	Identifier string    `json:"identifier,omitempty"`
	ActorID    string    `json:"actorId"`
	Payload    string    `json:"payload"`
}
