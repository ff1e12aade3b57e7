package server

import (
	"time"

	"github.com/jercomio/LuT-1/internal/domain"
)

// Request payloads. They document the accepted shapes in the OpenAPI
// document; decoding and validation happen in validate.go.

type CreateTaskRequest struct {
	Title        string   `json:"title" minLength:"1" example:"Write release notes"`
	Content      *string  `json:"content,omitempty" nullable:"true"`
	Label        *string  `json:"label,omitempty" example:"documentation"`
	Status       *string  `json:"status,omitempty" example:"todo"`
	Priority     *string  `json:"priority,omitempty" example:"high"`
	AIPriority   *float64 `json:"aiPriority,omitempty"`
	UserPriority *float64 `json:"userPriority,omitempty" doc:"Ignored; derived from priority"`
	UserID       string   `json:"userId" minLength:"1"`
}

type UpdateTaskRequest struct {
	ID           string   `json:"id" minLength:"1"`
	Title        *string  `json:"title,omitempty"`
	Content      *string  `json:"content,omitempty" nullable:"true"`
	Label        *string  `json:"label,omitempty"`
	Status       *string  `json:"status,omitempty"`
	Priority     *string  `json:"priority,omitempty"`
	AIPriority   *float64 `json:"aiPriority,omitempty"`
	UserPriority *float64 `json:"userPriority,omitempty" doc:"Ignored; derived from priority"`
	DueOfDate    any      `json:"dueOfDate,omitempty" doc:"Date string, epoch milliseconds or null"`
	UserID       string   `json:"userId" minLength:"1"`
}

type DeleteTaskRequest struct {
	ID     string  `json:"id" minLength:"1"`
	Title  *string `json:"title,omitempty"`
	UserID string  `json:"userId" minLength:"1"`
}

// Response payloads

type TaskResponse struct {
	ID           string     `json:"id"`
	Identifier   string     `json:"identifier" example:"TASK-0001"`
	Title        string     `json:"title"`
	Content      *string    `json:"content" nullable:"true"`
	Label        string     `json:"label"`
	Status       string     `json:"status"`
	Priority     string     `json:"priority"`
	AIPriority   float64    `json:"aiPriority"`
	UserPriority int        `json:"userPriority" minimum:"1" maximum:"5"`
	Token        string     `json:"token"`
	Active       bool       `json:"active"`
	UserID       string     `json:"userId"`
	DueOfDate    *time.Time `json:"dueOfDate" nullable:"true"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type DeleteManyResponse struct {
	Count int64 `json:"count"`
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:           t.ID,
		Identifier:   t.Identifier,
		Title:        t.Title,
		Content:      t.Content,
		Label:        t.Label,
		Status:       t.Status,
		Priority:     t.Priority,
		AIPriority:   t.AIPriority,
		UserPriority: t.UserPriority,
		Token:        t.Token,
		Active:       t.Active,
		UserID:       t.UserID,
		DueOfDate:    t.DueOfDate,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func mapTasks(items []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, taskResponse(t))
	}
	return out
}
