package api

import (
	"context"

	"challenge-api/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	Ping(ctx context.Context) error
	ListTasks(ctx context.Context) ([]domain.Task, error)
	AddTask(ctx context.Context, name string) (domain.Task, error)
	RenameTask(ctx context.Context, id int64, name string) error
	DeleteTask(ctx context.Context, id int64) error
	GetDay(ctx context.Context, day int) (domain.DayView, error)
	ToggleTask(ctx context.Context, day int, taskID int64, completed bool) error
	SetNotes(ctx context.Context, day int, notes string) error
	Summary(ctx context.Context) (domain.Summary, error)
	Stats(ctx context.Context) (domain.Stats, error)
}

type taskNameRequest struct {
	TaskName string `json:"task_name"`
}

type toggleRequest struct {
	Completed any `json:"completed"`
}

// completed reports the truthiness of the decoded value: false, null, zero,
// "" and empty arrays or objects are false, anything else is true.
func (r toggleRequest) completed() bool {
	switch v := r.Completed.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type addTaskResponse struct {
	Success   bool   `json:"success"`
	ID        int64  `json:"id"`
	TaskName  string `json:"task_name"`
	TaskOrder int    `json:"task_order"`
}

type errorResponse struct {
	Error string `json:"error"`
}
