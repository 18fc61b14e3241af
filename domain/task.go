package domain

import (
	"strings"
	"time"
)

// Task is a recurring checklist item tracked identically across all challenge days.
type Task struct {
	ID        int64     `json:"id"`
	Name      string    `json:"task_name"`
	Order     int       `json:"task_order"`
	CreatedAt time.Time `json:"-"`
}

// DayTask reports the completion state of a task on a single day.
type DayTask struct {
	ID        int64  `json:"id"`
	Name      string `json:"task_name"`
	Completed bool   `json:"completed"`
}

// DayView is everything the calendar shows for one day.
type DayView struct {
	Tasks []DayTask `json:"tasks"`
	Notes string    `json:"notes"`
}

// NormalizeTaskName trims the name and rejects it when nothing is left.
func NormalizeTaskName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ValidationError{Field: "task_name", Message: "task_name is required"}
	}
	return name, nil
}

// BuildDayView joins the ordered task list with the ids completed on a day.
// Every task appears exactly once, in the order given.
func BuildDayView(tasks []Task, completed map[int64]bool, notes string) DayView {
	view := DayView{Tasks: make([]DayTask, 0, len(tasks)), Notes: notes}
	for _, t := range tasks {
		view.Tasks = append(view.Tasks, DayTask{ID: t.ID, Name: t.Name, Completed: completed[t.ID]})
	}
	return view
}
