package storage

import "time"

type taskRow struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	TaskName  string    `gorm:"column:task_name;not null"`
	TaskOrder int       `gorm:"column:task_order;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (taskRow) TableName() string { return "tasks_list" }

// dailyTaskRow carries no foreign key constraint. Toggles for unknown task ids
// are stored as-is; DeleteTask removes a task's rows itself.
type dailyTaskRow struct {
	ID        int64 `gorm:"column:id;primaryKey;autoIncrement"`
	DayNumber int   `gorm:"column:day_number;not null;uniqueIndex:idx_daily_tasks_day_task"`
	TaskID    int64 `gorm:"column:task_id;not null;uniqueIndex:idx_daily_tasks_day_task;index"`
	Completed bool  `gorm:"column:completed;not null"`
}

func (dailyTaskRow) TableName() string { return "daily_tasks" }

type dayNoteRow struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	DayNumber int       `gorm:"column:day_number;not null;uniqueIndex"`
	Date      string    `gorm:"column:date;not null"`
	Notes     *string   `gorm:"column:notes"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (dayNoteRow) TableName() string { return "day_notes" }
