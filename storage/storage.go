package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"challenge-api/domain"
)

// Storage is the sqlite-backed challenge store. Every operation runs on a
// connection or transaction scoped to the call.
type Storage struct {
	db    *gorm.DB
	sqlDB *sql.DB
	now   func() time.Time
}

// New opens the sqlite database at path, creates any missing tables and
// returns a ready Storage. Query errors and slow statements go to lg.
func New(path string, lg *log.Logger) (*Storage, error) {
	if path == "" {
		return nil, errors.New("storage path is required")
	}
	if lg == nil {
		lg = log.StandardLogger()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	gdb, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
	}, &gorm.Config{
		Logger: logger.New(lg, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=5000;`,
	} {
		if err := gdb.Exec(pragma).Error; err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if err := SyncSchema(gdb); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sync schema: %w", err)
	}
	return &Storage{db: gdb, sqlDB: sqlDB, now: time.Now}, nil
}

// SyncSchema creates the challenge tables and indexes when absent.
func SyncSchema(db *gorm.DB) error {
	if db == nil {
		return errors.New("db is required")
	}
	return db.AutoMigrate(&taskRow{}, &dailyTaskRow{}, &dayNoteRow{})
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks that the database still answers.
func (s *Storage) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// ListTasks returns every task ordered by task_order then id.
func (s *Storage) ListTasks(ctx context.Context) ([]domain.Task, error) {
	tasks, err := listTasks(s.db.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func listTasks(db *gorm.DB) ([]domain.Task, error) {
	var rows []taskRow
	if err := db.Order("task_order, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	tasks := make([]domain.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, domain.Task{ID: r.ID, Name: r.TaskName, Order: r.TaskOrder, CreatedAt: r.CreatedAt})
	}
	return tasks, nil
}

// AddTask appends a task after the current highest task_order.
func (s *Storage) AddTask(ctx context.Context, name string) (domain.Task, error) {
	name, err := domain.NormalizeTaskName(name)
	if err != nil {
		return domain.Task{}, err
	}
	row := taskRow{TaskName: name}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxOrder int
		if err := tx.Model(&taskRow{}).Select("COALESCE(MAX(task_order), 0)").Scan(&maxOrder).Error; err != nil {
			return err
		}
		row.TaskOrder = maxOrder + 1
		return tx.Create(&row).Error
	})
	if err != nil {
		return domain.Task{}, fmt.Errorf("add task: %w", err)
	}
	return domain.Task{ID: row.ID, Name: row.TaskName, Order: row.TaskOrder, CreatedAt: row.CreatedAt}, nil
}

// RenameTask sets a new name on the task. Unknown ids are not an error.
func (s *Storage) RenameTask(ctx context.Context, id int64, name string) error {
	name, err := domain.NormalizeTaskName(name)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Model(&taskRow{}).Where("id = ?", id).Update("task_name", name).Error
	if err != nil {
		return fmt.Errorf("rename task %d: %w", id, err)
	}
	return nil
}

// DeleteTask removes the task and all of its completion rows atomically.
// Unknown ids are not an error.
func (s *Storage) DeleteTask(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", id).Delete(&dailyTaskRow{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&taskRow{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return nil
}

// GetDay reports every task with its completion state for day, plus the day's notes.
func (s *Storage) GetDay(ctx context.Context, day int) (domain.DayView, error) {
	var view domain.DayView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tasks, err := listTasks(tx)
		if err != nil {
			return err
		}
		var done []int64
		if err := tx.Model(&dailyTaskRow{}).
			Where("day_number = ? AND completed = ?", day, true).
			Pluck("task_id", &done).Error; err != nil {
			return err
		}
		completed := make(map[int64]bool, len(done))
		for _, id := range done {
			completed[id] = true
		}
		var notes []dayNoteRow
		if err := tx.Where("day_number = ?", day).Limit(1).Find(&notes).Error; err != nil {
			return err
		}
		text := ""
		if len(notes) == 1 && notes[0].Notes != nil {
			text = *notes[0].Notes
		}
		view = domain.BuildDayView(tasks, completed, text)
		return nil
	})
	if err != nil {
		return domain.DayView{}, fmt.Errorf("get day %d: %w", day, err)
	}
	return view, nil
}

// ToggleTask records the completion state of a task on a day. The last write wins.
func (s *Storage) ToggleTask(ctx context.Context, day int, taskID int64, completed bool) error {
	row := dailyTaskRow{DayNumber: day, TaskID: taskID, Completed: completed}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "day_number"}, {Name: "task_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"completed"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("toggle task %d on day %d: %w", taskID, day, err)
	}
	return nil
}

// SetNotes stores the notes for day. The note date is recomputed from the
// current time on every write.
func (s *Storage) SetNotes(ctx context.Context, day int, notes string) error {
	row := dayNoteRow{
		DayNumber: day,
		Date:      domain.NoteDate(s.now(), day),
		Notes:     &notes,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "day_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"notes", "date"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("set notes for day %d: %w", day, err)
	}
	return nil
}

type dayCount struct {
	DayNumber int
	Cnt       int
}

func countByDay(tx *gorm.DB, expr string) (map[int]int, error) {
	var rows []dayCount
	err := tx.Model(&dailyTaskRow{}).
		Select("day_number, " + expr + " AS cnt").
		Where("completed = ?", true).
		Group("day_number").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[int]int, len(rows))
	for _, r := range rows {
		out[r.DayNumber] = r.Cnt
	}
	return out, nil
}

// Summary reports completed against total tasks for every challenge day.
func (s *Storage) Summary(ctx context.Context) (domain.Summary, error) {
	var summary domain.Summary
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var total int64
		if err := tx.Model(&taskRow{}).Count(&total).Error; err != nil {
			return err
		}
		byDay, err := countByDay(tx, "COUNT(*)")
		if err != nil {
			return err
		}
		summary = domain.BuildSummary(byDay, int(total))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	return summary, nil
}

// Stats counts the days on which every defined task was completed.
func (s *Storage) Stats(ctx context.Context) (domain.Stats, error) {
	var completedDays int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var total int64
		if err := tx.Model(&taskRow{}).Count(&total).Error; err != nil {
			return err
		}
		if total == 0 {
			return nil
		}
		byDay, err := countByDay(tx, "COUNT(DISTINCT task_id)")
		if err != nil {
			return err
		}
		completedDays = domain.CountCompletedDays(byDay, int(total))
		return nil
	})
	if err != nil {
		return domain.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return domain.BuildStats(completedDays), nil
}
