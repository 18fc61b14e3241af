package domain

import (
	"math"
	"time"
)

// ChallengeDays is the length of the challenge calendar.
const ChallengeDays = 100

// NoteDateLayout is the storage format of DayNote.Date.
const NoteDateLayout = "2006-01-02"

// DayProgress counts completed tasks against the number of defined tasks.
type DayProgress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Summary maps day numbers 1..ChallengeDays to their progress.
type Summary map[int]DayProgress

// Stats describes progress through the whole challenge.
type Stats struct {
	CompletedDays int     `json:"completed_days"`
	TotalDays     int     `json:"total_days"`
	Remaining     int     `json:"remaining"`
	Percentage    float64 `json:"percentage"`
}

// BuildSummary fills every challenge day, defaulting days without completions to zero.
func BuildSummary(completedByDay map[int]int, totalTasks int) Summary {
	s := make(Summary, ChallengeDays)
	for day := 1; day <= ChallengeDays; day++ {
		s[day] = DayProgress{Completed: completedByDay[day], Total: totalTasks}
	}
	return s
}

// BuildStats derives challenge stats from the number of fully completed days.
func BuildStats(completedDays int) Stats {
	st := Stats{
		CompletedDays: completedDays,
		TotalDays:     ChallengeDays,
		Remaining:     ChallengeDays - completedDays,
	}
	if completedDays > 0 {
		pct := float64(completedDays) / ChallengeDays * 100
		st.Percentage = math.Round(pct*10) / 10
	}
	return st
}

// CountCompletedDays returns how many days have every defined task completed.
// distinctByDay holds the number of distinct completed task ids per day.
func CountCompletedDays(distinctByDay map[int]int, totalTasks int) int {
	if totalTasks == 0 {
		return 0
	}
	n := 0
	for _, count := range distinctByDay {
		if count == totalTasks {
			n++
		}
	}
	return n
}

// NoteDate is the calendar date stored with a day note. It is anchored on the
// write time, not on a fixed challenge start.
func NoteDate(now time.Time, day int) string {
	y, m, d := now.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return start.AddDate(0, 0, day-1).Format(NoteDateLayout)
}
