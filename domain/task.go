package domain

import (
	"sort"
	"strings"
)

// Task represents a single to-do item owned by a user. Date is a unix
// timestamp in milliseconds.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Date        int64  `json:"date"`
	Category    string `json:"category"`
	UserID      string `json:"userId"`
	IsCompleted bool   `json:"isCompleted"`
}

// TaskPatch describes a partial update to a task. Nil fields are left
// untouched by the store.
type TaskPatch struct {
	Title       *string `json:"title,omitempty"`
	Date        *int64  `json:"date,omitempty"`
	Category    *string `json:"category,omitempty"`
	IsCompleted *bool   `json:"isCompleted,omitempty"`
}

// Empty reports whether the patch carries no changes.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Date == nil && p.Category == nil && p.IsCompleted == nil
}

// ValidTitle reports whether a title is acceptable at creation time.
func ValidTitle(title string) bool {
	return strings.TrimSpace(title) != ""
}

// SortTasksByDate orders tasks ascending by date. The sort is stable so tasks
// sharing a date keep the order the store delivered them in.
func SortTasksByDate(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Date < tasks[j].Date })
}
