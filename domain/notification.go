package domain

import (
	"fmt"
	"time"
)

// NotificationCategoryDeleted is emitted once per category delete that
// cleared the category from at least one task.
const NotificationCategoryDeleted = "category-deleted"

// Notification is a request to show a message to the user. Rendering and
// dismissal belong to whoever receives it.
type Notification struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Message       string    `json:"message"`
	CategoryID    int64     `json:"categoryId,omitempty"`
	CategoryName  string    `json:"categoryName,omitempty"`
	AffectedTasks int       `json:"affectedTasks,omitempty"`
	At            time.Time `json:"at"`
}

// CategoryDeleted builds the notice for a cascading category delete.
func CategoryDeleted(id string, cat Category, affected int, at time.Time) Notification {
	noun := "tasks"
	if affected == 1 {
		noun = "task"
	}
	return Notification{
		ID:            id,
		Kind:          NotificationCategoryDeleted,
		Message:       fmt.Sprintf("category %q deleted: %d %s moved to uncategorized", cat.Name, affected, noun),
		CategoryID:    cat.ID,
		CategoryName:  cat.Name,
		AffectedTasks: affected,
		At:            at,
	}
}
