package domain

// CategoryRef is the category snapshot copied onto a task when it is assigned.
// It is not kept in sync with later changes to the category.
type CategoryRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Task represents a single tracked item.
type Task struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Completed   bool         `json:"completed"`
	DueDate     string       `json:"dueDate"`
	Category    *CategoryRef `json:"category"`
	// CreatedAt is unix milliseconds, set once when the task is created.
	CreatedAt int64 `json:"createdAt,omitempty"`
}

// TaskFields carries every user-editable attribute of a new task.
type TaskFields struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Completed   bool         `json:"completed"`
	DueDate     string       `json:"dueDate"`
	Category    *CategoryRef `json:"category"`
}

// TaskPatch carries partial updates for a task. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string
	Description *string
	Completed   *bool
	DueDate     *string
	Category    *CategoryRef
	// ClearCategory removes the category snapshot. It wins over Category.
	ClearCategory bool
}

// TaskCount is the completed/incomplete split of a task listing.
type TaskCount struct {
	Completed  int `json:"completed"`
	Incomplete int `json:"incomplete"`
}

// NewTask builds a task from fields with the given identity.
func NewTask(id, createdAt int64, f TaskFields) Task {
	return Task{
		ID:          id,
		Title:       f.Title,
		Description: f.Description,
		Completed:   f.Completed,
		DueDate:     f.DueDate,
		Category:    f.Category.Clone(),
		CreatedAt:   createdAt,
	}
}

// Clone returns a copy of the snapshot, or nil.
func (c *CategoryRef) Clone() *CategoryRef {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Clone returns a copy of t that shares no memory with it.
func (t Task) Clone() Task {
	t.Category = t.Category.Clone()
	return t
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Completed == nil &&
		p.DueDate == nil && p.Category == nil && !p.ClearCategory
}

// Apply merges the patch into t. ID and CreatedAt never change.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	switch {
	case p.ClearCategory:
		t.Category = nil
	case p.Category != nil:
		t.Category = p.Category.Clone()
	}
	return t
}

// CountTasks splits tasks by completion.
func CountTasks(tasks []Task) TaskCount {
	var c TaskCount
	for _, t := range tasks {
		if t.Completed {
			c.Completed++
		} else {
			c.Incomplete++
		}
	}
	return c
}

// FindTask returns the index of the task with id, or -1.
func FindTask(tasks []Task, id int64) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}
