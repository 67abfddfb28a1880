package api

import (
	"context"

	"taskboard/domain"
	"taskboard/store"
)

// TaskService is the task store as seen by the handlers.
type TaskService interface {
	Query(ctx context.Context, f domain.Filter) ([]domain.Task, error)
	Create(ctx context.Context, fields domain.TaskFields) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Task, error)
	Update(ctx context.Context, id int64, patch domain.TaskPatch) error
	Toggle(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	Refresh(ctx context.Context) error
	Count() domain.TaskCount
	View() []domain.Task
}

// CategoryService is the category store as seen by the handlers.
type CategoryService interface {
	List(ctx context.Context) ([]domain.Category, error)
	GetByID(ctx context.Context, id int64) (*domain.Category, error)
	FindOrCreate(ctx context.Context, name string) (*domain.CategoryRef, error)
	WithCategory(ctx context.Context, sel store.CategorySelector, fn func(*domain.CategoryRef) error) error
	Delete(ctx context.Context, id int64) error
}

// FilterService holds the shared listing criteria.
type FilterService interface {
	Current() domain.Filter
	SetFilter(p domain.FilterPatch) error
	Reset()
}

// Services groups everything Register wires into routes. Health may be nil.
type Services struct {
	Tasks      TaskService
	Categories CategoryService
	Filter     FilterService
	Health     func(ctx context.Context) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper records idempotency keys of accepted create requests.
type Deduper interface {
	// Add records the key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the create fails.
	Remove(ctx context.Context, userID, key string) error
}

type tasksResponse struct {
	Tasks  []domain.Task    `json:"tasks"`
	Count  domain.TaskCount `json:"count"`
	Filter domain.Filter    `json:"filter"`
}

type createTaskRequest struct {
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	DueDate      string  `json:"dueDate"`
	Completed    bool    `json:"completed"`
	CategoryID   *int64  `json:"categoryId,omitempty"`
	CategoryName *string `json:"categoryName,omitempty"`
}

type createTaskResponse struct {
	ID             int64  `json:"id"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type patchTaskRequest struct {
	Title         *string `json:"title,omitempty"`
	Description   *string `json:"description,omitempty"`
	DueDate       *string `json:"dueDate,omitempty"`
	Completed     *bool   `json:"completed,omitempty"`
	CategoryID    *int64  `json:"categoryId,omitempty"`
	CategoryName  *string `json:"categoryName,omitempty"`
	ClearCategory bool    `json:"clearCategory,omitempty"`
}

type createCategoryRequest struct {
	Name string `json:"name"`
}
