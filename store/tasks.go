package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
	"taskboard/storage"
)

// Revision counts successful writes of the task collection.
type Revision uint64

// AnyRevision disables the revision check in UpdateMany.
const AnyRevision Revision = 0

// TaskView is the observed task listing.
type TaskView struct {
	Tasks  []domain.Task
	Count  domain.TaskCount
	Filter domain.Filter
	Err    error
}

// TaskProvider is the part of the task store the category store depends on.
type TaskProvider interface {
	GetAll(ctx context.Context) ([]domain.Task, Revision, error)
	UpdateMany(ctx context.Context, tasks []domain.Task, rev Revision) error
}

// TaskStore owns the persisted task collection. Every operation reads the
// whole collection and every mutation rewrites it.
type TaskStore struct {
	mu     sync.Mutex
	tasks  *storage.Collection[domain.Task]
	filter *FilterState
	ids    *IDGenerator
	now    func() time.Time
	logger *log.Logger
	rev    Revision

	viewMu sync.RWMutex
	view   []domain.Task
	err    error
	subs   subscribers[TaskView]
}

// NewTaskStore creates a store over kv. filter supplies the criteria used to
// recompute the view after each mutation.
func NewTaskStore(kv storage.KV, filter *FilterState, logger *log.Logger) *TaskStore {
	if filter == nil {
		filter = NewFilterState()
	}
	return &TaskStore{
		tasks:  storage.NewCollection[domain.Task](kv, storage.TasksKey),
		filter: filter,
		ids:    NewIDGenerator(),
		now:    time.Now,
		logger: loggerOrDefault(logger),
		rev:    1,
		view:   []domain.Task{},
	}
}

// ListFiltered loads the collection, applies f and makes the result the
// current view.
func (s *TaskStore) ListFiltered(ctx context.Context, f domain.Filter) (result []domain.Task, err error) {
	ctx, ev := startOp(ctx, s.logger, "tasks", "list")
	defer func() { ev.End(0, err) }()

	s.mu.Lock()
	tasks, _, err := s.tasks.Load(ctx)
	if err != nil {
		view := s.storeView(nil, f, err)
		s.mu.Unlock()
		s.subs.publish(view)
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	result = domain.FilterAndSort(tasks, f)
	view := s.storeView(result, f, nil)
	s.mu.Unlock()

	ev.Set("tasks_returned", len(result))
	s.subs.publish(view)
	return cloneTasks(result), nil
}

// Query returns the tasks matching f without touching the view.
func (s *TaskStore) Query(ctx context.Context, f domain.Filter) (result []domain.Task, err error) {
	ctx, ev := startOp(ctx, s.logger, "tasks", "query")
	defer func() { ev.End(0, err) }()

	s.mu.Lock()
	tasks, _, err := s.tasks.Load(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	result = cloneTasks(domain.FilterAndSort(tasks, f))
	ev.Set("tasks_returned", len(result))
	return result, nil
}

// Refresh reloads the view with the current filter.
func (s *TaskStore) Refresh(ctx context.Context) error {
	_, err := s.ListFiltered(ctx, s.filter.Current())
	return err
}

// Create appends a task and returns its id. Content is not validated.
func (s *TaskStore) Create(ctx context.Context, fields domain.TaskFields) (id int64, err error) {
	ctx, ev := startOp(ctx, s.logger, "tasks", "create")
	defer func() { ev.End(0, err) }()

	err = s.mutate(ctx, func(tasks []domain.Task) ([]domain.Task, bool) {
		for _, t := range tasks {
			s.ids.Observe(t.ID)
		}
		id = s.ids.Next()
		return append(tasks, domain.NewTask(id, s.now().UnixMilli(), fields)), true
	})
	if err != nil {
		return 0, fmt.Errorf("create task: %w", err)
	}
	ev.Set("task_id", id)
	return id, nil
}

// Update merges patch into the task with id. A missing task is not an error
// and nothing is written.
func (s *TaskStore) Update(ctx context.Context, id int64, patch domain.TaskPatch) (err error) {
	ctx, ev := startOp(ctx, s.logger, "tasks", "update")
	defer func() { ev.End(0, err) }()
	ev.Set("task_id", id)

	if patch.Empty() {
		return nil
	}
	err = s.mutate(ctx, func(tasks []domain.Task) ([]domain.Task, bool) {
		i := domain.FindTask(tasks, id)
		if i < 0 {
			return nil, false
		}
		tasks[i] = patch.Apply(tasks[i])
		return tasks, true
	})
	if err != nil {
		return fmt.Errorf("update task %d: %w", id, err)
	}
	return nil
}

// Toggle flips the completion of the task with id, if present.
func (s *TaskStore) Toggle(ctx context.Context, id int64) (err error) {
	ctx, ev := startOp(ctx, s.logger, "tasks", "toggle")
	defer func() { ev.End(0, err) }()
	ev.Set("task_id", id)

	err = s.mutate(ctx, func(tasks []domain.Task) ([]domain.Task, bool) {
		i := domain.FindTask(tasks, id)
		if i < 0 {
			return nil, false
		}
		tasks[i].Completed = !tasks[i].Completed
		return tasks, true
	})
	if err != nil {
		return fmt.Errorf("toggle task %d: %w", id, err)
	}
	return nil
}

// Delete removes the task with id, if present.
func (s *TaskStore) Delete(ctx context.Context, id int64) (err error) {
	ctx, ev := startOp(ctx, s.logger, "tasks", "delete")
	defer func() { ev.End(0, err) }()
	ev.Set("task_id", id)

	err = s.mutate(ctx, func(tasks []domain.Task) ([]domain.Task, bool) {
		i := domain.FindTask(tasks, id)
		if i < 0 {
			return nil, false
		}
		return append(tasks[:i], tasks[i+1:]...), true
	})
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return nil
}

// Get returns the task with id, or nil.
func (s *TaskStore) Get(ctx context.Context, id int64) (task *domain.Task, err error) {
	ctx, ev := startOp(ctx, s.logger, "tasks", "get")
	defer func() { ev.End(0, err) }()
	ev.Set("task_id", id)

	tasks, _, err := s.tasks.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	i := domain.FindTask(tasks, id)
	ev.Set("found", i >= 0)
	if i < 0 {
		return nil, nil
	}
	t := tasks[i].Clone()
	return &t, nil
}

// GetAll returns the whole persisted collection and the revision it was
// read at.
func (s *TaskStore) GetAll(ctx context.Context) ([]domain.Task, Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks, _, err := s.tasks.Load(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("load tasks: %w", err)
	}
	return tasks, s.rev, nil
}

// UpdateMany replaces the whole collection in one write. It fails with
// ErrConcurrencyConflict when the collection was written after rev.
func (s *TaskStore) UpdateMany(ctx context.Context, tasks []domain.Task, rev Revision) (err error) {
	ctx, ev := startOp(ctx, s.logger, "tasks", "update_many")
	defer func() { ev.End(0, err) }()
	ev.Set("tasks", len(tasks))

	s.mu.Lock()
	if rev != AnyRevision && rev != s.rev {
		current := s.rev
		s.mu.Unlock()
		ev.Set("conflict", true)
		return fmt.Errorf("update tasks at revision %d, current %d: %w", rev, current, ErrConcurrencyConflict)
	}
	view, err := s.commit(ctx, cloneTasks(tasks))
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("update tasks: %w", err)
	}
	s.subs.publish(view)
	return nil
}

// Count splits the current view by completion.
func (s *TaskStore) Count() domain.TaskCount {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return domain.CountTasks(s.view)
}

// View returns a copy of the current view.
func (s *TaskStore) View() []domain.Task {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return cloneTasks(s.view)
}

// Err returns the error of the last failed load, if the view has not been
// refreshed since.
func (s *TaskStore) Err() error {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.err
}

// Subscribe registers fn for every view change. Listeners run synchronously
// on the goroutine that changed the view.
func (s *TaskStore) Subscribe(fn func(TaskView)) (cancel func()) {
	return s.subs.add(fn)
}

// mutate runs fn over the loaded collection and persists the result when fn
// reports a change. Malformed persisted data is never overwritten.
func (s *TaskStore) mutate(ctx context.Context, fn func([]domain.Task) ([]domain.Task, bool)) error {
	s.mu.Lock()
	tasks, _, err := s.tasks.Load(ctx)
	if err != nil {
		s.mu.Unlock()
		s.setErr(err)
		return err
	}
	next, changed := fn(tasks)
	if !changed {
		s.mu.Unlock()
		return nil
	}
	view, err := s.commit(ctx, next)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.subs.publish(view)
	return nil
}

// commit writes tasks and recomputes the view. Callers hold s.mu.
func (s *TaskStore) commit(ctx context.Context, tasks []domain.Task) (TaskView, error) {
	if err := s.tasks.Save(ctx, tasks); err != nil {
		s.logger.WithError(err).WithField("key", storage.TasksKey).Error("persist tasks")
		s.setErr(err)
		return TaskView{}, err
	}
	s.rev++
	f := s.filter.Current()
	return s.storeView(domain.FilterAndSort(tasks, f), f, nil), nil
}

// storeView replaces the view and returns the event to publish once s.mu is
// released. Callers hold s.mu, so a view is never older than the last write.
func (s *TaskStore) storeView(tasks []domain.Task, f domain.Filter, err error) TaskView {
	if tasks == nil {
		tasks = []domain.Task{}
	}
	s.viewMu.Lock()
	s.view = tasks
	s.err = err
	s.viewMu.Unlock()
	return TaskView{Tasks: cloneTasks(tasks), Count: domain.CountTasks(tasks), Filter: f, Err: err}
}

func (s *TaskStore) setErr(err error) {
	s.viewMu.Lock()
	s.err = err
	s.viewMu.Unlock()
}

func cloneTasks(tasks []domain.Task) []domain.Task {
	out := make([]domain.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
