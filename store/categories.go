package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
	"taskboard/storage"
)

// maxCascadeAttempts bounds the retries of the task half of a cascading
// delete when the task collection keeps moving underneath it.
const maxCascadeAttempts = 5

// CategoryStore owns the persisted category collection and keeps tasks
// consistent when a category is deleted.
type CategoryStore struct {
	mu       sync.Mutex
	cats     *storage.Collection[domain.Category]
	tasks    TaskProvider
	notifier Notifier
	ids      *IDGenerator
	now      func() time.Time
	logger   *log.Logger

	viewMu sync.RWMutex
	view   []domain.Category
	err    error
}

// NewCategoryStore creates a store over kv. Cascading deletes rewrite tasks
// through tasks and report through notifier, which may be nil.
func NewCategoryStore(kv storage.KV, tasks TaskProvider, notifier Notifier, logger *log.Logger) *CategoryStore {
	if tasks == nil {
		panic("store.NewCategoryStore: task provider is nil")
	}
	if notifier == nil {
		notifier = MultiNotifier(nil)
	}
	return &CategoryStore{
		cats:     storage.NewCollection[domain.Category](kv, storage.CategoriesKey),
		tasks:    tasks,
		notifier: notifier,
		ids:      NewIDGenerator(),
		now:      time.Now,
		logger:   loggerOrDefault(logger),
		view:     []domain.Category{},
	}
}

// List returns the choosable categories. Blank names are dropped and
// duplicate names are kept.
func (s *CategoryStore) List(ctx context.Context) (cats []domain.Category, err error) {
	ctx, ev := startOp(ctx, s.logger, "categories", "list")
	defer func() { ev.End(0, err) }()

	all, _, err := s.cats.Load(ctx)
	if err != nil {
		s.setView(nil, err)
		return nil, fmt.Errorf("list categories: %w", err)
	}
	cats = domain.Selectable(all)
	ev.Set("categories_returned", len(cats))
	s.setView(cats, nil)
	return append([]domain.Category(nil), cats...), nil
}

// GetByID returns the category with id, or nil. Blank-named entries are
// treated as absent.
func (s *CategoryStore) GetByID(ctx context.Context, id int64) (cat *domain.Category, err error) {
	ctx, ev := startOp(ctx, s.logger, "categories", "get")
	defer func() { ev.End(0, err) }()
	ev.Set("category_id", id)

	all, _, err := s.cats.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("get category %d: %w", id, err)
	}
	i := domain.FindCategory(all, id)
	if i < 0 || domain.IsBlankCategoryName(all[i].Name) {
		return nil, nil
	}
	c := all[i]
	return &c, nil
}

// Create adds a category. Names are not deduplicated.
func (s *CategoryStore) Create(ctx context.Context, name string) (id int64, err error) {
	ctx, ev := startOp(ctx, s.logger, "categories", "create")
	defer func() { ev.End(0, err) }()

	if domain.IsBlankCategoryName(name) {
		return 0, ErrBlankCategoryName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	all, _, err := s.cats.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("create category: %w", err)
	}
	cat, err := s.insert(ctx, all, name)
	if err != nil {
		return 0, fmt.Errorf("create category: %w", err)
	}
	ev.Set("category_id", cat.ID)
	return cat.ID, nil
}

// CategorySelector picks the category a task write should carry. ID takes
// precedence over Name. An empty selector means no category.
type CategorySelector struct {
	ID   *int64
	Name *string
}

// FindOrCreate resolves a user-entered category name to a snapshot. A blank
// name means "no category" and yields nil. An existing category with the
// exact trimmed name is reused, otherwise a new one is created.
func (s *CategoryStore) FindOrCreate(ctx context.Context, name string) (ref *domain.CategoryRef, err error) {
	ctx, ev := startOp(ctx, s.logger, "categories", "find_or_create")
	defer func() { ev.End(0, err) }()

	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, err = s.resolve(ctx, CategorySelector{Name: &name})
	if err != nil {
		return nil, err
	}
	ev.Set("category_id", ref.ID)
	return ref, nil
}

// WithCategory resolves sel and runs fn with the resulting snapshot while
// holding the category lock, so no Delete can remove the category before fn
// has written the tasks that reference it. fn may call the task store but
// must not call back into s. An unknown ID fails with ErrUnknownCategory.
func (s *CategoryStore) WithCategory(ctx context.Context, sel CategorySelector, fn func(*domain.CategoryRef) error) (err error) {
	if sel.ID == nil && sel.Name == nil {
		return fn(nil)
	}
	ctx, ev := startOp(ctx, s.logger, "categories", "with_category")
	defer func() { ev.End(0, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	ref, err := s.resolve(ctx, sel)
	if err != nil {
		return err
	}
	if ref != nil {
		ev.Set("category_id", ref.ID)
	}
	return fn(ref)
}

// resolve turns sel into a snapshot, creating a named category when none
// matches. Callers hold s.mu.
func (s *CategoryStore) resolve(ctx context.Context, sel CategorySelector) (*domain.CategoryRef, error) {
	if sel.ID != nil {
		id := *sel.ID
		all, _, err := s.cats.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve category %d: %w", id, err)
		}
		i := domain.FindCategory(all, id)
		if i < 0 || domain.IsBlankCategoryName(all[i].Name) {
			return nil, fmt.Errorf("category %d: %w", id, ErrUnknownCategory)
		}
		return all[i].Ref(), nil
	}
	if sel.Name == nil {
		return nil, nil
	}
	name := strings.TrimSpace(*sel.Name)
	if name == "" {
		return nil, nil
	}
	all, _, err := s.cats.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve category %q: %w", name, err)
	}
	if c, ok := domain.FindCategoryByName(all, name); ok {
		return c.Ref(), nil
	}
	cat, err := s.insert(ctx, all, name)
	if err != nil {
		return nil, fmt.Errorf("resolve category %q: %w", name, err)
	}
	return cat.Ref(), nil
}

// Delete removes the category with id and clears it from every task that
// references it. When at least one task changed a single notification is
// sent. A missing category is a silent no-op.
//
// If the task rewrite fails the category collection is restored, so a
// category never disappears while tasks still point at it.
func (s *CategoryStore) Delete(ctx context.Context, id int64) (err error) {
	ctx, ev := startOp(ctx, s.logger, "categories", "delete")
	defer func() { ev.End(0, err) }()
	ev.Set("category_id", id)

	s.mu.Lock()
	all, snap, err := s.cats.Load(ctx)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	i := domain.FindCategory(all, id)
	if i < 0 {
		s.mu.Unlock()
		ev.Set("found", false)
		return nil
	}
	removed := all[i]
	remaining := append(all[:i:i], all[i+1:]...)
	if err := s.cats.Save(ctx, remaining); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("delete category %d: %w", id, err)
	}

	affected, err := s.clearFromTasks(ctx, id)
	if err != nil {
		if rerr := s.cats.Restore(ctx, snap); rerr != nil {
			s.logger.WithError(rerr).WithField("category", id).Error("restore categories after failed cascade")
			err = errors.Join(err, rerr)
		}
		s.mu.Unlock()
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	s.setView(domain.Selectable(remaining), nil)
	s.mu.Unlock()

	ev.Set("affected_tasks", affected)
	if affected > 0 {
		s.notifier.Notify(ctx, domain.CategoryDeleted(uuid.NewString(), removed, affected, s.now()))
	}
	return nil
}

// View returns the categories of the last successful load or mutation.
func (s *CategoryStore) View() []domain.Category {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return append([]domain.Category(nil), s.view...)
}

// Err returns the error of the last failed load.
func (s *CategoryStore) Err() error {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.err
}

// clearFromTasks drops category id from every task in one rewrite of the task
// collection, retrying when the collection changed since it was read.
func (s *CategoryStore) clearFromTasks(ctx context.Context, id int64) (int, error) {
	var lastErr error
	for attempt := 0; attempt < maxCascadeAttempts; attempt++ {
		tasks, rev, err := s.tasks.GetAll(ctx)
		if err != nil {
			return 0, err
		}
		affected := 0
		for i := range tasks {
			if tasks[i].Category != nil && tasks[i].Category.ID == id {
				tasks[i].Category = nil
				affected++
			}
		}
		if affected == 0 {
			return 0, nil
		}
		err = s.tasks.UpdateMany(ctx, tasks, rev)
		if err == nil {
			return affected, nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) {
			return 0, err
		}
		lastErr = err
		s.logger.WithFields(log.Fields{"category": id, "attempt": attempt + 1}).Debug("task collection changed during cascade, retrying")
	}
	return 0, lastErr
}

// insert appends a category named name. Callers hold s.mu.
func (s *CategoryStore) insert(ctx context.Context, all []domain.Category, name string) (domain.Category, error) {
	for _, c := range all {
		s.ids.Observe(c.ID)
	}
	cat := domain.Category{ID: s.ids.Next(), Name: name}
	all = append(all, cat)
	if err := s.cats.Save(ctx, all); err != nil {
		s.logger.WithError(err).WithField("key", storage.CategoriesKey).Error("persist categories")
		return domain.Category{}, err
	}
	s.setView(domain.Selectable(all), nil)
	return cat, nil
}

func (s *CategoryStore) setView(cats []domain.Category, err error) {
	if cats == nil {
		cats = []domain.Category{}
	}
	s.viewMu.Lock()
	s.view = cats
	s.err = err
	s.viewMu.Unlock()
}
