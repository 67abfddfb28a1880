package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrInvalidFilter is returned for filter values outside the known options.
var ErrInvalidFilter = errors.New("invalid filter")

const (
	CategoryAll  = "all"
	CategoryNone = "none"

	CompletedAll   = "all"
	CompletedTrue  = "true"
	CompletedFalse = "false"

	SortDueDate   = "dueDate"
	SortCreatedAt = "createdAt"

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Filter holds the search, selection and ordering applied to a task listing.
type Filter struct {
	Search    string `json:"search"`
	Category  string `json:"category"`
	Completed string `json:"completed"`
	Sort      string `json:"sort"`
	Order     string `json:"order"`
}

// FilterPatch carries a partial filter update. Nil fields are left untouched.
type FilterPatch struct {
	Search    *string `json:"search,omitempty"`
	Category  *string `json:"category,omitempty"`
	Completed *string `json:"completed,omitempty"`
	Sort      *string `json:"sort,omitempty"`
	Order     *string `json:"order,omitempty"`
}

// DefaultFilter returns the filter a fresh session starts with.
func DefaultFilter() Filter {
	return Filter{
		Search:    "",
		Category:  CategoryAll,
		Completed: CompletedAll,
		Sort:      SortDueDate,
		Order:     OrderAsc,
	}
}

// Merge returns f with the set fields of p applied.
func (f Filter) Merge(p FilterPatch) Filter {
	if p.Search != nil {
		f.Search = *p.Search
	}
	if p.Category != nil {
		f.Category = *p.Category
	}
	if p.Completed != nil {
		f.Completed = *p.Completed
	}
	if p.Sort != nil {
		f.Sort = *p.Sort
	}
	if p.Order != nil {
		f.Order = *p.Order
	}
	return f
}

// Validate checks the enumerated fields. Empty values are allowed and mean
// "no constraint".
func (f Filter) Validate() error {
	switch f.Completed {
	case "", CompletedAll, CompletedTrue, CompletedFalse:
	default:
		return fmt.Errorf("%w: completed %q", ErrInvalidFilter, f.Completed)
	}
	switch f.Sort {
	case "", SortDueDate, SortCreatedAt:
	default:
		return fmt.Errorf("%w: sort %q", ErrInvalidFilter, f.Sort)
	}
	switch f.Order {
	case "", OrderAsc, OrderDesc:
	default:
		return fmt.Errorf("%w: order %q", ErrInvalidFilter, f.Order)
	}
	return nil
}

// FilterAndSort returns the tasks matching f, ordered by f.Sort. The input
// slice is never modified and the result shares no memory with it. Sorting is
// stable, so ties keep their input order.
func FilterAndSort(tasks []Task, f Filter) []Task {
	search := strings.ToLower(f.Search)
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if !matchesSearch(t, search) || !matchesCategory(t, f.Category) || !matchesCompleted(t, f.Completed) {
			continue
		}
		out = append(out, t.Clone())
	}
	if f.Sort != "" {
		sortTasks(out, f.Sort, orderSign(f.Order))
	}
	return out
}

func matchesSearch(t Task, search string) bool {
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Title), search) ||
		strings.Contains(strings.ToLower(t.Description), search)
}

func matchesCategory(t Task, category string) bool {
	switch category {
	case "", CategoryAll:
		return true
	case CategoryNone:
		return t.Category == nil
	default:
		return t.Category != nil && t.Category.Name == category
	}
}

func matchesCompleted(t Task, completed string) bool {
	if completed == "" || completed == CompletedAll {
		return true
	}
	return t.Completed == (completed == CompletedTrue)
}

func orderSign(order string) int {
	if order == OrderDesc {
		return -1
	}
	return 1
}

// sortFields are the task attributes usable as generic sort keys. The bool
// result is false when the task has no value for the field.
var sortFields = map[string]func(Task) (int64, bool){
	SortCreatedAt: func(t Task) (int64, bool) { return t.CreatedAt, t.CreatedAt != 0 },
}

func sortTasks(tasks []Task, key string, sign int) {
	if key == SortDueDate {
		sort.SliceStable(tasks, func(i, j int) bool {
			return compareDueDates(tasks[i], tasks[j], sign) < 0
		})
		return
	}
	field, ok := sortFields[key]
	if !ok {
		return
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return compareField(field, tasks[i], tasks[j], sign) < 0
	})
}

// compareDueDates orders parseable dates by sign. Unparseable dates go last
// in either direction.
func compareDueDates(a, b Task, sign int) int {
	at, aok := ParseDueDate(a.DueDate)
	bt, bok := ParseDueDate(b.DueDate)
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return 1
	case !bok:
		return -1
	}
	return at.Compare(bt) * sign
}

// compareField puts tasks without a value after tasks with one, regardless
// of sign.
func compareField(field func(Task) (int64, bool), a, b Task, sign int) int {
	av, aok := field(a)
	bv, bok := field(b)
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return 1
	case !bok:
		return -1
	case av > bv:
		return sign
	case av < bv:
		return -sign
	}
	return 0
}

var dueDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDueDate parses an ISO-8601 due date. Values without a zone are read as UTC.
func ParseDueDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
