package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func TestTaskMarshalKeepsNullCategory(t *testing.T) {
	task := Task{ID: 1, Title: "Buy milk", DueDate: "2024-01-10"}

	payload, err := sonic.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}

	if !strings.Contains(string(payload), "\"category\":null") {
		t.Fatalf("expected explicit null category, got %s", payload)
	}
	if strings.Contains(string(payload), "createdAt") {
		t.Fatalf("expected zero createdAt to be omitted, got %s", payload)
	}
}

func TestTaskUnmarshalLegacyPayload(t *testing.T) {
	raw := `{"id":2,"title":"Pay rent","description":"","completed":true,"dueDate":"2024-01-05","category":{"id":9,"name":"Bills"}}`

	var task Task
	if err := sonic.Unmarshal([]byte(raw), &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if task.Category == nil || task.Category.ID != 9 || task.Category.Name != "Bills" {
		t.Fatalf("unexpected category: %+v", task.Category)
	}
	if task.CreatedAt != 0 {
		t.Fatalf("expected missing createdAt to decode as zero, got %d", task.CreatedAt)
	}
}

func TestTaskPatchApply(t *testing.T) {
	base := Task{ID: 7, Title: "old", Description: "d", DueDate: "2024-01-01", CreatedAt: 100, Category: &CategoryRef{ID: 1, Name: "Home"}}
	title := "new"
	done := true

	got := TaskPatch{Title: &title, Completed: &done}.Apply(base)
	if got.Title != "new" || !got.Completed {
		t.Fatalf("patch not applied: %+v", got)
	}
	if got.Description != "d" || got.DueDate != "2024-01-01" || got.Category == nil {
		t.Fatalf("untouched fields changed: %+v", got)
	}
	if got.ID != 7 || got.CreatedAt != 100 {
		t.Fatalf("identity changed: %+v", got)
	}
	if base.Title != "old" {
		t.Fatalf("base task mutated")
	}
}

func TestTaskPatchCategory(t *testing.T) {
	base := Task{ID: 1, Category: &CategoryRef{ID: 1, Name: "Home"}}

	cleared := TaskPatch{ClearCategory: true, Category: &CategoryRef{ID: 2, Name: "Work"}}.Apply(base)
	if cleared.Category != nil {
		t.Fatalf("expected clear to win, got %+v", cleared.Category)
	}

	ref := &CategoryRef{ID: 2, Name: "Work"}
	moved := TaskPatch{Category: ref}.Apply(base)
	if moved.Category == nil || moved.Category.ID != 2 {
		t.Fatalf("expected category 2, got %+v", moved.Category)
	}
	ref.Name = "changed"
	if moved.Category.Name != "Work" {
		t.Fatalf("patched task aliases the patch snapshot")
	}
	if base.Category.ID != 1 {
		t.Fatalf("base task mutated")
	}
}

func TestTaskPatchEmpty(t *testing.T) {
	if !(TaskPatch{}).Empty() {
		t.Fatalf("zero patch should be empty")
	}
	if (TaskPatch{ClearCategory: true}).Empty() {
		t.Fatalf("clear category patch should not be empty")
	}
}

func TestCountTasks(t *testing.T) {
	got := CountTasks([]Task{{Completed: true}, {}, {}, {Completed: true}, {}})
	if got.Completed != 2 || got.Incomplete != 3 {
		t.Fatalf("unexpected count: %+v", got)
	}
	if got := CountTasks(nil); got != (TaskCount{}) {
		t.Fatalf("expected zero count, got %+v", got)
	}
}

func TestSelectableDropsBlankNames(t *testing.T) {
	cats := []Category{{ID: 1, Name: "Bills"}, {ID: 2, Name: ""}, {ID: 3, Name: "   "}, {ID: 4, Name: "Bills"}}

	got := Selectable(cats)
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 4 {
		t.Fatalf("unexpected selectable categories: %+v", got)
	}
	if len(cats) != 4 {
		t.Fatalf("input modified")
	}
}

func TestFindCategoryByNameIsExact(t *testing.T) {
	cats := []Category{{ID: 1, Name: "Bills"}, {ID: 2, Name: "bills"}}

	got, ok := FindCategoryByName(cats, "bills")
	if !ok || got.ID != 2 {
		t.Fatalf("expected exact match on id 2, got %+v (%v)", got, ok)
	}
	if _, ok := FindCategoryByName(cats, "Bills "); ok {
		t.Fatalf("expected no match for untrimmed name")
	}
}

func TestCategoryDeletedMessage(t *testing.T) {
	n := CategoryDeleted("n1", Category{ID: 9, Name: "Bills"}, 1, time.Time{})
	if n.Message != `category "Bills" deleted: 1 task moved to uncategorized` {
		t.Fatalf("unexpected message: %q", n.Message)
	}
	if n.CategoryName != "Bills" || n.AffectedTasks != 1 || n.Kind != NotificationCategoryDeleted {
		t.Fatalf("unexpected notification: %+v", n)
	}
	if many := CategoryDeleted("n2", Category{ID: 9, Name: "Bills"}, 3, time.Time{}); !strings.Contains(many.Message, "3 tasks") {
		t.Fatalf("unexpected plural message: %q", many.Message)
	}
}
