package domain

import "strings"

// Category is a named grouping label for tasks.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Ref returns the snapshot stored on tasks assigned to c.
func (c Category) Ref() *CategoryRef {
	return &CategoryRef{ID: c.ID, Name: c.Name}
}

// IsBlankCategoryName reports whether name is the reserved "no category" value.
func IsBlankCategoryName(name string) bool {
	return strings.TrimSpace(name) == ""
}

// Selectable drops categories with a blank name. The input is not modified.
func Selectable(cats []Category) []Category {
	out := make([]Category, 0, len(cats))
	for _, c := range cats {
		if IsBlankCategoryName(c.Name) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// FindCategoryByName returns the first category whose name equals name exactly.
func FindCategoryByName(cats []Category, name string) (Category, bool) {
	for _, c := range cats {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// FindCategory returns the index of the category with id, or -1.
func FindCategory(cats []Category, id int64) int {
	for i := range cats {
		if cats[i].ID == id {
			return i
		}
	}
	return -1
}
