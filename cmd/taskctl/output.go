package main

import (
	"fmt"
	"io"
	"strings"

	"taskboard/domain"
)

// formatTask writes one listing line: "{ID:>4}  [x] {TITLE}" followed by the
// due date and category when set.
func formatTask(w io.Writer, t domain.Task) {
	mark := " "
	if t.Completed {
		mark = "x"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%4d  [%s] %s", t.ID, mark, normalizeTitle(t.Title))
	if t.DueDate != "" {
		fmt.Fprintf(&b, "  due %s", t.DueDate)
	}
	if t.Category != nil {
		fmt.Fprintf(&b, "  #%s", t.Category.Name)
	}
	fmt.Fprintln(w, b.String())
}

func formatTaskDetail(w io.Writer, t domain.Task) {
	fmt.Fprintf(w, "id:          %d\n", t.ID)
	fmt.Fprintf(w, "title:       %s\n", normalizeTitle(t.Title))
	if t.Description != "" {
		fmt.Fprintf(w, "description: %s\n", t.Description)
	}
	fmt.Fprintf(w, "completed:   %t\n", t.Completed)
	if t.DueDate != "" {
		fmt.Fprintf(w, "due:         %s\n", t.DueDate)
	}
	if t.Category != nil {
		fmt.Fprintf(w, "category:    %s\n", t.Category.Name)
	}
}

func formatCategory(w io.Writer, c domain.Category) {
	fmt.Fprintf(w, "%4d  %s\n", c.ID, c.Name)
}

func formatCount(w io.Writer, c domain.TaskCount) {
	fmt.Fprintf(w, "%d open, %d done\n", c.Incomplete, c.Completed)
}

// normalizeTitle keeps a title on one line. Blank titles become "(untitled)".
func normalizeTitle(title string) string {
	title = strings.ReplaceAll(title, "\r", " ")
	title = strings.ReplaceAll(title, "\n", " ")
	if strings.TrimSpace(title) == "" {
		return "(untitled)"
	}
	return title
}
