package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"taskboard/app"
	"taskboard/domain"
	"taskboard/store"
)

var errTaskNotFound = errors.New("task not found")

func (c *cli) taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "task",
		Aliases: []string{"tasks", "t"},
		Short:   "Manage tasks",
	}
	cmd.AddCommand(c.taskAddCmd())
	cmd.AddCommand(c.taskListCmd())
	cmd.AddCommand(c.taskShowCmd())
	cmd.AddCommand(c.taskEditCmd())
	cmd.AddCommand(c.taskDoneCmd())
	cmd.AddCommand(c.taskRmCmd())
	cmd.AddCommand(c.taskCountCmd())
	return cmd
}

func (c *cli) taskAddCmd() *cobra.Command {
	var fields domain.TaskFields
	var category string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.Flags().StringVarP(&fields.Description, "desc", "d", "", "description")
	cmd.Flags().StringVar(&fields.DueDate, "due", "", "due date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVarP(&category, "category", "c", "", "category name, created when missing")
	cmd.Flags().BoolVar(&fields.Completed, "done", false, "create as completed")
	cmd.RunE = c.withApp(func(ctx context.Context, a *app.App, args []string) error {
		fields.Title = strings.Join(args, " ")
		var sel store.CategorySelector
		if category != "" {
			sel.Name = &category
		}
		var id int64
		err := a.Categories.WithCategory(ctx, sel, func(ref *domain.CategoryRef) error {
			fields.Category = ref
			var err error
			id, err = a.Tasks.Create(ctx, fields)
			return err
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "created task %d\n", id)
		return nil
	})
	return cmd
}

func (c *cli) taskListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks matching a filter",
		Args:    cobra.NoArgs,
	}
	f := domain.DefaultFilter()
	cmd.Flags().StringVarP(&f.Search, "search", "s", f.Search, "case-insensitive text in title or description")
	cmd.Flags().StringVarP(&f.Category, "category", "c", f.Category, `category name, "all" or "none"`)
	cmd.Flags().StringVar(&f.Completed, "completed", f.Completed, `"all", "true" or "false"`)
	cmd.Flags().StringVar(&f.Sort, "sort", f.Sort, `"dueDate" or "createdAt"`)
	cmd.Flags().StringVar(&f.Order, "order", f.Order, `"asc" or "desc"`)
	cmd.RunE = c.withApp(func(ctx context.Context, a *app.App, _ []string) error {
		if err := f.Validate(); err != nil {
			return err
		}
		tasks, err := a.Tasks.ListFiltered(ctx, f)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			formatTask(c.out, t)
		}
		return nil
	})
	return cmd
}

func (c *cli) taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = c.withApp(func(ctx context.Context, a *app.App, args []string) error {
		t, err := lookupTask(ctx, a, args[0])
		if err != nil {
			return err
		}
		formatTaskDetail(c.out, *t)
		return nil
	})
	return cmd
}

func (c *cli) taskEditCmd() *cobra.Command {
	var (
		title, desc, due, category string
		clearCategory, done        bool
	)
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a task",
		Args:  cobra.ExactArgs(1),
	}
	flags := cmd.Flags()
	flags.StringVar(&title, "title", "", "new title")
	flags.StringVarP(&desc, "desc", "d", "", "new description")
	flags.StringVar(&due, "due", "", "new due date")
	flags.StringVarP(&category, "category", "c", "", "category name, created when missing")
	flags.BoolVar(&clearCategory, "no-category", false, "remove the category")
	flags.BoolVar(&done, "done", false, "completion state")
	cmd.RunE = c.withApp(func(ctx context.Context, a *app.App, args []string) error {
		t, err := lookupTask(ctx, a, args[0])
		if err != nil {
			return err
		}
		var patch domain.TaskPatch
		patch.Title = changedString(flags, "title", title)
		patch.Description = changedString(flags, "desc", desc)
		patch.DueDate = changedString(flags, "due", due)
		if flags.Changed("done") {
			patch.Completed = &done
		}
		switch {
		case clearCategory:
			patch.ClearCategory = true
		case flags.Changed("category"):
			ref, err := a.Categories.FindOrCreate(ctx, category)
			if err != nil {
				return err
			}
			patch.Category = ref
		}
		if patch.Empty() {
			return errors.New("nothing to change")
		}
		if err := a.Tasks.Update(ctx, t.ID, patch); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "updated task %d\n", t.ID)
		return nil
	})
	return cmd
}

func (c *cli) taskDoneCmd() *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "done <id>...",
		Short: "Mark tasks as completed",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "mark as not completed instead")
	cmd.RunE = c.withApp(func(ctx context.Context, a *app.App, args []string) error {
		completed := !undo
		for _, arg := range args {
			t, err := lookupTask(ctx, a, arg)
			if err != nil {
				return err
			}
			if t.Completed == completed {
				continue
			}
			if err := a.Tasks.Toggle(ctx, t.ID); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%4d  %s\n", t.ID, normalizeTitle(t.Title))
		}
		return nil
	})
	return cmd
}

func (c *cli) taskRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"delete"},
		Short:   "Delete tasks",
		Args:    cobra.MinimumNArgs(1),
	}
	cmd.RunE = c.withApp(func(ctx context.Context, a *app.App, args []string) error {
		for _, arg := range args {
			t, err := lookupTask(ctx, a, arg)
			if err != nil {
				return err
			}
			if err := a.Tasks.Delete(ctx, t.ID); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "deleted task %d\n", t.ID)
		}
		return nil
	})
	return cmd
}

func (c *cli) taskCountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count open and completed tasks",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = c.withApp(func(ctx context.Context, a *app.App, _ []string) error {
		formatCount(c.out, a.Tasks.Count())
		return nil
	})
	return cmd
}

func lookupTask(ctx context.Context, a *app.App, arg string) (*domain.Task, error) {
	id, err := parseID(arg)
	if err != nil {
		return nil, err
	}
	t, err := a.Tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %d", errTaskNotFound, id)
	}
	return t, nil
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func changedString(flags *pflag.FlagSet, name, value string) *string {
	if !flags.Changed(name) {
		return nil
	}
	return &value
}
