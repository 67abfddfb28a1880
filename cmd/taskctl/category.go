package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"taskboard/app"
	"taskboard/store"
)

func (c *cli) categoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "category",
		Aliases: []string{"categories", "cat"},
		Short:   "Manage categories",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Create a category, or reuse one with the same name",
		Args:  cobra.MinimumNArgs(1),
		RunE: c.withApp(func(ctx context.Context, a *app.App, args []string) error {
			ref, err := a.Categories.FindOrCreate(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if ref == nil {
				return store.ErrBlankCategoryName
			}
			fmt.Fprintf(c.out, "%4d  %s\n", ref.ID, ref.Name)
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List categories",
		Args:    cobra.NoArgs,
		RunE: c.withApp(func(ctx context.Context, a *app.App, _ []string) error {
			cats, err := a.Categories.List(ctx)
			if err != nil {
				return err
			}
			for _, cat := range cats {
				formatCategory(c.out, cat)
			}
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a category and remove it from its tasks",
		Args:    cobra.ExactArgs(1),
		RunE: c.withApp(func(ctx context.Context, a *app.App, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.Categories.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "deleted category %d\n", id)
			return nil
		}),
	})
	return cmd
}
