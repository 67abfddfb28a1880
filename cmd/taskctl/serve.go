package main

import (
	"context"

	"github.com/spf13/cobra"

	"taskboard/app"
)

func (c *cli) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	cmd.RunE = c.withApp(func(ctx context.Context, a *app.App, _ []string) error {
		if addr != "" {
			a.Config.HTTP.Addr = addr
		}
		return a.Serve(ctx)
	})
	return cmd
}
