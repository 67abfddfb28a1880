// Command taskctl manages the task board from the terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"taskboard/app"
	"taskboard/config"
	"taskboard/domain"
	"taskboard/store"
)

var Version = "dev"

// cli carries what every subcommand shares.
type cli struct {
	configPath string
	debug      bool
	out        io.Writer
	errOut     io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	root := newRootCmd(out, errOut)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{out: out, errOut: errOut}
	root := &cobra.Command{
		Use:           "taskctl",
		Short:         "Track tasks and categories",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/taskboard/config.yaml)")
	root.PersistentFlags().BoolVar(&c.debug, "debug", false, "verbose logging")

	root.AddCommand(c.taskCmd())
	root.AddCommand(c.categoryCmd())
	root.AddCommand(c.serveCmd())
	return root
}

func (c *cli) logger(cfg *config.Config) *log.Logger {
	logger := log.New()
	logger.SetOutput(c.errOut)
	logger.SetLevel(log.WarnLevel)
	if c.debug || cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// open loads the configuration and builds the stores. Category notifications
// are printed to stdout.
func (c *cli) open(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	printer := store.NotifierFunc(func(_ context.Context, n domain.Notification) {
		fmt.Fprintln(c.out, n.Message)
	})
	return app.New(ctx, cfg, c.logger(cfg), printer)
}

// withApp runs fn against a freshly opened app and closes it afterwards.
func (c *cli) withApp(fn func(ctx context.Context, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := c.open(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a, args)
	}
}
