package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scraperbot/internal/app"
	logx "scraperbot/pkg/logx"
)

type rootFlags struct {
	config   string
	logLevel string
	watch    bool
	workers  int
}

func newRootCommand() *cobra.Command {
	var f rootFlags
	cmd := &cobra.Command{
		Use:   "scraperbot",
		Short: "Forward new posts from watched sources to Telegram chats",
		Long: `scraperbot checks the links each chat watches and forwards the posts
it has not delivered yet.

By default it runs once: it handles the pending bot commands, runs one
update cycle, saves its state and exits. With --watch it keeps polling
for commands and runs update cycles in the background.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.logLevel != "" && !logx.ValidLevel(f.logLevel) {
				return fmt.Errorf("invalid --log-level %q", f.logLevel)
			}
			return run(cmd.Context(), f)
		},
	}
	cmd.PersistentFlags().StringVarP(&f.config, "config", "c", "", "path to the config file (json or yaml)")
	_ = cmd.MarkPersistentFlagRequired("config")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "override logging.level (trace, debug, info, warn, error)")
	cmd.Flags().BoolVarP(&f.watch, "watch", "w", false, "keep running: poll commands and update in the background")
	cmd.Flags().IntVar(&f.workers, "command-workers", 2, "commands handled concurrently in watch mode")

	cmd.AddCommand(newCheckConfigCommand(&f))
	return cmd
}

func newCheckConfigCommand(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the config file and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.CheckConfig(f.config)
			if err != nil {
				return err
			}
			links := 0
			for _, ch := range cfg.Chats {
				links += len(ch.Links)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d chats, %d links, %d admins)\n",
				f.config, len(cfg.Chats), links, len(cfg.Admins))
			return nil
		},
	}
}

func run(parent context.Context, f rootFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a, err := app.New(f.config, app.Options{LogLevel: f.logLevel, CommandWorkers: f.workers})
	if err != nil {
		return err
	}

	reason := app.StopRunOnce
	var runErr error
	if f.watch {
		if err := a.Start(ctx); err != nil {
			_ = a.Stop(context.Background(), app.StopFatalError)
			return err
		}
		select {
		case sig := <-sigCh:
			reason = signalReason(sig)
		case <-a.Done():
			reason = app.StopFatalError
			runErr = a.Err()
		}
	} else {
		done := make(chan error, 1)
		go func() { done <- a.RunOnce(ctx) }()
		select {
		case runErr = <-done:
		case sig := <-sigCh:
			// cancel the cycle; the post in flight still commits
			reason = signalReason(sig)
			cancel()
			runErr = <-done
		}
	}
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer stopCancel()
	stopErr := a.Stop(stopCtx, reason)

	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	return errors.Join(runErr, stopErr)
}

func signalReason(sig os.Signal) app.StopReason {
	if sig == syscall.SIGTERM {
		return app.StopSIGTERM
	}
	return app.StopSIGINT
}
