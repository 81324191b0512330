package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"turnocal/internal/cache"
	"turnocal/internal/inbox"
	appLog "turnocal/internal/log"
	"turnocal/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the result cache janitor and the optional inbox watcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				a.cfg.Listen = listen
			}
			return runServe(cmd.Context(), a)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func runServe(parent context.Context, a *app) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLog.Info("turnocal starting", "version", version, "listen", a.cfg.Listen)

	janitor, err := cache.NewJanitor(a.svc.Results(), a.cfg.Interval())
	if err != nil {
		return err
	}
	janitor.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		janitor.Stop(stopCtx)
	}()

	if a.cfg.InboxDir != "" {
		w := inbox.New(a.cfg.InboxDir, func(ctx context.Context, path string) error {
			_, err := a.svc.ImportFile(ctx, path)
			return err
		})
		if err := w.Start(ctx); err != nil {
			appLog.Error("inbox watcher disabled", err, "dir", a.cfg.InboxDir)
		} else {
			defer w.Stop()
		}
	}

	err = web.NewServer(a.cfg, a.svc).Run(ctx)
	appLog.Info("turnocal exiting")
	return err
}
