package main

import (
	"context"
	"fmt"
	"os"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"calmate/internal/capture"
	appLog "calmate/internal/log"
	"calmate/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string
	var noSnapshot bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat, calendar and profile pages over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				a.cfg.Listen = listen
			}
			return a.serve(cmd.Context(), !noSnapshot)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config)")
	cmd.Flags().BoolVar(&noSnapshot, "no-snapshot", false, "disable the periodic calendar snapshot")
	return cmd
}

// serve runs the HTTP server, the store watcher and, optionally, the cron
// snapshot job until ctx is cancelled or one of them fails.
func (a *app) serve(ctx context.Context, snapshots bool) error {
	if err := os.MkdirAll(a.cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	c, err := a.chat(ctx)
	if err != nil {
		return err
	}
	srv := web.NewServer(a.cfg, c)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})

	g.Go(func() error {
		// Without a watcher the server still works; edits made elsewhere
		// show up on the next request that refreshes.
		if err := a.store().Watch(ctx, srv.Reload); err != nil {
			appLog.Error("store watcher stopped", err)
		}
		return nil
	})

	if snapshots {
		sched := cron.New(cron.WithLocation(a.cfg.Location()))
		opts := capture.OptionsFromConfig(a.cfg)
		if _, err := sched.AddFunc(a.cfg.RefreshCron, func() {
			if err := capture.CalendarPNG(ctx, opts); err != nil {
				appLog.Error("scheduled snapshot failed", err, "url", opts.URL)
			}
		}); err != nil {
			return fmt.Errorf("invalid refresh schedule %q: %w", a.cfg.RefreshCron, err)
		}

		g.Go(func() error {
			sched.Start()
			appLog.Info("snapshot job scheduled", "refresh", a.cfg.RefreshCron, "output", opts.OutputPath)
			<-ctx.Done()
			<-sched.Stop().Done()
			return nil
		})
	}

	err = g.Wait()
	appLog.Info("calmate serve stopped")
	return err
}
