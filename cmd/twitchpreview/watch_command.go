package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/twitchpreview/enrich"
)

var errNoPages = errors.New("watch: no pages configured")

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var (
		dbPath string
		opts   enrich.WatchOptions
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Enrich live pages in Chrome",
		Long:  "Opens every configured page in Chrome and keeps its channel links enriched. With --db the page list is read from SQLite and reloaded when it changes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			runCtx, stop := signalContext(cmd)
			defer stop()

			var store *enrich.PageStore
			if dbPath != "" {
				if store, err = enrich.OpenPageStore(dbPath); err != nil {
					return err
				}
				defer store.Close()
				if cfg.Pages, err = store.LoadPages(runCtx); err != nil {
					return fmt.Errorf("watch: load pages: %w", err)
				}
			}
			if len(cfg.Pages) == 0 && store == nil {
				return errNoPages
			}

			w := enrich.NewWatcher(cfg, ctx.logger)
			if err := w.Start(runCtx); err != nil {
				return err
			}
			defer w.Stop()

			if store != nil {
				opts.Logger = ctx.logger
				go store.Watch(runCtx, opts, w.Apply)
			}

			<-runCtx.Done()
			ctx.logger.Info("watch: shutting down", "pages", len(w.Pages()))
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite page store")
	cmd.Flags().DurationVar(&opts.Interval, "poll", 0, "Page store poll interval")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 0, "Quiet period before a page store change is applied")
	return cmd
}
