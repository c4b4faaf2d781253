package config

import (
	"context"
	"log/slog"
	"time"
)

// WatchOptions tunes Store.Watch.
type WatchOptions struct {
	// Interval is the polling frequency. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before reload runs.
	// 0 means reload immediately.
	Debounce time.Duration
	Logger   *slog.Logger
}

func (o *WatchOptions) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Version returns the write counter of preview_pages. It grows by one on
// every inserted, updated or deleted row.
func (s *Store) Version(ctx context.Context) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx,
		`SELECT rev FROM preview_pages_rev WHERE id = 1`).Scan(&v)
	return v, err
}

// Watch polls the page table until ctx is done and calls reload with the
// active pages after every change. A failed reload is retried on the next
// poll.
func (s *Store) Watch(ctx context.Context, opts WatchOptions, reload func([]PageConfig) error) {
	opts.defaults()
	log := opts.Logger

	version, err := s.Version(ctx)
	if err != nil {
		log.Warn("config: initial version check failed", "error", err)
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceCh <-chan time.Time
	pending := int64(-1)

	fire := func(v int64) {
		pages, err := s.LoadPages(ctx)
		if err == nil {
			err = reload(pages)
		}
		if err != nil {
			log.Error("config: page reload failed", "error", err, "version", v)
			return
		}
		version = v
		log.Info("config: pages reloaded", "pages", len(pages), "version", v)
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case <-ticker.C:
			cur, err := s.Version(ctx)
			if err != nil {
				log.Warn("config: version check failed", "error", err)
				continue
			}
			if cur == version || cur == pending {
				continue
			}
			pending = cur
			if opts.Debounce <= 0 {
				fire(pending)
				pending = -1
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(opts.Debounce)
			debounceCh = debounce.C

		case <-debounceCh:
			debounceCh = nil
			if pending >= 0 {
				fire(pending)
				pending = -1
			}
		}
	}
}
