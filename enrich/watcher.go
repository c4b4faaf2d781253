package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/twitchpreview/enrich/internal/browser"
)

// Watcher keeps a set of live pages enriched. It owns Chrome, one tab and
// one Enricher per page, and reopens everything when Chrome is recycled.
type Watcher struct {
	cfg      *Config
	mgr      *browser.Manager
	opener   *browser.Opener
	resolver Resolver
	logger   *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	desired []PageConfig
	pages   map[string]*livePage
}

type livePage struct {
	cfg PageConfig
	tab *browser.Tab
	enr *Enricher
}

// NewWatcher creates a Watcher for cfg.Pages. Call Start to launch Chrome.
func NewWatcher(cfg *Config, logger *slog.Logger) *Watcher {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		MemoryLimit:      cfg.Browser.MemoryLimit,
		RecycleInterval:  cfg.Browser.RecycleInterval,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Mode:             browser.ParseMode(cfg.Browser.Stealth),
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		Logger:           logger,
	})
	return &Watcher{
		cfg:      cfg,
		mgr:      mgr,
		opener:   browser.NewOpener(mgr),
		resolver: NewResolver(cfg.Status, logger),
		logger:   logger,
		desired:  slices.Clone(cfg.Pages),
		pages:    make(map[string]*livePage),
	}
}

// Start launches Chrome and enriches every configured page. Pages that fail
// to open are logged and retried on the next Apply or recycle.
func (w *Watcher) Start(ctx context.Context) error {
	if _, err := w.mgr.Start(ctx); err != nil {
		return fmt.Errorf("enrich: start browser: %w", err)
	}
	w.mgr.SetRecycleHooks(browser.RecycleHooks{
		Before: w.closeAll,
		After:  func(*rod.Browser) { w.reopenAll() },
	})

	w.mu.Lock()
	w.ctx = ctx
	pages := slices.Clone(w.desired)
	w.mu.Unlock()

	if err := w.Apply(pages); err != nil {
		w.logger.Error("enrich: some pages failed to open", "error", err)
	}
	return nil
}

// Apply reconciles the open pages with pages: removed or changed pages are
// closed, new or changed ones are opened.
func (w *Watcher) Apply(pages []PageConfig) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.desired = slices.Clone(pages)
	if w.ctx == nil {
		return nil
	}

	current := make(map[string]PageConfig, len(w.pages))
	for id, p := range w.pages {
		current[id] = p.cfg
	}
	stop, start := diffPages(current, pages)

	for _, id := range stop {
		w.closeLocked(id)
	}
	var errs []error
	for _, p := range start {
		if err := w.openLocked(p); err != nil {
			errs = append(errs, err)
			w.logger.Error("enrich: open page failed", "page", p.ID, "url", p.URL, "error", err)
		}
	}
	return errors.Join(errs...)
}

// Pages lists the ids of the pages currently enriched.
func (w *Watcher) Pages() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.pages))
	for id := range w.pages {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Stop deactivates every page and shuts Chrome down.
func (w *Watcher) Stop() {
	w.closeAll()
	w.mu.Lock()
	w.ctx = nil
	w.mu.Unlock()
	if err := w.mgr.Close(); err != nil {
		w.logger.Warn("enrich: close browser", "error", err)
	}
}

func (w *Watcher) openLocked(p PageConfig) error {
	tab, err := browser.OpenTab(w.ctx, w.mgr, browser.TabOptions{
		ID:      p.ID,
		URL:     p.URL,
		Stealth: p.StealthEnabled(),
	})
	if err != nil {
		return err
	}

	parent := p.PlayerParent
	if parent == "" {
		parent = w.cfg.Enrich.PlayerParent
	}
	if parent == "" {
		parent = tab.Host()
	}

	enr := New(w.cfg,
		WithLogger(w.logger.With("page", p.ID)),
		WithResolver(w.resolver),
		WithOpener(w.opener),
		WithPlayerParent(parent),
	)
	if err := enr.Activate(w.ctx, tab.Doc); err != nil {
		_ = tab.Close()
		return err
	}

	w.pages[p.ID] = &livePage{cfg: p, tab: tab, enr: enr}
	w.logger.Info("enrich: page enriched", "page", p.ID, "url", p.URL, "parent", parent)
	return nil
}

func (w *Watcher) closeLocked(id string) {
	p, ok := w.pages[id]
	if !ok {
		return
	}
	delete(w.pages, id)
	if err := p.enr.Deactivate(); err != nil && !errors.Is(err, ErrInactive) {
		w.logger.Warn("enrich: deactivate page", "page", id, "error", err)
	}
	if err := p.tab.Close(); err != nil {
		w.logger.Debug("enrich: close tab", "page", id, "error", err)
	}
	w.logger.Info("enrich: page closed", "page", id)
}

func (w *Watcher) closeAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id := range w.pages {
		w.closeLocked(id)
	}
}

func (w *Watcher) reopenAll() {
	w.mu.Lock()
	pages := slices.Clone(w.desired)
	w.mu.Unlock()
	if err := w.Apply(pages); err != nil {
		w.logger.Error("enrich: reopen after recycle", "error", err)
	}
}

// diffPages returns the ids to close and the pages to open so that current
// ends up matching desired.
func diffPages(current map[string]PageConfig, desired []PageConfig) (stop []string, start []PageConfig) {
	want := make(map[string]PageConfig, len(desired))
	for _, p := range desired {
		want[p.ID] = p
	}
	for id, cur := range current {
		if p, ok := want[id]; !ok || !samePage(cur, p) {
			stop = append(stop, id)
		}
	}
	for _, p := range desired {
		if cur, ok := current[p.ID]; !ok || !samePage(cur, p) {
			start = append(start, p)
		}
	}
	slices.Sort(stop)
	return stop, start
}

func samePage(a, b PageConfig) bool {
	return a.URL == b.URL && a.PlayerParent == b.PlayerParent && a.StealthEnabled() == b.StealthEnabled()
}
