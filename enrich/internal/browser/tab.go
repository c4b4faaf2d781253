package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// NavigateTimeout bounds the initial navigation of a tab.
const NavigateTimeout = 30 * time.Second

var errNoBrowser = errors.New("browser: no active browser")

// TabOptions configures OpenTab.
type TabOptions struct {
	ID      string
	URL     string
	Stealth bool
}

// Tab is one enriched page.
type Tab struct {
	ID   string
	URL  string
	Page *rod.Page
	Doc  *Document

	router *rod.HijackRouter
}

// OpenTab opens a tab, applies stealth and resource blocking, navigates to
// opts.URL and wraps the page as a Document.
func OpenTab(ctx context.Context, mgr *Manager, opts TabOptions) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, errNoBrowser
	}

	var (
		page *rod.Page
		err  error
	)
	if opts.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	t := &Tab{ID: opts.ID, URL: opts.URL, Page: page}
	if len(mgr.cfg.ResourceBlocking) > 0 {
		if t.router, err = blockResources(page, mgr.cfg.ResourceBlocking); err != nil {
			mgr.cfg.Logger.Warn("browser: resource blocking failed", "page", opts.ID, "error", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, NavigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(opts.URL); err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", opts.URL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load", "page", opts.ID, "url", opts.URL, "error", err)
	}

	t.Doc = NewDocument(ctx, page, mgr.cfg.Logger)
	return t, nil
}

// Host is the host name of the tab's URL, the default player parent.
func (t *Tab) Host() string {
	u, err := url.Parse(t.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Close releases the document subscriptions and closes the page.
func (t *Tab) Close() error {
	if t.Doc != nil {
		t.Doc.Close()
	}
	if t.router != nil {
		_ = t.router.Stop()
	}
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
