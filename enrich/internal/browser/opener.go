package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod/lib/proto"
)

// Opener opens URLs as new, unrelated targets of the managed browser. The
// new target has no opener relationship with the enriched page.
type Opener struct {
	mgr *Manager
}

// NewOpener returns an Opener bound to whichever browser mgr currently runs.
func NewOpener(mgr *Manager) *Opener {
	return &Opener{mgr: mgr}
}

// Open creates a background target navigated to u.
func (o *Opener) Open(ctx context.Context, u string) error {
	b := o.mgr.Browser()
	if b == nil {
		return errNoBrowser
	}
	_, err := proto.TargetCreateTarget{URL: u, Background: true}.Call(b.Context(ctx))
	if err != nil {
		return fmt.Errorf("browser: open %s: %w", u, err)
	}
	return nil
}
