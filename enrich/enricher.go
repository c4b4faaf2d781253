// Package enrich adds inline previews to channel links in a live document.
//
// An Enricher owns every piece of process-scoped state of one activation:
// the injected stylesheet, the document subscriptions, the unit registry and
// the render interceptor. Activate attaches it to a document (structural
// strategy), Intercept to a render slot (direct-match strategy); Deactivate
// reverses every mutation either made.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/twitchpreview/enrich/channel"
	"github.com/hazyhaar/twitchpreview/enrich/dom"
	"github.com/hazyhaar/twitchpreview/enrich/intercept"
	"github.com/hazyhaar/twitchpreview/enrich/internal/anchor"
	"github.com/hazyhaar/twitchpreview/enrich/internal/config"
	"github.com/hazyhaar/twitchpreview/enrich/internal/coordinator"
	"github.com/hazyhaar/twitchpreview/enrich/internal/marker"
	"github.com/hazyhaar/twitchpreview/enrich/internal/render"
	"github.com/hazyhaar/twitchpreview/enrich/internal/status"
)

var (
	// ErrActive is returned when activating an Enricher that is already active.
	ErrActive = errors.New("enrich: already active")
	// ErrInactive is returned when deactivating an Enricher that is not active.
	ErrInactive = errors.New("enrich: not active")
)

// Resolver looks up channel status. Implementations never fail; the zero
// Status is the safe default.
type Resolver interface {
	Resolve(ctx context.Context, id string) channel.Status
}

// Opener opens a URL in a new, unrelated browsing context.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Enricher) { e.logger = l }
}

// WithResolver replaces the GraphQL status resolver.
func WithResolver(r Resolver) Option {
	return func(e *Enricher) { e.resolver = r }
}

// WithOpener sets how "open externally" is carried out.
func WithOpener(o Opener) Option {
	return func(e *Enricher) { e.opener = o }
}

// WithPlayerParent overrides the configured player parent.
func WithPlayerParent(host string) Option {
	return func(e *Enricher) { e.parent = host }
}

// Enricher is the lifecycle manager. It is safe for concurrent use.
type Enricher struct {
	cfg      config.EnrichConfig
	resolver Resolver
	opener   Opener
	parent   string
	logger   *slog.Logger

	mu       sync.Mutex
	doc      dom.Document
	style    dom.Element
	renderer *render.Renderer
	registry *coordinator.Registry
	coord    *coordinator.Coordinator
	icpt     *intercept.Interceptor
}

// New creates an Enricher. Without WithResolver, channel status is queried
// from the service configured in cfg.Status.
func New(cfg *Config, opts ...Option) *Enricher {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	e := &Enricher{
		cfg:    cfg.Enrich,
		parent: cfg.Enrich.PlayerParent,
	}
	for _, o := range opts {
		o(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.resolver == nil {
		e.resolver = NewResolver(cfg.Status, e.logger)
	}
	return e
}

// NewResolver returns the rate-limited GraphQL status resolver. Share one
// across Enrichers to share its rate limit.
func NewResolver(cfg StatusConfig, logger *slog.Logger) Resolver {
	return status.New(status.Config{
		Endpoint: cfg.Endpoint,
		ClientID: cfg.ClientID,
		Timeout:  cfg.Timeout,
		Rate:     cfg.Rate,
		Burst:    cfg.Burst,
		Logger:   logger,
	})
}

// Activate injects the stylesheet into doc and starts enriching it.
func (e *Enricher) Activate(ctx context.Context, doc dom.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active() {
		return ErrActive
	}

	style, err := doc.InjectStyle(marker.StyleID, stylesheet)
	if err != nil {
		return fmt.Errorf("enrich: inject style: %w", err)
	}

	renderer := render.New(render.Config{PlayerParent: e.parent, Logger: e.logger})
	registry := coordinator.NewRegistry()
	coord := coordinator.New(coordinator.Config{
		Doc:       doc,
		Locator:   anchor.Structural{MaxHops: e.cfg.MaxHops},
		Renderer:  renderer,
		Resolver:  e.resolver,
		Opener:    e.opener,
		Registry:  registry,
		Settle:    e.cfg.Settle,
		MaxSettle: e.cfg.MaxSettle,
		Logger:    e.logger,
	})
	if err := coord.Start(ctx); err != nil {
		style.Remove()
		return fmt.Errorf("enrich: start: %w", err)
	}

	e.doc, e.style = doc, style
	e.renderer, e.registry, e.coord = renderer, registry, coord
	e.logger.Info("enrich: activated")
	return nil
}

// Intercept wraps the render function held in slot. onUpdate, if not nil,
// is called after a preview received its status.
func (e *Enricher) Intercept(ctx context.Context, slot *intercept.Slot, onUpdate func(*intercept.Preview)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active() {
		return ErrActive
	}

	icpt := intercept.New(intercept.Config{
		Resolver:     e.resolver,
		Opener:       e.opener,
		PlayerParent: e.parent,
		OnUpdate:     onUpdate,
		Logger:       e.logger,
	})
	if err := icpt.Install(ctx, slot); err != nil {
		return fmt.Errorf("enrich: intercept: %w", err)
	}
	e.icpt = icpt
	e.logger.Info("enrich: render interception installed")
	return nil
}

// Settled blocks until the active strategy has no pending work.
func (e *Enricher) Settled(ctx context.Context) error {
	e.mu.Lock()
	coord, icpt := e.coord, e.icpt
	e.mu.Unlock()

	switch {
	case coord != nil:
		return coord.Settled(ctx)
	case icpt != nil:
		return icpt.Settled(ctx)
	}
	return ErrInactive
}

// Units reports how many units the structural strategy has enriched.
func (e *Enricher) Units() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.registry == nil {
		return 0
	}
	return e.registry.Len()
}

// Active reports whether either strategy is attached.
func (e *Enricher) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active()
}

func (e *Enricher) active() bool {
	return e.coord != nil || e.icpt != nil
}

// Deactivate stops observing, removes every preview and marker and the
// stylesheet, and resets all handles. The document is left as it was before
// Activate, apart from changes the host made itself.
func (e *Enricher) Deactivate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active() {
		return ErrInactive
	}

	var errs []error
	if e.icpt != nil {
		errs = append(errs, e.icpt.Uninstall())
		e.icpt = nil
	}
	if e.coord != nil {
		e.coord.Stop()
		n, err := e.sweepRegistry()
		errs = append(errs, err, e.sweepDocument())
		if e.style != nil {
			errs = append(errs, e.style.Remove())
		}
		e.doc, e.style, e.renderer, e.registry, e.coord = nil, nil, nil, nil, nil
		e.logger.Info("enrich: deactivated", "units", n)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("enrich: deactivate: %w", err)
	}
	return nil
}

func (e *Enricher) sweepRegistry() (int, error) {
	var errs []error
	units := e.registry.Drain()
	for _, u := range units {
		errs = append(errs, e.renderer.Clear(u.Preview))
		if u.Root != nil {
			errs = append(errs, u.Root.RemoveAttr(marker.Unit))
		}
		if u.Link != nil {
			errs = append(errs, u.Link.RemoveAttr(marker.Processed))
		}
	}
	return len(units), errors.Join(errs...)
}

// sweepDocument catches anything the registry did not know about, such as
// markers on links whose unit was never located.
func (e *Enricher) sweepDocument() error {
	var errs []error
	for _, el := range e.doc.QueryAll("." + marker.PreviewClass) {
		errs = append(errs, el.Remove())
	}
	for _, name := range marker.HostMarkers {
		for _, el := range e.doc.QueryAll("[" + name + "]") {
			errs = append(errs, el.RemoveAttr(name))
		}
	}
	return errors.Join(errs...)
}
