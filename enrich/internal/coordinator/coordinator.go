// Package coordinator runs the scan loop of one activation.
//
// All document access happens on the loop goroutine. Mutation notifications
// arm a settle timer; when it fires the whole document is re-scanned for
// unprocessed channel links. Status resolution runs on separate goroutines
// and posts its result back to the loop.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/twitchpreview/enrich/channel"
	"github.com/hazyhaar/twitchpreview/enrich/dom"
	"github.com/hazyhaar/twitchpreview/enrich/internal/anchor"
	"github.com/hazyhaar/twitchpreview/enrich/internal/marker"
	"github.com/hazyhaar/twitchpreview/enrich/internal/render"
)

// LinkSelector matches candidate links that have not been scanned yet.
const LinkSelector = `a[href*="twitch.tv/"]:not([` + marker.Processed + `])`

// Resolver looks up channel status. It must never fail; the zero Status is
// the safe default.
type Resolver interface {
	Resolve(ctx context.Context, id string) channel.Status
}

// Opener opens a URL in a new, unrelated browsing context.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// ErrStarted is returned by Start on a coordinator that already ran.
var ErrStarted = errors.New("coordinator: already started")

// Config configures a Coordinator.
type Config struct {
	Doc      dom.Document
	Locator  anchor.Locator
	Renderer *render.Renderer
	Resolver Resolver
	// Opener may be nil, in which case open actions are logged and dropped.
	Opener   Opener
	Registry *Registry

	Settle    time.Duration
	MaxSettle time.Duration
	Logger    *slog.Logger
}

type result struct {
	key    string
	status channel.Status
}

// Coordinator watches one document.
type Coordinator struct {
	doc      dom.Document
	locator  anchor.Locator
	renderer *render.Renderer
	resolver Resolver
	opener   Opener
	registry *Registry
	logger   *slog.Logger

	settler *settler

	mutations chan struct{}
	actions   chan dom.ActionEvent
	results   chan result
	probes    chan chan bool

	// inflight is owned by the loop.
	inflight int
	opening  atomic.Int32

	started atomic.Bool
	cancel  context.CancelFunc
	unsub   []func()
	done    chan struct{}
	wg      sync.WaitGroup
	stopped sync.Once
}

// New creates a Coordinator. Start must be called to begin observing.
func New(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Locator == nil {
		cfg.Locator = anchor.Structural{}
	}
	if cfg.Renderer == nil {
		cfg.Renderer = render.New(render.Config{Logger: cfg.Logger})
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	return &Coordinator{
		doc:       cfg.Doc,
		locator:   cfg.Locator,
		renderer:  cfg.Renderer,
		resolver:  cfg.Resolver,
		opener:    cfg.Opener,
		registry:  cfg.Registry,
		logger:    cfg.Logger,
		settler:   newSettler(settleConfig{Window: cfg.Settle, MaxWait: cfg.MaxSettle}),
		mutations: make(chan struct{}, 1),
		actions:   make(chan dom.ActionEvent, 64),
		results:   make(chan result, 64),
		probes:    make(chan chan bool),
		done:      make(chan struct{}),
	}
}

// Start subscribes to the document and runs the loop until ctx is done or
// Stop is called. The first scan runs before any notification arrives.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrStarted
	}

	stopObserve, err := c.doc.Observe(c.onMutation)
	if err != nil {
		close(c.done)
		return fmt.Errorf("coordinator: observe: %w", err)
	}
	stopListen, err := c.doc.Listen(marker.Bindings(), c.onAction)
	if err != nil {
		stopObserve()
		close(c.done)
		return fmt.Errorf("coordinator: listen: %w", err)
	}
	c.unsub = []func(){stopObserve, stopListen}

	ctx, c.cancel = context.WithCancel(ctx)
	go c.loop(ctx)
	return nil
}

// Stop unsubscribes, cancels in-flight resolutions and waits for every
// goroutine. No document access happens after Stop returns.
func (c *Coordinator) Stop() {
	if !c.started.Load() {
		return
	}
	c.stopped.Do(func() {
		for _, fn := range c.unsub {
			fn()
		}
		if c.cancel != nil {
			c.cancel()
		}
		<-c.done
		c.wg.Wait()
	})
}

// Settled blocks until no scan is pending, no resolution is in flight and
// no action is queued. It returns at once on a stopped coordinator.
func (c *Coordinator) Settled(ctx context.Context) error {
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()

	for {
		reply := make(chan bool, 1)
		select {
		case c.probes <- reply:
		case <-c.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case idle := <-reply:
			if idle {
				return nil
			}
		case <-c.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case <-tick.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// onMutation is called by the document. It must not block.
func (c *Coordinator) onMutation() {
	select {
	case c.mutations <- struct{}{}:
	default:
	}
}

func (c *Coordinator) onAction(ev dom.ActionEvent) {
	select {
	case c.actions <- ev:
	default:
		c.logger.Warn("coordinator: action queue full, event dropped", "action", ev.Action, "unit", ev.Unit)
	}
}

func (c *Coordinator) loop(ctx context.Context) {
	defer close(c.done)
	defer c.settler.stop()

	c.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		case <-c.mutations:
			c.settler.poke()

		case <-c.settler.timerC():
			c.settler.fired()
			c.scan(ctx)

		case r := <-c.results:
			c.inflight--
			c.apply(r)

		case ev := <-c.actions:
			c.dispatch(ctx, ev)

		case reply := <-c.probes:
			reply <- c.idle()
		}
	}
}

func (c *Coordinator) idle() bool {
	return c.settler.idle() &&
		c.inflight == 0 &&
		c.opening.Load() == 0 &&
		len(c.mutations) == 0 &&
		len(c.actions) == 0 &&
		len(c.results) == 0
}

// scan enriches every unprocessed link. It is idempotent: links are marked
// before any further work and marked units are rejected by the locator.
func (c *Coordinator) scan(ctx context.Context) {
	links := c.doc.QueryAll(LinkSelector)
	if len(links) == 0 {
		return
	}

	enriched := 0
	for _, link := range links {
		if ctx.Err() != nil {
			return
		}
		if c.enrich(ctx, link) {
			enriched++
		}
	}
	if enriched > 0 {
		c.logger.Debug("coordinator: scan", "links", len(links), "enriched", enriched)
	}
}

func (c *Coordinator) enrich(ctx context.Context, link dom.Element) bool {
	href, _ := link.Attr("href")
	ref, ok := channel.Match(href)
	if !ok {
		return false
	}
	if err := link.SetAttr(marker.Processed, ""); err != nil {
		c.logger.Warn("coordinator: mark link", "channel", ref.ID, "error", err)
		return false
	}

	u, ok := c.locator.Locate(link)
	if !ok {
		return false
	}

	key, err := uuid.NewV7()
	if err != nil {
		c.logger.Error("coordinator: unit key", "error", err)
		return false
	}
	if err := u.Root.SetAttr(marker.Unit, key.String()); err != nil {
		c.logger.Warn("coordinator: mark unit", "channel", ref.ID, "error", err)
		return false
	}

	p, err := c.renderer.Paint(u, key.String(), ref.ID)
	if err != nil {
		c.logger.Warn("coordinator: paint", "channel", ref.ID, "error", err)
		u.Root.RemoveAttr(marker.Unit)
		return false
	}

	c.registry.Add(&Unit{Key: key.String(), Channel: ref.ID, Root: u.Root, Link: link, Preview: p})
	c.resolve(ctx, key.String(), ref.ID)
	return true
}

func (c *Coordinator) resolve(ctx context.Context, key, id string) {
	if c.resolver == nil {
		return
	}
	c.inflight++
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		st := c.resolver.Resolve(ctx, id)
		select {
		case c.results <- result{key: key, status: st}:
		case <-ctx.Done():
		}
	}()
}

func (c *Coordinator) apply(r result) {
	u, ok := c.registry.Get(r.key)
	if !ok {
		return
	}
	if err := c.renderer.Update(u.Preview, r.status); err != nil {
		c.logger.Warn("coordinator: update", "channel", u.Channel, "error", err)
	}
}

func (c *Coordinator) dispatch(ctx context.Context, ev dom.ActionEvent) {
	u, ok := c.registry.Get(ev.Unit)
	if !ok {
		return
	}

	switch ev.Action {
	case marker.ActionPlay:
		if err := c.renderer.Play(u.Preview); err != nil {
			c.logger.Warn("coordinator: play", "channel", u.Channel, "error", err)
			return
		}
		c.logger.Info("coordinator: playing", "channel", u.Channel)

	case marker.ActionOpen:
		if c.opener == nil {
			c.logger.Debug("coordinator: no opener, open dropped", "channel", u.Channel)
			return
		}
		url := channel.PageURL(u.Channel)
		c.opening.Add(1)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer c.opening.Add(-1)
			if err := c.opener.Open(ctx, url); err != nil {
				c.logger.Warn("coordinator: open", "url", url, "error", err)
			}
		}()

	default:
		c.logger.Debug("coordinator: unknown action", "action", ev.Action)
	}
}
