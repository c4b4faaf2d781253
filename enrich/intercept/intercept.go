// Package intercept enriches embeds at the render-function level.
//
// When the host exposes typed embed objects before they become document
// nodes, matching on the object's URL field is more reliable than climbing
// rendered markup. The Interceptor wraps the host's render function held in
// a Slot, calls through to it, and replaces recognised entries in place by a
// *Preview. Entry order and count never change.
package intercept

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/twitchpreview/enrich/channel"
)

// Embed is the host's embed object.
type Embed struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Provider    string `json:"provider,omitempty"`
	Description string `json:"description,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
}

// Message is the input of one render call.
type Message struct {
	ID     string  `json:"id"`
	Embeds []Embed `json:"embeds"`
}

// Descriptor is one rendered entry. Embed is nil for entries that are not
// embeds. Node is whatever the host renders; the Interceptor replaces it by
// a *Preview for matched embeds.
type Descriptor struct {
	Embed *Embed `json:"embed,omitempty"`
	Node  any    `json:"node,omitempty"`
}

// RenderFunc is the host render function.
type RenderFunc func(ctx context.Context, msg Message) []Descriptor

// Slot holds the render function the host calls. It is the only place the
// Interceptor touches host state.
type Slot struct {
	mu sync.RWMutex
	fn RenderFunc
}

func NewSlot(fn RenderFunc) *Slot {
	return &Slot{fn: fn}
}

func (s *Slot) Get() RenderFunc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fn
}

func (s *Slot) Set(fn RenderFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn = fn
}

// Render calls the current render function.
func (s *Slot) Render(ctx context.Context, msg Message) []Descriptor {
	fn := s.Get()
	if fn == nil {
		return nil
	}
	return fn(ctx, msg)
}

// Resolver looks up channel status; the zero Status is the safe default.
type Resolver interface {
	Resolve(ctx context.Context, id string) channel.Status
}

// Opener opens a URL in a new, unrelated browsing context.
type Opener interface {
	Open(ctx context.Context, url string) error
}

var (
	ErrInstalled    = errors.New("intercept: already installed")
	ErrNotInstalled = errors.New("intercept: not installed")
	ErrNoRender     = errors.New("intercept: slot holds no render function")
)

// Config configures an Interceptor.
type Config struct {
	Resolver     Resolver
	Opener       Opener
	PlayerParent string
	// OnUpdate is called from the resolution goroutine after a preview
	// received its status. The host re-renders from it.
	OnUpdate func(*Preview)
	Logger   *slog.Logger
}

// Interceptor wraps one render slot at a time.
type Interceptor struct {
	cfg Config

	mu       sync.Mutex
	slot     *Slot
	orig     RenderFunc
	previews map[string]*Preview
	order    []string
	ctx      context.Context
	cancel   context.CancelFunc

	pending atomic.Int32
	wg      sync.WaitGroup
}

// New creates an Interceptor.
func New(cfg Config) *Interceptor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PlayerParent == "" {
		cfg.PlayerParent = channel.DefaultPlayerParent
	}
	return &Interceptor{cfg: cfg, previews: make(map[string]*Preview)}
}

// Install wraps the render function in slot. Resolutions started by the
// wrapper are bound to ctx.
func (i *Interceptor) Install(ctx context.Context, slot *Slot) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.slot != nil {
		return ErrInstalled
	}
	orig := slot.Get()
	if orig == nil {
		return ErrNoRender
	}

	i.ctx, i.cancel = context.WithCancel(ctx)
	i.slot = slot
	i.orig = orig
	slot.Set(i.wrap(orig))
	i.cfg.Logger.Debug("intercept: installed")
	return nil
}

// Uninstall restores the original render function, cancels in-flight
// resolutions and forgets every preview.
func (i *Interceptor) Uninstall() error {
	i.mu.Lock()
	if i.slot == nil {
		i.mu.Unlock()
		return ErrNotInstalled
	}
	i.slot.Set(i.orig)
	i.slot, i.orig = nil, nil
	i.cancel()
	i.mu.Unlock()

	i.wg.Wait()

	i.mu.Lock()
	n := len(i.previews)
	i.previews = make(map[string]*Preview)
	i.order = nil
	i.mu.Unlock()

	i.cfg.Logger.Debug("intercept: uninstalled", "previews", n)
	return nil
}

// Previews returns the live previews in creation order.
func (i *Interceptor) Previews() []*Preview {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]*Preview, 0, len(i.order))
	for _, k := range i.order {
		out = append(out, i.previews[k])
	}
	return out
}

// Settled blocks until no resolution is in flight.
func (i *Interceptor) Settled(ctx context.Context) error {
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for i.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}

func (i *Interceptor) wrap(orig RenderFunc) RenderFunc {
	return func(ctx context.Context, msg Message) []Descriptor {
		out := slices.Clone(orig(ctx, msg))
		for idx, d := range out {
			if d.Embed == nil {
				continue
			}
			ref, ok := channel.Match(d.Embed.URL)
			if !ok {
				continue
			}
			if p := i.preview(msg.ID, idx, ref.ID, *d.Embed); p != nil {
				out[idx] = Descriptor{Embed: d.Embed, Node: p}
			}
		}
		return out
	}
}

// preview returns the preview for entry idx of message msgID, creating it
// and starting its resolution on first sight. A re-render of the same entry
// reuses the existing preview.
func (i *Interceptor) preview(msgID string, idx int, id string, e Embed) *Preview {
	key := fmt.Sprintf("%s/%d/%s", msgID, idx, id)

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.slot == nil {
		// Render raced with Uninstall.
		return nil
	}
	if p, ok := i.previews[key]; ok {
		return p
	}

	p := &Preview{
		Key:     key,
		Channel: id,
		Embed:   e,
		parent:  i.cfg.PlayerParent,
		opener:  i.cfg.Opener,
	}
	i.previews[key] = p
	i.order = append(i.order, key)

	if i.cfg.Resolver != nil {
		i.resolve(i.ctx, p)
	}
	return p
}

func (i *Interceptor) resolve(ctx context.Context, p *Preview) {
	i.pending.Add(1)
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		defer i.pending.Add(-1)
		st := i.cfg.Resolver.Resolve(ctx, p.Channel)
		if ctx.Err() != nil {
			return
		}
		p.update(st)
		if i.cfg.OnUpdate != nil {
			i.cfg.OnUpdate(p)
		}
	}()
}
