package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/twitchpreview/enrich/dom"
)

// Runtime bindings the bridge script reports through.
const (
	mutationBinding = "__twitchpreview_mutation"
	actionBinding   = "__twitchpreview_action"
)

//go:embed bridge.js
var bridgeSource string

var bridgeJS = strings.TrimSpace(bridgeSource)

var errNoAction = errors.New("missing action")

// Document is a live page seen through dom.Document. Mutations and clicks
// are observed in the page by an injected bridge script and delivered over
// CDP runtime bindings. The bridge lives only while something subscribes.
type Document struct {
	page   *rod.Page
	bridge pageBridge
	logger *slog.Logger

	mu        sync.Mutex
	attached  bool
	nextID    int
	observers map[int]func()
	listeners map[int]listener
}

type listener struct {
	b  dom.Bindings
	fn func(dom.ActionEvent)
}

// actionPayload is what the bridge sends on a click.
type actionPayload struct {
	Action string `json:"action"`
	Unit   string `json:"unit"`
}

// pageBridge is the in-page half of a Document.
type pageBridge interface {
	// install registers the bindings, injects the script into the current
	// and every future document, and starts delivering binding calls and
	// document loads.
	install(deliver func(name, payload string), loaded func()) error
	// push hands the subscription state to the script.
	push(observe bool, b map[string]string) error
	// uninstall undoes install, leaving nothing behind in the page.
	uninstall() error
}

// NewDocument wraps page. The bridge is installed on first subscription
// and removed again when the last one goes away.
func NewDocument(ctx context.Context, page *rod.Page, logger *slog.Logger) *Document {
	return newDocument(page, &rodBridge{page: page, ctx: ctx}, logger)
}

func newDocument(page *rod.Page, bridge pageBridge, logger *slog.Logger) *Document {
	if logger == nil {
		logger = slog.Default()
	}
	return &Document{
		page:      page,
		bridge:    bridge,
		logger:    logger,
		observers: make(map[int]func()),
		listeners: make(map[int]listener),
	}
}

// QueryAll implements dom.Document.
func (d *Document) QueryAll(selector string) []dom.Element {
	els, err := d.page.Elements(selector)
	if err != nil {
		d.logger.Debug("browser: query", "selector", selector, "error", err)
		return nil
	}
	return wrapAll(els)
}

// InjectStyle implements dom.Document.
func (d *Document) InjectStyle(id, css string) (dom.Element, error) {
	obj, err := d.page.Evaluate(rod.Eval(`function(id, css) {
		let s = document.getElementById(id);
		if (!s) {
			s = document.createElement("style");
			s.id = id;
			(document.head || document.documentElement).appendChild(s);
		}
		s.textContent = css;
		return s;
	}`, id, css).ByObject())
	if err != nil {
		return nil, fmt.Errorf("browser: inject style: %w", err)
	}
	el, err := d.page.ElementFromObject(obj)
	if err != nil {
		return nil, fmt.Errorf("browser: inject style: %w", err)
	}
	return &element{el: el}, nil
}

// Observe implements dom.Document.
func (d *Document) Observe(fn func()) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.attachLocked(); err != nil {
		return nil, err
	}
	id := d.nextID
	d.nextID++
	d.observers[id] = fn
	if err := d.syncLocked(); err != nil {
		delete(d.observers, id)
		d.releaseLocked()
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.observers, id)
			d.releaseLocked()
		})
	}, nil
}

// Listen implements dom.Document. The most recent listener's bindings are
// the ones the page honours.
func (d *Document) Listen(b dom.Bindings, fn func(dom.ActionEvent)) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.attachLocked(); err != nil {
		return nil, err
	}
	id := d.nextID
	d.nextID++
	d.listeners[id] = listener{b: b, fn: fn}
	if err := d.syncLocked(); err != nil {
		delete(d.listeners, id)
		d.releaseLocked()
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.listeners, id)
			d.releaseLocked()
		})
	}, nil
}

// Close drops every subscription and detaches the bridge.
func (d *Document) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.observers)
	clear(d.listeners)
	d.releaseLocked()
}

func (d *Document) attachLocked() error {
	if d.attached {
		return nil
	}
	if err := d.bridge.install(d.deliver, func() { go d.rearm() }); err != nil {
		return err
	}
	d.attached = true
	return nil
}

// releaseLocked runs after a subscription went away: the bridge follows the
// remaining subscriptions, or is removed from the page when none are left.
func (d *Document) releaseLocked() {
	if !d.attached {
		return
	}
	if len(d.observers) > 0 || len(d.listeners) > 0 {
		if err := d.syncLocked(); err != nil {
			d.logger.Debug("browser: sync bridge", "error", err)
		}
		return
	}
	if err := d.bridge.uninstall(); err != nil {
		d.logger.Debug("browser: detach bridge", "error", err)
	}
	d.attached = false
}

// syncLocked pushes the subscription state into the bridge.
func (d *Document) syncLocked() error {
	var b map[string]string
	if l, ok := d.latestListener(); ok {
		b = map[string]string{
			"action":   l.b.Action,
			"unit":     l.b.Unit,
			"stop":     l.b.Stop,
			"fallback": l.b.Fallback,
		}
	}
	return d.bridge.push(len(d.observers) > 0, b)
}

func (d *Document) latestListener() (listener, bool) {
	best, found := -1, false
	for id := range d.listeners {
		if id > best {
			best, found = id, true
		}
	}
	return d.listeners[best], found
}

// rearm restores the bridge state after a navigation replaced the document
// and reports the new document as one big mutation.
func (d *Document) rearm() {
	d.mu.Lock()
	if !d.attached {
		d.mu.Unlock()
		return
	}
	err := d.syncLocked()
	d.mu.Unlock()
	if err != nil {
		d.logger.Warn("browser: rearm bridge", "error", err)
		return
	}
	d.notifyMutation()
}

func (d *Document) deliver(name, payload string) {
	switch name {
	case mutationBinding:
		d.notifyMutation()
	case actionBinding:
		ev, err := parseAction(payload)
		if err != nil {
			d.logger.Debug("browser: bad action payload", "payload", payload, "error", err)
			return
		}
		d.mu.Lock()
		fns := make([]func(dom.ActionEvent), 0, len(d.listeners))
		for _, l := range d.listeners {
			fns = append(fns, l.fn)
		}
		d.mu.Unlock()
		for _, fn := range fns {
			fn(ev)
		}
	}
}

func (d *Document) notifyMutation() {
	d.mu.Lock()
	fns := make([]func(), 0, len(d.observers))
	for _, fn := range d.observers {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func parseAction(payload string) (dom.ActionEvent, error) {
	var p actionPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return dom.ActionEvent{}, err
	}
	if p.Action == "" {
		return dom.ActionEvent{}, errNoAction
	}
	return dom.ActionEvent{Action: p.Action, Unit: p.Unit}, nil
}

// rodBridge drives bridge.js over CDP.
type rodBridge struct {
	page *rod.Page
	ctx  context.Context

	cancel     context.CancelFunc
	removeBoot func() error
}

func (r *rodBridge) install(deliver func(name, payload string), loaded func()) error {
	for _, name := range []string{mutationBinding, actionBinding} {
		if err := (proto.RuntimeAddBinding{Name: name}).Call(r.page); err != nil {
			r.removeBindings()
			return fmt.Errorf("browser: add binding %s: %w", name, err)
		}
	}
	remove, err := r.page.EvalOnNewDocument("(" + bridgeJS + ")()")
	if err != nil {
		r.removeBindings()
		return fmt.Errorf("browser: install bridge: %w", err)
	}
	if _, err := r.page.Eval(bridgeJS); err != nil {
		_ = remove()
		r.removeBindings()
		return fmt.Errorf("browser: install bridge: %w", err)
	}

	ctx, cancel := context.WithCancel(r.ctx)
	wait := r.page.Context(ctx).EachEvent(
		func(e *proto.RuntimeBindingCalled) { deliver(e.Name, e.Payload) },
		func(*proto.PageDomContentEventFired) { loaded() },
	)
	go wait()

	r.cancel, r.removeBoot = cancel, remove
	return nil
}

func (r *rodBridge) push(observe bool, b map[string]string) error {
	if _, err := r.page.Eval(`(on) => window.__twitchpreview && window.__twitchpreview.observe(on)`, observe); err != nil {
		return fmt.Errorf("browser: observe: %w", err)
	}
	if _, err := r.page.Eval(`(b) => window.__twitchpreview && window.__twitchpreview.listen(b)`, b); err != nil {
		return fmt.Errorf("browser: listen: %w", err)
	}
	return nil
}

// uninstall stops the event loop, drops the boot script, and removes the
// bridge object and both binding functions from the current document.
func (r *rodBridge) uninstall() error {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	var errs []error
	if r.removeBoot != nil {
		errs = append(errs, r.removeBoot())
		r.removeBoot = nil
	}
	_, err := r.page.Eval(`(names) => {
		if (window.__twitchpreview) window.__twitchpreview.detach();
		for (const n of names) delete window[n];
	}`, []string{mutationBinding, actionBinding})
	errs = append(errs, err)
	errs = append(errs, r.removeBindings())
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("browser: uninstall bridge: %w", err)
	}
	return nil
}

func (r *rodBridge) removeBindings() error {
	var errs []error
	for _, name := range []string{mutationBinding, actionBinding} {
		errs = append(errs, proto.RuntimeRemoveBinding{Name: name}.Call(r.page))
	}
	return errors.Join(errs...)
}
