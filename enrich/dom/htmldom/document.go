// Package htmldom is an in-memory dom.Document over golang.org/x/net/html,
// with selectors evaluated by goquery.
//
// It plays the host for offline rendering and tests: structural changes made
// through it notify observers like a MutationObserver would, and Click and
// FailImage simulate user clicks and image load failures.
package htmldom

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hazyhaar/twitchpreview/enrich/dom"
)

// Document is safe for concurrent use. Callbacks run outside its lock.
type Document struct {
	mu        sync.Mutex
	root      *html.Node
	observers []subscription[func()]
	listeners []subscription[listener]
	handlers  map[*html.Node][]func()
	nextID    int
}

type subscription[T any] struct {
	id int
	fn T
}

type listener struct {
	b  dom.Bindings
	fn func(dom.ActionEvent)
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldom: parse: %w", err)
	}
	return &Document{root: root, handlers: make(map[*html.Node][]func())}, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Render serialises the whole document.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// String is the serialised document.
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

// OuterHTML serialises a single element of this document.
func (d *Document) OuterHTML(el dom.Element) string {
	e, ok := el.(*element)
	if !ok || e.d != d {
		return ""
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf bytes.Buffer
	if err := html.Render(&buf, e.n); err != nil {
		return ""
	}
	return buf.String()
}

func (d *Document) QueryAll(selector string) []dom.Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wrapAll(goquery.NewDocumentFromNode(d.root).Find(selector))
}

// Query returns the first match in the document, or nil.
func (d *Document) Query(selector string) dom.Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wrap(first(goquery.NewDocumentFromNode(d.root).Find(selector)))
}

func (d *Document) InjectStyle(id, css string) (dom.Element, error) {
	d.mu.Lock()
	doc := goquery.NewDocumentFromNode(d.root)
	style := first(doc.Find("style").FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("id")
		return v == id
	}))
	if style == nil {
		head := first(doc.Find("head"))
		if head == nil {
			d.mu.Unlock()
			return nil, fmt.Errorf("htmldom: inject style: document has no head")
		}
		style = &html.Node{
			Type: html.ElementNode,
			Data: "style",
			Attr: []html.Attribute{{Key: "id", Val: id}},
		}
		head.AppendChild(style)
	}
	removeChildren(style)
	style.AppendChild(&html.Node{Type: html.TextNode, Data: css})
	d.mu.Unlock()

	d.notify()
	return d.wrap(style), nil
}

func (d *Document) Observe(fn func()) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.observers = append(d.observers, subscription[func()]{id: id, fn: fn})
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.observers = without(d.observers, id)
	}, nil
}

func (d *Document) Listen(b dom.Bindings, fn func(dom.ActionEvent)) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.listeners = append(d.listeners, subscription[listener]{id: id, fn: listener{b: b, fn: fn}})
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.listeners = without(d.listeners, id)
	}, nil
}

// Observers reports how many Observe and Listen subscriptions are live.
func (d *Document) Observers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.observers) + len(d.listeners)
}

// Append is a host-side mutation: it appends fragment to the first element
// matching selector.
func (d *Document) Append(selector, fragment string) error {
	el := d.Query(selector)
	if el == nil {
		return fmt.Errorf("htmldom: append: no element matches %q", selector)
	}
	_, err := el.AppendHTML(fragment)
	return err
}

// OnClick registers a host click handler on el. Handlers run while a click
// bubbles from its target to the root.
func (d *Document) OnClick(el dom.Element, fn func()) {
	e, ok := el.(*element)
	if !ok || e.d != d {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[e.n] = append(d.handlers[e.n], fn)
}

// Click simulates a user click on el. The click bubbles from el to the
// root; at each node host handlers run first, then action events are
// delivered for nodes carrying a listener's action attribute. A node with
// the stop attribute ends the bubbling.
func (d *Document) Click(el dom.Element) {
	e, ok := el.(*element)
	if !ok || e.d != d {
		return
	}

	type hop struct {
		handlers []func()
		events   []func()
		stop     bool
	}

	d.mu.Lock()
	var path []hop
	for n := e.n; n != nil && n.Type == html.ElementNode; n = n.Parent {
		h := hop{handlers: append([]func(){}, d.handlers[n]...)}
		for _, l := range d.listeners {
			action, ok := attr(n, l.fn.b.Action)
			if !ok {
				continue
			}
			ev := dom.ActionEvent{Action: action, Unit: nearestAttr(n, l.fn.b.Unit)}
			fn := l.fn.fn
			h.events = append(h.events, func() { fn(ev) })
			if _, stop := attr(n, l.fn.b.Stop); stop {
				h.stop = true
			}
		}
		path = append(path, h)
	}
	d.mu.Unlock()

	for _, h := range path {
		for _, fn := range h.handlers {
			fn()
		}
		for _, fn := range h.events {
			fn()
		}
		if h.stop {
			return
		}
	}
}

// FailImage simulates a load failure of the image el: an image carrying a
// listener's fallback attribute switches its source to the fallback URL.
func (d *Document) FailImage(el dom.Element) {
	e, ok := el.(*element)
	if !ok || e.d != d {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range d.listeners {
		fallback, ok := attr(e.n, l.fn.b.Fallback)
		if !ok || fallback == "" {
			continue
		}
		if src, _ := attr(e.n, "src"); src != fallback {
			setAttr(e.n, "src", fallback)
		}
		return
	}
}

func (d *Document) notify() {
	d.mu.Lock()
	fns := make([]func(), 0, len(d.observers))
	for _, o := range d.observers {
		fns = append(fns, o.fn)
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (d *Document) wrap(n *html.Node) dom.Element {
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	return &element{d: d, n: n}
}

func (d *Document) wrapAll(sel *goquery.Selection) []dom.Element {
	out := make([]dom.Element, 0, sel.Length())
	for _, n := range sel.Nodes {
		if el := d.wrap(n); el != nil {
			out = append(out, el)
		}
	}
	return out
}

func without[T any](subs []subscription[T], id int) []subscription[T] {
	out := subs[:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
