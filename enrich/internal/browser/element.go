package browser

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/twitchpreview/enrich/dom"
)

// element is a dom.Element backed by a remote object. Reads on a handle
// whose object is gone fall back to zero values.
type element struct {
	el *rod.Element
}

func wrapAll(els rod.Elements) []dom.Element {
	out := make([]dom.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &element{el: el})
	}
	return out
}

func (e *element) eval(js string, args ...any) (*proto.RuntimeRemoteObject, error) {
	return e.el.Evaluate(rod.Eval(js, args...))
}

// object evaluates js and wraps the returned element, nil for null.
func (e *element) object(js string, args ...any) (dom.Element, error) {
	obj, err := e.el.Evaluate(rod.Eval(js, args...).ByObject())
	if err != nil {
		return nil, err
	}
	if obj.ObjectID == "" {
		return nil, nil
	}
	el, err := e.el.Page().ElementFromObject(obj)
	if err != nil {
		return nil, err
	}
	return &element{el: el}, nil
}

func (e *element) Tag() string {
	res, err := e.eval(`function() { return this.tagName.toLowerCase() }`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func (e *element) Attr(name string) (string, bool) {
	v, err := e.el.Attribute(name)
	if err != nil || v == nil {
		return "", false
	}
	return *v, true
}

func (e *element) SetAttr(name, value string) error {
	if _, err := e.eval(`function(n, v) { this.setAttribute(n, v) }`, name, value); err != nil {
		return fmt.Errorf("browser: set %s: %w", name, err)
	}
	return nil
}

func (e *element) RemoveAttr(name string) error {
	if _, err := e.eval(`function(n) { this.removeAttribute(n) }`, name); err != nil {
		return fmt.Errorf("browser: remove %s: %w", name, err)
	}
	return nil
}

func (e *element) Parent() dom.Element {
	el, err := e.object(`function() { return this.parentElement }`)
	if err != nil {
		return nil
	}
	return el
}

func (e *element) ChildCount() int {
	res, err := e.eval(`function() { return this.childElementCount }`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

func (e *element) Closest(selector string) dom.Element {
	el, err := e.object(`function(s) { return this.closest(s) }`, selector)
	if err != nil {
		return nil
	}
	return el
}

func (e *element) Query(selector string) dom.Element {
	el, err := e.object(`function(s) { return this.querySelector(s) }`, selector)
	if err != nil {
		return nil
	}
	return el
}

func (e *element) QueryAll(selector string) []dom.Element {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil
	}
	return wrapAll(els)
}

func (e *element) AppendHTML(fragment string) (dom.Element, error) {
	el, err := e.object(`function(html) {
		const t = document.createElement("template");
		t.innerHTML = html;
		const last = t.content.lastElementChild;
		this.append(t.content);
		return last;
	}`, fragment)
	if err != nil {
		return nil, fmt.Errorf("browser: append: %w", err)
	}
	return el, nil
}

func (e *element) SetInnerHTML(fragment string) error {
	if _, err := e.eval(`function(html) { this.innerHTML = html }`, fragment); err != nil {
		return fmt.Errorf("browser: set inner html: %w", err)
	}
	return nil
}

func (e *element) SetText(text string) error {
	if _, err := e.eval(`function(t) { this.textContent = t }`, text); err != nil {
		return fmt.Errorf("browser: set text: %w", err)
	}
	return nil
}

func (e *element) Remove() error {
	if _, err := e.eval(`function() { this.remove() }`); err != nil {
		return fmt.Errorf("browser: remove: %w", err)
	}
	return nil
}

func (e *element) Connected() bool {
	res, err := e.eval(`function() { return this.isConnected }`)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}
