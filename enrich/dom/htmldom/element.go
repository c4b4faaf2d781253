package htmldom

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hazyhaar/twitchpreview/enrich/dom"
)

type element struct {
	d *Document
	n *html.Node
}

func (e *element) Tag() string {
	return strings.ToLower(e.n.Data)
}

func (e *element) Attr(name string) (string, bool) {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	return attr(e.n, name)
}

func (e *element) SetAttr(name, value string) error {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	setAttr(e.n, name, value)
	return nil
}

func (e *element) RemoveAttr(name string) error {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	removeAttr(e.n, name)
	return nil
}

func (e *element) Parent() dom.Element {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	return e.d.wrap(e.n.Parent)
}

func (e *element) ChildCount() int {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	count := 0
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			count++
		}
	}
	return count
}

func (e *element) Closest(selector string) dom.Element {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	return e.d.wrap(first(goquery.NewDocumentFromNode(e.n).Closest(selector)))
}

func (e *element) Query(selector string) dom.Element {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	return e.d.wrap(first(goquery.NewDocumentFromNode(e.n).Find(selector)))
}

func (e *element) QueryAll(selector string) []dom.Element {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	return e.d.wrapAll(goquery.NewDocumentFromNode(e.n).Find(selector))
}

func (e *element) AppendHTML(fragment string) (dom.Element, error) {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), e.n)
	if err != nil {
		return nil, fmt.Errorf("htmldom: parse fragment: %w", err)
	}

	e.d.mu.Lock()
	var last *html.Node
	for _, n := range nodes {
		e.n.AppendChild(n)
		if n.Type == html.ElementNode {
			last = n
		}
	}
	e.d.mu.Unlock()

	e.d.notify()
	return e.d.wrap(last), nil
}

func (e *element) SetInnerHTML(fragment string) error {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), e.n)
	if err != nil {
		return fmt.Errorf("htmldom: parse fragment: %w", err)
	}

	e.d.mu.Lock()
	removeChildren(e.n)
	for _, n := range nodes {
		e.n.AppendChild(n)
	}
	e.d.mu.Unlock()

	e.d.notify()
	return nil
}

func (e *element) SetText(text string) error {
	e.d.mu.Lock()
	removeChildren(e.n)
	e.n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	e.d.mu.Unlock()

	e.d.notify()
	return nil
}

func (e *element) Remove() error {
	e.d.mu.Lock()
	if e.n.Parent == nil {
		e.d.mu.Unlock()
		return nil
	}
	e.n.Parent.RemoveChild(e.n)
	e.d.mu.Unlock()

	e.d.notify()
	return nil
}

func (e *element) Connected() bool {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	n := e.n
	for n.Parent != nil {
		n = n.Parent
	}
	return n == e.d.root
}

func first(sel *goquery.Selection) *html.Node {
	if sel == nil || len(sel.Nodes) == 0 {
		return nil
	}
	return sel.Nodes[0]
}

func attr(n *html.Node, name string) (string, bool) {
	if name == "" {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func removeAttr(n *html.Node, name string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			continue
		}
		out = append(out, a)
	}
	n.Attr = out
}

// nearestAttr reads name from n or its closest ancestor carrying it.
func nearestAttr(n *html.Node, name string) string {
	for ; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if v, ok := attr(n, name); ok {
			return v
		}
	}
	return ""
}

func removeChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}
