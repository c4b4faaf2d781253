// Package dom is the host document boundary of the enrichment pipeline.
//
// The pipeline never talks to a browser or a parser directly: it reads and
// writes through Document and Element. Two implementations exist: htmldom
// (an in-memory tree, used offline and in tests) and the go-rod backed live
// page in enrich/internal/browser.
//
// Selectors are CSS selectors. Class names generated by the host are only
// ever matched by substring ([class*="..."]).
package dom

// Element is a non-owning handle to a host element.
//
// Read accessors never fail: a handle whose node has vanished reads as an
// empty, parentless element. Mutators report errors.
type Element interface {
	// Tag is the lower-case tag name.
	Tag() string
	Attr(name string) (string, bool)
	SetAttr(name, value string) error
	RemoveAttr(name string) error

	// Parent is the parent element, nil at the root element.
	Parent() Element
	// ChildCount counts element children only.
	ChildCount() int
	// Closest matches the element itself or its nearest matching ancestor.
	Closest(selector string) Element
	// Query returns the first matching descendant.
	Query(selector string) Element
	QueryAll(selector string) []Element

	// AppendHTML parses fragment in the context of the element, appends the
	// resulting nodes and returns the last appended element.
	AppendHTML(fragment string) (Element, error)
	// SetInnerHTML replaces every child with the parsed fragment.
	SetInnerHTML(fragment string) error
	// SetText replaces every child with a single text node.
	SetText(text string) error
	Remove() error
	// Connected reports whether the element is still attached to the document.
	Connected() bool
}

// Bindings names the attributes through which injected markup talks back to
// the pipeline. A document honours them once Listen has been called.
type Bindings struct {
	// Action marks an activatable element; its value is the action name.
	// The nearest marked ancestor-or-self of a click target receives it.
	Action string
	// Unit holds the key of the enclosing injected subtree.
	Unit string
	// Stop on an action element stops propagation of the click to any
	// enclosing host handler or action.
	Stop string
	// Fallback on an image holds the URL to load when its source fails.
	Fallback string
}

// ActionEvent is delivered for a click on an element carrying Bindings.Action.
type ActionEvent struct {
	Action string
	Unit   string
}

// Document is the host document.
type Document interface {
	QueryAll(selector string) []Element
	// InjectStyle inserts (or replaces the content of) a style element with
	// the given id and returns it.
	InjectStyle(id, css string) (Element, error)
	// Observe calls fn after structural changes (child list, subtree).
	// fn must not block. The returned stop function unsubscribes.
	Observe(fn func()) (stop func(), err error)
	// Listen delivers action events for markup carrying b's attributes and
	// enables the image fallback behaviour. fn must not block.
	Listen(b Bindings, fn func(ActionEvent)) (stop func(), err error)
}
