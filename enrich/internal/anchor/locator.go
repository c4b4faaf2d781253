// Package anchor finds the embed region a matched link belongs to.
//
// Host class names are generated (embedFull_a1b2c3), so every structural
// test is a class substring match, and every ascent is bounded.
package anchor

import (
	"strings"

	"github.com/hazyhaar/twitchpreview/enrich/dom"
	"github.com/hazyhaar/twitchpreview/enrich/internal/marker"
)

// DefaultMaxHops bounds every ancestor walk.
const DefaultMaxHops = 10

const (
	embedSelector = `[class*="embed"]`
	pillSelector  = `[class*="pill"]`
	gridSelector  = `[class*="grid"]`
	fullToken     = "embedFull"
)

// Unit is the region selected for enrichment.
type Unit struct {
	// Root receives the unit marker and scopes every renderer side effect.
	Root dom.Element
	// Slot is where the preview subtree is appended.
	Slot dom.Element
	// Link is the reference that selected the unit.
	Link dom.Element
}

// Locator maps a matched link to its unit.
type Locator interface {
	Locate(link dom.Element) (Unit, bool)
}

// Structural locates units by climbing the host markup.
type Structural struct {
	MaxHops int
}

func (s Structural) maxHops() int {
	if s.MaxHops <= 0 {
		return DefaultMaxHops
	}
	return s.MaxHops
}

// Locate returns the unit for link, or false when no suitable region exists
// or the region is already enriched.
func (s Structural) Locate(link dom.Element) (Unit, bool) {
	region, strong := s.region(link)
	if region == nil {
		return Unit{}, false
	}

	root := s.container(region)
	if root == nil {
		// A region picked only for having several children could be plain
		// message content; without a host embed container it is rejected.
		if !strong || !distinct(region) {
			return Unit{}, false
		}
		root = region
	}
	if marked(root) {
		return Unit{}, false
	}

	slot := root.Query(gridSelector)
	if slot == nil {
		slot = root
	}
	return Unit{Root: root, Slot: slot, Link: link}, true
}

// region finds the embed-like ancestor of link. strong reports whether the
// region carries an embed class or a pill, rather than only a child count.
func (s Structural) region(link dom.Element) (dom.Element, bool) {
	if el := link.Closest(embedSelector); el != nil {
		return el, true
	}

	el := link.Parent()
	for hops := 0; el != nil; hops++ {
		if hops >= s.maxHops() || rootLevel(el) {
			return nil, false
		}
		if el.Query(pillSelector) != nil {
			return el, true
		}
		if el.ChildCount() >= 2 {
			return el, false
		}
		el = el.Parent()
	}
	return nil, false
}

// container finds the full embed container at or above region.
func (s Structural) container(region dom.Element) dom.Element {
	el := region
	for hops := 0; el != nil && hops <= s.maxHops(); hops++ {
		if rootLevel(el) {
			return nil
		}
		if cls, _ := el.Attr("class"); strings.Contains(cls, fullToken) {
			return el
		}
		el = el.Parent()
	}
	return nil
}

// distinct tells an embed from generic prose.
func distinct(el dom.Element) bool {
	return el.Query(pillSelector) != nil || el.ChildCount() >= 2
}

func marked(el dom.Element) bool {
	_, ok := el.Attr(marker.Unit)
	return ok
}

func rootLevel(el dom.Element) bool {
	switch el.Tag() {
	case "main", "body", "html":
		return true
	}
	return false
}
