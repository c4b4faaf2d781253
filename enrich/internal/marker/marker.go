// Package marker names the attributes the pipeline writes into the host
// document. They are the only state the pipeline leaves on host nodes, and
// teardown removes every one of them.
package marker

import "github.com/hazyhaar/twitchpreview/enrich/dom"

const (
	// Processed is set on a link once it has been matched.
	Processed = "data-twitch-processed"
	// Unit is set on the root of an enriched embed; its value is the unit key.
	Unit = "data-twitch-unit"
	// Hidden is set on host media the preview replaces.
	Hidden = "data-twitch-hidden"

	// Preview is set on the injected subtree root; its value is the unit key.
	Preview = "data-twitch-preview"
	// Action, Stop and Fallback are read back by the host document.
	Action   = "data-twitch-action"
	Stop     = "data-twitch-stop"
	Fallback = "data-twitch-fallback"
	// Playing is set on a frame that switched to the player.
	Playing = "data-twitch-playing"

	// PreviewClass is the class of the injected subtree root.
	PreviewClass = "twitch-video-preview"

	// StyleID is the id of the injected style element.
	StyleID = "twitch-preview-styles"
)

// Action names.
const (
	ActionPlay = "play"
	ActionOpen = "open"
)

// Bindings is the dom.Bindings the injected markup relies on.
func Bindings() dom.Bindings {
	return dom.Bindings{
		Action:   Action,
		Unit:     Preview,
		Stop:     Stop,
		Fallback: Fallback,
	}
}

// HostMarkers are the attributes written on host-owned nodes.
var HostMarkers = []string{Processed, Unit, Hidden}
