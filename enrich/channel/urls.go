package channel

import (
	"net/url"
	"strconv"
	"time"
)

// FallbackImageURL replaces a preview image that fails to load.
const FallbackImageURL = "https://static-cdn.jtvnw.net/ttv-static/404_preview-640x360.jpg"

// DefaultPlayerParent is the embedding context sent to the player when the
// host page is unknown.
const DefaultPlayerParent = "discord.com"

// PageURL is the canonical channel page.
func PageURL(id string) string {
	return "https://twitch.tv/" + url.PathEscape(id)
}

// PreviewURL is the generated live thumbnail, with a cache-busting
// timestamp taken from at.
func PreviewURL(id string, at time.Time) string {
	return "https://static-cdn.jtvnw.net/previews-ttv/live_user_" + url.PathEscape(id) +
		"-640x360.jpg?t=" + strconv.FormatInt(at.Unix(), 10)
}

// PlayerURL is the embedded player with autoplay requested. parent is the
// embedding host name required by the player.
func PlayerURL(id, parent string) string {
	if parent == "" {
		parent = DefaultPlayerParent
	}
	return "https://player.twitch.tv/?channel=" + url.QueryEscape(id) +
		"&parent=" + url.QueryEscape(parent) + "&autoplay=true"
}
