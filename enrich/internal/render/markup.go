package render

import (
	"bytes"
	"html/template"

	"github.com/hazyhaar/twitchpreview/enrich/internal/marker"
)

// hostMedia are the host elements the preview stands in for.
var hostMedia = []string{
	`[class*="embedThumbnail"]`,
	`[class*="embedDescription"]`,
	`[class*="embedMedia"]`,
	`[class*="embedImage"]`,
	`[class*="embedVideo"]`,
}

const (
	frameSelector       = ".twitch-frame"
	imageSelector       = "img.twitch-thumb"
	badgeSelector       = ".live-badge"
	titleSelector       = ".twitch-title"
	streamTitleSelector = ".twitch-stream-title"
)

var previewTmpl = template.Must(template.New("preview").Parse(
	`<div class="` + marker.PreviewClass + `" ` + marker.Preview + `="{{.Key}}">` +
		`<div class="twitch-frame" ` + marker.Action + `="` + marker.ActionPlay + `">` +
		`<img class="twitch-thumb" alt="" ` + marker.Fallback + `="{{.Fallback}}">` +
		`<div class="play-btn"><svg width="24" height="24" viewBox="0 0 24 24" fill="white"><path d="M8 5v14l11-7z"></path></svg></div>` +
		`<div class="live-badge" hidden>LIVE</div>` +
		`</div>` +
		`<div class="twitch-meta">` +
		`<span class="twitch-title">{{.Name}}</span>` +
		`<span class="twitch-stream-title"></span>` +
		`<a class="open-btn" href="{{.Page}}" target="_blank" rel="noopener noreferrer" title="Open on Twitch" ` +
		marker.Processed + `="" ` + marker.Action + `="` + marker.ActionOpen + `" ` + marker.Stop + `="">Open</a>` +
		`</div>` +
		`</div>`))

var playerTmpl = template.Must(template.New("player").Parse(
	`<iframe src="{{.}}" allow="autoplay; fullscreen" allowfullscreen></iframe>`))

type previewData struct {
	Key      string
	Fallback string
	Name     string
	Page     string
}

// previewMarkup builds the placeholder subtree. The open control is a real
// link so static output stays usable; it carries the processed marker so
// scans never take it for a host link.
func previewMarkup(key, name, fallback, page string) (string, error) {
	var buf bytes.Buffer
	err := previewTmpl.Execute(&buf, previewData{Key: key, Fallback: fallback, Name: name, Page: page})
	return buf.String(), err
}

func playerMarkup(src string) (string, error) {
	var buf bytes.Buffer
	err := playerTmpl.Execute(&buf, src)
	return buf.String(), err
}
