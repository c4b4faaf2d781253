// Package render paints and updates the preview subtree of one unit.
//
// Every side effect is scoped to the unit passed in. Host elements are only
// ever hidden through a marker attribute, never removed.
package render

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/twitchpreview/enrich/channel"
	"github.com/hazyhaar/twitchpreview/enrich/dom"
	"github.com/hazyhaar/twitchpreview/enrich/internal/anchor"
	"github.com/hazyhaar/twitchpreview/enrich/internal/marker"
)

// State is the lifecycle position of a preview.
type State int

const (
	StatePlaceholder State = iota
	StatePopulated
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StatePlaceholder:
		return "placeholder"
	case StatePopulated:
		return "populated"
	case StatePlaying:
		return "playing"
	}
	return "unknown"
}

// Config configures a Renderer.
type Config struct {
	// PlayerParent is the embedding host passed to the player.
	PlayerParent string
	Logger       *slog.Logger
}

// Renderer paints previews.
type Renderer struct {
	parent string
	logger *slog.Logger
}

// New creates a Renderer.
func New(cfg Config) *Renderer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PlayerParent == "" {
		cfg.PlayerParent = channel.DefaultPlayerParent
	}
	return &Renderer{parent: cfg.PlayerParent, logger: cfg.Logger}
}

// Preview is the subtree owned by one unit.
type Preview struct {
	Key     string
	Channel string
	Root    dom.Element

	frame       dom.Element
	image       dom.Element
	badge       dom.Element
	title       dom.Element
	streamTitle dom.Element
	hidden      []dom.Element
	state       State
}

// State returns the current state.
func (p *Preview) State() State { return p.state }

// Paint hides the host media of u and appends the placeholder preview.
func (r *Renderer) Paint(u anchor.Unit, key, id string) (*Preview, error) {
	p := &Preview{Key: key, Channel: id}

	for _, sel := range hostMedia {
		for _, el := range u.Root.QueryAll(sel) {
			if _, done := el.Attr(marker.Hidden); done {
				continue
			}
			if err := el.SetAttr(marker.Hidden, ""); err != nil {
				r.unhide(p)
				return nil, fmt.Errorf("render: hide host media: %w", err)
			}
			p.hidden = append(p.hidden, el)
		}
	}

	markup, err := previewMarkup(key, id, channel.FallbackImageURL, channel.PageURL(id))
	if err != nil {
		r.unhide(p)
		return nil, fmt.Errorf("render: preview markup: %w", err)
	}
	root, err := u.Slot.AppendHTML(markup)
	if err != nil || root == nil {
		r.unhide(p)
		return nil, fmt.Errorf("render: append preview: %w", errors.Join(err, errNoRoot(root)))
	}

	p.Root = root
	p.frame = root.Query(frameSelector)
	p.image = root.Query(imageSelector)
	p.badge = root.Query(badgeSelector)
	p.title = root.Query(titleSelector)
	p.streamTitle = root.Query(streamTitleSelector)
	return p, nil
}

// Update merges a resolved status into p in place. It is a no-op when the
// preview has left the document. Once playing, only the title line changes.
func (r *Renderer) Update(p *Preview, st channel.Status) error {
	if p.Root == nil || !p.Root.Connected() {
		r.logger.Debug("render: preview detached, update dropped", "unit", p.Key)
		return nil
	}

	var errs []error
	if p.state != StatePlaying {
		if p.image != nil && st.Image.URL != "" {
			errs = append(errs, p.image.SetAttr("src", st.Image.URL))
		}
		if p.badge != nil {
			if st.Live {
				errs = append(errs, p.badge.RemoveAttr("hidden"))
			} else {
				errs = append(errs, p.badge.SetAttr("hidden", ""))
			}
		}
		p.state = StatePopulated
	}
	if p.title != nil {
		errs = append(errs, p.title.SetText(st.Name(p.Channel)))
	}
	if p.streamTitle != nil {
		errs = append(errs, p.streamTitle.SetText(st.Title))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("render: update: %w", err)
	}
	return nil
}

// Play swaps the frame content for the embedded player. It is one-way.
func (r *Renderer) Play(p *Preview) error {
	if p.state == StatePlaying {
		return nil
	}
	if p.frame == nil || !p.frame.Connected() {
		return nil
	}

	markup, err := playerMarkup(channel.PlayerURL(p.Channel, r.parent))
	if err != nil {
		return fmt.Errorf("render: player markup: %w", err)
	}
	if err := p.frame.SetInnerHTML(markup); err != nil {
		return fmt.Errorf("render: play: %w", err)
	}
	if err := errors.Join(
		p.frame.SetAttr(marker.Playing, ""),
		p.frame.RemoveAttr(marker.Action),
	); err != nil {
		return fmt.Errorf("render: play: %w", err)
	}

	p.image, p.badge = nil, nil
	p.state = StatePlaying
	return nil
}

// Clear removes the preview subtree and shows the host media again.
func (r *Renderer) Clear(p *Preview) error {
	var errs []error
	if p.Root != nil {
		errs = append(errs, p.Root.Remove())
	}
	errs = append(errs, r.unhide(p))
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("render: clear: %w", err)
	}
	return nil
}

func (r *Renderer) unhide(p *Preview) error {
	var errs []error
	for _, el := range p.hidden {
		errs = append(errs, el.RemoveAttr(marker.Hidden))
	}
	p.hidden = nil
	return errors.Join(errs...)
}

func errNoRoot(root dom.Element) error {
	if root == nil {
		return errors.New("no element appended")
	}
	return nil
}
