package intercept

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/hazyhaar/twitchpreview/enrich/channel"
)

// State is the lifecycle position of a Preview.
type State string

const (
	StatePlaceholder State = "placeholder"
	StatePopulated   State = "populated"
	StatePlaying     State = "playing"
)

// Preview replaces a matched embed entry. It is safe for concurrent use.
type Preview struct {
	Key     string
	Channel string
	// Embed is the host object the preview stands in for.
	Embed Embed

	parent string
	opener Opener

	mu     sync.Mutex
	state  State
	status channel.Status
}

// View is a snapshot of a Preview, shaped for the host renderer.
type View struct {
	Key         string `json:"key"`
	Channel     string `json:"channel"`
	State       State  `json:"state"`
	Live        bool   `json:"live"`
	Name        string `json:"name"`
	StreamTitle string `json:"stream_title,omitempty"`
	Image       string `json:"image,omitempty"`
	Fallback    string `json:"fallback"`
	Player      string `json:"player,omitempty"`
	Page        string `json:"page"`
}

// View returns the current snapshot.
func (p *Preview) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := View{
		Key:         p.Key,
		Channel:     p.Channel,
		State:       p.stateLocked(),
		Live:        p.status.Live,
		Name:        p.status.Name(p.Channel),
		StreamTitle: p.status.Title,
		Image:       p.status.Image.URL,
		Fallback:    channel.FallbackImageURL,
		Page:        channel.PageURL(p.Channel),
	}
	if v.State == StatePlaying {
		v.Player = channel.PlayerURL(p.Channel, p.parent)
		v.Image = ""
	}
	return v
}

func (p *Preview) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.View())
}

func (p *Preview) stateLocked() State {
	if p.state == "" {
		return StatePlaceholder
	}
	return p.state
}

func (p *Preview) update(st channel.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = st
	if p.state != StatePlaying {
		p.state = StatePopulated
	}
}

// Play switches the preview to the embedded player and returns its URL.
// It is one-way.
func (p *Preview) Play() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StatePlaying
	return channel.PlayerURL(p.Channel, p.parent)
}

// Open opens the channel page externally. It does not affect playback.
func (p *Preview) Open(ctx context.Context) error {
	if p.opener == nil {
		return errors.New("intercept: no opener configured")
	}
	return p.opener.Open(ctx, channel.PageURL(p.Channel))
}
