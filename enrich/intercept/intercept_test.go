package intercept

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/twitchpreview/enrich/channel"
)

type hostNode struct{ text string }

func hostRender(_ context.Context, msg Message) []Descriptor {
	out := []Descriptor{{Node: hostNode{"body:" + msg.ID}}}
	for i := range msg.Embeds {
		out = append(out, Descriptor{Embed: &msg.Embeds[i], Node: hostNode{"embed:" + msg.Embeds[i].URL}})
	}
	return out
}

type countingResolver struct {
	calls atomic.Int32
}

func (r *countingResolver) Resolve(_ context.Context, id string) channel.Status {
	r.calls.Add(1)
	return channel.Status{Live: true, DisplayName: strings.ToUpper(id), Image: channel.Image{Kind: channel.ImageLive, URL: "live.jpg"}}
}

type recordingOpener struct {
	mu   sync.Mutex
	urls []string
}

func (o *recordingOpener) Open(_ context.Context, url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.urls = append(o.urls, url)
	return nil
}

var msg = Message{ID: "m1", Embeds: []Embed{
	{URL: "https://example.org/article"},
	{URL: "https://twitch.tv/examplechannel"},
	{URL: "https://twitch.tv/examplechannel/clip/Abc"},
}}

func settle(t *testing.T, i *Interceptor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := i.Settled(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestInterceptor_ReplacesInPlace(t *testing.T) {
	res := &countingResolver{}
	var updates atomic.Int32
	i := New(Config{Resolver: res, OnUpdate: func(*Preview) { updates.Add(1) }})
	slot := NewSlot(hostRender)

	if err := i.Install(context.Background(), slot); err != nil {
		t.Fatal(err)
	}
	out := slot.Render(context.Background(), msg)
	settle(t, i)

	if len(out) != 4 {
		t.Fatalf("entries: got %d, want 4", len(out))
	}
	if _, ok := out[0].Node.(hostNode); !ok {
		t.Error("entry 0: non-embed entry must be untouched")
	}
	if n, ok := out[1].Node.(hostNode); !ok || n.text != "embed:https://example.org/article" {
		t.Errorf("entry 1: got %#v", out[1].Node)
	}
	p, ok := out[2].Node.(*Preview)
	if !ok {
		t.Fatalf("entry 2: got %T, want *Preview", out[2].Node)
	}
	if p.Channel != "examplechannel" {
		t.Errorf("Channel: got %q", p.Channel)
	}
	if _, ok := out[3].Node.(hostNode); !ok {
		t.Error("entry 3: clip must not be enriched")
	}

	v := p.View()
	if v.State != StatePopulated || !v.Live || v.Name != "EXAMPLECHANNEL" || v.Image != "live.jpg" {
		t.Errorf("View: got %+v", v)
	}
	if updates.Load() != 1 {
		t.Errorf("updates: got %d, want 1", updates.Load())
	}
}

func TestInterceptor_ReRenderReusesPreview(t *testing.T) {
	res := &countingResolver{}
	i := New(Config{Resolver: res})
	slot := NewSlot(hostRender)
	if err := i.Install(context.Background(), slot); err != nil {
		t.Fatal(err)
	}

	first := slot.Render(context.Background(), msg)[2].Node
	second := slot.Render(context.Background(), msg)[2].Node
	settle(t, i)

	if first != second {
		t.Error("re-render must reuse the preview")
	}
	if got := res.calls.Load(); got != 1 {
		t.Errorf("resolutions: got %d, want 1", got)
	}
	if got := len(i.Previews()); got != 1 {
		t.Errorf("previews: got %d, want 1", got)
	}
}

func TestInterceptor_Uninstall(t *testing.T) {
	i := New(Config{Resolver: &countingResolver{}})
	slot := NewSlot(hostRender)

	if err := i.Uninstall(); err != ErrNotInstalled {
		t.Errorf("Uninstall before Install: got %v", err)
	}
	if err := i.Install(context.Background(), slot); err != nil {
		t.Fatal(err)
	}
	if err := i.Install(context.Background(), slot); err != ErrInstalled {
		t.Errorf("second Install: got %v, want ErrInstalled", err)
	}
	slot.Render(context.Background(), msg)
	if err := i.Uninstall(); err != nil {
		t.Fatal(err)
	}

	out := slot.Render(context.Background(), msg)
	for idx, d := range out {
		if _, ok := d.Node.(hostNode); !ok {
			t.Errorf("entry %d after Uninstall: got %T", idx, d.Node)
		}
	}
	if len(i.Previews()) != 0 {
		t.Error("previews must be forgotten")
	}
}

func TestInterceptor_EmptySlot(t *testing.T) {
	if err := New(Config{}).Install(context.Background(), NewSlot(nil)); err != ErrNoRender {
		t.Errorf("got %v, want ErrNoRender", err)
	}
}

func TestPreview_PlayAndOpen(t *testing.T) {
	op := &recordingOpener{}
	i := New(Config{Opener: op, PlayerParent: "example.org"})
	slot := NewSlot(hostRender)
	if err := i.Install(context.Background(), slot); err != nil {
		t.Fatal(err)
	}
	p := slot.Render(context.Background(), msg)[2].Node.(*Preview)

	if err := p.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(op.urls) != 1 || op.urls[0] != "https://twitch.tv/examplechannel" {
		t.Errorf("opened: got %v", op.urls)
	}
	if p.View().State == StatePlaying {
		t.Error("open must not start playback")
	}

	url := p.Play()
	if !strings.Contains(url, "channel=examplechannel") || !strings.Contains(url, "autoplay=true") {
		t.Errorf("player URL: got %q", url)
	}
	p.update(channel.Status{DisplayName: "x"})
	if p.View().State != StatePlaying {
		t.Error("play is one-way")
	}

	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"state":"playing"`) {
		t.Errorf("json: got %s", raw)
	}
}
