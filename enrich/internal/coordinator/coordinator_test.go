package coordinator

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/twitchpreview/enrich/channel"
	"github.com/hazyhaar/twitchpreview/enrich/dom/htmldom"
	"github.com/hazyhaar/twitchpreview/enrich/internal/marker"
	"github.com/hazyhaar/twitchpreview/enrich/internal/render"
)

func embedHTML(id, channelID string) string {
	return `<div class="message"><div id="` + id + `" class="embedFull_1">` +
		`<div class="grid_2">` +
		`<div class="embedTitle_3"><a href="https://www.twitch.tv/` + channelID + `">` + channelID + `</a></div>` +
		`<div class="embedThumbnail_4"><img src="t.jpg"></div>` +
		`</div></div></div>`
}

type fakeResolver struct {
	calls atomic.Int32
	st    map[string]channel.Status
}

func (f *fakeResolver) Resolve(_ context.Context, id string) channel.Status {
	f.calls.Add(1)
	return f.st[id]
}

type fakeOpener struct {
	mu   sync.Mutex
	urls []string
}

func (f *fakeOpener) Open(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	return nil
}

func (f *fakeOpener) opened() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

type fixture struct {
	doc      *htmldom.Document
	coord    *Coordinator
	registry *Registry
	resolver *fakeResolver
	opener   *fakeOpener
}

func start(t *testing.T, body string) *fixture {
	t.Helper()
	doc, err := htmldom.ParseString("<html><head></head><body><main>" + body + "</main></body></html>")
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		doc:      doc,
		registry: NewRegistry(),
		resolver: &fakeResolver{st: map[string]channel.Status{
			"examplechannel": {Live: true, DisplayName: "ExampleChannel", Title: "Speedrun",
				Image: channel.Image{Kind: channel.ImageLive, URL: "live.jpg"}},
		}},
		opener: &fakeOpener{},
	}
	f.coord = New(Config{
		Doc:      doc,
		Renderer: render.New(render.Config{PlayerParent: "example.org"}),
		Resolver: f.resolver,
		Opener:   f.opener,
		Registry: f.registry,
		Settle:   5 * time.Millisecond,
	})
	if err := f.coord.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(f.coord.Stop)
	f.settle(t)
	return f
}

func (f *fixture) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.coord.Settled(ctx); err != nil {
		t.Fatalf("Settled: %v", err)
	}
}

func TestCoordinator_EnrichesExistingEmbed(t *testing.T) {
	f := start(t, embedHTML("e1", "examplechannel"))

	if got := f.registry.Len(); got != 1 {
		t.Fatalf("registry: got %d units, want 1", got)
	}
	if got := len(f.doc.QueryAll("." + marker.PreviewClass)); got != 1 {
		t.Fatalf("previews: got %d, want 1", got)
	}
	if _, ok := f.doc.Query("#e1").Attr(marker.Unit); !ok {
		t.Error("unit root not marked")
	}
	if _, ok := f.doc.Query("a").Attr(marker.Processed); !ok {
		t.Error("link not marked")
	}

	html := f.doc.String()
	for _, want := range []string{`src="live.jpg"`, ">ExampleChannel<", ">Speedrun<"} {
		if !strings.Contains(html, want) {
			t.Errorf("document missing %s", want)
		}
	}
}

func TestCoordinator_OpenLinkIsNotACandidate(t *testing.T) {
	f := start(t, embedHTML("e1", "examplechannel"))

	if got := len(f.doc.QueryAll(LinkSelector)); got != 0 {
		t.Fatalf("candidates after enrichment: got %d, want 0", got)
	}
	if err := f.doc.Append("main", `<p>unrelated</p>`); err != nil {
		t.Fatal(err)
	}
	f.settle(t)
	if got := f.registry.Len(); got != 1 {
		t.Errorf("registry: got %d units, want 1", got)
	}
	if got := f.resolver.calls.Load(); got != 1 {
		t.Errorf("resolver calls: got %d, want 1", got)
	}
}

func TestCoordinator_LateEmbedAndIdempotence(t *testing.T) {
	f := start(t, "")

	if err := f.doc.Append("main", embedHTML("e1", "examplechannel")); err != nil {
		t.Fatal(err)
	}
	f.settle(t)
	if got := f.registry.Len(); got != 1 {
		t.Fatalf("registry: got %d units, want 1", got)
	}

	// Unrelated mutations re-scan without re-enriching.
	for i := 0; i < 3; i++ {
		if err := f.doc.Append("main", `<p>noise</p>`); err != nil {
			t.Fatal(err)
		}
		f.settle(t)
	}
	if got := len(f.doc.QueryAll("." + marker.PreviewClass)); got != 1 {
		t.Errorf("previews: got %d, want 1", got)
	}
	if got := f.resolver.calls.Load(); got != 1 {
		t.Errorf("resolutions: got %d, want 1", got)
	}
}

func TestCoordinator_NonChannelLinksIgnored(t *testing.T) {
	f := start(t, `
		<div class="embedFull_1"><div class="embedTitle_2"><a href="https://twitch.tv/examplechannel/clip/Abc">clip</a></div><div>x</div></div>
		<div class="embedFull_1"><div class="embedTitle_2"><a href="https://twitch.tv/directory">dir</a></div><div>x</div></div>
		<p>see <a href="https://twitch.tv/examplechannel">here</a> and more</p>`)

	if got := len(f.doc.QueryAll("." + marker.PreviewClass)); got != 0 {
		t.Errorf("previews: got %d, want 0", got)
	}
	if got := f.resolver.calls.Load(); got != 0 {
		t.Errorf("resolutions: got %d, want 0", got)
	}
}

func TestCoordinator_PlayAndOpen(t *testing.T) {
	f := start(t, embedHTML("e1", "examplechannel"))

	var hostClicks atomic.Int32
	f.doc.OnClick(f.doc.Query("#e1"), func() { hostClicks.Add(1) })

	f.doc.Click(f.doc.Query(".twitch-frame img"))
	f.settle(t)

	iframe := f.doc.Query(".twitch-frame iframe")
	if iframe == nil {
		t.Fatal("player not mounted")
	}
	if src, _ := iframe.Attr("src"); src != channel.PlayerURL("examplechannel", "example.org") {
		t.Errorf("player src: got %q", src)
	}
	clicksAfterPlay := hostClicks.Load()

	f.doc.Click(f.doc.Query(`[` + marker.Action + `="` + marker.ActionOpen + `"]`))
	f.settle(t)

	if got := f.opener.opened(); len(got) != 1 || got[0] != "https://twitch.tv/examplechannel" {
		t.Errorf("opened: got %v", got)
	}
	if hostClicks.Load() != clicksAfterPlay {
		t.Error("open control must stop propagation to host handlers")
	}
	if f.doc.Query(".twitch-frame iframe") == nil {
		t.Error("player must survive open")
	}
}

func TestCoordinator_Stop(t *testing.T) {
	f := start(t, "")

	f.coord.Stop()
	if got := f.doc.Observers(); got != 0 {
		t.Errorf("observers after Stop: got %d, want 0", got)
	}

	if err := f.doc.Append("main", embedHTML("e1", "examplechannel")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if got := len(f.doc.QueryAll("." + marker.PreviewClass)); got != 0 {
		t.Errorf("previews after Stop: got %d, want 0", got)
	}
	if err := f.coord.Start(context.Background()); err != ErrStarted {
		t.Errorf("restart: got %v, want ErrStarted", err)
	}
}

func TestSettler_Delay(t *testing.T) {
	base := time.Unix(0, 0)
	now := base
	s := newSettler(settleConfig{Window: 150 * time.Millisecond, MaxWait: time.Second})
	s.now = func() time.Time { return now }
	defer s.stop()

	s.poke()
	if got := s.delay(now); got != 150*time.Millisecond {
		t.Errorf("first delay: got %v, want 150ms", got)
	}

	now = base.Add(900 * time.Millisecond)
	s.poke()
	if got := s.delay(now); got != 100*time.Millisecond {
		t.Errorf("bounded delay: got %v, want 100ms", got)
	}

	now = base.Add(2 * time.Second)
	if got := s.delay(now); got != 0 {
		t.Errorf("overdue delay: got %v, want 0", got)
	}

	s.fired()
	if !s.idle() {
		t.Error("idle after fired: got false")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if !r.Add(&Unit{Key: "a"}) || !r.Add(&Unit{Key: "b"}) {
		t.Fatal("Add: want true")
	}
	if r.Add(&Unit{Key: "a"}) {
		t.Error("Add duplicate: want false")
	}
	if _, ok := r.Get("b"); !ok {
		t.Error("Get(b): not found")
	}
	units := r.Drain()
	if len(units) != 2 || units[0].Key != "a" || units[1].Key != "b" {
		t.Errorf("Drain: got %v", units)
	}
	if r.Len() != 0 {
		t.Errorf("Len after Drain: got %d", r.Len())
	}
}
