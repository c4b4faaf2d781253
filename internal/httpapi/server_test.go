package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/twitchpreview/enrich"
	"github.com/hazyhaar/twitchpreview/enrich/channel"
)

const page = `<html><body><main>
<div class="message_1"><div class="embedFull_3 embed_4"><div class="grid_5">
<div class="embedTitle_7"><a href="https://www.twitch.tv/ExampleChannel">ExampleChannel</a></div>
<div class="embedThumbnail_9"><img src="https://static-cdn.example/thumb.jpg"></div>
</div></div></div>
</main></body></html>`

type stubResolver struct {
	calls atomic.Int32
}

func (s *stubResolver) Resolve(_ context.Context, id string) channel.Status {
	s.calls.Add(1)
	return channel.Status{
		Live:        true,
		DisplayName: "ExampleChannel",
		Title:       "speedrun",
		Image:       channel.Image{Kind: channel.ImageLive, URL: channel.PreviewURL(id, time.Unix(0, 0))},
	}
}

func newServer(t *testing.T) (*httptest.Server, *stubResolver) {
	t.Helper()
	cfg := enrich.DefaultConfig()
	cfg.Enrich.Settle = 5 * time.Millisecond
	cfg.Enrich.MaxSettle = 50 * time.Millisecond
	cfg.Server.MaxBody = 1 << 16

	res := &stubResolver{}
	ts := httptest.NewServer(New(cfg, WithResolver(res)).Handler())
	t.Cleanup(ts.Close)
	return ts, res
}

func TestHealthz(t *testing.T) {
	ts, _ := newServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing request id")
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
}

func TestEnrich(t *testing.T) {
	ts, res := newServer(t)

	resp, err := http.Post(ts.URL+"/v1/enrich?parent=chat.example.org", "text/html", strings.NewReader(page))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Twitch-Units"); got != "1" {
		t.Fatalf("units = %q, want 1", got)
	}

	var b strings.Builder
	if _, err := b.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	body := b.String()
	for _, want := range []string{
		"twitch-video-preview",
		"data-twitch-unit",
		"speedrun",
		channel.PreviewURL("examplechannel", time.Unix(0, 0)),
	} {
		if !strings.Contains(body, want) {
			t.Errorf("output lacks %q", want)
		}
	}
	if res.calls.Load() != 1 {
		t.Errorf("resolver calls = %d", res.calls.Load())
	}
}

func TestEnrich_TooLarge(t *testing.T) {
	ts, _ := newServer(t)

	big := "<html><body>" + strings.Repeat("<p>x</p>", 1<<14) + "</body></html>"
	resp, err := http.Post(ts.URL+"/v1/enrich", "text/html", strings.NewReader(big))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status %d, want 413", resp.StatusCode)
	}
}

func TestEmbeds(t *testing.T) {
	ts, _ := newServer(t)

	msg := `{"id":"m1","embeds":[
		{"url":"https://twitch.tv/examplechannel","title":"ExampleChannel"},
		{"url":"https://twitch.tv/examplechannel/clip/FunnyClip","title":"clip"}
	]}`
	resp, err := http.Post(ts.URL+"/v1/embeds?parent=chat.example.org", "application/json", strings.NewReader(msg))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var out struct {
		ID      string `json:"id"`
		Entries []struct {
			Embed struct {
				URL string `json:"url"`
			} `json:"embed"`
			Node map[string]any `json:"node"`
		} `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.ID != "m1" || len(out.Entries) != 2 {
		t.Fatalf("got %+v", out)
	}
	first := out.Entries[0].Node
	if first["channel"] != "examplechannel" || first["state"] != "populated" || first["live"] != true {
		t.Errorf("preview entry = %v", first)
	}
	if _, ok := out.Entries[1].Node["state"]; ok {
		t.Errorf("clip was replaced: %v", out.Entries[1].Node)
	}
}

func TestMatch(t *testing.T) {
	ts, _ := newServer(t)

	cases := []struct {
		url    string
		valid  bool
		reason channel.Reason
	}{
		{"https://twitch.tv/ExampleChannel", true, channel.ReasonNone},
		{"https://twitch.tv/directory", false, channel.ReasonReserved},
		{"https://twitch.tv/examplechannel/videos", false, channel.ReasonSubPath},
	}
	for _, c := range cases {
		resp, err := http.Get(ts.URL + "/v1/match?url=" + c.url)
		if err != nil {
			t.Fatal(err)
		}
		var ref channel.Reference
		err = json.NewDecoder(resp.Body).Decode(&ref)
		resp.Body.Close()
		if err != nil {
			t.Fatal(err)
		}
		if ref.Valid != c.valid || ref.Reason != c.reason {
			t.Errorf("%s: got %+v", c.url, ref)
		}
	}

	resp, err := http.Get(ts.URL + "/v1/match")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing url: status %d", resp.StatusCode)
	}
}

func TestStatus(t *testing.T) {
	ts, _ := newServer(t)

	resp, err := http.Get(ts.URL + "/v1/status/ExampleChannel?parent=chat.example.org")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Channel != "examplechannel" || !out.Status.Live {
		t.Fatalf("got %+v", out)
	}
	if out.Player != channel.PlayerURL("examplechannel", "chat.example.org") {
		t.Errorf("player = %s", out.Player)
	}

	resp2, err := http.Get(ts.URL + "/v1/status/directory")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("reserved: status %d", resp2.StatusCode)
	}
}
