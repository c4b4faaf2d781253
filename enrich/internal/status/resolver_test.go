package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/twitchpreview/enrich/channel"
)

var fixedNow = time.Unix(1700000000, 0)

func newServer(t *testing.T, handler func(w http.ResponseWriter, login string)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s, want POST", r.Method)
		}
		if r.Header.Get("Client-ID") != "test-client" {
			t.Errorf("Client-ID: got %q", r.Header.Get("Client-ID"))
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		login, _ := req.Variables["login"].(string)
		handler(w, login)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newResolver(srv *httptest.Server) *Resolver {
	return New(Config{
		Endpoint: srv.URL,
		ClientID: "test-client",
		Timeout:  time.Second,
		Rate:     1000,
		Burst:    100,
		Now:      func() time.Time { return fixedNow },
	})
}

func TestResolve_Live(t *testing.T) {
	srv, calls := newServer(t, func(w http.ResponseWriter, login string) {
		if login != "examplechannel" {
			t.Errorf("login: got %q", login)
		}
		w.Write([]byte(`{"data":{"user":{"displayName":"ExampleChannel","profileImageURL":"p.png","offlineImageURL":"o.png","stream":{"id":"1","title":"<b>Speedrun</b> & chill"}}}}`))
	})

	st := newResolver(srv).Resolve(context.Background(), "examplechannel")
	if !st.Live {
		t.Fatal("Live: got false")
	}
	if st.DisplayName != "ExampleChannel" {
		t.Errorf("DisplayName: got %q", st.DisplayName)
	}
	if st.Title != "<b>Speedrun</b> & chill" {
		t.Errorf("Title: got %q, want it verbatim", st.Title)
	}
	want := channel.PreviewURL("examplechannel", fixedNow)
	if st.Image.Kind != channel.ImageLive || st.Image.URL != want {
		t.Errorf("Image: got %+v, want live %q", st.Image, want)
	}
	if calls.Load() != 1 {
		t.Errorf("calls: got %d, want 1", calls.Load())
	}
}

func TestResolve_TitleKeepsAngleBrackets(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, _ string) {
		w.Write([]byte(`{"data":{"user":{"displayName":" <Ex&mple> ","stream":{"id":"1","title":"  Road to <Masters> tonight & I <3 you "}}}}`))
	})

	st := newResolver(srv).Resolve(context.Background(), "examplechannel")
	if want := "Road to <Masters> tonight & I <3 you"; st.Title != want {
		t.Errorf("Title: got %q, want %q", st.Title, want)
	}
	if want := "<Ex&mple>"; st.DisplayName != want {
		t.Errorf("DisplayName: got %q, want %q", st.DisplayName, want)
	}
}

func TestResolve_OfflineFallbackOrder(t *testing.T) {
	cases := []struct {
		body string
		want channel.Image
	}{
		{`{"offlineImageURL":"o.png","bannerImageURL":"b.png","profileImageURL":"p.png"}`, channel.Image{Kind: channel.ImageOffline, URL: "o.png"}},
		{`{"bannerImageURL":"b.png","profileImageURL":"p.png"}`, channel.Image{Kind: channel.ImageBanner, URL: "b.png"}},
		{`{"profileImageURL":"p.png"}`, channel.Image{Kind: channel.ImageProfile, URL: "p.png"}},
		{`{"displayName":"x"}`, channel.Image{}},
	}
	for _, c := range cases {
		srv, _ := newServer(t, func(w http.ResponseWriter, _ string) {
			w.Write([]byte(`{"data":{"user":` + c.body + `}}`))
		})
		st := newResolver(srv).Resolve(context.Background(), "x")
		if st.Live {
			t.Errorf("%s: Live: got true", c.body)
		}
		if st.Image != c.want {
			t.Errorf("%s: Image: got %+v, want %+v", c.body, st.Image, c.want)
		}
	}
}

func TestResolve_SafeDefaults(t *testing.T) {
	cases := map[string]func(w http.ResponseWriter, _ string){
		"no user": func(w http.ResponseWriter, _ string) {
			w.Write([]byte(`{"data":{"user":null}}`))
		},
		"graphql error": func(w http.ResponseWriter, _ string) {
			w.Write([]byte(`{"errors":[{"message":"boom"}]}`))
		},
		"http 500": func(w http.ResponseWriter, _ string) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"bad json": func(w http.ResponseWriter, _ string) {
			w.Write([]byte(`{"data":`))
		},
	}
	for name, h := range cases {
		srv, _ := newServer(t, h)
		st := newResolver(srv).Resolve(context.Background(), "x")
		if st != (channel.Status{}) {
			t.Errorf("%s: got %+v, want zero status", name, st)
		}
	}
}

func TestResolve_TransportFailure(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, _ string) {})
	r := newResolver(srv)
	srv.Close()

	if st := r.Resolve(context.Background(), "x"); st != (channel.Status{}) {
		t.Errorf("got %+v, want zero status", st)
	}
}

func TestResolve_CancelledContext(t *testing.T) {
	srv, calls := newServer(t, func(w http.ResponseWriter, _ string) {
		w.Write([]byte(`{"data":{"user":{"displayName":"x"}}}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if st := newResolver(srv).Resolve(ctx, "x"); st != (channel.Status{}) {
		t.Errorf("got %+v, want zero status", st)
	}
	if calls.Load() != 0 {
		t.Errorf("calls: got %d, want 0", calls.Load())
	}
}
