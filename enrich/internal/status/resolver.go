// Package status resolves the live state and imagery of a channel through
// the public GraphQL endpoint.
//
// Resolve never fails: any transport, status or decoding problem yields the
// zero channel.Status. There is no retry and no cache; outbound queries are
// only paced by a token bucket shared by every caller of one Resolver.
package status

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hazyhaar/twitchpreview/enrich/channel"
)

const (
	DefaultEndpoint = "https://gql.twitch.tv/gql"
	// DefaultClientID is the public client id of the web player.
	DefaultClientID = "kimne78kjlxcf1kwn2hfmsvj8pkkpo"
	DefaultTimeout  = 5 * time.Second
	DefaultRate     = 10 // queries per second
	DefaultBurst    = 5

	maxResponse = 1 << 20
)

const query = `query ChannelPreview($login: String!) {
  user(login: $login) {
    displayName
    profileImageURL(width: 300)
    offlineImageURL
    bannerImageURL
    stream { id title }
  }
}`

// Config configures a Resolver.
type Config struct {
	Endpoint string
	ClientID string
	Timeout  time.Duration
	// Rate is the sustained number of queries per second. Burst is the
	// bucket size.
	Rate  float64
	Burst int

	Client *http.Client
	Logger *slog.Logger
	// Now stamps the live thumbnail cache buster.
	Now func() time.Time
}

func (c *Config) defaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Rate <= 0 {
		c.Rate = DefaultRate
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: c.Timeout}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Resolver queries channel status.
type Resolver struct {
	cfg     Config
	limiter *rate.Limiter
}

// New creates a Resolver.
func New(cfg Config) *Resolver {
	cfg.defaults()
	return &Resolver{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
	}
}

// Resolve issues one query for id. It returns the zero Status on failure.
func (r *Resolver) Resolve(ctx context.Context, id string) channel.Status {
	u, err := r.fetch(ctx, id)
	if err != nil {
		r.cfg.Logger.Debug("status: resolve failed", "channel", id, "error", err)
		return channel.Status{}
	}
	if u == nil {
		return channel.Status{}
	}
	return r.status(id, u)
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type response struct {
	Data struct {
		User *user `json:"user"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type user struct {
	DisplayName     string  `json:"displayName"`
	ProfileImageURL string  `json:"profileImageURL"`
	OfflineImageURL string  `json:"offlineImageURL"`
	BannerImageURL  string  `json:"bannerImageURL"`
	Stream          *stream `json:"stream"`
}

type stream struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// fetch returns the user object, or nil when the service knows no such user.
func (r *Resolver) fetch(ctx context.Context, id string) (*user, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("status: pace: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(request{Query: query, Variables: map[string]any{"login": id}})
	if err != nil {
		return nil, fmt.Errorf("status: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("status: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Client-ID", r.cfg.ClientID)

	resp, err := r.cfg.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status: http %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return nil, fmt.Errorf("status: read body: %w", err)
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("status: json decode: %w", err)
	}
	if out.Data.User == nil && len(out.Errors) > 0 {
		return nil, fmt.Errorf("status: query: %s", out.Errors[0].Message)
	}
	return out.Data.User, nil
}

func (r *Resolver) status(id string, u *user) channel.Status {
	st := channel.Status{
		Live:        u.Stream != nil,
		DisplayName: strings.TrimSpace(u.DisplayName),
	}
	if st.Live {
		st.Title = strings.TrimSpace(u.Stream.Title)
	}
	st.Image = pickImage(id, st.Live, u, r.cfg.Now())
	return st
}

// pickImage walks the preference order: live thumbnail, offline image,
// banner, profile picture.
func pickImage(id string, live bool, u *user, now time.Time) channel.Image {
	switch {
	case live:
		return channel.Image{Kind: channel.ImageLive, URL: channel.PreviewURL(id, now)}
	case u.OfflineImageURL != "":
		return channel.Image{Kind: channel.ImageOffline, URL: u.OfflineImageURL}
	case u.BannerImageURL != "":
		return channel.Image{Kind: channel.ImageBanner, URL: u.BannerImageURL}
	case u.ProfileImageURL != "":
		return channel.Image{Kind: channel.ImageProfile, URL: u.ProfileImageURL}
	}
	return channel.Image{}
}
