package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/twitchpreview/enrich"
	"github.com/hazyhaar/twitchpreview/enrich/channel"
	"github.com/hazyhaar/twitchpreview/enrich/dom/htmldom"
	"github.com/hazyhaar/twitchpreview/enrich/intercept"
)

var (
	errMissingURL     = errors.New("missing url parameter")
	errInvalidChannel = errors.New("not a channel id")
)

func (s *Server) enricher(r *http.Request) *enrich.Enricher {
	opts := []enrich.Option{
		enrich.WithLogger(loggerFrom(r.Context())),
		enrich.WithResolver(s.resolver),
	}
	if parent := r.URL.Query().Get("parent"); parent != "" {
		opts = append(opts, enrich.WithPlayerParent(parent))
	}
	return enrich.New(s.cfg, opts...)
}

// handleEnrich enriches an HTML document and returns it with previews
// painted and populated.
// POST /v1/enrich?parent=host
func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	log := loggerFrom(r.Context())

	doc, err := htmldom.Parse(r.Body)
	if err != nil {
		writeError(w, bodyStatus(err), fmt.Errorf("parse html: %w", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.settleTimeout())
	defer cancel()

	e := s.enricher(r)
	if err := e.Activate(ctx, doc); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer func() {
		if err := e.Deactivate(); err != nil {
			log.Warn("httpapi: deactivate", "error", err)
		}
	}()

	if err := e.Settled(ctx); err != nil {
		writeError(w, http.StatusGatewayTimeout, fmt.Errorf("settle: %w", err))
		return
	}

	out := doc.String()
	units := e.Units()
	log.Info("httpapi: enriched", "units", units, "bytes", len(out))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Twitch-Units", strconv.Itoa(units))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

// embedsResponse is the rendered entry list of one message.
type embedsResponse struct {
	ID      string                 `json:"id"`
	Entries []intercept.Descriptor `json:"entries"`
}

// handleEmbeds runs a message's embed list through the render interceptor
// and returns it with matched embeds replaced by populated previews.
// POST /v1/embeds?parent=host
func (s *Server) handleEmbeds(w http.ResponseWriter, r *http.Request) {
	log := loggerFrom(r.Context())

	var msg intercept.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, bodyStatus(err), fmt.Errorf("decode message: %w", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.settleTimeout())
	defer cancel()

	slot := intercept.NewSlot(func(_ context.Context, m intercept.Message) []intercept.Descriptor {
		out := make([]intercept.Descriptor, len(m.Embeds))
		for i := range m.Embeds {
			out[i] = intercept.Descriptor{Embed: &m.Embeds[i], Node: m.Embeds[i]}
		}
		return out
	})

	e := s.enricher(r)
	if err := e.Intercept(ctx, slot, nil); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer func() {
		if err := e.Deactivate(); err != nil {
			log.Warn("httpapi: deactivate", "error", err)
		}
	}()

	// The first render starts the lookups; the second picks up their results.
	slot.Render(ctx, msg)
	if err := e.Settled(ctx); err != nil {
		writeError(w, http.StatusGatewayTimeout, fmt.Errorf("settle: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, embedsResponse{ID: msg.ID, Entries: slot.Render(ctx, msg)})
}

// handleMatch classifies a link.
// GET /v1/match?url=...
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		writeError(w, http.StatusBadRequest, errMissingURL)
		return
	}
	writeJSON(w, http.StatusOK, channel.Parse(raw))
}

// statusResponse carries a resolved status and the URLs derived from it.
type statusResponse struct {
	Channel string         `json:"channel"`
	Status  channel.Status `json:"status"`
	Page    string         `json:"page"`
	Player  string         `json:"player"`
}

// handleStatus resolves one channel.
// GET /v1/status/{channel}?parent=host
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ref, ok := channel.Match("twitch.tv/" + chi.URLParam(r, "channel"))
	if !ok {
		writeError(w, http.StatusBadRequest, errInvalidChannel)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Status.Timeout+time.Second)
	defer cancel()

	parent := r.URL.Query().Get("parent")
	if parent == "" {
		parent = s.cfg.Enrich.PlayerParent
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Channel: ref.ID,
		Status:  s.resolver.Resolve(ctx, ref.ID),
		Page:    channel.PageURL(ref.ID),
		Player:  channel.PlayerURL(ref.ID, parent),
	})
}
