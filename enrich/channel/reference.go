// Package channel defines the value types shared by every stage of the
// enrichment pipeline: the parsed channel reference, the resolved channel
// status, and the URL templates derived from a channel identifier.
//
// Everything here is pure. No I/O, no logging.
package channel

import (
	"regexp"
	"strings"
)

// Reason explains why a reference was not accepted.
type Reason string

const (
	ReasonNone     Reason = ""         // accepted
	ReasonNoMatch  Reason = "no_match" // not a channel link at all
	ReasonSubPath  Reason = "sub_path" // points below the channel (clips, videos, ...)
	ReasonReserved Reason = "reserved" // site-wide page, not a channel
)

// Reference is the result of classifying one link or reference text.
type Reference struct {
	Raw    string `json:"raw"`
	ID     string `json:"id,omitempty"` // lower-case channel login
	Valid  bool   `json:"valid"`
	Reason Reason `json:"reason,omitempty"`
}

var (
	hostPattern    = regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.|m\.)?twitch\.tv/(.*)$`)
	segmentPattern = regexp.MustCompile(`^\w+$`)
)

// reserved top-level paths served by the site itself.
var reserved = map[string]bool{
	"directory":     true,
	"videos":        true,
	"settings":      true,
	"downloads":     true,
	"search":        true,
	"p":             true,
	"jobs":          true,
	"turbo":         true,
	"subscriptions": true,
	"inventory":     true,
	"wallet":        true,
	"friends":       true,
	"messages":      true,
	"payments":      true,
	"prime":         true,
	"drops":         true,
	"store":         true,
	"login":         true,
	"signup":        true,
	"following":     true,
	"popout":        true,
	"embed":         true,
	"moderator":     true,
	"team":          true,
	"u":             true,
}

// Reserved reports whether id names a site-wide page rather than a channel.
func Reserved(id string) bool {
	return reserved[strings.ToLower(id)]
}

// Parse classifies a reference. It always returns a Reference; Valid is true
// only for a bare channel link that is not a reserved path.
func Parse(raw string) Reference {
	ref := Reference{Raw: raw}

	m := hostPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil || m[1] == "" || strings.ContainsAny(m[1], "?#") {
		ref.Reason = ReasonNoMatch
		return ref
	}

	path := strings.TrimSuffix(m[1], "/")
	segments := strings.Split(path, "/")
	if !segmentPattern.MatchString(segments[0]) {
		ref.Reason = ReasonNoMatch
		return ref
	}
	if len(segments) > 1 {
		ref.Reason = ReasonSubPath
		return ref
	}

	id := strings.ToLower(segments[0])
	if reserved[id] {
		ref.Reason = ReasonReserved
		return ref
	}

	ref.ID = id
	ref.Valid = true
	return ref
}

// Match returns the reference and true when raw denotes an enrichable channel.
func Match(raw string) (Reference, bool) {
	ref := Parse(raw)
	return ref, ref.Valid
}
