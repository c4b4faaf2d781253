package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceNames maps CDP resource types to configuration names.
var resourceNames = map[proto.NetworkResourceType]string{
	proto.NetworkResourceTypeImage:      "images",
	proto.NetworkResourceTypeFont:       "fonts",
	proto.NetworkResourceTypeMedia:      "media",
	proto.NetworkResourceTypeStylesheet: "stylesheets",
}

// blockSet normalises the configured resource names.
func blockSet(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			set[t] = true
		}
	}
	return set
}

// blocked reports whether a request of type rt is refused. Unmapped types
// are matched by their lower-cased CDP name.
func blocked(set map[string]bool, rt proto.NetworkResourceType) bool {
	if name, ok := resourceNames[rt]; ok {
		return set[name]
	}
	return set[strings.ToLower(string(rt))]
}

// blockResources hijacks every request on page and fails the blocked ones.
// The returned router must be stopped when the page closes.
func blockResources(page *rod.Page, types []string) (*rod.HijackRouter, error) {
	set := blockSet(types)
	router := page.HijackRequests()
	if err := router.Add("*", "", func(h *rod.Hijack) {
		if blocked(set, h.Request.Type()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	}); err != nil {
		return nil, err
	}
	go router.Run()
	return router, nil
}
