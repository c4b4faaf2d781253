package channel

// ImageKind tells which source a preview image was taken from.
type ImageKind string

const (
	ImageNone    ImageKind = ""
	ImageLive    ImageKind = "live"
	ImageOffline ImageKind = "offline"
	ImageBanner  ImageKind = "banner"
	ImageProfile ImageKind = "profile"
)

// Image is the single preview image chosen for a channel.
type Image struct {
	Kind ImageKind `json:"kind,omitempty"`
	URL  string    `json:"url,omitempty"`
}

// Status is the resolved state of a channel. The zero value is the safe
// default: offline, unknown identity, no image.
type Status struct {
	Live        bool   `json:"live"`
	DisplayName string `json:"display_name,omitempty"`
	Title       string `json:"title,omitempty"` // stream title, live only
	Image       Image  `json:"image"`
}

// Name returns the display name, or id when none is known.
func (s Status) Name(id string) string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return id
}
