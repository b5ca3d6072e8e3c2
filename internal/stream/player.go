package stream

const (
	MsgImageFailed = "Failed to load stream. The camera might be offline or the stream URL is invalid."
	MsgVideoFailed = "Failed to load video stream. The format might be unsupported or the camera is offline."
	MsgHLSFailed   = "Failed to load HLS player"
	MsgNoStream    = "No stream URL available for this camera"
	MsgUnavailable = "Stream information not available"
)

// Descriptor is a resolved stream. A zero Descriptor means no stream was found.
type Descriptor struct {
	URL  string `json:"url"`
	Kind Kind   `json:"kind"`
}

func NewDescriptor(url string) Descriptor {
	if url == "" {
		return Descriptor{}
	}
	return Descriptor{URL: url, Kind: Classify(url)}
}

func (d Descriptor) Found() bool { return d.URL != "" }

// Playback tells a view how to render a descriptor.
type Playback struct {
	Kind         Kind
	Element      string
	URL          string
	UseHLS       bool
	Controls     bool
	Autoplay     bool
	Muted        bool
	PlaysInline  bool
	ErrorMessage string
}

func (d Descriptor) Playback() Playback {
	switch d.Kind {
	case MJPEG:
		return Playback{Kind: MJPEG, Element: "img", URL: d.URL, ErrorMessage: MsgImageFailed}
	case HLS:
		return Playback{
			Kind:         HLS,
			Element:      "video",
			URL:          d.URL,
			UseHLS:       true,
			Controls:     true,
			Autoplay:     true,
			Muted:        true,
			PlaysInline:  true,
			ErrorMessage: MsgHLSFailed,
		}
	default:
		kind := d.Kind
		if kind == "" {
			kind = Unknown
		}
		return Playback{
			Kind:         kind,
			Element:      "video",
			URL:          d.URL,
			Controls:     true,
			Autoplay:     true,
			Muted:        true,
			PlaysInline:  true,
			ErrorMessage: MsgVideoFailed,
		}
	}
}
