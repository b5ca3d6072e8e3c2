package stream

import "strings"

type Kind string

const (
	MJPEG   Kind = "mjpeg"
	HLS     Kind = "hls"
	MP4     Kind = "mp4"
	Unknown Kind = "unknown"
)

// Classify infers the transport of a stream URL. Matching is case-insensitive and suffix
// checks ignore the query string and fragment.
func Classify(url string) Kind {
	lower := strings.ToLower(strings.TrimSpace(url))
	if lower == "" {
		return Unknown
	}
	path := lower
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}

	switch {
	case strings.HasSuffix(path, ".mjpg"), strings.HasSuffix(path, ".mjpeg"), strings.Contains(lower, "mjpeg"):
		return MJPEG
	case strings.Contains(lower, ".m3u8"), strings.Contains(lower, "hls"):
		return HLS
	case strings.HasSuffix(path, ".mp4"):
		return MP4
	default:
		return Unknown
	}
}
