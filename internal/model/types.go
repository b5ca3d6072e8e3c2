package model

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// Known camera record keys. Everything else lands in Camera.Extra.
const (
	FieldID        = "id"
	FieldLocation  = "location"
	FieldROI       = "roi"
	FieldStreamURL = "stream_url"
	FieldStatus    = "status"
	FieldLastSeen  = "last_seen"
)

var knownCameraFields = map[string]struct{}{
	FieldID:        {},
	FieldLocation:  {},
	FieldROI:       {},
	FieldStreamURL: {},
	FieldStatus:    {},
	FieldLastSeen:  {},
}

type Camera struct {
	ID        string
	Location  string
	ROI       string
	StreamURL string
	Status    string
	LastSeen  string
	Extra     map[string]Attribute
}

// DecodeCamera builds a camera from a backend object. The id argument wins over an id
// embedded in the object, since list responses key records by id.
func DecodeCamera(id string, raw json.RawMessage) (Camera, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Camera{}, err
	}

	cam := Camera{ID: id, Extra: make(map[string]Attribute)}
	for key, value := range fields {
		attr, err := ParseAttribute(value)
		if err != nil {
			return Camera{}, err
		}
		if _, known := knownCameraFields[key]; known && attr.Kind == AttrNull {
			continue
		}
		switch key {
		case FieldID:
			if cam.ID == "" {
				cam.ID = attr.Display()
			}
		case FieldLocation:
			cam.Location = attr.Display()
		case FieldROI:
			cam.ROI = attr.Display()
		case FieldStreamURL:
			cam.StreamURL = attr.Display()
		case FieldStatus:
			cam.Status = attr.Display()
		case FieldLastSeen:
			cam.LastSeen = attr.Display()
		default:
			cam.Extra[key] = attr
		}
	}
	if cam.ID == "" {
		return Camera{}, errors.New("camera record without id")
	}
	return cam, nil
}

func (c *Camera) UnmarshalJSON(data []byte) error {
	cam, err := DecodeCamera(c.ID, data)
	if err != nil {
		return err
	}
	*c = cam
	return nil
}

func (c Camera) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+6)
	for key, attr := range c.Extra {
		out[key] = attr
	}
	out[FieldID] = c.ID
	setIfNotEmpty(out, FieldLocation, c.Location)
	setIfNotEmpty(out, FieldROI, c.ROI)
	setIfNotEmpty(out, FieldStreamURL, c.StreamURL)
	setIfNotEmpty(out, FieldStatus, c.Status)
	setIfNotEmpty(out, FieldLastSeen, c.LastSeen)
	return json.Marshal(out)
}

func setIfNotEmpty(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

// ExtraKeys returns the pass-through attribute names in display order.
func (c Camera) ExtraKeys() []string {
	keys := lo.Filter(lo.Keys(c.Extra), func(key string, _ int) bool {
		_, known := knownCameraFields[key]
		return !known
	})
	sort.Strings(keys)
	return keys
}

// Online reports whether the backend marks the camera as online.
func (c Camera) Online() bool {
	return strings.EqualFold(c.Status, "online")
}

// HumanizeKey turns "frame_rate" into "Frame rate".
func HumanizeKey(key string) string {
	if key == "" {
		return ""
	}
	spaced := strings.ReplaceAll(key, "_", " ")
	return strings.ToUpper(spaced[:1]) + spaced[1:]
}

type CameraConfig struct {
	Location  string `json:"location,omitempty"`
	ROI       string `json:"roi,omitempty"`
	StreamURL string `json:"stream_url,omitempty"`
}

type RegisterCameraRequest struct {
	CameraID string       `json:"camera_id"`
	Config   CameraConfig `json:"camera_config"`
}

var ErrCameraIDRequired = errors.New("Camera ID is required")

// Normalize trims the fields and rejects a blank camera id.
func (r RegisterCameraRequest) Normalize() (RegisterCameraRequest, error) {
	r.CameraID = strings.TrimSpace(r.CameraID)
	r.Config.Location = strings.TrimSpace(r.Config.Location)
	r.Config.ROI = strings.TrimSpace(r.Config.ROI)
	r.Config.StreamURL = strings.TrimSpace(r.Config.StreamURL)
	if r.CameraID == "" {
		return r, ErrCameraIDRequired
	}
	return r, nil
}

type StreamInfo struct {
	StreamURL  string  `json:"stream_url"`
	Status     string  `json:"status"`
	Resolution string  `json:"resolution,omitempty"`
	Format     string  `json:"format,omitempty"`
	FPS        float64 `json:"fps,omitempty"`
}

type DetectionStatus struct {
	Status      string `json:"status"`
	LastUpdated string `json:"last_updated,omitempty"`
}

const (
	DetectionRunning = "running"
	DetectionStopped = "stopped"
	DetectionError   = "error"
)

func (s DetectionStatus) Running() bool {
	return s.Status == DetectionRunning
}
