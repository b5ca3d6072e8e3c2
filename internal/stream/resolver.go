package stream

import (
	"context"
	"sort"

	"zvision-console/internal/backend"
	"zvision-console/internal/model"
)

// Lookup is the backend stream endpoint.
type Lookup interface {
	StreamInfo(ctx context.Context, id string) (model.StreamInfo, error)
}

type Resolver struct {
	Lookup Lookup
}

// Resolve finds a playable URL for cam: the record's own stream_url, then the backend
// stream endpoint, then any auxiliary attribute carrying a nested stream_url. The lookup
// error is returned only when nothing was found; an unauthorized error always is.
func (r Resolver) Resolve(ctx context.Context, cam model.Camera) (Descriptor, error) {
	if cam.StreamURL != "" {
		return NewDescriptor(cam.StreamURL), nil
	}

	var lookupErr error
	if r.Lookup != nil {
		info, err := r.Lookup.StreamInfo(ctx, cam.ID)
		switch {
		case err == nil && info.StreamURL != "":
			return NewDescriptor(info.StreamURL), nil
		case backend.IsUnauthorized(err):
			return Descriptor{}, err
		default:
			lookupErr = err
		}
	}

	if url := NestedStreamURL(cam.Extra); url != "" {
		return NewDescriptor(url), nil
	}
	return Descriptor{}, lookupErr
}

// NestedStreamURL scans attributes in name order for an object, or a string holding an
// encoded object, with a non-empty stream_url.
//
// TODO: drop once the backend always returns stream_url at the top level of a camera.
func NestedStreamURL(attrs map[string]model.Attribute) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fields, ok := attrs[k].Structured()
		if !ok {
			continue
		}
		if url, ok := fields[model.FieldStreamURL]; ok && url.Kind == model.AttrString && url.Text != "" {
			return url.Text
		}
	}
	return ""
}
