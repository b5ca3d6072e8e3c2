package stream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"zvision-console/internal/backend"
	"zvision-console/internal/model"
)

func TestClassify(t *testing.T) {
	cases := map[string]Kind{
		"http://cam/feed.mjpg":           MJPEG,
		"http://cam/video.MJPEG":         MJPEG,
		"http://cam/mjpeg/live":          MJPEG,
		"http://cam/feed.mjpg?token=abc": MJPEG,
		"http://cam/live/cam.m3u8":       HLS,
		"http://cam/HLS/index":           HLS,
		"http://cam/clip.mp4":            MP4,
		"http://cam/clip.mp4#t=10":       MP4,
		"http://cam/live":                Unknown,
		"rtsp://x":                       Unknown,
		"":                               Unknown,
	}
	for url, want := range cases {
		if got := Classify(url); got != want {
			t.Fatalf("Classify(%q) = %s, want %s", url, got, want)
		}
	}
}

func TestPlayback(t *testing.T) {
	mjpeg := NewDescriptor("http://cam/feed.mjpg").Playback()
	if mjpeg.Element != "img" || mjpeg.ErrorMessage != MsgImageFailed {
		t.Fatalf("unexpected mjpeg playback %+v", mjpeg)
	}

	hls := NewDescriptor("http://cam/cam.m3u8").Playback()
	if hls.Element != "video" || !hls.UseHLS || hls.ErrorMessage != MsgHLSFailed {
		t.Fatalf("unexpected hls playback %+v", hls)
	}

	unknown := NewDescriptor("http://cam/live").Playback()
	if unknown.Element != "video" || unknown.UseHLS || !unknown.Controls || !unknown.Autoplay || !unknown.Muted || !unknown.PlaysInline {
		t.Fatalf("unexpected native playback %+v", unknown)
	}
	if unknown.ErrorMessage != MsgVideoFailed {
		t.Fatalf("unexpected error message %q", unknown.ErrorMessage)
	}
}

type fakeLookup struct {
	info  model.StreamInfo
	err   error
	calls int
}

func (f *fakeLookup) StreamInfo(context.Context, string) (model.StreamInfo, error) {
	f.calls++
	return f.info, f.err
}

func TestResolve_PrefersRecordURL(t *testing.T) {
	lookup := &fakeLookup{info: model.StreamInfo{StreamURL: "http://other"}}
	d, err := Resolver{Lookup: lookup}.Resolve(context.Background(), model.Camera{ID: "c", StreamURL: "http://cam/feed.mjpg"})
	if err != nil || d.URL != "http://cam/feed.mjpg" || d.Kind != MJPEG {
		t.Fatalf("unexpected descriptor %+v %v", d, err)
	}
	if lookup.calls != 0 {
		t.Fatalf("expected no lookup")
	}
}

func TestResolve_FallsBackToLookup(t *testing.T) {
	lookup := &fakeLookup{info: model.StreamInfo{StreamURL: "http://cam/cam.m3u8"}}
	d, err := Resolver{Lookup: lookup}.Resolve(context.Background(), model.Camera{ID: "c"})
	if err != nil || d.Kind != HLS {
		t.Fatalf("unexpected descriptor %+v %v", d, err)
	}
}

func TestResolve_NullRecordURLUsesLookup(t *testing.T) {
	cam, err := model.DecodeCamera("c1", json.RawMessage(`{"location":null,"stream_url":null,"meta":{"stream_url":"rtsp://x"}}`))
	if err != nil {
		t.Fatalf("DecodeCamera: %v", err)
	}
	lookup := &fakeLookup{info: model.StreamInfo{StreamURL: "http://cam/live.m3u8"}}
	d, err := Resolver{Lookup: lookup}.Resolve(context.Background(), cam)
	if err != nil || d.URL != "http://cam/live.m3u8" || d.Kind != HLS {
		t.Fatalf("unexpected descriptor %+v %v", d, err)
	}
	if lookup.calls != 1 {
		t.Fatalf("expected one lookup, got %d", lookup.calls)
	}

	d, err = Resolver{Lookup: &fakeLookup{}}.Resolve(context.Background(), cam)
	if err != nil || d.URL != "rtsp://x" {
		t.Fatalf("expected nested url, got %+v %v", d, err)
	}
}

func TestResolve_NestedAttributes(t *testing.T) {
	notFound := &backend.Error{Kind: backend.KindNotFound, Status: 404}
	cases := map[string]model.Attribute{
		"structured": model.ObjectAttribute(map[string]model.Attribute{"stream_url": model.StringAttribute("rtsp://x")}),
		"textual":    model.StringAttribute(`{"stream_url":"rtsp://x"}`),
	}
	for name, attr := range cases {
		t.Run(name, func(t *testing.T) {
			cam := model.Camera{ID: "c", Extra: map[string]model.Attribute{
				"broken": model.StringAttribute("{not json"),
				"meta":   attr,
			}}
			d, err := Resolver{Lookup: &fakeLookup{err: notFound}}.Resolve(context.Background(), cam)
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if d.URL != "rtsp://x" {
				t.Fatalf("expected rtsp://x, got %q", d.URL)
			}
		})
	}
}

func TestResolve_NothingFound(t *testing.T) {
	d, err := Resolver{Lookup: &fakeLookup{}}.Resolve(context.Background(), model.Camera{ID: "c"})
	if err != nil || d.Found() {
		t.Fatalf("expected empty descriptor, got %+v %v", d, err)
	}

	lookupErr := &backend.Error{Kind: backend.KindServer, Status: 500}
	_, err = Resolver{Lookup: &fakeLookup{err: lookupErr}}.Resolve(context.Background(), model.Camera{ID: "c"})
	if !errors.Is(err, lookupErr) {
		t.Fatalf("expected lookup error, got %v", err)
	}
}

func TestResolve_UnauthorizedAlwaysReturned(t *testing.T) {
	unauthorized := &backend.Error{Kind: backend.KindUnauthorized, Status: 401}
	cam := model.Camera{ID: "c", Extra: map[string]model.Attribute{
		"meta": model.StringAttribute(`{"stream_url":"rtsp://x"}`),
	}}
	_, err := Resolver{Lookup: &fakeLookup{err: unauthorized}}.Resolve(context.Background(), cam)
	if !backend.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}
