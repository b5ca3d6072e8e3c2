package backend

import (
	"context"
	"net/http"

	"zvision-console/internal/model"
)

func (c *Client) StreamInfo(ctx context.Context, id string) (model.StreamInfo, error) {
	var info model.StreamInfo
	err := c.do(ctx, call{
		method: http.MethodGet,
		route:  "/stream/{id}",
		params: map[string]string{"id": id},
	}, &info)
	return info, err
}

func (c *Client) DetectionStatus(ctx context.Context, id string) (model.DetectionStatus, error) {
	var status model.DetectionStatus
	err := c.do(ctx, call{
		method: http.MethodGet,
		route:  "/cameras/{id}/detection/status",
		params: map[string]string{"id": id},
	}, &status)
	return status, err
}

// SetDetection starts or stops detection on a camera.
func (c *Client) SetDetection(ctx context.Context, id string, running bool) error {
	route := "/cameras/{id}/detection/stop"
	if running {
		route = "/cameras/{id}/detection/start"
	}
	return c.do(ctx, call{
		method: http.MethodPost,
		route:  route,
		params: map[string]string{"id": id},
	}, nil)
}
