package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"zvision-console/internal/model"
)

// ListCameras returns every registered camera ordered by id.
func (c *Client) ListCameras(ctx context.Context) ([]model.Camera, error) {
	var raw map[string]json.RawMessage
	if err := c.do(ctx, call{method: http.MethodGet, route: "/cameras"}, &raw); err != nil {
		return nil, err
	}

	cameras := make([]model.Camera, 0, len(raw))
	for id, record := range raw {
		cam, err := model.DecodeCamera(id, record)
		if err != nil {
			return nil, &Error{Kind: KindServer, Status: http.StatusOK, Message: fmt.Sprintf("malformed camera %q", id), Err: err}
		}
		cameras = append(cameras, cam)
	}
	sort.Slice(cameras, func(i, j int) bool { return cameras[i].ID < cameras[j].ID })
	return cameras, nil
}

func (c *Client) GetCamera(ctx context.Context, id string) (model.Camera, error) {
	var raw json.RawMessage
	err := c.do(ctx, call{
		method: http.MethodGet,
		route:  "/cameras/{id}",
		params: map[string]string{"id": id},
	}, &raw)
	if err != nil {
		return model.Camera{}, err
	}
	if len(raw) == 0 {
		return model.Camera{ID: id, Extra: map[string]model.Attribute{}}, nil
	}
	cam, err := model.DecodeCamera(id, raw)
	if err != nil {
		return model.Camera{}, &Error{Kind: KindServer, Status: http.StatusOK, Message: "malformed camera", Err: err}
	}
	return cam, nil
}

// RegisterCamera normalizes and submits a registration. A blank id never reaches the
// backend.
func (c *Client) RegisterCamera(ctx context.Context, req model.RegisterCameraRequest) error {
	req, err := req.Normalize()
	if err != nil {
		return err
	}
	return c.do(ctx, call{method: http.MethodPost, route: "/cameras/register", body: req}, nil)
}

func (c *Client) DeleteCamera(ctx context.Context, id string) error {
	return c.do(ctx, call{
		method: http.MethodDelete,
		route:  "/cameras/{id}",
		params: map[string]string{"id": id},
	}, nil)
}
