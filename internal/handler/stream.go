package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"zvision-console/internal/backend"
	"zvision-console/internal/detection"
	"zvision-console/internal/middleware"
	"zvision-console/internal/model"
	"zvision-console/internal/stream"
)

type StreamHandler struct {
	*Console
}

type streamView struct {
	page
	CameraID    string
	Camera      model.Camera
	Error       string
	NotFound    bool
	StreamError string
	Playback    stream.Playback
	HasStream   bool
	Detection   detection.State
}

func (h *StreamHandler) Page(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()
	authed := h.backendFor(c)
	view := streamView{page: page{Title: "Live Stream", Authenticated: true}, CameraID: id}

	cam, err := authed.GetCamera(ctx, id)
	if h.sessionExpired(c, err) {
		return
	}
	if err != nil {
		if backend.IsNotFound(err) {
			view.Error = msgCameraNotFound
			view.NotFound = true
			c.HTML(http.StatusNotFound, "stream.html", view)
			return
		}
		middleware.LoggerFromContext(c).Warn("load camera", zap.String("camera", id), zap.Error(err))
		view.Error = msgLoadCameraFailed
		c.HTML(http.StatusBadGateway, "stream.html", view)
		return
	}
	view.Camera = cam

	desc, err := stream.Resolver{Lookup: authed}.Resolve(ctx, cam)
	if h.sessionExpired(c, err) {
		return
	}
	switch {
	case desc.Found():
		view.HasStream = true
		view.Playback = desc.Playback()
	case err != nil:
		middleware.LoggerFromContext(c).Info("stream lookup failed", zap.String("camera", id), zap.Error(err))
		view.StreamError = stream.MsgUnavailable
	default:
		view.StreamError = stream.MsgNoStream
	}

	st, err := h.Board.Refresh(ctx, authed, id)
	if h.sessionExpired(c, err) {
		return
	}
	view.Detection = st
	c.HTML(http.StatusOK, "stream.html", view)
}

type toggleRequest struct {
	Desired string `json:"desired" binding:"required,oneof=on off"`
}

type toggleResponse struct {
	OK      bool            `json:"ok"`
	State   detection.State `json:"state"`
	Title   string          `json:"title,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Toggle starts or stops detection. The answer always carries the state the control
// should show afterwards.
func (h *StreamHandler) Toggle(c *gin.Context) {
	id := c.Param("id")
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "desired must be \"on\" or \"off\""})
		return
	}
	desired := req.Desired == "on"

	st, err := h.Board.Set(c.Request.Context(), h.backendFor(c), id, desired)
	if h.sessionExpired(c, err) {
		h.countToggle(desired, "expired")
		return
	}

	var derr *detection.Error
	switch {
	case err == nil:
		h.countToggle(desired, "ok")
		title, msg := "Detection Stopped", detection.MsgStopped
		if desired {
			title, msg = "Detection Started", detection.MsgStarted
		}
		c.JSON(http.StatusOK, toggleResponse{OK: true, State: st, Title: title, Message: msg})
	case errors.Is(err, detection.ErrBusy):
		h.countToggle(desired, "busy")
		c.JSON(http.StatusConflict, toggleResponse{State: st, Error: "busy"})
	case errors.As(err, &derr) && derr.Kind == detection.NotAvailable:
		h.countToggle(desired, string(derr.Kind))
		c.JSON(http.StatusNotFound, toggleResponse{
			State: st, Title: detection.MsgNotAvailableTitle, Message: derr.Message, Error: string(derr.Kind),
		})
	case errors.As(err, &derr):
		h.countToggle(desired, string(derr.Kind))
		middleware.LoggerFromContext(c).Warn("detection toggle failed",
			zap.String("camera", id), zap.Bool("desired", desired), zap.Error(derr.Err))
		c.JSON(http.StatusBadGateway, toggleResponse{State: st, Title: "Error", Message: derr.Message, Error: string(derr.Kind)})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.countToggle(desired, "cancelled")
		c.Status(499)
	default:
		h.countToggle(desired, "error")
		c.JSON(http.StatusInternalServerError, toggleResponse{State: st, Error: err.Error()})
	}
}
