package handler

import (
	"errors"
	"net/http"
	"net/url"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"zvision-console/internal/backend"
	"zvision-console/internal/middleware"
	"zvision-console/internal/model"
)

const (
	msgLoadCamerasFailed = "Failed to load cameras. Please try again."
	msgRegisterFailed    = "Failed to register camera"
	msgCameraNotFound    = "Camera not found"
	msgLoadCameraFailed  = "Failed to load camera details. Please try again."
	msgDeleteFailed      = "Failed to delete camera"
	msgDeleteInProgress  = "This camera is already being deleted."
	msgCameraRegistered  = "Camera registered successfully"
	msgCameraDeleted     = "Camera deleted"
)

type CameraHandler struct {
	*Console

	deleting sync.Map
}

type camerasView struct {
	page
	Cameras       []model.Camera
	Error         string
	Flash         string
	RegisterError string
	Form          model.RegisterCameraRequest
}

type extraRow struct {
	Label string
	Value string
}

type cameraView struct {
	page
	CameraID      string
	Camera        model.Camera
	Extras        []extraRow
	Error         string
	NotFound      bool
	ConfirmDelete bool
	DeleteError   string
}

func (h *CameraHandler) List(c *gin.Context) {
	view := camerasView{page: page{Title: "Cameras", Authenticated: true}}
	switch {
	case c.Query("registered") != "":
		view.Flash = msgCameraRegistered
	case c.Query("deleted") != "":
		view.Flash = msgCameraDeleted
	}

	if !h.loadCameras(c, &view) {
		return
	}
	status := http.StatusOK
	if view.Error != "" {
		status = http.StatusBadGateway
	}
	c.HTML(status, "cameras.html", view)
}

// loadCameras fills view.Cameras or view.Error. It returns false when the request has
// already been answered.
func (h *CameraHandler) loadCameras(c *gin.Context, view *camerasView) bool {
	cams, err := h.backendFor(c).ListCameras(c.Request.Context())
	if h.sessionExpired(c, err) {
		return false
	}
	if err != nil {
		middleware.LoggerFromContext(c).Warn("list cameras", zap.Error(err))
		view.Error = msgLoadCamerasFailed
		return true
	}
	view.Cameras = cams
	return true
}

func (h *CameraHandler) Register(c *gin.Context) {
	req := model.RegisterCameraRequest{
		CameraID: c.PostForm("camera_id"),
		Config: model.CameraConfig{
			Location:  c.PostForm("location"),
			ROI:       c.PostForm("roi"),
			StreamURL: c.PostForm("stream_url"),
		},
	}

	err := h.backendFor(c).RegisterCamera(c.Request.Context(), req)
	if h.sessionExpired(c, err) {
		return
	}
	if err == nil {
		normalized, _ := req.Normalize()
		c.Redirect(http.StatusSeeOther, "/cameras?registered="+url.QueryEscape(normalized.CameraID))
		return
	}

	view := camerasView{page: page{Title: "Cameras", Authenticated: true}, Form: req}
	status := failureStatus(err)
	switch {
	case errors.Is(err, model.ErrCameraIDRequired):
		view.RegisterError = model.ErrCameraIDRequired.Error()
		status = http.StatusBadRequest
	case backend.MessageOf(err) != "":
		view.RegisterError = backend.MessageOf(err)
	default:
		view.RegisterError = msgRegisterFailed
	}
	middleware.LoggerFromContext(c).Info("register camera failed", zap.Error(err))

	if !h.loadCameras(c, &view) {
		return
	}
	c.HTML(status, "cameras.html", view)
}

func (h *CameraHandler) Detail(c *gin.Context) {
	id := c.Param("id")
	view := cameraView{page: page{Title: "Camera " + id, Authenticated: true}, CameraID: id}

	cam, err := h.backendFor(c).GetCamera(c.Request.Context(), id)
	if h.sessionExpired(c, err) {
		return
	}
	if err != nil {
		h.renderCameraError(c, view, err)
		return
	}
	view.Camera = cam
	view.Extras = extras(cam)
	c.HTML(http.StatusOK, "camera.html", view)
}

// Delete removes a camera once the form carries confirm=yes. Without it the detail page
// is shown again with the confirmation prompt.
func (h *CameraHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	authed := h.backendFor(c)
	view := cameraView{page: page{Title: "Camera " + id, Authenticated: true}, CameraID: id, Camera: model.Camera{ID: id}}

	if c.PostForm("confirm") != "yes" {
		cam, err := authed.GetCamera(c.Request.Context(), id)
		if h.sessionExpired(c, err) {
			return
		}
		if err != nil {
			h.renderCameraError(c, view, err)
			return
		}
		view.Camera = cam
		view.Extras = extras(cam)
		view.ConfirmDelete = true
		c.HTML(http.StatusOK, "camera.html", view)
		return
	}

	if _, busy := h.deleting.LoadOrStore(id, struct{}{}); busy {
		view.DeleteError = msgDeleteInProgress
		c.HTML(http.StatusConflict, "camera.html", view)
		return
	}
	defer h.deleting.Delete(id)

	err := authed.DeleteCamera(c.Request.Context(), id)
	if h.sessionExpired(c, err) {
		return
	}
	if err != nil {
		if backend.IsNotFound(err) {
			h.renderCameraError(c, view, err)
			return
		}
		middleware.LoggerFromContext(c).Warn("delete camera", zap.String("camera", id), zap.Error(err))
		view.ConfirmDelete = true
		view.DeleteError = msgDeleteFailed
		c.HTML(http.StatusBadGateway, "camera.html", view)
		return
	}

	h.Board.Forget(id)
	middleware.LoggerFromContext(c).Info("camera deleted", zap.String("camera", id))
	c.Redirect(http.StatusSeeOther, "/cameras?deleted="+url.QueryEscape(id))
}

func (h *CameraHandler) renderCameraError(c *gin.Context, view cameraView, err error) {
	if backend.IsNotFound(err) {
		view.Error = msgCameraNotFound
		view.NotFound = true
		c.HTML(http.StatusNotFound, "camera.html", view)
		return
	}
	middleware.LoggerFromContext(c).Warn("load camera", zap.String("camera", view.CameraID), zap.Error(err))
	view.Error = msgLoadCameraFailed
	c.HTML(http.StatusBadGateway, "camera.html", view)
}

func extras(cam model.Camera) []extraRow {
	keys := cam.ExtraKeys()
	rows := make([]extraRow, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, extraRow{Label: model.HumanizeKey(k), Value: cam.Extra[k].Display()})
	}
	return rows
}
