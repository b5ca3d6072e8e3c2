package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"zvision-console/internal/backend"
	"zvision-console/internal/detection"
	"zvision-console/internal/metrics"
	"zvision-console/internal/middleware"
	"zvision-console/internal/session"
)

// Console holds what every view needs.
type Console struct {
	Backend *backend.Client
	Board   *detection.Board
	Cookies session.CookiePolicy
	Metrics *metrics.Metrics
}

// page carries the fields the shared layout reads.
type page struct {
	Title         string
	Authenticated bool
}

func (h *Console) cookies(c *gin.Context) session.ResponseCookies {
	return session.ResponseCookies{W: c.Writer, R: c.Request, Policy: h.Cookies}
}

// backendFor returns a backend client authenticated as the request's session. A 401 on
// it expires the session and clears the response's credential cookie.
func (h *Console) backendFor(c *gin.Context) *backend.Client {
	gate := middleware.GateFromContext(c)
	return h.Backend.WithCredentials(gate.For(c.Request.Context(), h.cookies(c)))
}

// sessionExpired finishes the request when err is a backend 401.
func (h *Console) sessionExpired(c *gin.Context, err error) bool {
	if !backend.IsUnauthorized(err) {
		return false
	}
	middleware.LoggerFromContext(c).Info("backend rejected credential, session ended")
	if middleware.WantsJSON(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": session.MsgSessionExpired})
	} else {
		c.Redirect(http.StatusSeeOther, "/login?expired=1")
	}
	return true
}

// failureStatus maps a backend failure to the status of the rendered error page.
func failureStatus(err error) int {
	switch backend.KindOf(err) {
	case backend.KindNotFound:
		return http.StatusNotFound
	case backend.KindBadRequest, backend.KindRequest, backend.KindRejected:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func (h *Console) countLogin(outcome string) {
	if h.Metrics != nil {
		h.Metrics.LoginOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (h *Console) countToggle(desired bool, outcome string) {
	if h.Metrics != nil {
		d := "off"
		if desired {
			d = "on"
		}
		h.Metrics.DetectionToggles.WithLabelValues(d, outcome).Inc()
	}
}
