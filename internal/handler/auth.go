package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"zvision-console/internal/middleware"
	"zvision-console/internal/session"
)

const msgLoginInProgress = "Login already in progress. Please wait."

type AuthHandler struct {
	*Console
}

type loginView struct {
	page
	Error    string
	Username string
}

func (h *AuthHandler) Home(c *gin.Context) {
	if h.resume(c) {
		return
	}
	c.HTML(http.StatusOK, "home.html", page{Title: "Welcome"})
}

func (h *AuthHandler) LoginPage(c *gin.Context) {
	if h.resume(c) {
		return
	}
	view := loginView{page: page{Title: "Log in"}}
	if c.Query("expired") != "" {
		view.Error = session.MsgSessionExpired
	}
	c.HTML(http.StatusOK, "login.html", view)
}

// resume sends a signed-in visitor to the camera list. The credential cookie is rewritten
// first: the edge guard on /cameras only sees the cookie, and a lost cookie would bounce
// the visitor straight back here.
func (h *AuthHandler) resume(c *gin.Context) bool {
	gate := middleware.GateFromContext(c)
	if !gate.IsAuthenticated() {
		return false
	}
	presented, _ := c.Cookie(session.CookieName)
	gate.SyncCookie(h.cookies(c), presented)
	c.Redirect(http.StatusSeeOther, "/cameras")
	return true
}

func (h *AuthHandler) Login(c *gin.Context) {
	gate := middleware.GateFromContext(c)
	username := c.PostForm("username")
	password := c.PostForm("password")

	err := gate.Authenticate(c.Request.Context(), h.cookies(c), username, password)
	if err == nil {
		h.countLogin("success")
		c.Redirect(http.StatusSeeOther, "/cameras")
		return
	}

	view := loginView{page: page{Title: "Log in"}, Username: username}
	status := http.StatusInternalServerError

	var authErr *session.AuthError
	switch {
	case errors.Is(err, session.ErrAuthInProgress):
		h.countLogin("in_progress")
		view.Error = msgLoginInProgress
		status = http.StatusConflict
	case errors.As(err, &authErr):
		h.countLogin(string(authErr.Kind))
		view.Error = authErr.Message
		switch authErr.Kind {
		case session.InvalidCredentials:
			status = http.StatusUnauthorized
		case session.MalformedRequest:
			status = http.StatusBadRequest
		case session.NetworkFailure:
			status = http.StatusBadGateway
		}
	default:
		h.countLogin(string(session.ServerFailure))
		view.Error = session.MsgLoginFailed
	}
	c.HTML(status, "login.html", view)
}

// TooManyAttempts renders the login form for a rate-limited caller.
func (h *AuthHandler) TooManyAttempts(c *gin.Context) {
	h.countLogin("rate_limited")
	c.HTML(http.StatusTooManyRequests, "login.html", loginView{
		page:     page{Title: "Log in"},
		Error:    middleware.MsgTooManyAttempts,
		Username: c.PostForm("username"),
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	gate := middleware.GateFromContext(c)
	if err := gate.Deauthenticate(c.Request.Context(), h.cookies(c)); err != nil {
		middleware.LoggerFromContext(c).Warn("logout left a stored credential behind")
	}
	c.Redirect(http.StatusSeeOther, "/login")
}
