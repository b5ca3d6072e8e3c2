package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"zvision-console/internal/auth"
	"zvision-console/internal/session"
)

// ConsoleCookieName carries the signed console session id.
const ConsoleCookieName = "zvision_sid"

const (
	sessionIDContextKey = "sessionID"
	gateContextKey      = "gate"
)

// ConsoleSession resolves the browser's console session from its signed cookie, minting a
// new one when the cookie is missing or invalid, and loads its gate.
func ConsoleSession(tokens auth.TokenConfig, policy session.CookiePolicy, registry *session.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var sid string
		if raw, err := c.Cookie(ConsoleCookieName); err == nil && raw != "" {
			if claims, err := auth.VerifyToken(raw, tokens); err == nil {
				sid = claims.SessionID
			}
		}
		if sid == "" {
			sid = auth.NewSessionID()
			signed, err := auth.CreateToken(sid, tokens)
			if err != nil {
				LoggerFromContext(c).Error("sign console session")
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			policy.SetCookie(c.Writer, c.Request, ConsoleCookieName, signed)
		}

		c.Set(sessionIDContextKey, sid)
		c.Set(gateContextKey, registry.Gate(c.Request.Context(), sid))
		c.Next()
	}
}

func SessionIDFromContext(c *gin.Context) (string, bool) {
	sid := c.GetString(sessionIDContextKey)
	return sid, sid != ""
}

func GateFromContext(c *gin.Context) *session.Gate {
	if v, ok := c.Get(gateContextKey); ok {
		if g, ok := v.(*session.Gate); ok {
			return g
		}
	}
	return nil
}

// RequireCredentialCookie is the coarse edge check: it only looks for a credential cookie
// or a bearer header, without asking the gate.
func RequireCredentialCookie() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, err := c.Cookie(session.CookieName); err == nil && token != "" {
			c.Next()
			return
		}
		parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && strings.TrimSpace(parts[1]) != "" {
			c.Next()
			return
		}
		denyAnonymous(c)
	}
}

// RequireSession is the per-view check against the gate. It also repairs a credential
// cookie that disagrees with the gate.
func RequireSession(policy session.CookiePolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		gate := GateFromContext(c)
		if gate == nil {
			denyAnonymous(c)
			return
		}
		presented, _ := c.Cookie(session.CookieName)
		gate.SyncCookie(session.ResponseCookies{W: c.Writer, R: c.Request, Policy: policy}, presented)

		if !gate.IsAuthenticated() {
			denyAnonymous(c)
			return
		}
		c.Next()
	}
}

func denyAnonymous(c *gin.Context) {
	if WantsJSON(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		c.Abort()
		return
	}
	c.Redirect(http.StatusSeeOther, "/login")
	c.Abort()
}

// WantsJSON reports whether the caller speaks JSON rather than HTML.
func WantsJSON(c *gin.Context) bool {
	if strings.HasPrefix(c.ContentType(), "application/json") {
		return true
	}
	accept := c.GetHeader("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
