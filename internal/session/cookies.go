package session

import (
	"net/http"
	"strings"
	"time"
)

// CookieName carries the browser-side mirror of the credential.
const CookieName = "auth-token"

// CookieMirror is the cookie copy of the credential. Implementations must tolerate
// repeated calls.
type CookieMirror interface {
	SetCredential(token string)
	ClearCredential()
}

type CookiePolicy struct {
	SameSite    http.SameSite
	ForceSecure bool
	MaxAge      time.Duration
}

func DefaultCookiePolicy() CookiePolicy {
	return CookiePolicy{SameSite: http.SameSiteStrictMode, MaxAge: 7 * 24 * time.Hour}
}

func (p CookiePolicy) Secure(r *http.Request) bool {
	return p.ForceSecure || isSecureRequest(r)
}

// SetCookie writes a named cookie under the policy.
func (p CookiePolicy) SetCookie(w http.ResponseWriter, r *http.Request, name, value string) {
	sameSite := p.SameSite
	if sameSite == 0 {
		sameSite = http.SameSiteStrictMode
	}
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   p.Secure(r),
		SameSite: sameSite,
	}
	if p.MaxAge > 0 {
		cookie.MaxAge = int(p.MaxAge.Seconds())
		cookie.Expires = time.Now().Add(p.MaxAge).UTC()
	}
	http.SetCookie(w, cookie)
}

// ClearCookie expires a named cookie.
func (p CookiePolicy) ClearCookie(w http.ResponseWriter, r *http.Request, name string) {
	sameSite := p.SameSite
	if sameSite == 0 {
		sameSite = http.SameSiteStrictMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.Secure(r),
		SameSite: sameSite,
	})
}

// ResponseCookies mirrors the credential into the auth-token cookie of one response.
type ResponseCookies struct {
	W      http.ResponseWriter
	R      *http.Request
	Policy CookiePolicy
}

func (c ResponseCookies) SetCredential(token string) {
	c.Policy.SetCookie(c.W, c.R, CookieName, token)
}

func (c ResponseCookies) ClearCredential() {
	c.Policy.ClearCookie(c.W, c.R, CookieName)
}

// DiscardCookies is used where there is no cookie copy, such as the command line.
type DiscardCookies struct{}

func (DiscardCookies) SetCredential(string) {}

func (DiscardCookies) ClearCredential() {}

func isSecureRequest(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		for _, p := range strings.Split(proto, ",") {
			if strings.EqualFold(strings.TrimSpace(p), "https") {
				return true
			}
		}
	}
	return false
}
