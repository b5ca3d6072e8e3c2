package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"zvision-console/internal/auth"
	"zvision-console/internal/session"
)

func newSessionRouter(t *testing.T, registry *session.Registry) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tokens := auth.TokenConfig{Secret: "s", Expiry: time.Hour, Issuer: "test"}
	policy := session.DefaultCookiePolicy()

	r := gin.New()
	r.Use(RequestIDWithGenerator(func() string { return "req-1" }))
	r.Use(ConsoleSession(tokens, policy, registry))
	r.GET("/whoami", func(c *gin.Context) {
		sid, _ := SessionIDFromContext(c)
		c.String(http.StatusOK, sid)
	})
	protected := r.Group("/", RequireCredentialCookie(), RequireSession(policy))
	protected.GET("/cameras", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func cookieValue(rec *httptest.ResponseRecorder, name string) (string, bool) {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

func TestConsoleSession_MintsAndReusesSession(t *testing.T) {
	r := newSessionRouter(t, session.NewRegistry(session.RegistryOptions{}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	signed, ok := cookieValue(rec, ConsoleCookieName)
	if !ok || rec.Body.String() == "" {
		t.Fatalf("expected minted session cookie")
	}
	if rec.Header().Get("X-Request-Id") != "req-1" {
		t.Fatalf("expected request id header")
	}

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: ConsoleCookieName, Value: signed})
	again := httptest.NewRecorder()
	r.ServeHTTP(again, req)
	if again.Body.String() != rec.Body.String() {
		t.Fatalf("expected same session id, got %q and %q", rec.Body.String(), again.Body.String())
	}
	if _, reissued := cookieValue(again, ConsoleCookieName); reissued {
		t.Fatalf("expected no new cookie for a valid session")
	}
}

func TestRequireCredentialCookie_RedirectsAnonymous(t *testing.T) {
	r := newSessionRouter(t, session.NewRegistry(session.RegistryOptions{}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cameras", nil))
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	req := httptest.NewRequest(http.MethodGet, "/cameras", nil)
	req.Header.Set("Accept", "application/json")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for JSON callers, got %d", rec.Code)
	}
}

func TestRequireSession_StaleCookieIsCleared(t *testing.T) {
	r := newSessionRouter(t, session.NewRegistry(session.RegistryOptions{}))

	req := httptest.NewRequest(http.MethodGet, "/cameras", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "stale"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
	if value, ok := cookieValue(rec, session.CookieName); !ok || value != "" {
		t.Fatalf("expected credential cookie cleared, got %q %v", value, ok)
	}
}

func TestRequireSession_AuthenticatedPassesAndRepairsCookie(t *testing.T) {
	storage := session.NewMemoryStorage()
	registry := session.NewRegistry(session.RegistryOptions{Storage: storage})
	r := newSessionRouter(t, registry)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	signed, _ := cookieValue(rec, ConsoleCookieName)
	sid := rec.Body.String()
	_ = storage.Save(context.Background(), session.SlotFor(sid), "t1")
	registry.Sweep(0)

	req := httptest.NewRequest(http.MethodGet, "/cameras", nil)
	req.AddCookie(&http.Cookie{Name: ConsoleCookieName, Value: signed})
	req.Header.Set("Authorization", "Bearer t1")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if value, _ := cookieValue(rec, session.CookieName); value != "t1" {
		t.Fatalf("expected credential cookie restored, got %q", value)
	}
}
