package server

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"zvision-console/internal/auth"
	"zvision-console/internal/backend"
	"zvision-console/internal/detection"
	"zvision-console/internal/handler"
	"zvision-console/internal/hub"
	"zvision-console/internal/metrics"
	"zvision-console/internal/middleware"
	"zvision-console/internal/session"
	"zvision-console/internal/web"
)

type Deps struct {
	Backend     *backend.Client
	Registry    *session.Registry
	Board       *detection.Board
	Hub         *hub.Hub
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
	TokenConfig auth.TokenConfig
	Cookies     session.CookiePolicy
	// LoginLimiter throttles login attempts per client IP. The caller owns it and stops it.
	LoginLimiter *middleware.RateLimiter
	// RequestID overrides request id generation in tests.
	RequestID func() string
}

func NewRouter(deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if deps.RequestID != nil {
		r.Use(middleware.RequestIDWithGenerator(deps.RequestID))
	} else {
		r.Use(middleware.RequestID())
	}
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware())
	}
	r.SetHTMLTemplate(template.Must(web.Templates()))
	r.StaticFS("/static", web.Static())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	console := &handler.Console{
		Backend: deps.Backend,
		Board:   deps.Board,
		Cookies: deps.Cookies,
		Metrics: deps.Metrics,
	}
	authHandler := &handler.AuthHandler{Console: console}
	cameraHandler := &handler.CameraHandler{Console: console}
	streamHandler := &handler.StreamHandler{Console: console}
	pushHandler := &handler.PushHandler{Hub: deps.Hub}

	site := r.Group("/")
	site.Use(middleware.ConsoleSession(deps.TokenConfig, deps.Cookies, deps.Registry))

	site.GET("/", authHandler.Home)
	site.GET("/login", authHandler.LoginPage)
	if deps.LoginLimiter != nil {
		site.POST("/login", middleware.RateLimitMiddleware(deps.LoginLimiter, authHandler.TooManyAttempts), authHandler.Login)
	} else {
		site.POST("/login", authHandler.Login)
	}
	site.POST("/logout", authHandler.Logout)
	site.GET("/ws", middleware.RequireSession(deps.Cookies), pushHandler.Serve)

	protected := site.Group("/cameras")
	protected.Use(middleware.RequireCredentialCookie(), middleware.RequireSession(deps.Cookies))
	protected.GET("", cameraHandler.List)
	protected.POST("", cameraHandler.Register)
	protected.GET("/:id", cameraHandler.Detail)
	protected.POST("/:id/delete", cameraHandler.Delete)
	protected.GET("/:id/stream", streamHandler.Page)
	protected.POST("/:id/detection", streamHandler.Toggle)

	return r
}
