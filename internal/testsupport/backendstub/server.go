package backendstub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// Options describes the fake backend's initial state.
type Options struct {
	// Username and Password are the accepted operator credentials. Defaults are
	// admin/admin123.
	Username string
	Password string

	// Token is issued on every successful login. Default "t1".
	Token string

	// Cameras seeds the registry, keyed by camera id.
	Cameras map[string]map[string]any

	// NoDetection lists cameras whose detection endpoints answer 404.
	NoDetection []string
}

// Call is one recorded request.
type Call struct {
	Method        string
	Path          string
	Authorization string
}

type Backend struct {
	server *httptest.Server
	opts   Options

	mu          sync.Mutex
	calls       []Call
	tokens      map[string]bool
	cameras     map[string]map[string]any
	detection   map[string]string
	noDetection map[string]bool
	loginStatus int
	loginBody   any
	failures    map[string]int
}

func Start(opts Options) *Backend {
	if opts.Username == "" {
		opts.Username = "admin"
	}
	if opts.Password == "" {
		opts.Password = "admin123"
	}
	if opts.Token == "" {
		opts.Token = "t1"
	}

	b := &Backend{
		opts:        opts,
		tokens:      make(map[string]bool),
		cameras:     make(map[string]map[string]any),
		detection:   make(map[string]string),
		noDetection: make(map[string]bool),
		failures:    make(map[string]int),
	}
	for id, fields := range opts.Cameras {
		b.cameras[id] = copyFields(fields)
	}
	for _, id := range opts.NoDetection {
		b.noDetection[id] = true
	}

	gin.SetMode(gin.TestMode)
	b.server = httptest.NewServer(b.router())
	return b
}

func (b *Backend) Close() {
	if b.server != nil {
		b.server.Close()
	}
}

// URL is the API base URL, including the /api/v1 prefix.
func (b *Backend) URL() string {
	return b.server.URL + "/api/v1"
}

// Calls returns a copy of every recorded request in arrival order.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

// LastCall returns the most recent request to path, if any.
func (b *Backend) LastCall(method, path string) (Call, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.calls) - 1; i >= 0; i-- {
		if b.calls[i].Method == method && b.calls[i].Path == path {
			return b.calls[i], true
		}
	}
	return Call{}, false
}

// Revoke invalidates a previously issued token; later calls with it get 401.
func (b *Backend) Revoke(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tokens, token)
}

// Issue makes token valid without a login round trip.
func (b *Backend) Issue(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[token] = true
}

// SetLoginResponse makes every login answer with status and body. A zero status restores
// normal behaviour.
func (b *Backend) SetLoginResponse(status int, body any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loginStatus = status
	b.loginBody = body
}

// Fail makes requests whose path ends with suffix answer with status.
func (b *Backend) Fail(suffix string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[suffix] = status
}

func (b *Backend) HasCamera(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.cameras[id]
	return ok
}

func (b *Backend) DetectionState(id string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.detection[id]
}

func (b *Backend) router() *gin.Engine {
	r := gin.New()
	r.Use(b.record)

	api := r.Group("/api/v1")
	api.POST("/auth/login", b.login)

	authed := api.Group("")
	authed.Use(b.requireToken)
	authed.GET("/cameras", b.listCameras)
	authed.POST("/cameras/register", b.registerCamera)
	authed.GET("/cameras/:id", b.getCamera)
	authed.DELETE("/cameras/:id", b.deleteCamera)
	authed.GET("/stream/:id", b.stream)
	authed.GET("/cameras/:id/detection/status", b.detectionStatus)
	authed.POST("/cameras/:id/detection/start", b.setDetection("running"))
	authed.POST("/cameras/:id/detection/stop", b.setDetection("stopped"))
	return r
}

func (b *Backend) record(c *gin.Context) {
	b.mu.Lock()
	b.calls = append(b.calls, Call{
		Method:        c.Request.Method,
		Path:          strings.TrimPrefix(c.Request.URL.Path, "/api/v1"),
		Authorization: c.GetHeader("Authorization"),
	})
	status := 0
	for suffix, s := range b.failures {
		if strings.HasSuffix(c.Request.URL.Path, suffix) {
			status = s
		}
	}
	b.mu.Unlock()

	if status != 0 {
		c.AbortWithStatusJSON(status, gin.H{"success": false, "message": http.StatusText(status)})
		return
	}
	c.Next()
}

func (b *Backend) requireToken(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")

	b.mu.Lock()
	ok := token != header && b.tokens[token]
	b.mu.Unlock()

	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Unauthorized"})
		return
	}
	c.Next()
}

func (b *Backend) login(c *gin.Context) {
	b.mu.Lock()
	status, body := b.loginStatus, b.loginBody
	b.mu.Unlock()
	if status != 0 {
		c.JSON(status, body)
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request"})
		return
	}
	if req.Username != b.opts.Username || req.Password != b.opts.Password {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid credentials"})
		return
	}

	b.mu.Lock()
	b.tokens[b.opts.Token] = true
	b.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"token": b.opts.Token}})
}

func (b *Backend) listCameras(c *gin.Context) {
	b.mu.Lock()
	data := make(map[string]any, len(b.cameras))
	for id, fields := range b.cameras {
		data[id] = copyFields(fields)
	}
	b.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func (b *Backend) registerCamera(c *gin.Context) {
	var req struct {
		CameraID string         `json:"camera_id"`
		Config   map[string]any `json:"camera_config"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.CameraID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "camera_id is required"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.cameras[req.CameraID]; exists {
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": "Camera already registered"})
		return
	}
	fields := copyFields(req.Config)
	fields["status"] = "offline"
	b.cameras[req.CameraID] = fields
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Camera registered"})
}

func (b *Backend) getCamera(c *gin.Context) {
	b.mu.Lock()
	fields, ok := b.cameras[c.Param("id")]
	if ok {
		fields = copyFields(fields)
	}
	b.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Camera not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": fields})
}

func (b *Backend) deleteCamera(c *gin.Context) {
	id := c.Param("id")
	b.mu.Lock()
	_, ok := b.cameras[id]
	delete(b.cameras, id)
	delete(b.detection, id)
	b.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Camera not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (b *Backend) stream(c *gin.Context) {
	b.mu.Lock()
	fields, ok := b.cameras[c.Param("id")]
	url, _ := fields["stream_url"].(string)
	b.mu.Unlock()

	if !ok || url == "" {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Stream not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"stream_url": url, "status": "active"}})
}

func (b *Backend) detectionStatus(c *gin.Context) {
	id := c.Param("id")
	b.mu.Lock()
	_, exists := b.cameras[id]
	unavailable := b.noDetection[id]
	state := b.detection[id]
	b.mu.Unlock()

	if !exists || unavailable {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Not found"})
		return
	}
	if state == "" {
		state = "stopped"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"status": state}})
}

func (b *Backend) setDetection(state string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		b.mu.Lock()
		_, exists := b.cameras[id]
		unavailable := b.noDetection[id]
		if exists && !unavailable {
			b.detection[id] = state
		}
		b.mu.Unlock()

		if !exists || unavailable {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"status": state}})
	}
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
