package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"zvision-console/internal/config"
	"zvision-console/internal/hub"
	"zvision-console/internal/session"
	"zvision-console/internal/testsupport/backendstub"
)

type console struct {
	t       *testing.T
	backend *backendstub.Backend
	app     *App
	srv     *httptest.Server
	client  *http.Client
	storage *session.MemoryStorage
}

func newConsole(t *testing.T, opts backendstub.Options) *console {
	t.Helper()
	gin.SetMode(gin.TestMode)

	be := backendstub.Start(opts)
	t.Cleanup(be.Close)

	storage := session.NewMemoryStorage()
	app, err := Assemble(AssembleOptions{
		Config: config.Config{
			BackendURL:     be.URL(),
			BackendTimeout: 5 * time.Second,
			ConsoleSecret:  "test-secret",
			SessionTTL:     time.Hour,
			LoginRateLimit: 100,
		},
		Storage: storage,
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	t.Cleanup(app.Close)

	srv := httptest.NewServer(app.Handler)
	t.Cleanup(srv.Close)

	return &console{t: t, backend: be, app: app, srv: srv, client: newBrowser(t), storage: storage}
}

func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (c *console) get(client *http.Client, path string) (int, string, string) {
	c.t.Helper()
	resp, err := client.Get(c.srv.URL + path)
	if err != nil {
		c.t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, resp.Header.Get("Location"), string(body)
}

func (c *console) post(client *http.Client, path string, form url.Values) (int, string, string) {
	c.t.Helper()
	resp, err := client.PostForm(c.srv.URL+path, form)
	if err != nil {
		c.t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, resp.Header.Get("Location"), string(body)
}

func (c *console) login(client *http.Client) {
	c.t.Helper()
	status, loc, body := c.post(client, "/login", url.Values{"username": {"admin"}, "password": {"admin123"}})
	if status != http.StatusSeeOther || loc != "/cameras" {
		c.t.Fatalf("expected redirect to /cameras, got %d %q: %s", status, loc, body)
	}
}

func (c *console) credentialCookie(client *http.Client) string {
	u, _ := url.Parse(c.srv.URL)
	for _, ck := range client.Jar.Cookies(u) {
		if ck.Name == session.CookieName {
			return ck.Value
		}
	}
	return ""
}

func (c *console) metric(name string) string {
	c.t.Helper()
	_, _, body := c.get(http.DefaultClient, "/metrics")
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, name+" ") {
			return strings.TrimPrefix(line, name+" ")
		}
	}
	return ""
}

func TestHealth(t *testing.T) {
	c := newConsole(t, backendstub.Options{})
	status, _, body := c.get(c.client, "/health")
	if status != http.StatusOK || !strings.Contains(body, `"ok":true`) {
		t.Fatalf("unexpected health answer %d %s", status, body)
	}
}

func TestLogin_RoutesToCameraListWithBearerToken(t *testing.T) {
	c := newConsole(t, backendstub.Options{Cameras: map[string]map[string]any{
		"cam_001": {"location": "Front Door", "status": "online"},
	}})

	status, loc, _ := c.get(c.client, "/cameras")
	if status != http.StatusSeeOther || loc != "/login" {
		t.Fatalf("anonymous visit should go to /login, got %d %q", status, loc)
	}

	c.login(c.client)
	if got := c.credentialCookie(c.client); got != "t1" {
		t.Fatalf("expected auth-token cookie t1, got %q", got)
	}

	status, _, body := c.get(c.client, "/cameras")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	if !strings.Contains(body, "cam_001") || !strings.Contains(body, "Front Door") {
		t.Fatalf("camera list missing camera: %s", body)
	}
	call, ok := c.backend.LastCall(http.MethodGet, "/cameras")
	if !ok || call.Authorization != "Bearer t1" {
		t.Fatalf("expected bearer t1 on list call, got %+v", call)
	}
}

func TestLogin_InvalidCredentialsStayOnForm(t *testing.T) {
	c := newConsole(t, backendstub.Options{})
	status, _, body := c.post(c.client, "/login", url.Values{"username": {"admin"}, "password": {"nope"}})
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	if !strings.Contains(body, session.MsgInvalidCredentials) {
		t.Fatalf("expected invalid credentials message: %s", body)
	}
	if got := c.credentialCookie(c.client); got != "" {
		t.Fatalf("expected no credential cookie, got %q", got)
	}
}

func TestLostCredentialCookieIsRepairedInOneHop(t *testing.T) {
	c := newConsole(t, backendstub.Options{})
	c.login(c.client)

	u, _ := url.Parse(c.srv.URL)
	c.client.Jar.SetCookies(u, []*http.Cookie{{Name: session.CookieName, Value: "", Path: "/", MaxAge: -1}})
	if got := c.credentialCookie(c.client); got != "" {
		t.Fatalf("expected cookie to be gone, got %q", got)
	}

	status, loc, _ := c.get(c.client, "/cameras")
	if status != http.StatusSeeOther || loc != "/login" {
		t.Fatalf("expected edge guard redirect to /login, got %d %q", status, loc)
	}
	status, loc, _ = c.get(c.client, loc)
	if status != http.StatusSeeOther || loc != "/cameras" {
		t.Fatalf("expected signed-in visitor to go to /cameras, got %d %q", status, loc)
	}
	if got := c.credentialCookie(c.client); got != "t1" {
		t.Fatalf("expected cookie to be rewritten, got %q", got)
	}
	status, _, body := c.get(c.client, loc)
	if status != http.StatusOK {
		t.Fatalf("expected camera list after repair, got %d: %s", status, body)
	}
}

func TestLogout_ClearsEveryCopy(t *testing.T) {
	c := newConsole(t, backendstub.Options{})
	c.login(c.client)

	status, loc, _ := c.post(c.client, "/logout", nil)
	if status != http.StatusSeeOther || loc != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", status, loc)
	}
	if got := c.credentialCookie(c.client); got != "" {
		t.Fatalf("expected cleared cookie, got %q", got)
	}
	status, loc, _ = c.get(c.client, "/cameras")
	if status != http.StatusSeeOther || loc != "/login" {
		t.Fatalf("expected protected view to redirect after logout, got %d %q", status, loc)
	}
}

func TestSessionSurvivesRestartThroughStorage(t *testing.T) {
	c := newConsole(t, backendstub.Options{})
	c.login(c.client)

	restarted, err := Assemble(AssembleOptions{
		Config: config.Config{
			BackendURL:    c.backend.URL(),
			ConsoleSecret: "test-secret",
		},
		Storage: c.storage,
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	defer restarted.Close()
	c.srv = httptest.NewServer(restarted.Handler)
	defer c.srv.Close()

	// cookies are scoped by host, so the browser presents them to the new listener too
	status, _, body := c.get(c.client, "/cameras")
	if status != http.StatusOK {
		t.Fatalf("expected restored session to see cameras, got %d: %s", status, body)
	}
}

func TestConcurrentUnauthorizedResponsesLogOutOnce(t *testing.T) {
	c := newConsole(t, backendstub.Options{Cameras: map[string]map[string]any{"cam_1": {}}})
	c.login(c.client)
	c.backend.Revoke("t1")

	const n = 8
	var wg sync.WaitGroup
	statuses := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := c.client.Get(c.srv.URL + "/cameras")
			if err != nil {
				t.Errorf("GET: %v", err)
				return
			}
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	for i, s := range statuses {
		if s != http.StatusSeeOther {
			t.Fatalf("request %d: expected redirect, got %d", i, s)
		}
	}
	if got := c.metric("zvision_forced_logouts_total"); got != "1" {
		t.Fatalf("expected exactly one forced logout, got %q", got)
	}
	status, loc, _ := c.get(c.client, "/cameras")
	if status != http.StatusSeeOther || loc != "/login" {
		t.Fatalf("expected anonymous session afterwards, got %d %q", status, loc)
	}
}

func TestExpiredSessionShowsMessageOnLoginPage(t *testing.T) {
	c := newConsole(t, backendstub.Options{})
	c.login(c.client)
	c.backend.Revoke("t1")

	status, loc, _ := c.get(c.client, "/cameras")
	if status != http.StatusSeeOther || loc != "/login?expired=1" {
		t.Fatalf("expected redirect to expired login, got %d %q", status, loc)
	}
	_, _, body := c.get(c.client, loc)
	if !strings.Contains(body, session.MsgSessionExpired) {
		t.Fatalf("expected expiry message: %s", body)
	}
}

func TestCameraLifecycle(t *testing.T) {
	c := newConsole(t, backendstub.Options{})
	c.login(c.client)

	status, _, body := c.post(c.client, "/cameras", url.Values{"camera_id": {"  "}})
	if status != http.StatusBadRequest || !strings.Contains(body, "Camera ID is required") {
		t.Fatalf("expected required id error, got %d: %s", status, body)
	}

	status, loc, _ := c.post(c.client, "/cameras", url.Values{
		"camera_id":  {"cam_7"},
		"location":   {"Garage"},
		"stream_url": {"http://cams/7/feed.mjpg"},
	})
	if status != http.StatusSeeOther || loc != "/cameras?registered=cam_7" {
		t.Fatalf("expected redirect after register, got %d %q", status, loc)
	}

	status, _, body = c.post(c.client, "/cameras", url.Values{"camera_id": {"cam_7"}})
	if !strings.Contains(body, "Camera already registered") {
		t.Fatalf("expected backend message on duplicate, got %d: %s", status, body)
	}

	status, _, body = c.get(c.client, "/cameras/cam_7")
	if status != http.StatusOK || !strings.Contains(body, "Garage") {
		t.Fatalf("unexpected detail %d: %s", status, body)
	}

	status, _, body = c.post(c.client, "/cameras/cam_7/delete", nil)
	if status != http.StatusOK || !c.backend.HasCamera("cam_7") {
		t.Fatalf("delete without confirmation should only prompt, got %d", status)
	}
	if !strings.Contains(body, `name="confirm" value="yes"`) {
		t.Fatalf("expected confirmation prompt: %s", body)
	}

	status, loc, _ = c.post(c.client, "/cameras/cam_7/delete", url.Values{"confirm": {"yes"}})
	if status != http.StatusSeeOther || loc != "/cameras?deleted=cam_7" {
		t.Fatalf("expected redirect after delete, got %d %q", status, loc)
	}
	if c.backend.HasCamera("cam_7") {
		t.Fatalf("camera still registered")
	}

	status, _, body = c.get(c.client, "/cameras/cam_7")
	if status != http.StatusNotFound || !strings.Contains(body, "Camera not found") {
		t.Fatalf("expected not found page, got %d: %s", status, body)
	}
}

func TestCameraRedirectsEscapeIDs(t *testing.T) {
	c := newConsole(t, backendstub.Options{})
	c.login(c.client)

	const id = "lot&gate#2%"
	status, loc, _ := c.post(c.client, "/cameras", url.Values{"camera_id": {id}})
	if status != http.StatusSeeOther || loc != "/cameras?registered="+url.QueryEscape(id) {
		t.Fatalf("unexpected register redirect %d %q", status, loc)
	}
	target, err := url.Parse(loc)
	if err != nil || target.Query().Get("registered") != id {
		t.Fatalf("redirect does not round-trip the id: %q %v", loc, err)
	}

	status, loc, _ = c.post(c.client, "/cameras/"+url.PathEscape(id)+"/delete", url.Values{"confirm": {"yes"}})
	if status != http.StatusSeeOther || loc != "/cameras?deleted="+url.QueryEscape(id) {
		t.Fatalf("unexpected delete redirect %d %q", status, loc)
	}
	if c.backend.HasCamera(id) {
		t.Fatalf("camera still registered")
	}
}

func TestCameraList_BackendFailureRendersInlineError(t *testing.T) {
	c := newConsole(t, backendstub.Options{})
	c.login(c.client)
	c.backend.Fail("/cameras", http.StatusInternalServerError)

	status, _, body := c.get(c.client, "/cameras")
	if status != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", status)
	}
	if !strings.Contains(body, "Failed to load cameras. Please try again.") {
		t.Fatalf("expected inline error: %s", body)
	}
}

func TestStreamPage_PicksPlayerAndDetection(t *testing.T) {
	c := newConsole(t, backendstub.Options{
		Cameras: map[string]map[string]any{
			"cam_1": {"stream_url": "http://cams/1/live.m3u8"},
			"cam_2": {"meta": `{"stream_url": "http://cams/2/feed.mjpg"}`},
			"cam_3": {"location": "Attic"},
		},
		NoDetection: []string{"cam_2"},
	})
	c.login(c.client)

	_, _, body := c.get(c.client, "/cameras/cam_1/stream")
	if !strings.Contains(body, `data-kind="hls"`) || !strings.Contains(body, `id="detection-card"`) {
		t.Fatalf("expected hls player and detection control: %s", body)
	}

	_, _, body = c.get(c.client, "/cameras/cam_2/stream")
	if !strings.Contains(body, `data-kind="mjpeg"`) {
		t.Fatalf("expected nested mjpeg stream: %s", body)
	}
	if strings.Contains(body, `id="detection-card"`) {
		t.Fatalf("detection control should be hidden when unavailable")
	}

	_, _, body = c.get(c.client, "/cameras/cam_3/stream")
	if !strings.Contains(body, "Stream information not available") {
		t.Fatalf("expected missing stream message: %s", body)
	}
}

func (c *console) toggle(id, desired string) (int, map[string]any) {
	c.t.Helper()
	req, _ := http.NewRequest(http.MethodPost, c.srv.URL+"/cameras/"+id+"/detection",
		strings.NewReader(`{"desired":"`+desired+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("toggle: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestDetectionToggle(t *testing.T) {
	c := newConsole(t, backendstub.Options{
		Cameras:     map[string]map[string]any{"cam_1": {}, "cam_2": {}},
		NoDetection: []string{"cam_2"},
	})
	c.login(c.client)

	status, out := c.toggle("cam_1", "on")
	if status != http.StatusOK || out["ok"] != true {
		t.Fatalf("expected ok toggle, got %d %v", status, out)
	}
	if c.backend.DetectionState("cam_1") != "running" {
		t.Fatalf("backend not started")
	}
	if st, _ := out["state"].(map[string]any); st["running"] != true {
		t.Fatalf("expected running state, got %v", out["state"])
	}

	status, out = c.toggle("cam_2", "on")
	if status != http.StatusNotFound || out["message"] != "Detection control is not available for this camera" {
		t.Fatalf("expected not available, got %d %v", status, out)
	}

	before := len(c.backend.Calls())
	status, _ = c.toggle("cam_2", "on")
	if status != http.StatusNotFound || len(c.backend.Calls()) != before {
		t.Fatalf("expected fast failure without a backend call")
	}

	c.backend.Fail("/detection/stop", http.StatusInternalServerError)
	status, out = c.toggle("cam_1", "off")
	if status != http.StatusBadGateway || out["message"] != "Failed to stop detection. Please try again." {
		t.Fatalf("expected request failure, got %d %v", status, out)
	}
	if st, _ := out["state"].(map[string]any); st["running"] != true {
		t.Fatalf("expected state to revert to running, got %v", out["state"])
	}
}

func TestDetectionToggle_RejectsBadPayload(t *testing.T) {
	c := newConsole(t, backendstub.Options{Cameras: map[string]map[string]any{"cam_1": {}}})
	c.login(c.client)
	status, _ := c.toggle("cam_1", "maybe")
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}

func dialPush(t *testing.T, c *console, client *http.Client) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{Jar: client.Jar, HandshakeTimeout: 5 * time.Second}
	ws, resp, err := dialer.Dial("ws"+strings.TrimPrefix(c.srv.URL, "http")+"/ws", nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial: %v (status %d)", err, status)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) hub.Message {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg hub.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func waitForConnections(t *testing.T, h *hub.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.Count() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d connections, have %d", n, h.Count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPush_PingAndDetectionFanOut(t *testing.T) {
	c := newConsole(t, backendstub.Options{Cameras: map[string]map[string]any{"cam_1": {}}})
	c.login(c.client)
	other := newBrowser(t)
	c.login(other)

	mine := dialPush(t, c, c.client)
	theirs := dialPush(t, c, other)
	waitForConnections(t, c.app.Hub, 2)

	if err := mine.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readMessage(t, mine); msg.Type != "pong" {
		t.Fatalf("expected pong, got %+v", msg)
	}

	if status, _ := c.toggle("cam_1", "on"); status != http.StatusOK {
		t.Fatalf("toggle failed with %d", status)
	}
	msg := readMessage(t, theirs)
	if msg.Type != "detection" || msg.CameraID != "cam_1" {
		t.Fatalf("expected detection frame, got %+v", msg)
	}
}

func TestPush_LogoutReachesOnlyThatSession(t *testing.T) {
	c := newConsole(t, backendstub.Options{})
	c.login(c.client)
	ws := dialPush(t, c, c.client)
	waitForConnections(t, c.app.Hub, 1)

	c.post(c.client, "/logout", nil)
	if msg := readMessage(t, ws); msg.Type != string(session.EventLogout) {
		t.Fatalf("expected logout frame, got %+v", msg)
	}
}

func TestPush_RequiresSession(t *testing.T) {
	c := newConsole(t, backendstub.Options{})
	dialer := websocket.Dialer{Jar: c.client.Jar}
	_, resp, err := dialer.Dial("ws"+strings.TrimPrefix(c.srv.URL, "http")+"/ws", nil)
	if err == nil {
		t.Fatalf("expected anonymous dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected redirect for anonymous push, got %+v", resp)
	}
}
