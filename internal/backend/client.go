package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultBaseURL = "http://127.0.0.1:5000/api/v1"

// Credentials supplies the bearer token for outgoing requests and is told when the backend
// rejects it. The generation identifies the token a request was prepared with.
type Credentials interface {
	Credential() (token string, generation uint64)
	Unauthorized(generation uint64)
}

// Observer is notified once per backend call. route is the path template, not the
// expanded path.
type Observer func(method, route string, status int, err error, elapsed time.Duration)

type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Observer  Observer
}

type Client struct {
	http     *resty.Client
	creds    Credentials
	observer Observer
}

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func (e envelope) message() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	r := resty.New()
	r.SetBaseURL(baseURL)
	r.SetHeader("Content-Type", "application/json")
	r.SetHeader("Accept", "application/json")
	if opts.UserAgent != "" {
		r.SetHeader("User-Agent", opts.UserAgent)
	}
	if opts.Timeout > 0 {
		r.SetTimeout(opts.Timeout)
	}

	return &Client{http: r, observer: opts.Observer}
}

// WithCredentials returns a client sharing the same transport that authenticates every
// request with creds.
func (c *Client) WithCredentials(creds Credentials) *Client {
	clone := *c
	clone.creds = creds
	return &clone
}

func (c *Client) BaseURL() string {
	return c.http.BaseURL
}

type call struct {
	method string
	route  string
	params map[string]string
	body   any
}

// do executes one call and decodes the envelope's data into out. A nil out accepts an
// empty 2xx body.
func (c *Client) do(ctx context.Context, cl call, out any) error {
	start := time.Now()
	status, err := c.execute(ctx, cl, out)
	if c.observer != nil {
		c.observer(cl.method, cl.route, status, err, time.Since(start))
	}
	return err
}

func (c *Client) execute(ctx context.Context, cl call, out any) (int, error) {
	req := c.http.R().SetContext(ctx)
	if len(cl.params) > 0 {
		req.SetPathParams(cl.params)
	}
	if cl.body != nil {
		req.SetBody(cl.body)
	}

	var generation uint64
	if c.creds != nil {
		var token string
		token, generation = c.creds.Credential()
		if token != "" {
			req.SetAuthToken(token)
		}
	}

	resp, err := req.Execute(cl.method, cl.route)
	if err != nil {
		return 0, &Error{Kind: KindNetwork, Err: err}
	}

	status := resp.StatusCode()
	var env envelope
	body := resp.Body()
	decodeErr := error(nil)
	if len(body) > 0 {
		decodeErr = json.Unmarshal(body, &env)
	}

	if status >= http.StatusBadRequest {
		kind := kindForStatus(status)
		if kind == KindUnauthorized && c.creds != nil {
			c.creds.Unauthorized(generation)
		}
		return status, &Error{Kind: kind, Status: status, Message: env.message()}
	}

	if status == http.StatusNoContent || (len(body) == 0 && out == nil) {
		return status, nil
	}
	if decodeErr != nil {
		return status, &Error{Kind: KindServer, Status: status, Message: "malformed response", Err: decodeErr}
	}
	if env.Success == nil || !*env.Success {
		return status, &Error{Kind: KindRejected, Status: status, Message: env.message()}
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return status, &Error{Kind: KindServer, Status: status, Message: "malformed response", Err: err}
		}
	}
	return status, nil
}
