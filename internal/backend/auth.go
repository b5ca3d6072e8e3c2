package backend

import (
	"context"
	"net/http"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginData struct {
	Token string `json:"token"`
}

// Login exchanges a username and password for a bearer token. A successful envelope that
// carries no token is reported as rejected.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var data loginData
	err := c.do(ctx, call{
		method: http.MethodPost,
		route:  "/auth/login",
		body:   loginRequest{Username: username, Password: password},
	}, &data)
	if err != nil {
		return "", err
	}
	if data.Token == "" {
		return "", &Error{Kind: KindRejected, Status: http.StatusOK, Message: "no token in response"}
	}
	return data.Token, nil
}
