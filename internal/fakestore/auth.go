package fakestore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login обменивает логин и пароль на токен.
// Отказ API (400/401) превращается в ErrInvalidCredentials.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return "", domain.ErrInvalidCredentials
	}

	var resp loginResponse
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     loginPath,
		endpoint: "POST " + loginPath,
		body:     loginRequest{Username: username, Password: password},
	}, &resp)
	if err != nil {
		if IsStatus(err, http.StatusUnauthorized) || IsStatus(err, http.StatusBadRequest) {
			return "", fmt.Errorf("%w: %v", domain.ErrInvalidCredentials, err)
		}
		if errors.Is(err, errEmptyBody) {
			return "", fmt.Errorf("%w: empty login response", domain.ErrInvalidCredentials)
		}
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("%w: token missing in login response", domain.ErrInvalidCredentials)
	}
	return resp.Token, nil
}
