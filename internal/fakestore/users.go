package fakestore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// GetUser возвращает пользователя по id.
func (c *Client) GetUser(ctx context.Context, id int) (domain.User, error) {
	var user domain.User
	if err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/users/" + strconv.Itoa(id),
		endpoint: "GET /users/{id}",
	}, &user); err != nil {
		return domain.User{}, notFound(err, domain.ErrUserNotFound, id)
	}
	return user, nil
}

// ListUsers возвращает всех пользователей.
func (c *Client) ListUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	if err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/users",
		endpoint: "GET /users",
	}, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUserByUsername ищет пользователя в общем списке: отдельного эндпоинта у API нет.
func (c *Client) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	users, err := c.ListUsers(ctx)
	if err != nil {
		return domain.User{}, err
	}
	for _, user := range users {
		if user.Username == username {
			return user, nil
		}
	}
	return domain.User{}, fmt.Errorf("%w: username %q", domain.ErrUserNotFound, username)
}

// CurrentUser возвращает профиль владельца токена.
//
// Любой отказ API, кроме отмены контекста, означает «профиля нет» и даёт ErrUserNotFound.
func (c *Client) CurrentUser(ctx context.Context) (domain.User, error) {
	var user domain.User
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/users/me",
		endpoint: "GET /users/me",
	}, &user)
	if err == nil {
		return user, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.User{}, err
	}
	return domain.User{}, fmt.Errorf("%w: current user: %v", domain.ErrUserNotFound, err)
}

// CreateUser регистрирует пользователя.
func (c *Client) CreateUser(ctx context.Context, input domain.UserInput) (domain.User, error) {
	var user domain.User
	if err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/users",
		endpoint: "POST /users",
		body:     input,
	}, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// UpdateUser перезаписывает пользователя id.
func (c *Client) UpdateUser(ctx context.Context, id int, input domain.UserInput) (domain.User, error) {
	var user domain.User
	if err := c.do(ctx, request{
		method:   http.MethodPut,
		path:     "/users/" + strconv.Itoa(id),
		endpoint: "PUT /users/{id}",
		body:     input,
	}, &user); err != nil {
		return domain.User{}, notFound(err, domain.ErrUserNotFound, id)
	}
	return user, nil
}

func (c *Client) DeleteUser(ctx context.Context, id int) error {
	err := c.do(ctx, request{
		method:   http.MethodDelete,
		path:     "/users/" + strconv.Itoa(id),
		endpoint: "DELETE /users/{id}",
	}, nil)
	return notFound(err, domain.ErrUserNotFound, id)
}
