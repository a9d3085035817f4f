package fakestore

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ListCarts возвращает все корзины.
func (c *Client) ListCarts(ctx context.Context) ([]domain.RemoteCart, error) {
	var carts []domain.RemoteCart
	if err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/carts",
		endpoint: "GET /carts",
	}, &carts); err != nil {
		return nil, err
	}
	return carts, nil
}

// GetCart возвращает корзину по id.
func (c *Client) GetCart(ctx context.Context, id int) (domain.RemoteCart, error) {
	var cart domain.RemoteCart
	if err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/carts/" + strconv.Itoa(id),
		endpoint: "GET /carts/{id}",
	}, &cart); err != nil {
		return domain.RemoteCart{}, notFound(err, domain.ErrCartNotFound, id)
	}
	return cart, nil
}

// GetUserCarts возвращает корзины пользователя; пустой ответ — пустой список.
func (c *Client) GetUserCarts(ctx context.Context, userID int) ([]domain.RemoteCart, error) {
	var carts []domain.RemoteCart
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/carts/user/" + strconv.Itoa(userID),
		endpoint: "GET /carts/user/{userId}",
	}, &carts)
	if err != nil {
		if errors.Is(err, errEmptyBody) || IsStatus(err, http.StatusNotFound) {
			return []domain.RemoteCart{}, nil
		}
		return nil, err
	}
	return carts, nil
}

// CreateCart создаёт корзину.
func (c *Client) CreateCart(ctx context.Context, payload domain.CartPayload) (domain.RemoteCart, error) {
	var cart domain.RemoteCart
	if err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/carts",
		endpoint: "POST /carts",
		body:     payload,
	}, &cart); err != nil {
		return domain.RemoteCart{}, err
	}
	return cart, nil
}

// UpdateCart перезаписывает корзину id.
func (c *Client) UpdateCart(ctx context.Context, id int, payload domain.CartPayload) (domain.RemoteCart, error) {
	var cart domain.RemoteCart
	if err := c.do(ctx, request{
		method:   http.MethodPut,
		path:     "/carts/" + strconv.Itoa(id),
		endpoint: "PUT /carts/{id}",
		body:     payload,
	}, &cart); err != nil {
		return domain.RemoteCart{}, notFound(err, domain.ErrCartNotFound, id)
	}
	return cart, nil
}

// DeleteCart удаляет корзину.
func (c *Client) DeleteCart(ctx context.Context, id int) error {
	err := c.do(ctx, request{
		method:   http.MethodDelete,
		path:     "/carts/" + strconv.Itoa(id),
		endpoint: "DELETE /carts/{id}",
	}, nil)
	return notFound(err, domain.ErrCartNotFound, id)
}

var _ domain.CartGateway = (*Client)(nil)
