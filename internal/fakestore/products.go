package fakestore

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ListOptions — параметры выдачи каталога.
type ListOptions struct {
	Limit int
	// Sort — "asc" или "desc" по id.
	Sort string
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Sort == "asc" || o.Sort == "desc" {
		q.Set("sort", o.Sort)
	}
	return q
}

// ListProducts возвращает товары каталога.
func (c *Client) ListProducts(ctx context.Context, opts ListOptions) ([]domain.Product, error) {
	var products []domain.Product
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/products",
		endpoint: "GET /products",
		query:    opts.query(),
	}, &products)
	if err != nil {
		return nil, err
	}
	return products, nil
}

// GetProductByID возвращает товар. Несуществующий id даёт ErrProductNotFound.
func (c *Client) GetProductByID(ctx context.Context, id int) (domain.Product, error) {
	var product domain.Product
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/products/" + strconv.Itoa(id),
		endpoint: "GET /products/{id}",
	}, &product)
	if err != nil {
		return domain.Product{}, notFound(err, domain.ErrProductNotFound, id)
	}
	return product, nil
}

// Categories возвращает список категорий.
func (c *Client) Categories(ctx context.Context) ([]string, error) {
	var categories []string
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/products/categories",
		endpoint: "GET /products/categories",
	}, &categories)
	if err != nil {
		return nil, err
	}
	return categories, nil
}

// ProductsByCategory возвращает товары категории.
func (c *Client) ProductsByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	var products []domain.Product
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/products/category/" + url.PathEscape(category),
		endpoint: "GET /products/category/{category}",
	}, &products)
	if err != nil {
		return nil, err
	}
	return products, nil
}

// CreateProduct добавляет товар в каталог и возвращает его с присвоенным id.
func (c *Client) CreateProduct(ctx context.Context, input domain.ProductInput) (domain.Product, error) {
	var product domain.Product
	if err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/products",
		endpoint: "POST /products",
		body:     input,
	}, &product); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

// UpdateProduct перезаписывает товар id.
func (c *Client) UpdateProduct(ctx context.Context, id int, input domain.ProductInput) (domain.Product, error) {
	var product domain.Product
	if err := c.do(ctx, request{
		method:   http.MethodPut,
		path:     "/products/" + strconv.Itoa(id),
		endpoint: "PUT /products/{id}",
		body:     input,
	}, &product); err != nil {
		return domain.Product{}, notFound(err, domain.ErrProductNotFound, id)
	}
	return product, nil
}

func (c *Client) DeleteProduct(ctx context.Context, id int) error {
	err := c.do(ctx, request{
		method:   http.MethodDelete,
		path:     "/products/" + strconv.Itoa(id),
		endpoint: "DELETE /products/{id}",
	}, nil)
	return notFound(err, domain.ErrProductNotFound, id)
}

var _ domain.ProductLookup = (*Client)(nil)
