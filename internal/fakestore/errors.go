package fakestore

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const maxErrorBodyInMessage = 256

// APIError — не-2xx ответ удалённого API.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > maxErrorBodyInMessage {
		body = body[:maxErrorBodyInMessage] + "..."
	}
	if body == "" {
		return fmt.Sprintf("fakestore: %s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("fakestore: %s %s: status %d: %s", e.Method, e.Path, e.Status, body)
}

// Is позволяет проверять 401 через errors.Is(err, domain.ErrUnauthorized).
func (e *APIError) Is(target error) bool {
	return target == domain.ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// Temporary сообщает, что запрос имеет смысл повторить.
func (e *APIError) Temporary() bool {
	return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

// IsStatus проверяет, что err — APIError с указанным статусом.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// errEmptyBody — API вернул 200 без тела; так fakestore отвечает на несуществующий id.
var errEmptyBody = errors.New("fakestore: empty response body")

// notFound превращает 404 и пустой ответ в sentinel-ошибку ресурса.
func notFound(err error, sentinel error, id int) error {
	if errors.Is(err, errEmptyBody) || IsStatus(err, http.StatusNotFound) {
		return fmt.Errorf("%w: id %d", sentinel, id)
	}
	return err
}
