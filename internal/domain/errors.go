package domain

import "errors"

var (
	// ErrUserRequired — операция требует авторизованного пользователя.
	ErrUserRequired = errors.New("user_id is required")
	// ErrCartEmpty — оформить пустую корзину нельзя.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrProductNotFound возвращается, если товар не найден в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrCartNotFound возвращается, если удалённая корзина не найдена.
	ErrCartNotFound = errors.New("cart not found")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrKeyNotFound — ключ отсутствует в key-value хранилище.
	ErrKeyNotFound = errors.New("storage key not found")
	// ErrUnauthorized — удалённый API отклонил токен.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials — неверные логин или пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCircuitOpen — запросы к API временно заблокированы circuit breaker.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrEventPublish — ошибка при публикации события корзины.
	ErrEventPublish = errors.New("cart event publish failed")
)

// IsNotFound проверяет, относится ли ошибка к отсутствующему ресурсу.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrCartNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrKeyNotFound)
}
