// Package session хранит аутентификацию пользователя витрины и запускает
// загрузку корзины при входе.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage"
)

// AdminUsername — администратор витрины.
const AdminUsername = "johnd"

// AuthClient — операции удалённого API, нужные для входа.
type AuthClient interface {
	Login(ctx context.Context, username, password string) (string, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
}

// CartHydrator загружает корзину пользователя из API.
type CartHydrator interface {
	LoadCartFromAPI(ctx context.Context, userID int, force bool)
}

// Manager — текущая сессия. Реализует fakestore.TokenSource.
type Manager struct {
	mu       sync.RWMutex
	token    string
	username string
	user     *domain.User

	auth      AuthClient
	cart      CartHydrator
	persister *storage.Persister
	logger    *log.Entry
}

// Option настраивает Manager.
type Option func(*Manager)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager создаёт менеджер сессии. cart может быть nil, тогда вход не трогает корзину.
func NewManager(auth AuthClient, cart CartHydrator, persister *storage.Persister, opts ...Option) *Manager {
	m := &Manager{
		auth:      auth,
		cart:      cart,
		persister: persister,
		logger:    log.WithField("component", "session"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Login входит в API, сохраняет токен и профиль и подтягивает корзину пользователя.
// Если профиль не удалось получить, id берётся из claims токена.
func (m *Manager) Login(ctx context.Context, username, password string) (domain.User, error) {
	token, err := m.auth.Login(ctx, username, password)
	if err != nil {
		m.logger.WithError(err).WithField("username", username).Warn("login failed")
		return domain.User{}, fmt.Errorf("login: %w", err)
	}

	m.mu.Lock()
	m.token = token
	m.username = username
	m.mu.Unlock()
	m.save(storage.KeyAuthToken, token)
	m.save(storage.KeyUsername, username)

	user, err := m.auth.GetUserByUsername(ctx, username)
	if err != nil {
		m.logger.WithError(err).WithField("username", username).Warn("failed to fetch user data, falling back to token claims")
		claimed, ok := userFromToken(token)
		if !ok {
			return domain.User{Username: username}, nil
		}
		user = claimed
	}

	m.setUser(user)
	m.logger.WithFields(log.Fields{
		"user_id":  user.ID,
		"username": user.Username,
	}).Info("user logged in")

	m.hydrate(ctx, user.ID)
	return user, nil
}

// Init восстанавливает сессию из хранилища и загружает корзину.
// Возвращает true, если сессия активна.
func (m *Manager) Init(ctx context.Context) bool {
	var token, username string
	var user domain.User
	hasToken := m.load(storage.KeyAuthToken, &token) && token != ""
	hasUser := m.load(storage.KeyUserData, &user) && user.ID > 0
	m.load(storage.KeyUsername, &username)

	m.mu.Lock()
	if hasToken {
		m.token = token
	}
	if username != "" {
		m.username = username
	} else if hasUser {
		m.username = user.Username
	}
	if hasUser {
		u := user
		m.user = &u
	}
	m.mu.Unlock()

	if !hasToken {
		return false
	}

	if !hasUser {
		if username == "" {
			m.logger.Warn("stored token without user data or username, session not restored")
			return false
		}
		fetched, err := m.auth.GetUserByUsername(ctx, username)
		if err != nil {
			m.logger.WithError(err).WithField("username", username).Warn("failed to restore user data")
			claimed, ok := userFromToken(token)
			if !ok {
				return false
			}
			fetched = claimed
		}
		m.setUser(fetched)
		user = fetched
	}

	m.logger.WithField("user_id", user.ID).Info("session restored")
	m.hydrate(ctx, user.ID)
	return true
}

// Logout удаляет токен и профиль. Локальная корзина намеренно сохраняется.
func (m *Manager) Logout() {
	m.mu.Lock()
	m.token = ""
	m.username = ""
	m.user = nil
	m.mu.Unlock()

	m.remove(storage.KeyAuthToken)
	m.remove(storage.KeyUserData)
	m.remove(storage.KeyUsername)
	m.logger.Info("user logged out")
}

// OnUnauthorized сбрасывает токен и профиль после 401 от API.
func (m *Manager) OnUnauthorized() {
	m.mu.Lock()
	m.token = ""
	m.user = nil
	m.mu.Unlock()

	m.remove(storage.KeyAuthToken)
	m.remove(storage.KeyUserData)
	m.logger.Warn("session token rejected, user must log in again")
}

// Token возвращает текущий bearer-токен.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// User возвращает профиль; ok=false, если пользователь не известен.
func (m *Manager) User() (domain.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return domain.User{}, false
	}
	return *m.user, true
}

// UserID возвращает id пользователя или 0.
func (m *Manager) UserID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return 0
	}
	return m.user.ID
}

// IsAuthenticated — есть и токен, и профиль.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != "" && m.user != nil
}

func (m *Manager) IsAdmin() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil && m.user.Username == AdminUsername
}

func (m *Manager) setUser(user domain.User) {
	m.mu.Lock()
	u := user
	m.user = &u
	m.mu.Unlock()
	m.save(storage.KeyUserData, user)
}

func (m *Manager) hydrate(ctx context.Context, userID int) {
	if m.cart == nil || userID <= 0 {
		return
	}
	m.cart.LoadCartFromAPI(ctx, userID, false)
}

func (m *Manager) save(key string, value any) {
	if m.persister != nil {
		m.persister.Save(key, value)
	}
}

func (m *Manager) load(key string, dst any) bool {
	if m.persister == nil {
		return false
	}
	return m.persister.Load(key, dst)
}

func (m *Manager) remove(key string) {
	if m.persister != nil {
		m.persister.Remove(key)
	}
}

// userFromToken читает sub и user из JWT без проверки подписи:
// ключа API у клиента нет, токен используется только как подсказка.
func userFromToken(token string) (domain.User, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return domain.User{}, false
	}

	id, err := subjectID(claims)
	if err != nil || id <= 0 {
		return domain.User{}, false
	}
	username, _ := claims["user"].(string)
	return domain.User{ID: id, Username: username}, true
}

func subjectID(claims jwt.MapClaims) (int, error) {
	switch sub := claims["sub"].(type) {
	case float64:
		return int(sub), nil
	case string:
		return strconv.Atoi(sub)
	case nil:
		return 0, errors.New("sub claim is missing")
	default:
		return 0, fmt.Errorf("unexpected sub claim type %T", sub)
	}
}
