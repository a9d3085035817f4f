package fakestore

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// RetryConfig задаёт повторы идемпотентных запросов.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// delay возвращает паузу перед попыткой attempt+1.
func (c RetryConfig) delay(attempt int) time.Duration {
	if c.InitialDelay <= 0 {
		return 0
	}
	factor := c.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	d := c.InitialDelay
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * factor)
		if c.MaxDelay > 0 && d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	return d
}

// CircuitState — состояние circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// CircuitBreaker блокирует запросы после maxFailures подряд неудачных попыток
// и пропускает пробный запрос по истечении resetTimeout.
type CircuitBreaker struct {
	mu           sync.Mutex
	maxFailures  int
	resetTimeout time.Duration

	failures int
	openedAt time.Time
	state    CircuitState

	logger        *log.Entry
	onStateChange func(CircuitState)
	now           func() time.Time
}

// NewCircuitBreaker создаёт circuit breaker. maxFailures <= 0 отключает его.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if logger == nil {
		logger = log.WithField("component", "circuit-breaker")
	}
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        CircuitClosed,
		logger:       logger,
		now:          time.Now,
	}
}

// Allow возвращает ErrCircuitOpen, если запросы сейчас блокируются.
func (cb *CircuitBreaker) Allow() error {
	if cb == nil || cb.maxFailures <= 0 {
		return nil
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return nil
	}
	if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
		return domain.ErrCircuitOpen
	}
	cb.setStateLocked(CircuitHalfOpen)
	return nil
}

// Record учитывает результат попытки: failed=true для сетевых ошибок и 5xx.
func (cb *CircuitBreaker) Record(failed bool) {
	if cb == nil || cb.maxFailures <= 0 {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !failed {
		cb.failures = 0
		if cb.state != CircuitClosed {
			cb.setStateLocked(CircuitClosed)
		}
		return
	}

	cb.failures++
	if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
		cb.openedAt = cb.now()
		if cb.state != CircuitOpen {
			cb.logger.WithField("failures", cb.failures).Warn("circuit breaker opened")
		}
		cb.setStateLocked(CircuitOpen)
	}
}

// State возвращает текущее состояние.
func (cb *CircuitBreaker) State() CircuitState {
	if cb == nil {
		return CircuitClosed
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) setStateLocked(state CircuitState) {
	if cb.state == state {
		return
	}
	cb.logger.WithFields(log.Fields{
		"from": cb.state.String(),
		"to":   state.String(),
	}).Info("circuit breaker state changed")
	cb.state = state
	if cb.onStateChange != nil {
		cb.onStateChange(state)
	}
}
