// Package dispatch запускает фоновые задачи синхронизации корзины.
package dispatch

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultConcurrency = 4
	defaultTaskTimeout = 30 * time.Second
)

// Dispatcher выполняет каждую задачу в отдельной горутине, ограничивая
// число одновременно работающих задач семафором. Порядок завершения не гарантируется.
type Dispatcher struct {
	sem         chan struct{}
	taskTimeout time.Duration
	logger      *log.Entry

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Option настраивает Dispatcher.
type Option func(*Dispatcher)

// WithConcurrency ограничивает число параллельных задач.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.sem = make(chan struct{}, n)
		}
	}
}

// WithTaskTimeout задаёт дедлайн контекста каждой задачи.
func WithTaskTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.taskTimeout = timeout
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New создаёт Dispatcher.
func New(opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sem:         make(chan struct{}, defaultConcurrency),
		taskTimeout: defaultTaskTimeout,
		logger:      log.WithField("component", "dispatcher"),
		baseCtx:     ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit ставит задачу в работу и сразу возвращает управление.
// После Shutdown задачи отбрасываются.
func (d *Dispatcher) Submit(name string, task func(ctx context.Context)) {
	if task == nil {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.WithField("task", name).Warn("dispatcher is shut down, task dropped")
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go d.run(name, task)
}

func (d *Dispatcher) run(name string, task func(ctx context.Context)) {
	defer d.wg.Done()

	select {
	case d.sem <- struct{}{}:
	case <-d.baseCtx.Done():
		d.logger.WithField("task", name).Debug("task canceled before start")
		return
	}
	defer func() { <-d.sem }()

	defer func() {
		if r := recover(); r != nil {
			d.logger.WithFields(log.Fields{
				"task":  name,
				"panic": r,
			}).Error("background task panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(d.baseCtx, d.taskTimeout)
	defer cancel()

	started := time.Now()
	task(ctx)
	d.logger.WithFields(log.Fields{
		"task":     name,
		"duration": time.Since(started),
	}).Debug("background task finished")
}

// Wait блокируется до завершения всех принятых задач.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown перестаёт принимать задачи и ждёт текущие до истечения ctx;
// по истечении ctx контекст задач отменяется.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

var _ domain.TaskDispatcher = (*Dispatcher)(nil)

// Inline выполняет задачу синхронно в вызывающей горутине.
type Inline struct{}

// Submit сразу выполняет task.
func (Inline) Submit(_ string, task func(ctx context.Context)) {
	if task != nil {
		task(context.Background())
	}
}

var _ domain.TaskDispatcher = Inline{}
