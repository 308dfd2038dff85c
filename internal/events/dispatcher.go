package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrDispatcherClosed is returned when publishing after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// ErrQueueFull is returned when an async dispatcher drops an event.
var ErrQueueFull = errors.New("event queue full")

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
	Close(ctx context.Context) error
}

type registry struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
}

func (r *registry) Subscribe(eventType EventType, handler EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[eventType] = append(r.listeners[eventType], handler)
}

func (r *registry) handlers(eventType EventType) []EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventHandler{}, r.listeners[eventType]...)
}

// inMemoryDispatcher is a simple synchronous dispatcher.
type inMemoryDispatcher struct {
	registry
	logger *zap.Logger
}

// NewInMemoryDispatcher creates a dispatcher that runs handlers inline.
func NewInMemoryDispatcher(logger *zap.Logger) Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &inMemoryDispatcher{
		registry: registry{listeners: make(map[EventType][]EventHandler)},
		logger:   logger,
	}
}

// Publish synchronously invokes handlers for the given event.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	runHandlers(ctx, d.logger, event, d.handlers(event.Type))
	return nil
}

func (d *inMemoryDispatcher) Close(context.Context) error { return nil }

// AsyncOptions tunes the background dispatcher.
type AsyncOptions struct {
	Workers        int
	QueueSize      int
	HandlerTimeout time.Duration
}

type asyncDispatcher struct {
	registry
	logger  *zap.Logger
	timeout time.Duration
	queue   chan Event

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncDispatcher starts a bounded worker pool. Publish never blocks the
// caller; events beyond the queue capacity are dropped with a warning.
func NewAsyncDispatcher(opts AsyncOptions, logger *zap.Logger) Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = 30 * time.Second
	}

	d := &asyncDispatcher{
		registry: registry{listeners: make(map[EventType][]EventHandler)},
		logger:   logger,
		timeout:  opts.HandlerTimeout,
		queue:    make(chan Event, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

func (d *asyncDispatcher) Publish(_ context.Context, event Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- event:
		return nil
	default:
		d.logger.Warn("event queue full; dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("lead_id", event.LeadID),
		)
		return ErrQueueFull
	}
}

func (d *asyncDispatcher) work() {
	defer d.wg.Done()
	for event := range d.queue {
		// Handlers outlive the request that published the event.
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		runHandlers(ctx, d.logger, event, d.handlers(event.Type))
		cancel()
	}
}

// Close stops accepting events and waits for queued ones to drain or ctx to expire.
func (d *asyncDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runHandlers(ctx context.Context, logger *zap.Logger, event Event, handlers []EventHandler) {
	for _, handler := range handlers {
		if err := safeInvoke(ctx, handler, event); err != nil {
			logger.Error("event handler failed",
				zap.String("event_type", string(event.Type)),
				zap.String("lead_id", event.LeadID),
				zap.Error(err),
			)
		}
	}
}

func safeInvoke(ctx context.Context, handler EventHandler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("event handler panicked")
		}
	}()
	return handler(ctx, event)
}
