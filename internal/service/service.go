// Package service implements task, todo, sharing and directory operations on
// top of a storage.Store. Every mutation is authorized, serialized per task,
// persisted and then announced on the task's realtime topic.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	nanoid "github.com/jaevor/go-nanoid"

	"collabtodo/internal/lock"
	"collabtodo/internal/realtime"
	"collabtodo/internal/storage"
)

const (
	codeAlphabet        = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	defaultCodeLength   = 6
	maxCodeAttempts     = 10
	defaultStoreTimeout = 5 * time.Second
)

// Config tunes a Service.
type Config struct {
	// FrontendURL prefixes shareable invite links.
	FrontendURL string
	// StoreTimeout bounds each operation. Zero means five seconds.
	StoreTimeout time.Duration
	// NewCode overrides invite code generation.
	NewCode func() string
}

// Service is safe for concurrent use.
type Service struct {
	store       storage.Store
	bus         realtime.Publisher
	locker      lock.Locker
	newCode     func() string
	newID       func() string
	frontendURL string
	timeout     time.Duration
	logger      *slog.Logger
}

// New wires a Service.
func New(store storage.Store, bus realtime.Publisher, locker lock.Locker, cfg Config, logger *slog.Logger) (*Service, error) {
	if store == nil || bus == nil || locker == nil {
		return nil, errors.New("service requires a store, a publisher and a locker")
	}
	if logger == nil {
		logger = slog.Default()
	}

	newCode := cfg.NewCode
	if newCode == nil {
		gen, err := nanoid.CustomASCII(codeAlphabet, defaultCodeLength)
		if err != nil {
			return nil, fmt.Errorf("invite code generator: %w", err)
		}
		newCode = gen
	}

	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}

	return &Service{
		store:       store,
		bus:         bus,
		locker:      locker,
		newCode:     newCode,
		newID:       uuid.NewString,
		frontendURL: cfg.FrontendURL,
		timeout:     timeout,
		logger:      logger,
	}, nil
}

// Ping reports whether the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return wrap("ping store", s.store.Ping(ctx))
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// lockTask serializes mutations of one task and its todos.
func (s *Service) lockTask(ctx context.Context, taskID string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, "task:"+taskID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("lock task %s: %w: %w", taskID, ErrUnavailable, err)
	}
	return unlock, nil
}

// publish announces an event. Failures are logged and never returned.
func (s *Service) publish(ctx context.Context, taskID, event string, payload any) {
	if err := s.bus.Publish(ctx, taskID, event, payload); err != nil {
		s.logger.Warn("realtime publish failed",
			slog.String("task_id", taskID),
			slog.String("event", event),
			slog.String("error", err.Error()))
	}
}

// revoke evicts realtime subscribers of taskID except keep. Failures are
// logged and never returned.
func (s *Service) revoke(ctx context.Context, taskID string, keep ...string) {
	if err := s.bus.Revoke(ctx, taskID, keep...); err != nil {
		s.logger.Warn("realtime revoke failed",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()))
	}
}

// wrap annotates err with the operation and classifies store timeouts and
// connectivity failures as unavailable.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, storage.ErrUnavailable) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
