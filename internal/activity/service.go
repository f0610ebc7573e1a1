package activity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for activity events.
//
// It MUST be append-only; there are no update or delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Sink is the publish contract handed to the dispatcher and monitor. It
// replaces the ambient global logging hook of older dashboard builds with an
// explicitly injected dependency.
type Sink interface {
	Publish(ctx context.Context, e Event)
}

var ErrInvalidEvent = errors.New("activity: invalid event")

// Service validates and stamps events, then appends them to the repository.
//
// Publishing is fire-and-forget: a failed append is logged and swallowed,
// never propagated to the calling flow.
type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log, clock: time.Now}
}

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("activity: repository not configured")
	}
	if e.Message == "" {
		return ErrInvalidEvent
	}
	if !e.Level.IsValid() {
		e.Level = LevelInfo
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Publish implements Sink. Append failures are downgraded to a log line.
func (s *Service) Publish(ctx context.Context, e Event) {
	if err := s.Append(ctx, e); err != nil {
		s.log.Warn("activity append failed", "err", err, "message", e.Message)
	}
}

// NopSink discards every event. Useful in tests and as a safe default.
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) {}
