package journal

import (
	"context"
	"errors"

	"github.com/vietddude/txmanager/internal/core/domain"
	"github.com/vietddude/txmanager/internal/infra/storage"
)

// Emitter delivers lifecycle events to a sink.
type Emitter interface {
	// Emit sends a single event
	Emit(ctx context.Context, event *domain.Event) error

	// Name identifies the sink in logs and metrics
	Name() string

	// Close closes the sink
	Close() error
}

// RepoEmitter writes events to a journal repository.
type RepoEmitter struct {
	repo    storage.JournalRepository
	backend string
}

func NewRepoEmitter(repo storage.JournalRepository, backend string) *RepoEmitter {
	return &RepoEmitter{repo: repo, backend: backend}
}

func (e *RepoEmitter) Emit(ctx context.Context, event *domain.Event) error {
	return e.repo.Append(ctx, event)
}

func (e *RepoEmitter) Name() string { return e.backend }

func (e *RepoEmitter) Close() error { return e.repo.Close() }

// Publisher is the subset of the Redis client used for the event stream.
type Publisher interface {
	PublishEvent(ctx context.Context, stream string, maxLen int64, ev domain.Event) (string, error)
}

// StreamEmitter publishes events to a Redis stream.
type StreamEmitter struct {
	pub    Publisher
	stream string
	maxLen int64
}

func NewStreamEmitter(pub Publisher, stream string, maxLen int64) *StreamEmitter {
	return &StreamEmitter{pub: pub, stream: stream, maxLen: maxLen}
}

func (e *StreamEmitter) Emit(ctx context.Context, event *domain.Event) error {
	_, err := e.pub.PublishEvent(ctx, e.stream, e.maxLen, *event)
	return err
}

func (e *StreamEmitter) Name() string { return "redis_stream" }

func (e *StreamEmitter) Close() error { return nil }

// closeAll closes every emitter and joins the errors.
func closeAll(emitters []Emitter) error {
	var errs []error
	for _, e := range emitters {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
