// Package notify publishes item store state transitions to external sinks.
// Publishing is best-effort: failures are logged and never reach the store.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/canectors/itemstore/internal/logger"
	"github.com/canectors/itemstore/pkg/itemstore"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Event is one published transition.
type Event struct {
	Store  string           `json:"store"`
	Status itemstore.Status `json:"status"`
	State  itemstore.State  `json:"state"`
	At     time.Time        `json:"at"`
}

// Encode returns the JSON form of the event.
func (e Event) Encode() ([]byte, error) {
	return jsonAPI.Marshal(e)
}

// Publisher delivers events to a sink.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Source is the part of a store a publisher attaches to.
type Source interface {
	Name() string
	Status() itemstore.Status
	Subscribe(fn itemstore.Listener) (unsubscribe func())
}

// Attach publishes every transition of src to pub until the returned
// function is called. Publish errors are logged at warn level.
func Attach(ctx context.Context, src Source, pub Publisher) (detach func()) {
	name := src.Name()
	return src.Subscribe(func(state itemstore.State) {
		ev := Event{
			Store:  name,
			Status: statusOf(state, src.Status()),
			State:  state,
			At:     time.Now().UTC(),
		}
		if err := pub.Publish(ctx, ev); err != nil {
			logger.Warn("state notification failed",
				slog.String("store", name),
				slog.String("status", string(ev.Status)),
				slog.String("error", err.Error()),
			)
		}
	})
}

// statusOf derives the status from the snapshot itself; the store status
// may already have moved on when the listener runs.
func statusOf(state itemstore.State, current itemstore.Status) itemstore.Status {
	switch {
	case state.Loading:
		return itemstore.StatusLoading
	case state.Error != "":
		return itemstore.StatusError
	case current == itemstore.StatusIdle:
		return itemstore.StatusIdle
	default:
		return itemstore.StatusSuccess
	}
}

// Multi fans an event out to several publishers.
type Multi []Publisher

// Publish delivers ev to every publisher and joins their errors.
func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every publisher and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	log *slog.Logger
}

// NewLogPublisher creates a LogPublisher; nil uses the package logger.
func NewLogPublisher(l *slog.Logger) *LogPublisher {
	return &LogPublisher{log: l}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	l := p.log
	if l == nil {
		l = logger.Logger
	}
	attrs := []any{
		slog.String("store", ev.Store),
		slog.String("status", string(ev.Status)),
		slog.Bool("loading", ev.State.Loading),
	}
	if n, ok := itemstore.ItemCount(ev.State.Items); ok {
		attrs = append(attrs, slog.Int("item_count", n))
	}
	if ev.State.Error != "" {
		attrs = append(attrs, slog.String("error", ev.State.Error))
	}
	l.Info("store state changed", attrs...)
	return nil
}

// Close implements Publisher.
func (p *LogPublisher) Close() error { return nil }

var (
	_ Publisher = Multi(nil)
	_ Publisher = (*LogPublisher)(nil)
	_ Publisher = (*RedisPublisher)(nil)
)
