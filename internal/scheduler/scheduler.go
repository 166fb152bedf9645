// Package scheduler provides interval-based repeated fetching for item stores.
// A Watcher runs one fetch at a time, paced by a token bucket, until its
// context ends, Stop is called, or a stop condition over the state holds.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/canectors/itemstore/internal/logger"
	"github.com/canectors/itemstore/pkg/itemstore"
)

// Scheduler errors
var (
	ErrAlreadyRunning  = errors.New("watcher is already running")
	ErrInvalidInterval = errors.New("interval must be positive")
	ErrNilTarget       = errors.New("target cannot be nil")
)

// StopReason describes why Run returned.
type StopReason string

const (
	StopContext    StopReason = "context"
	StopRequested  StopReason = "stopped"
	StopCondition  StopReason = "condition"
	StopMaxFetches StopReason = "max_fetches"
)

// Target is the store being watched.
type Target interface {
	FetchItems(ctx context.Context)
	State() itemstore.State
	Status() itemstore.Status
	Name() string
}

// Options configures a Watcher.
type Options struct {
	// Interval is the minimum time between the starts of two fetches.
	Interval time.Duration
	// Until stops the watch after a fetch for which it evaluates to true.
	Until *Condition
	// MaxFetches stops the watch after that many fetches (0 = unlimited).
	MaxFetches int
	// OnFetch is called with the settled state after every fetch.
	OnFetch func(itemstore.State)
}

// Result summarises a finished watch.
type Result struct {
	Fetches int
	Reason  StopReason
	Last    itemstore.State
}

// Watcher repeatedly fetches a Target.
type Watcher struct {
	target Target
	opts   Options

	mu      sync.Mutex
	running bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a watcher for target.
func New(target Target, opts Options) (*Watcher, error) {
	if target == nil {
		return nil, ErrNilTarget
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInterval, opts.Interval)
	}
	return &Watcher{target: target, opts: opts}, nil
}

// Run fetches until a stop condition is met and blocks until then.
// Cancelling ctx aborts an in-flight fetch; Stop lets it settle first.
func (w *Watcher) Run(ctx context.Context) (*Result, error) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	waitCtx, cancel := context.WithCancel(ctx)
	w.running = true
	w.stopped = false
	w.cancel = cancel
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	defer func() {
		cancel()
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(done)
	}()

	log := logger.WithStore(w.target.Name())
	log.Info("watch started",
		slog.Duration("interval", w.opts.Interval),
		slog.Int("max_fetches", w.opts.MaxFetches),
		slog.Bool("has_condition", w.opts.Until != nil),
	)

	limiter := rate.NewLimiter(rate.Every(w.opts.Interval), 1)
	result := &Result{}

	for {
		if err := limiter.Wait(waitCtx); err != nil {
			result.Reason = w.cancelReason()
			break
		}

		w.target.FetchItems(ctx)
		result.Fetches++
		result.Last = w.target.State()

		if w.opts.OnFetch != nil {
			w.opts.OnFetch(result.Last)
		}

		if w.opts.Until != nil {
			matched, err := w.opts.Until.Eval(result.Last, w.target.Status())
			if err != nil {
				log.Warn("stop condition evaluation failed",
					slog.String("expression", w.opts.Until.String()),
					slog.String("error", err.Error()),
				)
			} else if matched {
				result.Reason = StopCondition
				break
			}
		}

		if w.opts.MaxFetches > 0 && result.Fetches >= w.opts.MaxFetches {
			result.Reason = StopMaxFetches
			break
		}

		if waitCtx.Err() != nil {
			result.Reason = w.cancelReason()
			break
		}
	}

	log.Info("watch stopped",
		slog.String("reason", string(result.Reason)),
		slog.Int("fetches", result.Fetches),
	)
	return result, nil
}

func (w *Watcher) cancelReason() StopReason {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return StopRequested
	}
	return StopContext
}

// Stop ends a running watch after the in-flight fetch settles and waits
// for Run to return or for ctx to expire.
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	w.cancel()
	done := w.done
	w.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for watch to stop: %w", ctx.Err())
	}
}

// IsRunning reports whether Run is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
