package itemstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/canectors/itemstore/internal/errhandling"
	"github.com/canectors/itemstore/internal/logger"
)

// Errors reported through State.Error when the store is wired incompletely.
var (
	ErrNoSource   = errors.New("no endpoint source configured")
	ErrNoFetcher  = errors.New("no fetcher configured")
	ErrNoResponse = errors.New("fetcher returned no response")
)

// Store holds the fetched items with their loading and error flags.
//
// FetchItems is the only mutator. Every call takes a generation number;
// when a call settles after a newer one has started, its outcome is
// discarded, so Loading stays true until the newest call settles.
type Store struct {
	name         string
	source       EndpointSource
	fetcher      Fetcher
	newRequestID func() string

	mu     sync.RWMutex
	state  State
	status Status
	gen    uint64

	listenersMu  sync.Mutex
	listeners    []subscription
	nextListener uint64

	// notifyMu serialises deliveries so listeners see transitions in generation order.
	notifyMu sync.Mutex
}

type subscription struct {
	id uint64
	fn Listener
}

// Option configures a Store.
type Option func(*Store)

// WithRequestIDs replaces the uuid generator used to correlate fetch logs.
func WithRequestIDs(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newRequestID = fn
		}
	}
}

// New creates a Store in the initial state: no items, not loading, no error.
func New(name string, source EndpointSource, fetcher Fetcher, opts ...Option) *Store {
	s := &Store{
		name:         name,
		source:       source,
		fetcher:      fetcher,
		newRequestID: uuid.NewString,
		state:        State{Items: []any{}},
		status:       StatusIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the store name used in logs and notifications.
func (s *Store) Name() string {
	return s.name
}

// FetchItems performs one read and records its outcome.
// It blocks until the read settles and never returns an error: failures
// are stored in State.Error and Items are left as they were.
func (s *Store) FetchItems(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.state.Loading = true
	s.state.Error = ""
	s.status = StatusLoading
	started := s.state
	s.mu.Unlock()
	s.notify(gen, started)

	fctx := logger.FetchContext{
		Store:      s.name,
		RequestID:  s.newRequestID(),
		Generation: gen,
	}
	resp, err := s.fetch(ctx, &fctx)
	duration := time.Since(start)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		logger.LogFetchEnd(fctx, "stale", -1, duration)
		return
	}
	if err != nil {
		s.state.Error = errhandling.Describe(err)
		s.status = StatusError
	} else {
		s.state.Items = resp.Payload
		s.status = StatusSuccess
	}
	s.state.Loading = false
	settled := s.state
	s.mu.Unlock()

	if err != nil {
		s.logFailure(fctx, err, duration)
	} else {
		count, ok := ItemCount(resp.Payload)
		if !ok {
			count = -1
		}
		logger.LogFetchEnd(fctx, "success", count, duration)
	}
	s.notify(gen, settled)
}

// fetch resolves the endpoint and runs the fetcher, converting a panic into an error.
func (s *Store) fetch(ctx context.Context, fctx *logger.FetchContext) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, errhandling.PanicError(r)
		}
	}()

	if s.source == nil {
		return nil, fmt.Errorf("%w: %w", errhandling.ErrEndpoint, ErrNoSource)
	}
	endpoint, err := s.source.Endpoint()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errhandling.ErrEndpoint, err)
	}
	fctx.Endpoint = endpoint

	logger.LogFetchStart(*fctx)

	if s.fetcher == nil {
		return nil, ErrNoFetcher
	}
	resp, err = s.fetcher.Fetch(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, ErrNoResponse
	}
	return resp, nil
}

// logFailure reports transient failures at warn level and fatal ones with the full error context.
func (s *Store) logFailure(fctx logger.FetchContext, err error, duration time.Duration) {
	classified := errhandling.ClassifyError(err)
	if !errhandling.IsFatal(err) && !errors.Is(err, errhandling.ErrPanic) {
		logger.WithFetch(fctx).Warn("fetch settled with error",
			"status", "error",
			"duration", duration,
			"error_category", string(classified.Category),
			"error", err.Error(),
		)
		return
	}
	logger.LogError("fetch failed", logger.ErrorContext{
		Store:         fctx.Store,
		RequestID:     fctx.RequestID,
		Endpoint:      fctx.Endpoint,
		ErrorCategory: string(classified.Category),
		Err:           err,
		HTTPStatus:    classified.StatusCode,
		Duration:      duration,
		Extra:         map[string]any{"generation": fctx.Generation},
	})
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Items returns a copy of the current items.
func (s *Store) Items() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneValue(s.state.Items)
}

// Loading reports whether the newest fetch is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Loading
}

// Err returns the message of the last failed fetch, or "".
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Error
}

// Status returns the phase of the fetch cycle.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Subscribe registers fn to receive a snapshot after every transition:
// once when a fetch starts and once when the newest fetch settles.
// Listeners run synchronously, in registration order, on the goroutine
// that called FetchItems. Snapshots of a call superseded by a newer one
// are not delivered. Listeners must not call FetchItems. The returned
// function unregisters fn.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.listenersMu.Lock()
	s.nextListener++
	id := s.nextListener
	s.listeners = append(s.listeners, subscription{id: id, fn: fn})
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			defer s.listenersMu.Unlock()
			for i, sub := range s.listeners {
				if sub.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// notify delivers state to the listeners unless a newer call than gen has started.
func (s *Store) notify(gen uint64, state State) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.RLock()
	superseded := gen != s.gen
	s.mu.RUnlock()
	if superseded {
		return
	}

	s.listenersMu.Lock()
	subs := make([]subscription, len(s.listeners))
	copy(subs, s.listeners)
	s.listenersMu.Unlock()

	for _, sub := range subs {
		sub.fn(state.clone())
	}
}

// ItemCount returns the number of items when v is a JSON array.
func ItemCount(v any) (int, bool) {
	items, ok := v.([]any)
	if !ok {
		return 0, false
	}
	return len(items), true
}

func (st State) clone() State {
	st.Items = cloneValue(st.Items)
	return st
}

// cloneValue deep-copies decoded JSON containers; scalars are returned as is.
func cloneValue(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
