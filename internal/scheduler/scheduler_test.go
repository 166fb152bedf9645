package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/canectors/itemstore/pkg/itemstore"
)

// fakeTarget is a test double for a store.
type fakeTarget struct {
	fetchCalls int32
	fetchDelay time.Duration

	mu     sync.Mutex
	items  []any
	errMsg string
	// failAfter makes fetches beyond this count record an error (0 = never)
	failAfter int32
}

func (f *fakeTarget) Name() string { return "fake" }

func (f *fakeTarget) FetchItems(ctx context.Context) {
	n := atomic.AddInt32(&f.fetchCalls, 1)
	if f.fetchDelay > 0 {
		select {
		case <-time.After(f.fetchDelay):
		case <-ctx.Done():
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter > 0 && n > f.failAfter {
		f.errMsg = "http error 503"
		return
	}
	f.errMsg = ""
	f.items = append(f.items, n)
}

func (f *fakeTarget) State() itemstore.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]any, len(f.items))
	copy(items, f.items)
	return itemstore.State{Items: items, Error: f.errMsg}
}

func (f *fakeTarget) Status() itemstore.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errMsg != "" {
		return itemstore.StatusError
	}
	return itemstore.StatusSuccess
}

func (f *fakeTarget) calls() int {
	return int(atomic.LoadInt32(&f.fetchCalls))
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, Options{Interval: time.Second}); !errors.Is(err, ErrNilTarget) {
		t.Errorf("expected ErrNilTarget, got %v", err)
	}
	if _, err := New(&fakeTarget{}, Options{}); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("expected ErrInvalidInterval, got %v", err)
	}
	if _, err := New(&fakeTarget{}, Options{Interval: -time.Second}); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("expected ErrInvalidInterval for negative interval, got %v", err)
	}
}

// =============================================================================
// Stop conditions
// =============================================================================

func TestWatcher_MaxFetches(t *testing.T) {
	target := &fakeTarget{}
	var seen []itemstore.State
	w, err := New(target, Options{
		Interval:   10 * time.Millisecond,
		MaxFetches: 3,
		OnFetch:    func(s itemstore.State) { seen = append(seen, s) },
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	result, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if result.Reason != StopMaxFetches {
		t.Errorf("expected reason %q, got %q", StopMaxFetches, result.Reason)
	}
	if result.Fetches != 3 || target.calls() != 3 {
		t.Errorf("expected 3 fetches, got result=%d calls=%d", result.Fetches, target.calls())
	}
	if len(seen) != 3 {
		t.Errorf("expected OnFetch 3 times, got %d", len(seen))
	}
	if n, _ := itemstore.ItemCount(result.Last.Items); n != 3 {
		t.Errorf("expected last state with 3 items, got %v", result.Last.Items)
	}
}

func TestWatcher_UntilCondition(t *testing.T) {
	cond, err := CompileCondition("count >= 2")
	if err != nil {
		t.Fatalf("CompileCondition() error: %v", err)
	}
	target := &fakeTarget{}
	w, _ := New(target, Options{Interval: 10 * time.Millisecond, Until: cond, MaxFetches: 50})

	result, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if result.Reason != StopCondition {
		t.Errorf("expected reason %q, got %q", StopCondition, result.Reason)
	}
	if result.Fetches != 2 {
		t.Errorf("expected 2 fetches, got %d", result.Fetches)
	}
}

func TestWatcher_UntilErrorStatus(t *testing.T) {
	cond, err := CompileCondition(`status == "error" && error contains "503"`)
	if err != nil {
		t.Fatalf("CompileCondition() error: %v", err)
	}
	target := &fakeTarget{failAfter: 1}
	w, _ := New(target, Options{Interval: 10 * time.Millisecond, Until: cond, MaxFetches: 50})

	result, _ := w.Run(context.Background())

	if result.Reason != StopCondition || result.Fetches != 2 {
		t.Errorf("expected stop on second fetch, got reason=%q fetches=%d", result.Reason, result.Fetches)
	}
	if result.Last.Error == "" {
		t.Error("expected last state to carry the error")
	}
}

func TestWatcher_ContextCancel(t *testing.T) {
	target := &fakeTarget{}
	w, _ := New(target, Options{Interval: 20 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()

	result, err := w.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if result.Reason != StopContext {
		t.Errorf("expected reason %q, got %q", StopContext, result.Reason)
	}
	// rate limiting: first fetch is immediate, then at most one per interval
	if result.Fetches < 2 || result.Fetches > 7 {
		t.Errorf("expected paced fetches, got %d", result.Fetches)
	}
}

func TestWatcher_Stop(t *testing.T) {
	target := &fakeTarget{fetchDelay: 50 * time.Millisecond}
	w, _ := New(target, Options{Interval: 10 * time.Millisecond})

	type runResult struct {
		res *Result
		err error
	}
	done := make(chan runResult, 1)
	go func() {
		res, err := w.Run(context.Background())
		done <- runResult{res, err}
	}()

	deadline := time.Now().Add(time.Second)
	for target.calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !w.IsRunning() {
		t.Fatal("expected watcher to be running")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	r := <-done
	if r.err != nil {
		t.Fatalf("Run() error: %v", r.err)
	}
	if r.res.Reason != StopRequested {
		t.Errorf("expected reason %q, got %q", StopRequested, r.res.Reason)
	}
	if w.IsRunning() {
		t.Error("expected watcher to be stopped")
	}
	// the in-flight fetch settled normally
	if r.res.Last.Error != "" || r.res.Fetches != target.calls() {
		t.Errorf("expected settled fetches, got %+v (calls=%d)", r.res, target.calls())
	}
}

func TestWatcher_StopNotRunning(t *testing.T) {
	w, _ := New(&fakeTarget{}, Options{Interval: time.Second})
	if err := w.Stop(context.Background()); err != nil {
		t.Errorf("Stop() on idle watcher returned %v", err)
	}
}

func TestWatcher_AlreadyRunning(t *testing.T) {
	target := &fakeTarget{}
	w, _ := New(target, Options{Interval: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _, _ = w.Run(ctx) }()
	defer func() {
		cancel()
		_ = w.Stop(context.Background())
	}()

	deadline := time.Now().Add(time.Second)
	for !w.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := w.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
}

// =============================================================================
// Conditions
// =============================================================================

func TestCompileCondition_Invalid(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"syntax", "count >>"},
		{"unknown variable", "total > 1"},
		{"non-boolean", "count + 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CompileCondition(tt.expr); !errors.Is(err, ErrInvalidCondition) {
				t.Errorf("CompileCondition(%q) = %v, want ErrInvalidCondition", tt.expr, err)
			}
		})
	}
}

func TestCondition_Eval(t *testing.T) {
	tests := []struct {
		expr   string
		state  itemstore.State
		status itemstore.Status
		want   bool
	}{
		{"count == 2", itemstore.State{Items: []any{1, 2}}, itemstore.StatusSuccess, true},
		{"count == 0", itemstore.State{Items: map[string]any{}}, itemstore.StatusSuccess, true},
		{"loading", itemstore.State{Loading: true}, itemstore.StatusLoading, true},
		{`status == "idle"`, itemstore.State{Items: []any{}}, itemstore.StatusIdle, true},
		{`error != ""`, itemstore.State{}, itemstore.StatusSuccess, false},
		{`len(items) > 0`, itemstore.State{Items: []any{"x"}}, itemstore.StatusSuccess, true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			cond, err := CompileCondition(tt.expr)
			if err != nil {
				t.Fatalf("CompileCondition() error: %v", err)
			}
			got, err := cond.Eval(tt.state, tt.status)
			if err != nil {
				t.Fatalf("Eval() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Eval() = %v, want %v", got, tt.want)
			}
			if cond.String() != tt.expr {
				t.Errorf("String() = %q, want %q", cond.String(), tt.expr)
			}
		})
	}
}
