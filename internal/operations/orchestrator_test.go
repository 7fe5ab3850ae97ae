package operations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// recorder collects snapshots pushed to a subscriber and signals when a
// terminal or specific state is reached.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
	done  chan State
}

func newRecorder() *recorder {
	return &recorder{done: make(chan State, 16)}
}

func (r *recorder) observe(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
	if s.State.Terminal() {
		r.done <- s.State
	}
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.snaps))
	for i, s := range r.snaps {
		out[i] = s.State
	}
	return out
}

func (r *recorder) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return Snapshot{}
	}
	return r.snaps[len(r.snaps)-1]
}

func (r *recorder) waitTerminal(t *testing.T) State {
	t.Helper()
	select {
	case s := <-r.done:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal state")
		return ""
	}
}

func TestStartUnknownType(t *testing.T) {
	o := New(zaptest.NewLogger(t))

	_, err := o.Start(context.Background(), Type("frobnicate"), func(ctx context.Context, p Reporter) (any, error) {
		return nil, nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestStartRequiresExecutor(t *testing.T) {
	o := New(zaptest.NewLogger(t))

	_, err := o.Start(context.Background(), TypeParsePRD, nil)
	require.Error(t, err)
}

func TestStartWhileBusyReturnsBusy(t *testing.T) {
	o := New(zaptest.NewLogger(t))
	rec := newRecorder()
	o.Subscribe(rec.observe)

	release := make(chan struct{})
	handle, err := o.Start(context.Background(), TypeParsePRD, func(ctx context.Context, p Reporter) (any, error) {
		<-release
		return "tasks", nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, handle.ID)

	// Second start must fail immediately and leave the first untouched.
	_, err = o.Start(context.Background(), TypeExpandAll, func(ctx context.Context, p Reporter) (any, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrBusy)

	snap := o.Snapshot()
	assert.Equal(t, handle.ID, snap.ID)
	assert.Equal(t, StatePreparing, snap.State)

	close(release)
	state := rec.waitTerminal(t)
	assert.Equal(t, StateCompleted, state)

	// After a terminal state, Start is allowed again.
	_, err = o.Start(context.Background(), TypeExpandTask, func(ctx context.Context, p Reporter) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)
}

func TestExecutorCompletion(t *testing.T) {
	o := New(zaptest.NewLogger(t))
	rec := newRecorder()
	o.Subscribe(rec.observe)

	_, err := o.Start(context.Background(), TypeExpandTask, func(ctx context.Context, p Reporter) (any, error) {
		p.Phase("Loading task")
		p.Phase("Generating subtasks")
		p.Progress("task 3 of 7")
		p.Phase("Saving subtasks")
		return 7, nil
	})
	require.NoError(t, err)

	state := rec.waitTerminal(t)
	require.Equal(t, StateCompleted, state)

	last := rec.last()
	assert.Equal(t, 7, last.Result)
	assert.NoError(t, last.Err)
	assert.Equal(t, 2, last.PhaseIndex)

	states := rec.states()
	assert.Equal(t, StatePreparing, states[0])
	assert.Contains(t, states, StateProcessing)
}

func TestExecutorError(t *testing.T) {
	o := New(zaptest.NewLogger(t))
	rec := newRecorder()
	o.Subscribe(rec.observe)

	boom := errors.New("model returned malformed JSON")
	_, err := o.Start(context.Background(), TypeAnalyzeComplexity, func(ctx context.Context, p Reporter) (any, error) {
		p.Phase("Loading tasks")
		return nil, boom
	})
	require.NoError(t, err)

	state := rec.waitTerminal(t)
	require.Equal(t, StateErrored, state)
	assert.ErrorIs(t, rec.last().Err, boom)
}

func TestCancelBeforeSettlement(t *testing.T) {
	o := New(zaptest.NewLogger(t))
	rec := newRecorder()
	o.Subscribe(rec.observe)

	started := make(chan struct{})
	observed := make(chan struct{})
	_, err := o.Start(context.Background(), TypeParsePRD, func(ctx context.Context, p Reporter) (any, error) {
		p.Phase("Reading PRD")
		close(started)
		<-ctx.Done()
		close(observed)
		// Executor finished its current unit of work before noticing;
		// the produced result must still be discarded.
		return "late result", ErrCancelled
	})
	require.NoError(t, err)

	<-started
	require.NoError(t, o.Cancel())

	select {
	case <-observed:
	case <-time.After(5 * time.Second):
		t.Fatal("executor never observed cancellation")
	}

	state := rec.waitTerminal(t)
	require.Equal(t, StateCancelled, state)
	last := rec.last()
	assert.Nil(t, last.Result)
	assert.NoError(t, last.Err)
	assert.True(t, last.CancelRequested)
}

func TestCancelledWinsOverResult(t *testing.T) {
	o := New(zaptest.NewLogger(t))
	rec := newRecorder()
	o.Subscribe(rec.observe)

	started := make(chan struct{})
	cancelled := make(chan struct{})
	_, err := o.Start(context.Background(), TypeExpandAll, func(ctx context.Context, p Reporter) (any, error) {
		close(started)
		<-cancelled
		// Ignores the signal entirely and returns a value.
		return "stale", nil
	})
	require.NoError(t, err)

	<-started
	require.NoError(t, o.Cancel())
	close(cancelled)

	state := rec.waitTerminal(t)
	require.Equal(t, StateCancelled, state)
	assert.Nil(t, rec.last().Result)
}

func TestCancelErrors(t *testing.T) {
	o := New(zaptest.NewLogger(t))
	assert.ErrorIs(t, o.Cancel(), ErrNoOperation)

	reg := Registry{
		TypeParsePRD: {Type: TypeParsePRD, Phases: []string{"one"}, Cancellable: false},
	}
	o = New(zaptest.NewLogger(t), WithRegistry(reg))
	rec := newRecorder()
	o.Subscribe(rec.observe)

	release := make(chan struct{})
	_, err := o.Start(context.Background(), TypeParsePRD, func(ctx context.Context, p Reporter) (any, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	assert.ErrorIs(t, o.Cancel(), ErrNotCancellable)

	close(release)
	rec.waitTerminal(t)
}

func TestCloseLifecycle(t *testing.T) {
	o := New(zaptest.NewLogger(t))
	rec := newRecorder()
	o.Subscribe(rec.observe)

	// Close when idle is a no-op.
	require.NoError(t, o.Close())

	release := make(chan struct{})
	_, err := o.Start(context.Background(), TypeExpandTask, func(ctx context.Context, p Reporter) (any, error) {
		<-release
		return "done", nil
	})
	require.NoError(t, err)

	assert.ErrorIs(t, o.Close(), ErrNotTerminal)

	close(release)
	rec.waitTerminal(t)

	require.NoError(t, o.Close())
	snap := o.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Nil(t, snap.Result)
	assert.NoError(t, snap.Err)
}

func TestSubscribeMultipleAndUnsubscribe(t *testing.T) {
	o := New(zaptest.NewLogger(t))
	first := newRecorder()
	second := newRecorder()
	unsubFirst := o.Subscribe(first.observe)
	o.Subscribe(second.observe)

	_, err := o.Start(context.Background(), TypeExpandTask, func(ctx context.Context, p Reporter) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)
	first.waitTerminal(t)
	second.waitTerminal(t)

	// Both observers saw the full run.
	assert.Equal(t, first.states(), second.states())

	unsubFirst()
	require.NoError(t, o.Close())
	seen := len(first.states())

	_, err = o.Start(context.Background(), TypeExpandTask, func(ctx context.Context, p Reporter) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)
	second.waitTerminal(t)

	assert.Len(t, first.states(), seen, "unsubscribed observer kept receiving")
	assert.Greater(t, len(second.states()), seen)
}

func TestProgressHintRotation(t *testing.T) {
	o := New(zaptest.NewLogger(t), WithHintInterval(10*time.Millisecond))
	rec := newRecorder()
	o.Subscribe(rec.observe)

	release := make(chan struct{})
	_, err := o.Start(context.Background(), TypeParsePRD, func(ctx context.Context, p Reporter) (any, error) {
		p.Phase("Reading PRD")
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	hints := BuiltinRegistry()[TypeParsePRD].ProgressHints
	require.Eventually(t, func() bool {
		seen := map[string]bool{}
		rec.mu.Lock()
		defer rec.mu.Unlock()
		for _, s := range rec.snaps {
			if s.Hint != "" {
				seen[s.Hint] = true
			}
		}
		return len(seen) >= 2
	}, 2*time.Second, 10*time.Millisecond, "hint never rotated past %q", hints[0])

	close(release)
	rec.waitTerminal(t)

	// No further snapshots arrive after settlement: the ticker is gone.
	rec.mu.Lock()
	settled := len(rec.snaps)
	rec.mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	rec.mu.Lock()
	after := len(rec.snaps)
	rec.mu.Unlock()
	assert.Equal(t, settled, after)
}

func TestNoStaleSnapshotAfterTerminal(t *testing.T) {
	// A hint-rotation or cancel publisher builds its snapshot under the
	// state lock but delivers after releasing it. Under contention it must
	// never deliver a running-state snapshot once settlement has delivered
	// the terminal one for the same operation.
	o := New(zaptest.NewLogger(t), WithHintInterval(50*time.Microsecond))

	var mu sync.Mutex
	settled := make(map[string]bool)
	var stale []State
	done := make(chan struct{}, 1)
	o.Subscribe(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if s.ID == "" {
			// Idle snapshot from Close.
			return
		}
		if settled[s.ID] && !s.State.Terminal() {
			stale = append(stale, s.State)
		}
		if s.State.Terminal() && !settled[s.ID] {
			settled[s.ID] = true
			done <- struct{}{}
		}
	})

	for i := 0; i < 200; i++ {
		_, err := o.Start(context.Background(), TypeExpandTask, func(ctx context.Context, p Reporter) (any, error) {
			p.Phase("Loading task")
			time.Sleep(100 * time.Microsecond)
			return nil, nil
		})
		require.NoError(t, err)

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for settlement")
		}
		require.NoError(t, o.Close())
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, stale, "running-state snapshots delivered after settlement")
}

func TestProgressOverridesHint(t *testing.T) {
	o := New(zaptest.NewLogger(t))
	rec := newRecorder()
	o.Subscribe(rec.observe)

	_, err := o.Start(context.Background(), TypeExpandAll, func(ctx context.Context, p Reporter) (any, error) {
		p.Phase("Loading tasks")
		p.Progress("expanding task 12")
		return nil, nil
	})
	require.NoError(t, err)
	rec.waitTerminal(t)

	var found bool
	rec.mu.Lock()
	for _, s := range rec.snaps {
		if s.Hint == "expanding task 12" {
			found = true
			assert.Equal(t, StateProcessing, s.State, "Progress must not change state")
		}
	}
	rec.mu.Unlock()
	assert.True(t, found)
}

func TestParentContextCancellation(t *testing.T) {
	o := New(zaptest.NewLogger(t))
	rec := newRecorder()
	o.Subscribe(rec.observe)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	_, err := o.Start(ctx, TypeParsePRD, func(ctx context.Context, p Reporter) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)

	<-started
	cancel()

	state := rec.waitTerminal(t)
	assert.Equal(t, StateCancelled, state)
}
