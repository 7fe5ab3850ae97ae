package operations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// defaultHintInterval is how often the rotating progress hint advances
// while an operation is processing.
const defaultHintInterval = 4 * time.Second

// Orchestrator owns at most one in-flight operation and drives it through
// the operation state machine. All methods are safe for concurrent use.
type Orchestrator struct {
	logger       *zap.Logger
	registry     Registry
	hintInterval time.Duration

	mu     sync.Mutex
	op     *operation
	subs   map[int]func(Snapshot)
	nextID int
	seq    uint64

	// pubMu serializes delivery to subscribers. Snapshots are built under
	// o.mu but published after releasing it, so without this a publisher
	// that lost the race could deliver a stale running-state snapshot
	// after the terminal one.
	pubMu     sync.Mutex
	delivered uint64
}

// operation is the orchestrator-private record of one invocation.
type operation struct {
	id              string
	cfg             Config
	state           State
	phaseIndex      int
	phaseNamed      bool
	hintIndex       int
	hintOverride    string
	startedAt       time.Time
	cancelRequested bool
	cancel          context.CancelFunc
	result          any
	err             error
	stopTick        chan struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRegistry replaces the builtin operation registry.
func WithRegistry(r Registry) Option {
	return func(o *Orchestrator) { o.registry = r }
}

// WithHintInterval overrides the progress-hint rotation interval.
func WithHintInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.hintInterval = d
		}
	}
}

// New creates an idle Orchestrator.
func New(logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		logger:       logger,
		registry:     BuiltinRegistry(),
		hintInterval: defaultHintInterval,
		subs:         make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start begins a new operation of the given type. It fails with ErrBusy
// while another operation is preparing or processing; a previous terminal
// operation is replaced. The executor runs in its own goroutine; Start
// returns as soon as the operation reaches the preparing state.
func (o *Orchestrator) Start(ctx context.Context, typ Type, exec Executor) (Handle, error) {
	if exec == nil {
		return Handle{}, errors.New("executor is required")
	}
	cfg, ok := o.registry.Lookup(typ)
	if !ok {
		return Handle{}, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}

	o.mu.Lock()
	if o.op != nil && o.op.state.Running() {
		o.mu.Unlock()
		return Handle{}, ErrBusy
	}
	execCtx, cancel := context.WithCancel(ctx)
	op := &operation{
		id:        uuid.NewString(),
		cfg:       cfg,
		state:     StatePreparing,
		startedAt: time.Now(),
		cancel:    cancel,
	}
	o.op = op
	snap, subs := o.snapshotLocked()
	o.mu.Unlock()

	o.logger.Info("operation started",
		zap.String("operation_id", op.id),
		zap.String("type", string(typ)))
	o.publish(subs, snap)

	go o.run(execCtx, op, exec)

	return Handle{ID: op.id, Type: typ}, nil
}

// Cancel requests cooperative cancellation of the in-flight operation. It
// closes the executor's context; the operation reaches the cancelled state
// once the executor returns. Cancel is idempotent while the operation runs.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	op := o.op
	if op == nil || !op.state.Running() {
		o.mu.Unlock()
		return ErrNoOperation
	}
	if !op.cfg.Cancellable {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotCancellable, op.cfg.Type)
	}
	if op.cancelRequested {
		o.mu.Unlock()
		return nil
	}
	op.cancelRequested = true
	op.cancel()
	snap, subs := o.snapshotLocked()
	o.mu.Unlock()

	o.logger.Info("operation cancellation requested",
		zap.String("operation_id", op.id),
		zap.String("type", string(op.cfg.Type)))
	o.publish(subs, snap)
	return nil
}

// Subscribe registers an observer for state changes and returns its
// unsubscribe handle. Observers are invoked synchronously, in subscription
// order, for every state change; delivery holds an internal lock, so an
// observer must not call back into Start, Cancel, or Close.
func (o *Orchestrator) Subscribe(fn func(Snapshot)) func() {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

// Close dismisses a finished operation and resets the orchestrator to idle.
// It fails with ErrNotTerminal while the operation is still running.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	op := o.op
	if op == nil {
		o.mu.Unlock()
		return nil
	}
	if op.state.Running() {
		o.mu.Unlock()
		return ErrNotTerminal
	}
	o.stopTickLocked(op)
	o.op = nil
	snap, subs := o.snapshotLocked()
	o.mu.Unlock()

	o.publish(subs, snap)
	return nil
}

// Snapshot returns the current state without subscribing.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	snap, _ := o.snapshotLocked()
	o.mu.Unlock()
	return snap
}

// run executes the caller-supplied closure and settles the operation.
func (o *Orchestrator) run(ctx context.Context, op *operation, exec Executor) {
	result, err := exec(ctx, &reporter{orch: o, op: op})
	o.settle(op, result, err)
}

// settle records the executor outcome. Cancellation wins over any result
// or error the executor produced after the request landed.
func (o *Orchestrator) settle(op *operation, result any, err error) {
	o.mu.Lock()
	if o.op != op {
		// Already dismissed; nothing to report.
		o.mu.Unlock()
		return
	}
	o.stopTickLocked(op)
	switch {
	case op.cancelRequested || errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled):
		op.state = StateCancelled
		op.result = nil
		op.err = nil
	case err != nil:
		op.state = StateErrored
		op.err = err
	default:
		op.state = StateCompleted
		op.result = result
	}
	op.cancel()
	state := op.state
	snap, subs := o.snapshotLocked()
	o.mu.Unlock()

	switch state {
	case StateErrored:
		o.logger.Error("operation failed",
			zap.String("operation_id", op.id),
			zap.String("type", string(op.cfg.Type)),
			zap.Error(err))
	default:
		o.logger.Info("operation finished",
			zap.String("operation_id", op.id),
			zap.String("type", string(op.cfg.Type)),
			zap.String("state", string(state)))
	}
	o.publish(subs, snap)
}

// startTickLocked begins hint rotation for a processing operation.
// Caller holds o.mu.
func (o *Orchestrator) startTickLocked(op *operation) {
	if op.stopTick != nil {
		return
	}
	stop := make(chan struct{})
	op.stopTick = stop
	go func() {
		ticker := time.NewTicker(o.hintInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				o.rotateHint(op)
			}
		}
	}()
}

// stopTickLocked halts hint rotation. Caller holds o.mu.
func (o *Orchestrator) stopTickLocked(op *operation) {
	if op.stopTick != nil {
		close(op.stopTick)
		op.stopTick = nil
	}
}

func (o *Orchestrator) rotateHint(op *operation) {
	o.mu.Lock()
	if o.op != op || op.state != StateProcessing {
		o.mu.Unlock()
		return
	}
	if n := len(op.cfg.ProgressHints); n > 0 {
		op.hintIndex = (op.hintIndex + 1) % n
	}
	op.hintOverride = ""
	snap, subs := o.snapshotLocked()
	o.mu.Unlock()
	o.publish(subs, snap)
}

// snapshotLocked builds the current snapshot and the ordered subscriber
// list. Caller holds o.mu.
func (o *Orchestrator) snapshotLocked() (Snapshot, []func(Snapshot)) {
	ids := make([]int, 0, len(o.subs))
	for id := range o.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(Snapshot), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, o.subs[id])
	}

	o.seq++
	op := o.op
	if op == nil {
		return Snapshot{State: StateIdle, seq: o.seq}, subs
	}
	snap := Snapshot{
		seq:             o.seq,
		ID:              op.id,
		Type:            op.cfg.Type,
		Title:           op.cfg.Title,
		State:           op.state,
		Phases:          op.cfg.Phases,
		PhaseIndex:      op.phaseIndex,
		StartedAt:       op.startedAt,
		Elapsed:         time.Since(op.startedAt),
		CancelRequested: op.cancelRequested,
		Result:          op.result,
		Err:             op.err,
	}
	if op.phaseNamed && op.phaseIndex < len(op.cfg.Phases) {
		snap.Phase = op.cfg.Phases[op.phaseIndex]
	}
	switch {
	case op.hintOverride != "":
		snap.Hint = op.hintOverride
	case len(op.cfg.ProgressHints) > 0:
		snap.Hint = op.cfg.ProgressHints[op.hintIndex%len(op.cfg.ProgressHints)]
	}
	return snap, subs
}

// publish delivers a snapshot to subscribers, in order. Snapshots that lost
// the race to a newer one are dropped rather than delivered out of order.
func (o *Orchestrator) publish(subs []func(Snapshot), snap Snapshot) {
	o.pubMu.Lock()
	defer o.pubMu.Unlock()
	if snap.seq <= o.delivered {
		return
	}
	o.delivered = snap.seq
	for _, fn := range subs {
		fn(snap)
	}
}

// reporter forwards executor callbacks to the orchestrator. It drops
// reports from an operation that has already settled or been dismissed.
type reporter struct {
	orch *Orchestrator
	op   *operation
}

func (r *reporter) Phase(name string) {
	o := r.orch
	op := r.op
	o.mu.Lock()
	if o.op != op || op.state.Terminal() {
		o.mu.Unlock()
		return
	}
	if op.state == StatePreparing {
		op.state = StateProcessing
		o.startTickLocked(op)
	}
	if idx := indexOf(op.cfg.Phases, name); idx >= 0 {
		op.phaseIndex = idx
	} else if op.phaseNamed {
		op.phaseIndex++
	}
	op.phaseNamed = true
	snap, subs := o.snapshotLocked()
	o.mu.Unlock()
	o.publish(subs, snap)
}

func (r *reporter) Progress(hint string) {
	o := r.orch
	op := r.op
	o.mu.Lock()
	if o.op != op || op.state.Terminal() {
		o.mu.Unlock()
		return
	}
	op.hintOverride = hint
	snap, subs := o.snapshotLocked()
	o.mu.Unlock()
	o.publish(subs, snap)
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}
