// Package actor implements the single-goroutine event loop the conversation
// engine runs on.
//
// The model mirrors a UI event loop:
//   - one goroutine (the loop) owns all mutable conversation state,
//   - a pure reducer turns (state, input) into (state, effects),
//   - a runtime interprets effects (network calls, timers) asynchronously and
//     feeds resulting events back into the mailbox.
//
// Every mutation of shared state happens on the loop, so the reconciliation
// store and optimistic cache need no locks, and reducers can be tested
// deterministically with actor.Step.
package actor

import (
	"context"
	"errors"
	"sync"
)

// Input is an item delivered to the loop mailbox: either a command from a
// caller or an event observed by the runtime.
type Input interface {
	isInput()
}

// Effect is a declarative side-effect produced by a reducer. Effects are
// data; the Runtime executes them and emits follow-up inputs.
type Effect interface {
	isEffect()
}

// Reducer is a pure state transition function.
//
// Reducers must not perform I/O, spawn goroutines, read clocks, or mint
// random identifiers; all of those are injected through inputs.
type Reducer[S any] func(state S, input Input) (next S, effects []Effect)

// Runtime interprets effects emitted by the reducer.
//
// HandleEffects must return quickly; blocking work runs asynchronously and
// reports back through emit. Implementations must stop emitting once the
// context is canceled.
type Runtime interface {
	HandleEffects(ctx context.Context, effects []Effect, emit func(Input))
	Stop()
}

// Hooks provide optional observability into the loop.
type Hooks[S any] struct {
	// OnInput is called after an input is dequeued, before reducing.
	OnInput func(input Input)
	// OnTransition is called after the new state is applied.
	OnTransition func(prev S, next S, input Input)
	// OnPanic is called when the loop panics. If nil, panics propagate.
	OnPanic func(recovered any)
}

// Loop runs a single-threaded event loop that owns state of type S.
type Loop[S any] struct {
	reduce  Reducer[S]
	runtime Runtime
	hooks   Hooks[S]

	mu      sync.Mutex
	state   S
	mailbox chan Input
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// New creates a loop with the given initial state, reducer, and runtime.
func New[S any](initial S, reducer Reducer[S], runtime Runtime) *Loop[S] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop[S]{
		reduce:  reducer,
		runtime: runtime,
		state:   initial,
		mailbox: make(chan Input, 256),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// SetHooks attaches hooks. Must be called before Start.
func (l *Loop[S]) SetHooks(hooks Hooks[S]) {
	l.hooks = hooks
}

// Start launches the loop goroutine. Start is idempotent.
func (l *Loop[S]) Start() {
	l.once.Do(func() { go l.run() })
}

// Stop cancels the loop and stops the runtime. Safe to call multiple times.
func (l *Loop[S]) Stop() {
	l.cancel()
	if l.runtime != nil {
		l.runtime.Stop()
	}
}

// Done returns a channel that closes when the loop exits.
func (l *Loop[S]) Done() <-chan struct{} { return l.done }

// Enqueue delivers an input to the mailbox.
//
// Returns false when the loop is stopped or the mailbox is full; callers that
// need backpressure should apply their own flow control.
func (l *Loop[S]) Enqueue(input Input) bool {
	if input == nil {
		return false
	}
	select {
	case <-l.ctx.Done():
		return false
	default:
	}
	select {
	case l.mailbox <- input:
		return true
	default:
		return false
	}
}

// State returns a snapshot of the current loop state.
//
// Intended for rendering and tests; behavior should be derived from reducer
// outputs rather than concurrent state reads.
func (l *Loop[S]) State() S {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop[S]) run() {
	defer close(l.done)
	defer func() {
		if r := recover(); r != nil {
			if l.hooks.OnPanic != nil {
				l.hooks.OnPanic(r)
				return
			}
			panic(r)
		}
	}()

	emit := func(in Input) {
		_ = l.Enqueue(in)
	}

	for {
		select {
		case <-l.ctx.Done():
			return
		case in := <-l.mailbox:
			if in == nil {
				continue
			}
			if l.hooks.OnInput != nil {
				l.hooks.OnInput(in)
			}

			l.mu.Lock()
			prev := l.state
			l.mu.Unlock()

			next, effects := l.reduce(prev, in)

			l.mu.Lock()
			l.state = next
			l.mu.Unlock()

			if l.hooks.OnTransition != nil {
				l.hooks.OnTransition(prev, next, in)
			}
			if l.runtime != nil && len(effects) > 0 {
				l.runtime.HandleEffects(l.ctx, effects, emit)
			}
		}
	}
}

// ErrStopped is returned by helpers when the loop has been stopped.
var ErrStopped = errors.New("loop stopped")
