package actor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/makerlink/chat/internal/actor"
	"github.com/makerlink/chat/internal/actor/actortest"
)

type counterState struct {
	Value int
}

type inAdd struct {
	actor.InputBase
	N int
}

type effPing struct {
	actor.EffectBase
	Value int
}

func reduceCounter(state counterState, input actor.Input) (counterState, []actor.Effect) {
	switch in := input.(type) {
	case inAdd:
		state.Value += in.N
		return state, []actor.Effect{effPing{Value: state.Value}}
	default:
		return state, nil
	}
}

func TestLoop_ReducesAndHandsEffectsToRuntime(t *testing.T) {
	t.Parallel()

	rt := &actortest.FakeRuntime{}
	l := actor.New(counterState{}, reduceCounter, rt)
	l.Start()
	defer l.Stop()

	for i := 0; i < 3; i++ {
		require.True(t, l.Enqueue(inAdd{N: 2}))
	}

	require.Eventually(t, func() bool {
		return l.State().Value == 6
	}, time.Second, 5*time.Millisecond)

	effects := rt.Effects()
	require.Len(t, effects, 3)
	last, ok := effects[2].(effPing)
	require.True(t, ok)
	require.Equal(t, 6, last.Value)
}

func TestLoop_EnqueueAfterStopFails(t *testing.T) {
	t.Parallel()

	l := actor.New(counterState{}, reduceCounter, &actortest.FakeRuntime{})
	l.Start()
	l.Stop()

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatalf("loop did not exit after Stop")
	}
	require.False(t, l.Enqueue(inAdd{N: 1}))
}

func TestFakeRuntime_EmitFnFeedsBack(t *testing.T) {
	t.Parallel()

	rt := &actortest.FakeRuntime{}
	rt.EmitFn = func(_ context.Context, eff actor.Effect, emit func(actor.Input)) {
		if ping, ok := eff.(effPing); ok && ping.Value == 2 {
			emit(inAdd{N: 10})
		}
	}

	l := actor.New(counterState{}, reduceCounter, rt)
	l.Start()
	defer l.Stop()

	require.True(t, l.Enqueue(inAdd{N: 2}))
	require.Eventually(t, func() bool {
		return l.State().Value == 12
	}, time.Second, 5*time.Millisecond)
}

func TestStep_DoesNotExecuteEffects(t *testing.T) {
	t.Parallel()

	next, effects := actor.Step(counterState{Value: 1}, inAdd{N: 4}, reduceCounter)
	require.Equal(t, 5, next.Value)
	require.Len(t, effects, 1)
}
