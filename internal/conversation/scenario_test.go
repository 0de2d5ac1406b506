package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/makerlink/chat/internal/actor"
	"github.com/makerlink/chat/internal/actor/actortest"
	"github.com/makerlink/chat/internal/api"
	"github.com/makerlink/chat/internal/chat"
	"github.com/makerlink/chat/internal/wire"
)

// scenarioRuntime drives the loop end to end: every network effect settles
// immediately with a canned response, as if a well-behaved server answered.
func scenarioRuntime(clock actor.Clock) *actortest.FakeRuntime {
	rt := &actortest.FakeRuntime{}
	rt.EmitFn = func(ctx context.Context, eff actor.Effect, emit func(actor.Input)) {
		switch e := eff.(type) {
		case effFetchHistory:
			emit(evHistoryFetched{
				Gen: e.Gen,
				Messages: []wire.RawMessage{
					{"id": "h1", "type": "user", "content": "welcome", "senderId": "maker-1", "time": float64(t0.Add(-time.Hour).UnixMilli())},
				},
				Participants: api.Participants{MakerID: "maker-1", CreatorID: "creator-1"},
				Now:          clock.Now(),
			})
		case effEmitMessage:
			emit(evMessageAck{Gen: e.Gen, Ack: wire.MessageAck{
				ClientMessageID: e.ClientID,
				ServerID:        "srv-" + e.ClientID,
				Time:            clock.Now(),
				HasTime:         true,
			}})
		case effUploadImage:
			emit(evUploadFinished{
				Gen:      e.Gen,
				ClientID: e.ClientID,
				ImageURL: "https://cdn/" + e.FileName,
				Now:      clock.Now(),
			})
		}
	}
	return rt
}

func TestLoopSendTextRoundTrip(t *testing.T) {
	clock := actortest.NewFakeClock(t0)
	rt := scenarioRuntime(clock)
	loop := actor.New(NewState(chat.RoleCreator, "creator-1"), Reduce, rt)
	loop.Start()
	defer loop.Stop()

	reply := make(chan error, 1)
	require.True(t, loop.Enqueue(cmdOpen{Gen: 1, ConversationID: "conv-1", Reply: reply}))
	select {
	case err := <-reply:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("open did not settle")
	}

	require.True(t, loop.Enqueue(cmdSendText{ClientID: "c1", Text: "hello maker", Now: clock.Now()}))

	require.Eventually(t, func() bool {
		msg, ok := loop.State().Store.ByClientID("c1")
		return ok && msg.Status == chat.StatusSent && msg.ID == "srv-c1"
	}, 2*time.Second, 5*time.Millisecond)

	msgs := loop.State().Store.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "h1", msgs[0].ID, "history precedes the fresh send")
}

func TestLoopImageUploadRoundTrip(t *testing.T) {
	clock := actortest.NewFakeClock(t0)
	rt := scenarioRuntime(clock)
	loop := actor.New(NewState(chat.RoleMaker, "maker-1"), Reduce, rt)
	loop.Start()
	defer loop.Stop()

	reply := make(chan error, 1)
	require.True(t, loop.Enqueue(cmdOpen{Gen: 1, ConversationID: "conv-1", Reply: reply}))
	require.NoError(t, <-reply)

	require.True(t, loop.Enqueue(cmdSendImage{ClientID: "c1", FileName: "cat.png", Data: []byte{1, 2}, PreviewRef: "blob-1", Now: clock.Now()}))

	// Upload finishes, the wire message goes out, and the ack attaches the
	// server identity without downgrading uploaded.
	require.Eventually(t, func() bool {
		msg, ok := loop.State().Store.ByClientID("c1")
		return ok && msg.Status == chat.StatusUploaded && msg.ID == "srv-c1"
	}, 2*time.Second, 5*time.Millisecond)

	msg, _ := loop.State().Store.ByClientID("c1")
	require.Equal(t, "https://cdn/cat.png", msg.Data.String(chat.FieldImageURL))

	var releases int
	for _, eff := range rt.Effects() {
		if rel, ok := eff.(effReleasePreview); ok {
			require.Equal(t, "blob-1", rel.Ref)
			releases++
		}
	}
	require.Equal(t, 1, releases, "preview released exactly once")
}

func TestLoopReopenSupersedesSlowHistory(t *testing.T) {
	clock := actortest.NewFakeClock(t0)
	rt := &actortest.FakeRuntime{}

	// The first fetch never answers; the second answers immediately.
	rt.EmitFn = func(ctx context.Context, eff actor.Effect, emit func(actor.Input)) {
		e, ok := eff.(effFetchHistory)
		if !ok || e.Gen != 2 {
			return
		}
		emit(evHistoryFetched{Gen: 2, Participants: api.Participants{MakerID: "maker-1"}, Now: clock.Now()})
		// The stale fetch settles after the reopen and must be discarded.
		emit(evHistoryFetched{
			Gen:      1,
			Messages: []wire.RawMessage{{"id": "stale", "type": "user", "content": "old"}},
			Now:      clock.Now(),
		})
	}

	loop := actor.New(NewState(chat.RoleCreator, "creator-1"), Reduce, rt)
	loop.Start()
	defer loop.Stop()

	require.True(t, loop.Enqueue(cmdOpen{Gen: 1, ConversationID: "conv-1"}))
	reply := make(chan error, 1)
	require.True(t, loop.Enqueue(cmdOpen{Gen: 2, ConversationID: "conv-2", Reply: reply}))
	require.NoError(t, <-reply)

	require.Eventually(t, func() bool {
		return loop.State().HistoryLoaded
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 0, loop.State().Store.Len(), "stale history never lands")
	require.Equal(t, "conv-2", loop.State().ConversationID)
}
