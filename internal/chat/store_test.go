package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func at(sec int) time.Time {
	return time.Date(2025, 3, 1, 10, 0, sec, 0, time.UTC)
}

func TestStore_InsertOrMergeIdempotentByServerID(t *testing.T) {
	t.Parallel()

	s := NewStore()
	msg := Message{ID: "7", Kind: KindUser, Status: StatusSent, Time: at(0), Data: Payload{FieldText: "hi"}}

	s.InsertOrMerge(msg)
	s.InsertOrMerge(msg)

	require.Equal(t, 1, s.Len())
	got, ok := s.ByServerID("7")
	require.True(t, ok)
	require.Equal(t, "hi", got.Data.String(FieldText))
}

func TestStore_HistoryAndBroadcastRace(t *testing.T) {
	t.Parallel()

	// History entry at t=10:00:00, live broadcast of the same server message
	// at t=10:00:01: exactly one entry survives regardless of arrival order.
	history := Message{ID: "7", Kind: KindUser, Status: StatusSent, Time: at(0), Data: Payload{FieldText: "hi"}}
	broadcast := Message{ID: "7", Kind: KindUser, Status: StatusSent, Time: at(1), Data: Payload{FieldText: "hi"}}

	a := NewStore()
	a.InsertOrMerge(history)
	a.InsertOrMerge(broadcast)

	b := NewStore()
	b.InsertOrMerge(broadcast)
	b.InsertOrMerge(history)

	require.Equal(t, 1, a.Len())
	require.Equal(t, 1, b.Len())
}

func TestStore_MergeByClientIDPreservesOptimisticFields(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.InsertOrMerge(Message{
		ClientMessageID: "c-1",
		Kind:            KindUser,
		Status:          StatusPending,
		Time:            at(0),
		Data:            Payload{FieldText: "hi", FieldAvatarURL: "me.png"},
	})

	// Server echo omits the avatar; the merge must not erase it.
	s.InsertOrMerge(Message{
		ID:              "42",
		ClientMessageID: "c-1",
		Kind:            KindUser,
		Status:          StatusSent,
		Time:            at(2),
		Data:            Payload{FieldText: "hi", FieldAvatarURL: ""},
	})

	require.Equal(t, 1, s.Len())
	got, ok := s.ByClientID("c-1")
	require.True(t, ok)
	require.Equal(t, "42", got.ID)
	require.Equal(t, StatusSent, got.Status)
	require.Equal(t, "me.png", got.Data.String(FieldAvatarURL))
	require.True(t, got.Time.Equal(at(2)))

	// Now also indexed by server id.
	_, ok = s.ByServerID("42")
	require.True(t, ok)
}

func TestStore_MergeCommutative(t *testing.T) {
	t.Parallel()

	optimistic := Message{
		ClientMessageID: "c-1",
		Kind:            KindUser,
		Status:          StatusPending,
		Time:            at(0),
		Data:            Payload{FieldText: "hi", FieldAvatarURL: "me.png"},
	}
	echo := Message{
		ID:              "42",
		ClientMessageID: "c-1",
		Kind:            KindUser,
		Status:          StatusSent,
		Time:            at(3),
		Data:            Payload{FieldText: "hi"},
	}

	a := NewStore()
	a.InsertOrMerge(optimistic)
	a.InsertOrMerge(echo)

	b := NewStore()
	b.InsertOrMerge(echo)
	b.InsertOrMerge(optimistic)

	require.Equal(t, a.Messages(), b.Messages())
}

func TestStore_OrderedAscendingByTime(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.InsertOrMerge(Message{ID: "3", Time: at(3), Status: StatusSent})
	s.InsertOrMerge(Message{ID: "1", Time: at(1), Status: StatusSent})
	s.InsertOrMerge(Message{ID: "2", Time: at(2), Status: StatusSent})

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	for i := 1; i < len(msgs); i++ {
		require.False(t, msgs[i].Time.Before(msgs[i-1].Time), "out of order at %d", i)
	}
}

func TestStore_TiesKeepInsertionOrder(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.InsertOrMerge(Message{ID: "a", Time: at(1), Status: StatusSent})
	s.InsertOrMerge(Message{ID: "b", Time: at(1), Status: StatusSent})
	s.InsertOrMerge(Message{ID: "c", Time: at(1), Status: StatusSent})

	msgs := s.Messages()
	require.Equal(t, []string{"a", "b", "c"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})
}

func TestStore_AckUpdate(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.InsertOrMerge(Message{
		ClientMessageID: "c-1",
		Kind:            KindUser,
		Status:          StatusPending,
		Time:            at(0),
		Data:            Payload{FieldText: "hi"},
	})

	require.True(t, s.AckUpdate("c-1", "42", at(5), true))

	got, _ := s.ByClientID("c-1")
	require.Equal(t, "42", got.ID)
	require.Equal(t, StatusSent, got.Status)
	require.True(t, got.Time.Equal(at(5)))

	// Without a server time the existing timestamp is kept.
	s2 := NewStore()
	s2.InsertOrMerge(Message{ClientMessageID: "c-2", Status: StatusPending, Time: at(1)})
	require.True(t, s2.AckUpdate("c-2", "43", time.Time{}, false))
	got, _ = s2.ByClientID("c-2")
	require.True(t, got.Time.Equal(at(1)))

	require.False(t, s.AckUpdate("unknown", "44", at(0), false))
}

func TestStore_MarkFailedAndRestart(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.InsertOrMerge(Message{ClientMessageID: "c-1", Status: StatusPending, Time: at(0), Data: Payload{FieldText: "hi"}})

	require.True(t, s.MarkFailed("c-1"))
	got, _ := s.ByClientID("c-1")
	require.Equal(t, StatusFailed, got.Status)

	// Restart is only valid from failed.
	require.True(t, s.Restart("c-1", StatusPending, at(9)))
	got, _ = s.ByClientID("c-1")
	require.Equal(t, StatusPending, got.Status)
	require.True(t, got.Time.Equal(at(9)))

	require.False(t, s.Restart("c-1", StatusPending, at(10)))
}

func TestStore_MarkUploaded(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.InsertOrMerge(Message{ClientMessageID: "c-1", Kind: KindImage, Status: StatusUploading, Time: at(0), Data: DefaultPayload(KindImage)})

	require.True(t, s.MarkUploaded("c-1", Payload{FieldImageURL: "https://cdn/a.png"}))
	got, _ := s.ByClientID("c-1")
	require.Equal(t, StatusUploaded, got.Status)
	require.Equal(t, "https://cdn/a.png", got.Data.String(FieldImageURL))
}

func TestStore_DeliveredAndRead(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.InsertOrMerge(Message{ID: "7", Status: StatusSent, Time: at(0)})

	require.True(t, s.MarkDelivered("7"))
	got, _ := s.ByServerID("7")
	require.Equal(t, StatusDelivered, got.Status)

	require.True(t, s.MarkRead("7"))
	got, _ = s.ByServerID("7")
	require.Equal(t, StatusRead, got.Status)

	// A late sent-status merge cannot regress the lifecycle.
	s.InsertOrMerge(Message{ID: "8", ClientMessageID: "c-8", Status: StatusRead, Time: at(1)})
	s.InsertOrMerge(Message{ClientMessageID: "c-8", Status: StatusSent, Time: at(1)})
	got, _ = s.ByServerID("8")
	require.Equal(t, StatusRead, got.Status)

	require.False(t, s.MarkDelivered("missing"))
}

func TestStore_SnapshotsAreCopies(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.InsertOrMerge(Message{ID: "7", Status: StatusSent, Time: at(0), Data: Payload{FieldText: "hi"}})

	msgs := s.Messages()
	msgs[0].Data[FieldText] = "mutated"

	got, _ := s.ByServerID("7")
	require.Equal(t, "hi", got.Data.String(FieldText))
}
