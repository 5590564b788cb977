package jam

import (
	"testing"
	"time"

	"JamFM/core/event"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeDuringMutationDoesNotWedge(t *testing.T) {
	hub := event.NewHub()
	m := NewManager(hub, Stores{}, 0)
	defer m.Close()

	session, err := m.Open(1, 2)
	require.NoError(t, err)

	// Mutations emit under the session mutex while viewers connect and
	// snapshot concurrently; both sides must keep making progress.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_, err := session.Enqueue("t", int64(i))
			assert.NoError(t, err)
		}
	}()

	for i := 0; i < 20; i++ {
		sub := session.SubscribeEvents(hub, 10)
		first := <-sub.C
		require.Equal(t, event.TypeSnapshot, first.EventType)
		hub.Unsubscribe(sub)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("enqueues wedged while subscribers were connecting")
	}
}

func TestSnapshotAndDeltasFormConsistentView(t *testing.T) {
	hub := event.NewHub()
	m := NewManager(hub, Stores{}, 0)
	defer m.Close()

	session, err := m.Open(1, 2)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := session.Enqueue("before", 1)
		require.NoError(t, err)
	}

	sub := session.SubscribeEvents(hub, 0)
	defer hub.Unsubscribe(sub)

	for i := 0; i < 2; i++ {
		_, err := session.Enqueue("after", 1)
		require.NoError(t, err)
	}

	// The snapshot carries everything up to the subscription point.
	first := <-sub.C
	require.Equal(t, event.TypeSnapshot, first.EventType)
	snap, ok := first.Data.(*event.SessionSnapshot)
	require.True(t, ok)
	require.Len(t, snap.Queue, 3)

	// Every later enqueue arrives exactly once, in position order, with
	// no overlap into the snapshot.
	seen := map[int]bool{}
	for _, entry := range snap.Queue {
		seen[entry.Position] = true
	}
	for i := 0; i < 2; i++ {
		select {
		case envelope := <-sub.C:
			require.Equal(t, event.TypeQueueUpdated, envelope.EventType)
			update, ok := envelope.Data.(*event.QueueUpdate)
			require.True(t, ok)
			require.NotNil(t, update.Entry)
			assert.Equal(t, "after", update.Entry.TrackID)
			assert.False(t, seen[update.Entry.Position], "delta duplicates a snapshot entry")
			seen[update.Entry.Position] = true
		case <-time.After(time.Second):
			t.Fatal("missing queue delta after subscribe")
		}
	}
	assert.Len(t, seen, 5)
}
