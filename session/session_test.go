package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrpc/corerpc/session"
)

func TestCreateAndGetSession(t *testing.T) {
	mgr := session.NewManager()
	mgr.Create("s1")

	rec, ok := mgr.Get("s1")
	require.True(t, ok)
	assert.False(t, rec.Initialized)
}

func TestMarkInitializedSetsNegotiatedVersion(t *testing.T) {
	mgr := session.NewManager()
	mgr.Create("s1")

	require.NoError(t, mgr.MarkInitialized("s1", "2025-03-26"))

	rec, ok := mgr.Get("s1")
	require.True(t, ok)
	assert.True(t, rec.Initialized)
	assert.Equal(t, "2025-03-26", rec.NegotiatedProtocolVersion)
}

func TestMarkInitializedUnknownSessionFails(t *testing.T) {
	mgr := session.NewManager()
	err := mgr.MarkInitialized("missing", "2025-03-26")
	require.Error(t, err)
}

func TestDeleteRemovesSessionAndStream(t *testing.T) {
	mgr := session.NewManager()
	mgr.Create("s1")
	_, err := mgr.RegisterStream("s1")
	require.NoError(t, err)

	mgr.Delete("s1")

	_, ok := mgr.Get("s1")
	assert.False(t, ok)
	assert.False(t, mgr.HasStream("s1"))
}

func TestRegisterStreamRejectsDuplicate(t *testing.T) {
	mgr := session.NewManager()
	mgr.Create("s1")
	_, err := mgr.RegisterStream("s1")
	require.NoError(t, err)

	_, err = mgr.RegisterStream("s1")
	require.Error(t, err)
}

func TestSendDeliversToRegisteredStream(t *testing.T) {
	mgr := session.NewManager()
	mgr.Create("s1")
	ch, err := mgr.RegisterStream("s1")
	require.NoError(t, err)

	delivered := mgr.Send("s1", []byte("hello"))
	assert.True(t, delivered)

	select {
	case msg := <-ch:
		assert.Equal(t, []byte("hello"), msg)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestSendToUnknownSessionReportsFalse(t *testing.T) {
	mgr := session.NewManager()
	assert.False(t, mgr.Send("missing", []byte("x")))
}

func TestEventStoreReplayAfterKnownID(t *testing.T) {
	store := session.NewEventStore()
	e1 := store.StoreEvent("stream-1", []byte("one"))
	e2 := store.StoreEvent("stream-1", []byte("two"))
	e3 := store.StoreEvent("stream-1", []byte("three"))

	replayed := store.ReplayEventsAfter(e1.EventID)
	require.Len(t, replayed, 2)
	assert.Equal(t, e2.EventID, replayed[0].EventID)
	assert.Equal(t, e3.EventID, replayed[1].EventID)

	assert.Empty(t, store.ReplayEventsAfter(e3.EventID))
}

func TestEventStoreReplayUnknownIDReturnsEverything(t *testing.T) {
	store := session.NewEventStore()
	store.StoreEvent("stream-1", []byte("one"))
	store.StoreEvent("stream-1", []byte("two"))

	replayed := store.ReplayEventsAfter("does-not-exist")
	assert.Len(t, replayed, 2)
}

func TestEventStoreGetStreamForEvent(t *testing.T) {
	store := session.NewEventStore()
	e := store.StoreEvent("stream-7", []byte("payload"))

	streamID, ok := store.GetStreamForEvent(e.EventID)
	require.True(t, ok)
	assert.Equal(t, "stream-7", streamID)

	_, ok = store.GetStreamForEvent("unknown")
	assert.False(t, ok)
}
