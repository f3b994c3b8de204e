package whatsapp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEntry(id string) *Entry {
	e := &Entry{SessionID: id, Status: "connecting", conn: newFakeConn(id), done: make(chan struct{})}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e
}

func TestRegistryCommitRequiresCurrentGeneration(t *testing.T) {
	r := NewRegistry()

	gen, prev := r.begin("s1")
	assert.Nil(t, prev)

	// a teardown between begin and commit invalidates the pending create
	r.begin("s1")
	assert.False(t, r.commit(gen, newEntry("s1")))
	assert.Equal(t, 0, r.Len())

	gen, _ = r.begin("s1")
	e := newEntry("s1")
	require.True(t, r.commit(gen, e))
	assert.True(t, r.isCurrent(e))

	got, ok := r.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "connecting", got.Status)
}

func TestRegistryStaleHandleIsIgnored(t *testing.T) {
	r := NewRegistry()

	gen, _ := r.begin("s1")
	old := newEntry("s1")
	require.True(t, r.commit(gen, old))

	gen, prev := r.begin("s1")
	assert.Same(t, old, prev)
	fresh := newEntry("s1")
	require.True(t, r.commit(gen, fresh))

	assert.False(t, r.update(old, func(e *Entry) { e.Status = "connected" }))
	assert.False(t, r.removeIfCurrent(old))
	_, ok := r.beginIfCurrent(old)
	assert.False(t, ok)

	got, _ := r.Get("s1")
	assert.Equal(t, "connecting", got.Status)
}

func TestRegistrySnapshotIsACopy(t *testing.T) {
	r := NewRegistry()
	gen, _ := r.begin("s1")
	e := newEntry("s1")
	require.True(t, r.commit(gen, e))

	snap, _ := r.Get("s1")
	snap.Status = "mutated"

	got, _ := r.Get("s1")
	assert.Equal(t, "connecting", got.Status)
}

func TestRegistryListAndCount(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"b", "a", "c"} {
		gen, _ := r.begin(id)
		e := newEntry(id)
		if id != "b" {
			e.Status = "connected"
		}
		require.True(t, r.commit(gen, e))
	}

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].SessionID)
	assert.Equal(t, "c", list[2].SessionID)
	assert.Equal(t, 2, r.countStatus("connected"))
}
