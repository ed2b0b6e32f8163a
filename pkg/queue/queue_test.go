package queue

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartkitchen/smk/pkg/model"
)

func entry(client string, fused int64) model.Entry {
	return model.Entry{ClientID: client, Dish: "dish-" + client, SenderTS: 1, FusedTS: fused}
}

func TestQueue_Empty(t *testing.T) {
	var q Queue
	_, ok := q.Peek()
	assert.False(t, ok)
	_, ok = q.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.IsHead(entry("a", 1)))
	assert.Empty(t, q.Snapshot())
}

func TestQueue_TieBreakByClient(t *testing.T) {
	var q Queue
	// b arrives first, both fused to 2.
	q.Push(entry("b", 2))
	q.Push(entry("a", 2))

	first, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", first.ClientID)

	second, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", second.ClientID)
}

func TestQueue_DrainIsTotalOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	clients := []string{"a", "b", "c", "d"}

	var q Queue
	for i := 0; i < 500; i++ {
		q.Push(entry(clients[rng.Intn(len(clients))], int64(rng.Intn(50)+1)))
	}

	var prev model.Entry
	for i := 0; q.Len() > 0; i++ {
		e, ok := q.Pop()
		require.True(t, ok)
		if i > 0 {
			require.False(t, e.Less(prev), "entry %+v came out after %+v", e, prev)
		}
		prev = e
	}
}

func TestQueue_PeekDoesNotRemove(t *testing.T) {
	var q Queue
	q.Push(entry("x", 3))
	q.Push(entry("y", 1))

	head, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, "y", head.ClientID)
	assert.Equal(t, 2, q.Len())
}

func TestQueue_IsHead(t *testing.T) {
	var q Queue
	q.Push(entry("a", 5))
	q.Push(entry("b", 4))

	assert.True(t, q.IsHead(entry("b", 4)))
	assert.False(t, q.IsHead(entry("a", 5)))
	assert.False(t, q.IsHead(entry("b", 5)), "same client, different fused")
}

func TestQueue_SnapshotSortedAndDetached(t *testing.T) {
	var q Queue
	for _, e := range []model.Entry{entry("c", 3), entry("a", 9), entry("b", 3), entry("d", 1)} {
		q.Push(e)
	}

	snap := q.Snapshot()
	got := make([]string, len(snap))
	for i, e := range snap {
		got[i] = e.ClientID
	}
	assert.Equal(t, []string{"d", "b", "c", "a"}, got)

	snap[0].ClientID = "mutated"
	head, _ := q.Peek()
	assert.Equal(t, "d", head.ClientID)
	assert.Equal(t, 4, q.Len())
}

func TestQueue_Clear(t *testing.T) {
	var q Queue
	q.Push(entry("a", 1))
	q.Push(entry("b", 2))
	q.Clear()
	assert.Equal(t, 0, q.Len())

	q.Push(entry("c", 3))
	head, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, "c", head.ClientID)
}
