package broker

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_AddRemove(t *testing.T) {
	var r Registry
	assert.Equal(t, 0, r.Len())

	r.Add(&fakePeer{id: "a"})
	r.Add(&fakePeer{id: "b"})
	assert.Equal(t, 2, r.Len())

	assert.True(t, r.Remove("a"))
	assert.False(t, r.Remove("a"))
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, "b", r.Snapshot()[0].ID())
}

func TestRegistry_AddSameIDReplaces(t *testing.T) {
	var r Registry
	first := &fakePeer{id: "a"}
	second := &fakePeer{id: "a"}
	r.Add(first)
	r.Add(second)
	assert.Equal(t, 1, r.Len())
	assert.Same(t, second, r.Snapshot()[0])
}

func TestRegistry_SnapshotIsStable(t *testing.T) {
	var r Registry
	r.Add(&fakePeer{id: "a"})
	snap := r.Snapshot()
	r.Add(&fakePeer{id: "b"})
	r.Remove("a")
	assert.Len(t, snap, 1)
	assert.Equal(t, "a", snap[0].ID())
}

func TestRegistry_CloseAll(t *testing.T) {
	var r Registry
	a, b := &fakePeer{id: "a"}, &fakePeer{id: "b"}
	r.Add(a)
	r.Add(b)

	r.CloseAll()
	assert.Equal(t, 0, r.Len())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	var r Registry
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		id := fmt.Sprintf("p%d", i)
		go func() {
			defer wg.Done()
			r.Add(&fakePeer{id: id})
		}()
		go func() {
			defer wg.Done()
			for _, p := range r.Snapshot() {
				_ = p.ID()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, r.Len())

	for i := 0; i < 20; i += 2 {
		r.Remove(fmt.Sprintf("p%d", i))
	}
	assert.Equal(t, 10, r.Len())
}
