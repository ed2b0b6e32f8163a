package clock

import (
	"sort"
	"sync"
	"testing"
)

func TestTickMonotonicallyIncreases(t *testing.T) {
	var c Clock
	prev := c.Value()
	for i := 0; i < 100; i++ {
		ts := c.Tick()
		if ts <= prev {
			t.Fatalf("Tick %d: got %d, want > %d", i, ts, prev)
		}
		prev = ts
	}
}

func TestTickStartsFromZero(t *testing.T) {
	var c Clock
	if v := c.Value(); v != 0 {
		t.Fatalf("new clock: got %d, want 0", v)
	}
	if ts := c.Tick(); ts != 1 {
		t.Fatalf("first Tick: got %d, want 1", ts)
	}
}

func TestReceiveMaxPlusOne(t *testing.T) {
	var c Clock
	for i := 0; i < 5; i++ {
		c.Tick()
	}

	// Receive a higher timestamp: should set to max(5, 10)+1 = 11
	ts := c.Receive(10)
	if ts != 11 {
		t.Fatalf("Receive(10) from 5: got %d, want 11", ts)
	}

	// Receive a lower timestamp: should set to max(11, 3)+1 = 12
	ts = c.Receive(3)
	if ts != 12 {
		t.Fatalf("Receive(3) from 11: got %d, want 12", ts)
	}
}

func TestReceiveEqualTimestamp(t *testing.T) {
	var c Clock
	c.Receive(9)
	ts := c.Receive(10)
	if ts != 11 {
		t.Fatalf("Receive(10) from 10: got %d, want 11", ts)
	}
}

func TestReceiveZeroActsAsTick(t *testing.T) {
	var c Clock
	c.Tick()
	if ts := c.Receive(0); ts != 2 {
		t.Fatalf("Receive(0) from 1: got %d, want 2", ts)
	}
}

func TestReceiveExceedsBothInputs(t *testing.T) {
	var c Clock
	inputs := []int64{3, 1, 7, 7, 2, 20, 0, 19}
	for _, r := range inputs {
		before := c.Value()
		got := c.Receive(r)
		if got <= r || got <= before {
			t.Fatalf("Receive(%d) from %d: got %d, want > both", r, before, got)
		}
	}
	if v := c.Value(); v != 23 {
		t.Fatalf("final value: got %d, want 23", v)
	}
}

func TestConcurrentReceiveIsLinearizable(t *testing.T) {
	var c Clock
	const n = 64
	results := make([]int64, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Receive(int64(i + 1))
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for i, r := range results {
		if r <= int64(i+1) {
			t.Fatalf("Receive(%d) returned %d, want > argument", i+1, r)
		}
		if seen[r] {
			t.Fatalf("duplicate observation %d", r)
		}
		seen[r] = true
	}

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	if last := results[n-1]; c.Value() != last {
		t.Fatalf("Value() = %d, want last observation %d", c.Value(), last)
	}
}

func TestConcurrentMixedTickAndReceive(t *testing.T) {
	var c Clock
	const goroutines, calls = 16, 200

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[int64]bool, goroutines*calls)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			prev := int64(0)
			for i := 0; i < calls; i++ {
				var ts int64
				if (g+i)%2 == 0 {
					ts = c.Tick()
				} else {
					ts = c.Receive(int64(i))
				}
				if ts <= prev {
					t.Errorf("goroutine %d observed %d after %d", g, ts, prev)
					return
				}
				prev = ts
				mu.Lock()
				if seen[ts] {
					t.Errorf("duplicate observation %d", ts)
				}
				seen[ts] = true
				mu.Unlock()
			}
		}(g)
	}
	wg.Wait()
}

func TestTotalOrderLess_DifferentTimestamps(t *testing.T) {
	if !TotalOrderLess(1, "b", 2, "a") {
		t.Fatal("expected (1,b) < (2,a)")
	}
	if TotalOrderLess(2, "a", 1, "b") {
		t.Fatal("expected (2,a) NOT < (1,b)")
	}
}

func TestTotalOrderLess_SameTimestamp_TieBreakByClient(t *testing.T) {
	if !TotalOrderLess(5, "alice", 5, "bob") {
		t.Fatal("expected (5,alice) < (5,bob)")
	}
	if TotalOrderLess(5, "bob", 5, "alice") {
		t.Fatal("expected (5,bob) NOT < (5,alice)")
	}
}

func TestTotalOrderLess_Equal(t *testing.T) {
	if TotalOrderLess(5, "alice", 5, "alice") {
		t.Fatal("expected (5,alice) NOT < (5,alice), strict less")
	}
}
