package cache

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock returns a cache whose clock is advanced by the returned func.
func fakeClock(ttl time.Duration) (*TTLCache[string, int], func(time.Duration)) {
	c := New[string, int](ttl)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	c.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	return c, func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}
}

func TestSetAndGet(t *testing.T) {
	c, advance := fakeClock(time.Minute)

	c.Set("genesis", 42)
	if v, ok := c.Get("genesis"); !ok || v != 42 {
		t.Fatalf("Get() = (%d, %v), want (42, true)", v, ok)
	}
	if _, ok := c.Get("exodus"); ok {
		t.Error("Get() of missing key hit")
	}

	advance(time.Minute)
	if _, ok := c.Get("genesis"); ok {
		t.Error("Get() after ttl hit")
	}
}

func TestEntriesExpireIndependently(t *testing.T) {
	c, advance := fakeClock(time.Minute)

	c.Set("a", 1)
	advance(40 * time.Second)
	c.Set("b", 2)
	advance(30 * time.Second)

	if _, ok := c.Get("a"); ok {
		t.Error("a should have expired")
	}
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Errorf("Get(b) = (%d, %v)", v, ok)
	}
	if n := c.Prune(); n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestZeroTTLDisablesCaching(t *testing.T) {
	c := New[string, int](0)
	c.Set("a", 1)
	if _, ok := c.Get("a"); ok {
		t.Error("zero ttl cache returned a value")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestGetOrLoad(t *testing.T) {
	c, advance := fakeClock(time.Minute)
	calls := 0
	load := func() (int, error) {
		calls++
		return calls * 10, nil
	}

	for range 3 {
		if v, err := c.GetOrLoad("k", load); err != nil || v != 10 {
			t.Fatalf("GetOrLoad() = (%d, %v)", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("load called %d times, want 1", calls)
	}

	advance(2 * time.Minute)
	if v, _ := c.GetOrLoad("k", load); v != 20 {
		t.Errorf("GetOrLoad() after expiry = %d, want 20", v)
	}

	boom := errors.New("boom")
	if _, err := c.GetOrLoad("bad", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Errorf("GetOrLoad() error = %v", err)
	}
	if _, ok := c.Get("bad"); ok {
		t.Error("failed load was cached")
	}
}

func TestInvalidate(t *testing.T) {
	c := New[string, int](time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Invalidate()

	if c.Len() != 0 {
		t.Errorf("Len() after Invalidate = %d", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("Get() after Invalidate hit")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int, int](time.Minute)
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := range 100 {
				c.Set(j, n)
				c.Get(j)
				if j%25 == 0 {
					c.Invalidate()
				}
			}
		}(i)
	}
	wg.Wait()
}
