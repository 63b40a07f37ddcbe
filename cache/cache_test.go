package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestGetAfterSet(t *testing.T) {
	c := New(10, time.Minute)
	key := Key("proj-11111111", "what language", 3)
	c.Set(key, "proj-11111111", "result")

	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected hit")
	}
	if got != "result" {
		t.Errorf("got %v, want result", got)
	}

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 0 {
		t.Errorf("stats = %+v, want 1 hit 0 misses", s)
	}
}

func TestMissOnUnknownKey(t *testing.T) {
	c := New(10, time.Minute)
	if _, ok := c.Get("nope"); ok {
		t.Fatal("expected miss")
	}
	if s := c.Stats(); s.Misses != 1 {
		t.Errorf("misses = %d, want 1", s.Misses)
	}
}

func TestTTLExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	c := New(10, 300*time.Second, WithClock(func() time.Time { return clock() }))

	key := Key("proj-11111111", "q", 5)
	c.Set(key, "proj-11111111", 42)

	now = now.Add(299 * time.Second)
	if _, ok := c.Get(key); !ok {
		t.Fatal("expected hit just under TTL")
	}

	now = now.Add(2 * time.Second)
	if _, ok := c.Get(key); ok {
		t.Fatal("expected miss after TTL")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not removed, len = %d", c.Len())
	}
}

func TestLRUEviction(t *testing.T) {
	c := New(3, time.Minute)
	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), "p", i)
	}
	// Touch k0 so k1 becomes least recently used.
	if _, ok := c.Get("k0"); !ok {
		t.Fatal("k0 should be present")
	}
	c.Set("k3", "p", 3)

	if _, ok := c.Get("k1"); ok {
		t.Error("k1 should have been evicted")
	}
	for _, k := range []string{"k0", "k2", "k3"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s should still be present", k)
		}
	}
	if s := c.Stats(); s.Evictions != 1 {
		t.Errorf("evictions = %d, want 1", s.Evictions)
	}
}

func TestInvalidateProject(t *testing.T) {
	c := New(10, time.Minute)
	c.Set(Key("proj-a", "q1", 3), "proj-a", 1)
	c.Set(Key("proj-a", "q2", 3), "proj-a", 2)
	c.Set(Key("proj-b", "q1", 3), "proj-b", 3)

	c.InvalidateProject("proj-a")

	if c.Len() != 1 {
		t.Fatalf("len = %d, want 1", c.Len())
	}
	if _, ok := c.Get(Key("proj-b", "q1", 3)); !ok {
		t.Error("proj-b entry should survive")
	}
	// Explicit invalidations are not evictions.
	if s := c.Stats(); s.Evictions != 0 {
		t.Errorf("evictions = %d, want 0", s.Evictions)
	}
}

func TestInvalidateAll(t *testing.T) {
	c := New(10, time.Minute)
	c.Set("a", "p", 1)
	c.Set("b", "p", 2)
	c.InvalidateAll()
	if c.Len() != 0 {
		t.Errorf("len = %d, want 0", c.Len())
	}
}

func TestKeyDisjointAcrossProjects(t *testing.T) {
	if Key("proj-a", "q", 3) == Key("proj-b", "q", 3) {
		t.Error("keys must differ across projects")
	}
	if Key("proj-a", "q", 3) == Key("proj-a", "q", 4) {
		t.Error("keys must differ across top_k")
	}
	if len(Key("p", "q", 1)) != 32 {
		t.Errorf("key should be 128-bit hex, got len %d", len(Key("p", "q", 1)))
	}
}
