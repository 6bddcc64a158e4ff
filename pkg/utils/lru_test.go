package utils

import (
	"testing"
)

func TestLRU_GetSet(t *testing.T) {
	c := NewLRU[string, []float32](2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float32{4, 5})
	c.Set("c", []float32{6}) // evicts a
	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("expected b to remain")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c to be present")
	}
}

func TestLRU_GetRefreshesRecency(t *testing.T) {
	c := NewLRU[int, string](2)
	c.Set(1, "one")
	c.Set(2, "two")
	c.Get(1)
	c.Set(3, "three") // evicts 2, not 1
	if _, ok := c.Get(1); !ok {
		t.Error("1 was used recently and should remain")
	}
	if _, ok := c.Get(2); ok {
		t.Error("2 should be evicted")
	}
}

func TestLRU_RemoveAndPurge(t *testing.T) {
	c := NewLRU[int, int](4)
	c.Set(1, 10)
	c.Set(2, 20)
	c.Remove(1)
	if _, ok := c.Get(1); ok {
		t.Error("1 should be removed")
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
	c.Purge()
	if c.Len() != 0 {
		t.Errorf("Len after Purge = %d", c.Len())
	}
}

func TestLRU_ZeroCapacity(t *testing.T) {
	c := NewLRU[int, int](0)
	c.Set(1, 1)
	if _, ok := c.Get(1); ok {
		t.Error("zero capacity cache should not store")
	}
}
