package deadline_test

import (
	"testing"
	"time"

	"github.com/2217936322/llfio/deadline"
)

func TestIndexOrdersBySteadyThenAbsolute(t *testing.T) {
	idx := deadline.NewIndex()
	base := time.Now()

	idx.Insert(true, base.Add(30*time.Millisecond), "b")
	idx.Insert(true, base.Add(10*time.Millisecond), "a")
	idx.Insert(false, base.Add(20*time.Millisecond), "c")

	next, ok := idx.NextDeadline()
	if !ok {
		t.Fatal("NextDeadline() should report a pending entry")
	}
	if !next.Equal(base.Add(10 * time.Millisecond)) {
		t.Fatalf("NextDeadline() = %v, want the earliest insert", next)
	}

	expired := idx.Expired(base.Add(25 * time.Millisecond))
	if len(expired) != 2 {
		t.Fatalf("Expired() returned %d entries, want 2 (a, c)", len(expired))
	}
	if expired[0] != "a" || expired[1] != "c" {
		t.Fatalf("Expired() = %v, want [a c] in expiry order", expired)
	}
	if idx.Len() != 1 {
		t.Fatalf("Len() = %d after partial expiry, want 1", idx.Len())
	}
}

func TestLocatorRemoveIsIdempotentAndSafeOnZeroValue(t *testing.T) {
	idx := deadline.NewIndex()

	var zero deadline.Locator
	idx.Remove(zero) // must not panic

	loc := idx.Insert(true, time.Now().Add(time.Minute), "x")
	if !loc.Valid() {
		t.Fatal("fresh Locator should be Valid")
	}

	idx.Remove(loc)
	if loc.Valid() {
		t.Fatal("Locator should be invalid after Remove")
	}
	idx.Remove(loc) // second removal must not panic

	if idx.Len() != 0 {
		t.Fatalf("Len() = %d after removing the only entry, want 0", idx.Len())
	}
}

func TestRemoveMidHeapPreservesOrdering(t *testing.T) {
	idx := deadline.NewIndex()
	base := time.Now()

	locs := make([]deadline.Locator, 5)
	for i := 0; i < 5; i++ {
		locs[i] = idx.Insert(true, base.Add(time.Duration(i+1)*time.Millisecond), i)
	}

	idx.Remove(locs[2]) // remove the middle entry (payload 2)

	expired := idx.Expired(base.Add(10 * time.Millisecond))
	if len(expired) != 4 {
		t.Fatalf("Expired() returned %d entries, want 4", len(expired))
	}
	for _, v := range expired {
		if v == 2 {
			t.Fatal("removed entry should not appear in Expired()")
		}
	}
}

func TestNextDeadlineFalseWhenEmpty(t *testing.T) {
	idx := deadline.NewIndex()
	if _, ok := idx.NextDeadline(); ok {
		t.Fatal("NextDeadline() on empty index should report ok=false")
	}
}
