package cdpcore

import "testing"

func TestMultiMapOrdering(t *testing.T) {
	m := NewMultiMap[string, int]()
	m.Add("a", 1)
	m.Add("a", 2)
	m.Add("a", 3)

	v, ok := m.FirstValue("a")
	if !ok || v != 1 {
		t.Fatalf("FirstValue = %v, %v; want 1, true", v, ok)
	}

	v, ok = m.DeleteFirst("a")
	if !ok || v != 1 {
		t.Fatalf("DeleteFirst = %v, %v; want 1, true", v, ok)
	}
	v, ok = m.FirstValue("a")
	if !ok || v != 2 {
		t.Fatalf("FirstValue after delete = %v, %v; want 2, true", v, ok)
	}
}

func TestMultiMapDeleteByPredicate(t *testing.T) {
	m := NewMultiMap[string, int]()
	m.Add("k", 10)
	m.Add("k", 20)
	m.Add("k", 30)

	m.Delete("k", func(v int) bool { return v == 20 })

	var got []int
	for {
		v, ok := m.DeleteFirst("k")
		if !ok {
			break
		}
		got = append(got, v)
	}
	if len(got) != 2 || got[0] != 10 || got[1] != 30 {
		t.Fatalf("got %v; want [10 30]", got)
	}
}

func TestMultiMapEmptyKeyCleansUp(t *testing.T) {
	m := NewMultiMap[string, int]()
	m.Add("k", 1)
	m.DeleteFirst("k")

	if _, ok := m.FirstValue("k"); ok {
		t.Fatalf("expected key to be gone after last value removed")
	}
	if _, present := m.vals["k"]; present {
		t.Fatalf("expected underlying map entry to be deleted, not left as an empty slice")
	}
}

func TestMultiMapMissingKey(t *testing.T) {
	m := NewMultiMap[string, int]()
	if _, ok := m.FirstValue("missing"); ok {
		t.Fatalf("expected ok=false for a key never added")
	}
	if _, ok := m.DeleteFirst("missing"); ok {
		t.Fatalf("expected ok=false for DeleteFirst on a key never added")
	}
}
