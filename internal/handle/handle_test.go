package handle

import "testing"

func TestCreateGetRelease(t *testing.T) {
	tbl := NewTable[string](0, Topic)
	h := tbl.Create("foo")
	if !h.Valid() {
		t.Fatal("expected valid handle")
	}
	if got, ok := tbl.Get(h); !ok || got != "foo" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
	if !tbl.Release(h) {
		t.Fatal("Release should succeed once")
	}
	if _, ok := tbl.Get(h); ok {
		t.Fatal("Get after Release should fail")
	}
	if tbl.Release(h) {
		t.Fatal("double Release should fail")
	}
}

func TestWrongSubtypeAndInstanceAreNoOps(t *testing.T) {
	topics := NewTable[int](0, Topic)
	subs := NewTable[int](0, Subscriber)
	h := topics.Create(1)

	if _, ok := subs.Get(h); ok {
		t.Fatal("cross-subtype Get should fail")
	}

	other := NewTable[int](1, Topic)
	if _, ok := other.Get(h); ok {
		t.Fatal("cross-instance Get should fail")
	}
}

func TestInvalidHandleIsAlwaysInvalid(t *testing.T) {
	if Invalid.Valid() {
		t.Fatal("zero handle must be invalid")
	}
	tbl := NewTable[int](0, Topic)
	if _, ok := tbl.Get(Invalid); ok {
		t.Fatal("Get(Invalid) must fail")
	}
}

func TestSlotReuseDoesNotAliasLiveHandles(t *testing.T) {
	tbl := NewTable[int](0, Topic)
	a := tbl.Create(1)
	b := tbl.Create(2)
	tbl.Release(a)
	c := tbl.Create(3)

	if c != a {
		t.Fatalf("expected slot reuse to hand back the freed index, got c=%v a=%v", c, a)
	}
	if got, ok := tbl.Get(b); !ok || got != 2 {
		t.Fatalf("b should be unaffected by a's release/reuse: got %v, %v", got, ok)
	}
	if got, ok := tbl.Get(c); !ok || got != 3 {
		t.Fatalf("c should read back its own object: got %v, %v", got, ok)
	}
}

func TestRangeOrderIsCreationOrder(t *testing.T) {
	tbl := NewTable[string](0, Topic)
	tbl.Create("a")
	tbl.Create("b")
	tbl.Create("c")

	var got []string
	tbl.Range(func(h Handle, v string) bool {
		got = append(got, v)
		return true
	})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
