package comms

import "testing"

func TestRingFIFOOrder(t *testing.T) {
	r := NewRing(32)
	for i := 0; i < 10; i++ {
		r.Push(byte(i))
	}
	if got := r.Len(); got != 10 {
		t.Fatalf("Len() = %d, want 10", got)
	}
	for i := 0; i < 10; i++ {
		if got := r.Peek(); got != byte(i) {
			t.Fatalf("Peek() = %d, want %d", got, i)
		}
		if got := r.Pop(); got != byte(i) {
			t.Fatalf("Pop() = %d, want %d", got, i)
		}
	}
	if !r.Empty() {
		t.Fatalf("ring not empty after draining")
	}
}

func TestRingOverwriteKeepsNewest(t *testing.T) {
	r := NewRing(32)
	for i := 0; i < 40; i++ {
		r.Push(byte(i))
	}
	if got := r.Len(); got != 32 {
		t.Fatalf("Len() = %d, want 32", got)
	}
	for i := 8; i < 40; i++ {
		if got := r.Pop(); got != byte(i) {
			t.Fatalf("Pop() = %d, want %d", got, i)
		}
	}
}

func TestRingFull(t *testing.T) {
	r := NewRing(4)
	for i := 0; i < 4; i++ {
		if r.Full() {
			t.Fatalf("Full() before %d pushes", i+1)
		}
		r.Push(byte(i))
	}
	if !r.Full() {
		t.Fatalf("ring not full at capacity")
	}
	r.Pop()
	if r.Full() {
		t.Fatalf("ring still full after a pop")
	}
}

func TestRingClear(t *testing.T) {
	r := NewRing(8)
	r.Push(1)
	r.Push(2)
	r.Clear()
	if !r.Empty() {
		t.Fatalf("ring not empty after Clear")
	}
	r.Push(9)
	if got := r.Pop(); got != 9 {
		t.Fatalf("Pop() = %d, want 9", got)
	}
}

func TestNewRingRejectsOddCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("NewRing(12) did not panic")
		}
	}()
	NewRing(12)
}
