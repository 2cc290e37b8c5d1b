package ringbuf

import (
	"sync"
	"testing"
	"time"

	"aurelius-engine/internal/model"
)

func TestRing_BasicPushPop(t *testing.T) {
	r := New[model.Quote](4)

	if !r.Push(model.Quote{Symbol: "AAPL", Price: 185.92}) {
		t.Fatal("push AAPL should succeed")
	}
	if !r.Push(model.Quote{Symbol: "MSFT", Price: 337.50}) {
		t.Fatal("push MSFT should succeed")
	}

	if r.Len() != 2 {
		t.Fatalf("expected len=2, got %d", r.Len())
	}

	got, ok := r.Pop()
	if !ok || got.Symbol != "AAPL" {
		t.Fatalf("expected AAPL, got %v ok=%v", got.Symbol, ok)
	}

	got, ok = r.Pop()
	if !ok || got.Symbol != "MSFT" {
		t.Fatalf("expected MSFT, got %v ok=%v", got.Symbol, ok)
	}

	_, ok = r.Pop()
	if ok {
		t.Fatal("pop from empty should return false")
	}
}

func TestRing_Overflow(t *testing.T) {
	r := New[model.Quote](2)

	r.Push(model.Quote{Symbol: "1"})
	r.Push(model.Quote{Symbol: "2"})

	if r.Push(model.Quote{Symbol: "3"}) {
		t.Fatal("push to full buffer should return false")
	}
	if r.Overflow() != 1 {
		t.Fatalf("expected overflow=1, got %d", r.Overflow())
	}
	if r.Cap() != 2 {
		t.Fatalf("expected cap=2, got %d", r.Cap())
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := New[float64](4)

	for round := 0; round < 5; round++ {
		for i := 0; i < 4; i++ {
			if !r.Push(float64(round*10 + i)) {
				t.Fatalf("round %d push %d failed", round, i)
			}
		}
		for i := 0; i < 4; i++ {
			v, ok := r.Pop()
			if !ok {
				t.Fatalf("round %d pop %d failed", round, i)
			}
			if v != float64(round*10+i) {
				t.Fatalf("round %d pop %d: expected %d, got %v", round, i, round*10+i, v)
			}
		}
	}
}

func TestRing_SPSC_Concurrent(t *testing.T) {
	const count = 100_000
	r := New[model.Quote](1024)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < count; i++ {
			for !r.Push(model.Quote{Price: float64(i)}) {
				// spin-wait (busy loop for test only)
			}
		}
	}()

	received := make([]float64, 0, count)
	go func() {
		defer wg.Done()
		for len(received) < count {
			q, ok := r.Pop()
			if ok {
				received = append(received, q.Price)
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("SPSC test timed out")
	}

	for i, v := range received {
		if v != float64(i) {
			t.Fatalf("at index %d: expected %d, got %v", i, i, v)
		}
	}
}

func TestRing_NextPow2(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {7, 8}, {8, 8}, {9, 16}, {1023, 1024},
	}
	for _, tc := range cases {
		got := nextPow2(tc.in)
		if got != tc.want {
			t.Errorf("nextPow2(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
