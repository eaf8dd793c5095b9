package ringbuf

import (
	"sync"
	"testing"
	"time"

	"github.com/tradesentinel/core/internal/model"
)

func bar(open float64) model.CandleRecord {
	return model.CandleRecord{Symbol: model.SymbolBTC, Timeframe: model.TF1h, Open: open}
}

func TestWindow_PushSnapshotOrder(t *testing.T) {
	w := New(4) // rounds to 4

	w.Push(bar(1))
	w.Push(bar(2))

	if w.Len() != 2 {
		t.Fatalf("expected len=2, got %d", w.Len())
	}

	snap := w.Snapshot()
	if len(snap) != 2 || snap[0].Open != 1 || snap[1].Open != 2 {
		t.Fatalf("expected [1, 2] oldest-first, got %+v", snap)
	}
}

func TestWindow_OverwriteOldestWhenFull(t *testing.T) {
	w := New(2) // capacity = 2

	w.Push(bar(1))
	w.Push(bar(2))
	w.Push(bar(3)) // overwrites bar(1), never rejected

	if w.Len() != 2 {
		t.Fatalf("expected len to stay capped at 2, got %d", w.Len())
	}
	snap := w.Snapshot()
	if snap[0].Open != 2 || snap[1].Open != 3 {
		t.Fatalf("expected [2, 3] after overwrite, got %+v", snap)
	}
}

func TestWindow_Latest(t *testing.T) {
	w := New(4)
	if _, ok := w.Latest(); ok {
		t.Fatal("Latest on empty window should report false")
	}
	w.Push(bar(10))
	w.Push(bar(20))
	latest, ok := w.Latest()
	if !ok || latest.Open != 20 {
		t.Fatalf("expected latest=20, got %v ok=%v", latest.Open, ok)
	}
}

func TestWindow_Wraparound(t *testing.T) {
	w := New(4)

	// Push and snapshot across multiple wraps to exercise the mask math.
	for round := 0; round < 5; round++ {
		for i := 0; i < 4; i++ {
			w.Push(bar(float64(round*10 + i)))
		}
		snap := w.Snapshot()
		for i, c := range snap {
			want := float64(round*10 + i)
			if c.Open != want {
				t.Fatalf("round %d index %d: expected open=%v, got %v", round, i, want, c.Open)
			}
		}
	}
}

func TestWindow_ConcurrentPushAndSnapshot(t *testing.T) {
	const pushes = 10_000
	w := New(256)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < pushes; i++ {
			w.Push(bar(float64(i)))
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < pushes; i++ {
			_ = w.Snapshot() // must never race or panic while producer writes
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
		t.Fatal("concurrent push/snapshot test timed out")
	}

	if w.Len() != w.Cap() {
		t.Fatalf("expected window full after %d pushes into capacity %d, got len=%d", pushes, w.Cap(), w.Len())
	}
}

func TestWindow_NextPow2(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 2}, {1, 2}, {2, 2}, {3, 4}, {5, 8}, {7, 8}, {8, 8}, {9, 16}, {1023, 1024},
	}
	for _, tc := range cases {
		got := New(tc.in).Cap()
		if got != tc.want {
			t.Errorf("New(%d).Cap() = %d, want %d", tc.in, got, tc.want)
		}
	}
}
