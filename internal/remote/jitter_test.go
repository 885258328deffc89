package remote

import "testing"

func TestJitterQueueFIFO(t *testing.T) {
	q := newJitterQueue(3)
	q.push([]float32{1})
	q.push([]float32{2})
	f, ok := q.pop()
	if !ok || f[0] != 1 {
		t.Fatalf("expected first-pushed frame, got %v, %v", f, ok)
	}
}

func TestJitterQueueDropsOnFull(t *testing.T) {
	q := newJitterQueue(2)
	if !q.push([]float32{1}) {
		t.Fatal("first push should succeed")
	}
	if !q.push([]float32{2}) {
		t.Fatal("second push should succeed")
	}
	if q.push([]float32{3}) {
		t.Fatal("third push should be dropped (queue full)")
	}
	if q.len() != 2 {
		t.Fatalf("expected len 2, got %d", q.len())
	}
}

func TestJitterQueueEmptyPop(t *testing.T) {
	q := newJitterQueue(2)
	if _, ok := q.pop(); ok {
		t.Fatal("pop on empty queue should report false")
	}
}

func TestJitterQueueNeverExceedsCapacity(t *testing.T) {
	q := newJitterQueue(JitterMax)
	for i := 0; i < JitterMax+10; i++ {
		q.push([]float32{float32(i)})
	}
	if q.len() != JitterMax {
		t.Fatalf("len = %d, want %d", q.len(), JitterMax)
	}
}
