package actionqueue

import (
	"testing"
	"time"
)

func TestPushFrontPopFront(t *testing.T) {
	var q Queue
	if _, ok := q.Front(); ok {
		t.Fatalf("expected empty queue to have no front")
	}
	q.Push(PendingAction{ActionID: 1, Sequence: 10, RequestTime: time.Unix(0, 0)})
	q.Push(PendingAction{ActionID: 2, Sequence: 11, RequestTime: time.Unix(0, 0)})
	if q.Len() != 2 {
		t.Fatalf("expected len 2, got %d", q.Len())
	}
	front, ok := q.Front()
	if !ok || front.Sequence != 10 {
		t.Fatalf("expected front sequence 10, got %+v (ok=%v)", front, ok)
	}
	q.PopFront()
	front, ok = q.Front()
	if !ok || front.Sequence != 11 {
		t.Fatalf("expected front sequence 11 after pop, got %+v (ok=%v)", front, ok)
	}
}

func TestDropUntilSequenceStopsAtMatch(t *testing.T) {
	var q Queue
	q.Push(PendingAction{ActionID: 1, Sequence: 5})
	q.Push(PendingAction{ActionID: 2, Sequence: 6})
	q.Push(PendingAction{ActionID: 3, Sequence: 7})

	dropped := q.DropUntilSequence(7)
	if len(dropped) != 2 {
		t.Fatalf("expected 2 dropped entries, got %d", len(dropped))
	}
	if dropped[0].Sequence != 5 || dropped[1].Sequence != 6 {
		t.Fatalf("unexpected drop order: %+v", dropped)
	}
	front, ok := q.Front()
	if !ok || front.Sequence != 7 {
		t.Fatalf("expected remaining front sequence 7, got %+v (ok=%v)", front, ok)
	}
}

func TestDropUntilSequenceExhaustsQueueWithoutMatch(t *testing.T) {
	var q Queue
	q.Push(PendingAction{ActionID: 1, Sequence: 5})
	q.Push(PendingAction{ActionID: 2, Sequence: 6})

	dropped := q.DropUntilSequence(99)
	if len(dropped) != 2 {
		t.Fatalf("expected every entry dropped, got %d", len(dropped))
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got len %d", q.Len())
	}
}

func TestDropUntilRejectedPrefersSequence(t *testing.T) {
	var q Queue
	q.Push(PendingAction{ActionID: 1, Sequence: 5})
	q.Push(PendingAction{ActionID: 2, Sequence: 6})

	dropped := q.DropUntilRejected(6, 0)
	if len(dropped) != 1 || dropped[0].Sequence != 5 {
		t.Fatalf("expected only sequence 5 dropped, got %+v", dropped)
	}
}

func TestDropUntilRejectedFallsBackToActionID(t *testing.T) {
	var q Queue
	q.Push(PendingAction{ActionID: 1, Sequence: 5})
	q.Push(PendingAction{ActionID: 2, Sequence: 6})

	dropped := q.DropUntilRejected(0, 2)
	if len(dropped) != 1 || dropped[0].ActionID != 1 {
		t.Fatalf("expected only action id 1 dropped, got %+v", dropped)
	}
	front, ok := q.Front()
	if !ok || front.ActionID != 2 {
		t.Fatalf("expected front action id 2 remaining, got %+v (ok=%v)", front, ok)
	}
}

func TestMarkFrontCast(t *testing.T) {
	var q Queue
	q.Push(PendingAction{ActionID: 1, Sequence: 5})
	q.MarkFrontCast()
	front, _ := q.Front()
	if !front.CastFlag {
		t.Fatalf("expected front to be marked as a cast")
	}
}

func TestMarkFrontCastOnEmptyQueueIsNoop(t *testing.T) {
	var q Queue
	q.MarkFrontCast()
	if q.Len() != 0 {
		t.Fatalf("expected queue to remain empty")
	}
}
