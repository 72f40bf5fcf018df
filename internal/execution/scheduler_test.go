package execution

import (
	"testing"

	"hip3-taker/pkg/types"
)

func queued(cloid string) QueuedAction {
	return QueuedAction{Order: types.PendingOrder{ClientOrderID: cloid}}
}

func TestSchedulerDrainsHigherPriorityFirst(t *testing.T) {
	s := NewScheduler(10, 100)
	s.EnqueueNew(queued("n-1"))
	s.EnqueueReduceOnly(queued("r-1"))
	s.EnqueueCancel(queued("c-1"))

	want := []ActionKind{ActionCancel, ActionReduceOnly, ActionNew}
	for _, kind := range want {
		batch := s.Tick()
		if batch == nil || batch.Kind != kind {
			t.Fatalf("tick = %+v, want kind %s", batch, kind)
		}
		if len(batch.Items) != 1 {
			t.Fatalf("expected one item per batch, got %d", len(batch.Items))
		}
	}
	if s.Tick() != nil {
		t.Fatal("expected nil batch once all queues are empty")
	}
}

func TestSchedulerSingleQueuePerTickAndBatchCap(t *testing.T) {
	s := NewScheduler(2, 100)
	s.EnqueueNew(queued("n-1"))
	s.EnqueueNew(queued("n-2"))
	s.EnqueueNew(queued("n-3"))
	s.EnqueueCancel(queued("c-1"))

	batch := s.Tick()
	if batch.Kind != ActionCancel {
		t.Fatalf("first tick kind = %s, want cancel", batch.Kind)
	}

	batch = s.Tick()
	if batch.Kind != ActionNew || len(batch.Items) != 2 {
		t.Fatalf("second tick = %+v, want 2 new orders", batch)
	}
	if batch.Items[0].Order.ClientOrderID != "n-1" {
		t.Fatal("per-queue FIFO violated")
	}

	batch = s.Tick()
	if len(batch.Items) != 1 || batch.Items[0].Order.ClientOrderID != "n-3" {
		t.Fatalf("third tick = %+v, want the remaining new order", batch)
	}
}

func TestSchedulerBacklogCountsAllQueues(t *testing.T) {
	s := NewScheduler(10, 100)
	s.EnqueueNew(queued("n-1"))
	s.EnqueueReduceOnly(queued("r-1"))
	s.EnqueueCancel(queued("c-1"))

	if got := s.Backlog(); got != 3 {
		t.Fatalf("Backlog() = %d, want 3", got)
	}
	s.Tick() // drains the cancel queue
	if got := s.Backlog(); got != 2 {
		t.Fatalf("Backlog() after one tick = %d, want 2", got)
	}
}

func TestSchedulerDegradedModeBlocksOnlyNewOrders(t *testing.T) {
	s := NewScheduler(10, 1)

	s.EnqueueNew(queued("n-1"))
	s.EnqueueNew(queued("n-2"))
	if batch := s.Tick(); len(batch.Items) != 2 {
		t.Fatalf("expected both orders drained, got %d", len(batch.Items))
	}
	if !s.Degraded() {
		t.Fatal("expected degraded with inflight above the soft ceiling")
	}

	if err := s.EnqueueNew(queued("n-3")); err == nil {
		t.Fatal("expected ErrDegraded for new-order admission")
	}
	s.EnqueueReduceOnly(queued("r-1")) // still admitted
	if batch := s.Tick(); batch == nil || batch.Kind != ActionReduceOnly {
		t.Fatal("reduce-only traffic must flow in degraded mode")
	}

	s.OnTerminal()
	s.OnTerminal()
	s.OnTerminal()
	if s.Degraded() {
		t.Fatal("expected recovery once inflight drains")
	}
	if err := s.EnqueueNew(queued("n-4")); err != nil {
		t.Fatalf("expected admission after recovery: %v", err)
	}
}
