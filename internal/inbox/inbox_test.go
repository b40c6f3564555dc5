package inbox

import (
	"context"
	"testing"
	"time"

	"github.com/livinlefevreloca/listingsync/internal/testutil"
)

func TestInbox_SendReceive(t *testing.T) {
	logger := testutil.NewTestLogger()
	ib := New[int](10, 100*time.Millisecond, logger.Logger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if !ib.Send(ctx, i) {
			t.Errorf("expected send %d to succeed", i)
		}
	}

	for i := 0; i < 5; i++ {
		msg, ok := ib.Receive(ctx)
		if !ok {
			t.Fatalf("expected receive %d to succeed", i)
		}
		if msg != i {
			t.Errorf("expected message %d, got %d", i, msg)
		}
	}

	stats := ib.Stats()
	if stats.TotalSent != 5 || stats.TotalReceived != 5 {
		t.Errorf("expected 5 sent and received, got %+v", stats)
	}
	if stats.MaxDepthSeen != 5 {
		t.Errorf("expected max depth 5, got %d", stats.MaxDepthSeen)
	}
	if stats.CurrentDepth != 0 {
		t.Errorf("expected empty inbox, got depth %d", stats.CurrentDepth)
	}
}

func TestInbox_SendTimeout(t *testing.T) {
	logger := testutil.NewTestLogger()
	ib := New[string](1, 10*time.Millisecond, logger.Logger())
	ctx := context.Background()

	if !ib.Send(ctx, "first") {
		t.Fatal("expected first send to succeed")
	}

	start := time.Now()
	if ib.Send(ctx, "second") {
		t.Fatal("expected send to a full inbox to fail")
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("expected send to wait for the timeout, returned after %v", elapsed)
	}

	if ib.Stats().DroppedCount != 1 {
		t.Errorf("expected 1 dropped message, got %d", ib.Stats().DroppedCount)
	}
	if !logger.HasWarning() {
		t.Error("expected a warning for the dropped message")
	}
}

func TestInbox_SendCancelled(t *testing.T) {
	logger := testutil.NewTestLogger()
	ib := New[int](1, time.Minute, logger.Logger())

	ib.Send(context.Background(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if ib.Send(ctx, 2) {
		t.Error("expected send with cancelled context to fail")
	}
}

func TestInbox_TryReceive(t *testing.T) {
	logger := testutil.NewTestLogger()
	ib := New[int](2, time.Second, logger.Logger())

	if _, ok := ib.TryReceive(); ok {
		t.Error("expected empty inbox to return nothing")
	}

	ib.Send(context.Background(), 42)
	if ib.Len() != 1 {
		t.Errorf("expected length 1, got %d", ib.Len())
	}

	msg, ok := ib.TryReceive()
	if !ok || msg != 42 {
		t.Errorf("expected 42, got %d (ok=%v)", msg, ok)
	}
}

func TestInbox_ReceiveCancelled(t *testing.T) {
	logger := testutil.NewTestLogger()
	ib := New[int](1, time.Second, logger.Logger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, ok := ib.Receive(ctx); ok {
		t.Error("expected receive to give up when the context ends")
	}
}
