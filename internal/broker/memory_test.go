package broker

import (
	"context"
	"testing"
	"time"

	"quorum/internal/model"
)

func TestSendDirectReachesEverySubscriber(t *testing.T) {
	b := NewMemory(4)
	ctx := context.Background()
	first, cancel1, err := b.Subscribe(ctx, "user-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel1()
	second, cancel2, err := b.Subscribe(ctx, "user-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel2()

	n := model.Notification{ID: "n1", UserID: "user-1", Kind: model.NotificationSavedSearchResults}
	if err := b.SendDirect(ctx, n); err != nil {
		t.Fatalf("send: %v", err)
	}
	for _, ch := range []<-chan model.Notification{first, second} {
		select {
		case got := <-ch:
			if got.ID != n.ID {
				t.Fatalf("unexpected notification id: %s", got.ID)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for notification")
		}
	}
}

func TestSendDirectDropsWhenBufferFull(t *testing.T) {
	b := NewMemory(1)
	ctx := context.Background()
	_, cancel, err := b.Subscribe(ctx, "user-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	for i := 0; i < 3; i++ {
		if err := b.SendDirect(ctx, model.Notification{UserID: "user-1"}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	stats, err := b.Stats(ctx, "user-1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Buffered != 1 || stats.Dropped != 2 || stats.Subscribers != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestCancelClosesChannelAndIsIdempotent(t *testing.T) {
	b := NewMemory(1)
	ch, cancel, err := b.Subscribe(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	if err := b.SendDirect(context.Background(), model.Notification{UserID: "user-1"}); err != nil {
		t.Fatalf("send after cancel: %v", err)
	}
}

func TestSendDirectRequiresUser(t *testing.T) {
	if err := NewMemory(1).SendDirect(context.Background(), model.Notification{}); err == nil {
		t.Fatal("expected error for missing user id")
	}
}
