package broker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"quorum/internal/model"
)

type mailbox struct {
	subs    map[uint64]chan model.Notification
	dropped atomic.Int64
}

type MemoryBroker struct {
	mu         sync.RWMutex
	mailboxes  map[string]*mailbox
	bufferSize int
	nextID     uint64
}

func NewMemory(bufferSize int) *MemoryBroker {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &MemoryBroker{
		mailboxes:  map[string]*mailbox{},
		bufferSize: bufferSize,
	}
}

// SendDirect never blocks: a subscriber with a full buffer misses the notification.
func (b *MemoryBroker) SendDirect(_ context.Context, n model.Notification) error {
	if n.UserID == "" {
		return fmt.Errorf("missing user_id")
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	mb, ok := b.mailboxes[n.UserID]
	if !ok {
		return nil
	}
	for _, ch := range mb.subs {
		select {
		case ch <- n:
		default:
			mb.dropped.Add(1)
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context, userID string) (<-chan model.Notification, func(), error) {
	if userID == "" {
		return nil, nil, fmt.Errorf("missing user_id")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	mb, ok := b.mailboxes[userID]
	if !ok {
		mb = &mailbox{subs: map[uint64]chan model.Notification{}}
		b.mailboxes[userID] = mb
	}
	b.nextID++
	id := b.nextID
	ch := make(chan model.Notification, b.bufferSize)
	mb.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := mb.subs[id]; ok {
				close(sub)
				delete(mb.subs, id)
			}
			if len(mb.subs) == 0 {
				delete(b.mailboxes, userID)
			}
		})
	}
	return ch, cancel, nil
}

func (b *MemoryBroker) Stats(_ context.Context, userID string) (MailboxStats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	mb, ok := b.mailboxes[userID]
	if !ok {
		return MailboxStats{UserID: userID}, nil
	}
	buffered := 0
	for _, ch := range mb.subs {
		buffered += len(ch)
	}
	return MailboxStats{
		UserID:      userID,
		Subscribers: len(mb.subs),
		Buffered:    buffered,
		Dropped:     mb.dropped.Load(),
	}, nil
}
