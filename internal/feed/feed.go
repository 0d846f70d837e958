// Package feed carries change notifications for owner-scoped collections so
// live views can re-query their snapshot.
package feed

import (
	"context"
	"sync"
	"time"
)

type Collection string

const (
	CollectionDocuments Collection = "documents"
	CollectionCustomers Collection = "customers"
	CollectionItems     Collection = "items"
)

func (c Collection) Valid() bool {
	switch c {
	case CollectionDocuments, CollectionCustomers, CollectionItems:
		return true
	}
	return false
}

type Op string

const (
	OpCreated Op = "created"
	OpUpdated Op = "updated"
	OpDeleted Op = "deleted"
)

type Change struct {
	UserID     string     `json:"userId"`
	Collection Collection `json:"collection"`
	ID         string     `json:"id"`
	Op         Op         `json:"op"`
	At         time.Time  `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

// Subscriber streams the changes of one user until ctx is done, then closes
// the channel.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string) (<-chan Change, error)
}

type Broker interface {
	Publisher
	Subscriber
}

type NoopBroker struct{}

func (NoopBroker) Publish(_ context.Context, _ Change) error {
	return nil
}

func (NoopBroker) Subscribe(ctx context.Context, _ string) (<-chan Change, error) {
	ch := make(chan Change)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

// MemoryBroker fans changes out in-process. A slow subscriber drops changes
// instead of blocking publishers.
type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[string]map[chan Change]struct{}
	buffer int
}

func NewMemoryBroker(buffer int) *MemoryBroker {
	if buffer < 1 {
		buffer = 16
	}
	return &MemoryBroker{subs: make(map[string]map[chan Change]struct{}), buffer: buffer}
}

func (b *MemoryBroker) Publish(_ context.Context, change Change) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[change.UserID] {
		select {
		case ch <- change:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, userID string) (<-chan Change, error) {
	ch := make(chan Change, b.buffer)

	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[chan Change]struct{})
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[userID], ch)
		if len(b.subs[userID]) == 0 {
			delete(b.subs, userID)
		}
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

func (b *MemoryBroker) subscribers(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[userID])
}
