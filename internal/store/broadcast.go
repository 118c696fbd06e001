package store

import (
	"context"
	"sync"
)

// Change says that a user's collection was written.
type Change struct {
	UserID     string `json:"userId"`
	Collection string `json:"collection"`
}

// ChangePublisher announces writes. Backends call it after every successful mutation.
type ChangePublisher interface {
	PublishChange(ctx context.Context, c Change) error
}

// Broadcaster fans change notices out to in-process subscribers of the same user
// and collection. Sends never block: a subscriber that has not consumed its
// previous notice simply keeps that one, which is enough to trigger a re-read.
type Broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[subKey]map[int]chan struct{}
}

type subKey struct {
	userID     string
	collection string
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[subKey]map[int]chan struct{})}
}

// Subscribe registers interest in one user's collection. The returned cancel
// function must be called to release the subscription.
func (b *Broadcaster) Subscribe(userID, collection string) (<-chan struct{}, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := subKey{userID, collection}
	if b.subs[key] == nil {
		b.subs[key] = make(map[int]chan struct{})
	}
	id := b.next
	b.next++
	ch := make(chan struct{}, 1)
	b.subs[key][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[key], id)
			if len(b.subs[key]) == 0 {
				delete(b.subs, key)
			}
		})
	}
}

// PublishChange implements ChangePublisher.
func (b *Broadcaster) PublishChange(_ context.Context, c Change) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[subKey{c.UserID, c.Collection}] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, m := range b.subs {
		n += len(m)
	}
	return n
}

// Watch emits load's result once, then again after every notice from the
// broadcaster for userID and collection, until ctx is done. A failed re-read is
// reported to onErr and skipped; the previous snapshot stays current.
func Watch[T any](ctx context.Context, b *Broadcaster, userID, collection string,
	load func(context.Context) ([]T, error), onErr func(error)) (<-chan []T, error) {
	notices, cancel := b.Subscribe(userID, collection)

	first, err := load(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan []T, 1)
	out <- first

	go func() {
		defer close(out)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-notices:
				snapshot, err := load(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					if onErr != nil {
						onErr(err)
					}
					continue
				}
				select {
				case out <- snapshot:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
