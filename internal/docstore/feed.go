package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/daewon/plantops/internal/apperr"
)

const snapshotTimeout = 5 * time.Second

// Snapshot is one delivery of a subscribed document. Exists is false when
// the document is absent. Err is set when the current state could not be
// read; Data is then meaningless.
type Snapshot struct {
	Collection string
	ID         string
	Exists     bool
	Data       json.RawMessage
	Err        error
}

type docKey struct {
	collection string
	id         string
}

// subscription delivers whole-document snapshots to fn from its own goroutine.
// Changes are coalesced through a dirty flag: every delivery reads the row at
// delivery time, so fn always sees the latest state and never an older one
// after a newer one.
type subscription struct {
	key  docKey
	fn   func(Snapshot)
	wake chan struct{}
	done chan struct{}
	once sync.Once

	// callMu is held from the done check through the return of fn.
	callMu sync.Mutex
}

func (sub *subscription) markDirty() {
	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *subscription) stop() {
	sub.once.Do(func() { close(sub.done) })
}

func (sub *subscription) run(read func(docKey) Snapshot) {
	for {
		select {
		case <-sub.done:
			return
		case <-sub.wake:
		}
		if !sub.deliver(read(sub.key)) {
			return
		}
	}
}

func (sub *subscription) deliver(snap Snapshot) bool {
	sub.callMu.Lock()
	defer sub.callMu.Unlock()
	select {
	case <-sub.done:
		return false
	default:
	}
	sub.fn(snap)
	return true
}

// cancel stops the subscription and waits for a call to fn in progress.
func (sub *subscription) cancel() {
	sub.stop()
	sub.callMu.Lock()
	sub.callMu.Unlock() //nolint:staticcheck // barrier
}

type feed struct {
	mu     sync.Mutex
	subs   map[docKey]map[*subscription]struct{}
	closed bool
}

func newFeed() *feed {
	return &feed{subs: make(map[docKey]map[*subscription]struct{})}
}

func (f *feed) add(sub *subscription) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	set, ok := f.subs[sub.key]
	if !ok {
		set = make(map[*subscription]struct{})
		f.subs[sub.key] = set
	}
	set[sub] = struct{}{}
	return true
}

func (f *feed) remove(sub *subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if set, ok := f.subs[sub.key]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(f.subs, sub.key)
		}
	}
}

func (f *feed) notify(collection, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subs[docKey{collection: collection, id: id}] {
		sub.markDirty()
	}
}

func (f *feed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, set := range f.subs {
		n += len(set)
	}
	return n
}

func (f *feed) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for key, set := range f.subs {
		for sub := range set {
			sub.stop()
		}
		delete(f.subs, key)
	}
}

// Subscribe starts a live subscription on one document. fn receives the
// current state shortly after Subscribe returns and again after every change.
// Calls to fn are sequential. The returned function cancels the subscription
// and is idempotent. Once it returns fn is not running and will not be called
// again. It waits for fn, so fn must not call it directly; cancel from inside
// fn on another goroutine.
func (s *Store) Subscribe(collection, id string, fn func(Snapshot)) func() {
	sub := &subscription{
		key:  docKey{collection: collection, id: id},
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	if !s.feed.add(sub) {
		return func() {}
	}
	sub.markDirty()
	go sub.run(s.snapshot)

	return func() {
		s.feed.remove(sub)
		sub.cancel()
	}
}

// SubscriberCount returns the number of live subscriptions.
func (s *Store) SubscriberCount() int {
	return s.feed.count()
}

func (s *Store) snapshot(key docKey) Snapshot {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	snap := Snapshot{Collection: key.collection, ID: key.id}
	doc, err := s.Get(ctx, key.collection, key.id)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
	case err != nil:
		snap.Err = err
	default:
		snap.Exists = true
		snap.Data = doc.Data
	}
	return snap
}
