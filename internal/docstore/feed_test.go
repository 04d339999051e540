package docstore

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

var ignoreDBOpener = goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener")

// recorder collects snapshots delivered to a subscription.
type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) add(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recorder) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return Snapshot{}
	}
	return r.snaps[len(r.snaps)-1]
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestSubscribe_InitialAbsent(t *testing.T) {
	s := testStore(t)
	var rec recorder
	unsub := s.Subscribe("masters", "types", rec.add)
	defer unsub()

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool { return rec.len() >= 1 },
		"no initial delivery")
	snap := rec.last()
	if snap.Exists || snap.Err != nil {
		t.Errorf("initial snapshot = %+v, want absent without error", snap)
	}
	if snap.Collection != "masters" || snap.ID != "types" {
		t.Errorf("key = %s/%s", snap.Collection, snap.ID)
	}
}

func TestSubscribe_DeliversChanges(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_, _ = s.Set(ctx, "masters", "lines", json.RawMessage(`{"list":[{"code":"30T"}]}`))

	var rec recorder
	unsub := s.Subscribe("masters", "lines", rec.add)
	defer unsub()

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return rec.last().Exists
	}, "initial document not delivered")

	_, _ = s.Set(ctx, "masters", "lines", json.RawMessage(`{"list":[{"code":"40T"}]}`))
	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return string(rec.last().Data) == `{"list":[{"code":"40T"}]}`
	}, "update not delivered")

	_ = s.Delete(ctx, "masters", "lines")
	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return !rec.last().Exists
	}, "delete not delivered")
}

func TestSubscribe_OtherDocumentsIgnored(t *testing.T) {
	s := testStore(t)
	var rec recorder
	unsub := s.Subscribe("masters", "types", rec.add)
	defer unsub()

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool { return rec.len() == 1 }, "no initial delivery")
	_, _ = s.Set(context.Background(), "masters", "lines", json.RawMessage(`{}`))
	time.Sleep(100 * time.Millisecond)
	if rec.len() != 1 {
		t.Errorf("deliveries = %d, want 1", rec.len())
	}
}

func TestUnsubscribe_StopsDeliveryAndGoroutine(t *testing.T) {
	s := testStore(t)
	var rec recorder
	unsub := s.Subscribe("masters", "processes", rec.add)

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool { return rec.len() == 1 }, "no initial delivery")
	unsub()
	unsub() // idempotent

	_, _ = s.Set(context.Background(), "masters", "processes", json.RawMessage(`{"list":[]}`))
	time.Sleep(100 * time.Millisecond)
	if rec.len() != 1 {
		t.Errorf("deliveries after unsubscribe = %d, want 1", rec.len())
	}
	if n := s.SubscriberCount(); n != 0 {
		t.Errorf("subscriber count = %d, want 0", n)
	}
	goleak.VerifyNone(t, ignoreDBOpener)
}

func TestUnsubscribe_FromCallback(t *testing.T) {
	s := testStore(t)
	var unsub func()
	var once sync.Once
	ready := make(chan struct{})
	called := make(chan struct{}, 4)

	unsub = s.Subscribe("masters", "types", func(Snapshot) {
		<-ready
		called <- struct{}{}
		once.Do(func() { go unsub() })
	})
	close(ready)

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}
	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool { return s.SubscriberCount() == 0 }, "subscription not removed")
	_, _ = s.Set(context.Background(), "masters", "types", json.RawMessage(`{}`))
	time.Sleep(100 * time.Millisecond)
	if len(called) != 0 {
		t.Errorf("callback invoked after unsubscribing from inside it")
	}
	goleak.VerifyNone(t, ignoreDBOpener)
}

func TestUnsubscribe_WaitsForRunningCallback(t *testing.T) {
	s := testStore(t)
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var calls, afterUnsub int
	var mu sync.Mutex
	unsubscribed := false

	unsub := s.Subscribe("masters", "types", func(Snapshot) {
		mu.Lock()
		calls++
		if unsubscribed {
			afterUnsub++
		}
		mu.Unlock()
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	})

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}
	// Queue another delivery behind the running one.
	_, _ = s.Set(context.Background(), "masters", "types", json.RawMessage(`{"list":[]}`))

	returned := make(chan struct{})
	go func() {
		unsub()
		mu.Lock()
		unsubscribed = true
		mu.Unlock()
		close(returned)
	}()

	select {
	case <-returned:
		t.Fatal("unsubscribe returned while the callback was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("unsubscribe did not return after the callback finished")
	}
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 || afterUnsub != 0 {
		t.Errorf("calls = %d, after unsubscribe = %d; want 1, 0", calls, afterUnsub)
	}
	goleak.VerifyNone(t, ignoreDBOpener)
}

func TestClose_StopsSubscriptions(t *testing.T) {
	f := testStore(t)
	var rec recorder
	_ = f.Subscribe("masters", "types", rec.add)
	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool { return rec.len() == 1 }, "no initial delivery")

	f.feed.closeAll()
	if n := f.SubscriberCount(); n != 0 {
		t.Errorf("subscriber count after close = %d", n)
	}
	// Subscribing after close is a no-op.
	unsub := f.Subscribe("masters", "types", rec.add)
	unsub()
	goleak.VerifyNone(t, ignoreDBOpener)
}
