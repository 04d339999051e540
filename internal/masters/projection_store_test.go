package masters

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/daewon/plantops/internal/docstore"
)

func realStore(t *testing.T) *docstore.Store {
	t.Helper()
	f, err := os.CreateTemp("", "plantops-masters-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })
	s, err := docstore.Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

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

func TestProjection_WithDocumentStore(t *testing.T) {
	s := realStore(t)
	ctx := context.Background()
	_, _ = s.Set(ctx, Collection, "processes", json.RawMessage(`{"list":[{"code":"cut","tag":"cw"}]}`))

	p := New(s, quietLogger())
	p.Start()

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return p.GetProcessTag("cut") == "cw"
	}, "initial processes not delivered")

	_, _ = s.Set(ctx, Collection, "processes", json.RawMessage(`{"list":[{"code":"cut","tag":"ct"},{"code":"foam","tag":"fo","order":0}]}`))
	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return equalStrings(p.ProcessCodes(), []string{"foam", "cut"}) && p.GetProcessTag("cut") == "ct"
	}, "update not reflected")

	p.Stop()
	if n := s.SubscriberCount(); n != 0 {
		t.Errorf("subscriptions after stop = %d, want 0", n)
	}

	_, _ = s.Set(ctx, Collection, "processes", json.RawMessage(`{"list":[]}`))
	time.Sleep(100 * time.Millisecond)
	if got := p.ProcessCodes(); !equalStrings(got, []string{"foam", "cut"}) {
		t.Errorf("view changed after stop: %v", got)
	}

	goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

func TestProjection_RestartWithDocumentStore(t *testing.T) {
	s := realStore(t)
	ctx := context.Background()
	_, _ = s.Set(ctx, Collection, "types", json.RawMessage(`{"list":[{"code":"LIQ"}]}`))

	p := New(s, quietLogger())
	p.Start()
	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return len(p.TypeCodes()) == 1
	}, "initial types not delivered")
	p.Stop()

	_ = s.Delete(ctx, Collection, "types")
	_, _ = s.Set(ctx, Collection, "lines", json.RawMessage(`{"list":[{"code":"30T"}]}`))

	p.Start()
	defer p.Stop()
	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return equalStrings(p.LineCodes(), []string{"30T"})
	}, "lines not delivered after restart")
	if got := p.TypeCodes(); len(got) != 0 {
		t.Errorf("residual types after restart: %v", got)
	}
}
