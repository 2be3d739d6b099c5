package sessions

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/trailhead/waivers/internal/waiver"
)

type nopSubmitter struct{}

func (nopSubmitter) Submit(context.Context, waiver.Record) error { return nil }

type countingDrafts struct{ n atomic.Int32 }

func (c *countingDrafts) SaveDraft(context.Context, waiver.Record) error {
	c.n.Add(1)
	return nil
}

type ticker struct {
	ch      chan time.Time
	stopped atomic.Int32
}

func (tk *ticker) fn(time.Duration) (<-chan time.Time, func()) {
	return tk.ch, func() { tk.stopped.Add(1) }
}

func newRegistry(t *testing.T, ttl time.Duration, tk *ticker) *Registry {
	t.Helper()
	log, _ := test.NewNullLogger()
	r := NewRegistry(Options{TTL: ttl, AutosaveInterval: time.Minute, Ticker: tk.fn}, log)
	t.Cleanup(r.CloseAll)
	return r
}

func factory(d waiver.DraftSaver) Factory {
	return func(string) (*waiver.Wizard, error) {
		return waiver.New(waiver.TourContext{BookingRef: "BK-1"}, nil, nopSubmitter{}, waiver.WithDraftSaver(d))
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOpenGetClose(t *testing.T) {
	tk := &ticker{ch: make(chan time.Time)}
	r := newRegistry(t, time.Hour, tk)

	s, err := r.Open("BK-1", "jane@example.com", factory(&countingDrafts{}))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.ID == "" || s.Wizard == nil {
		t.Fatalf("incomplete session: %+v", s)
	}
	got, err := r.Get(s.ID)
	if err != nil || got != s {
		t.Fatalf("Get: want same session, got %v %v", got, err)
	}
	if r.Len() != 1 {
		t.Errorf("Len: want 1, got %d", r.Len())
	}

	if err := r.Close(s.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if tk.stopped.Load() != 1 {
		t.Error("autosave ticker not stopped on Close")
	}
	if _, err := r.Get(s.ID); errors.Cause(err) != ErrSessionNotFound {
		t.Errorf("Get after Close: want ErrSessionNotFound, got %v", err)
	}
	if err := r.Close(s.ID); err != ErrSessionNotFound {
		t.Errorf("second Close: want ErrSessionNotFound, got %v", err)
	}
}

func TestOpenStartsAutosave(t *testing.T) {
	tk := &ticker{ch: make(chan time.Time)}
	r := newRegistry(t, time.Hour, tk)
	drafts := &countingDrafts{}
	if _, err := r.Open("BK-1", "", factory(drafts)); err != nil {
		t.Fatalf("Open: %v", err)
	}
	tk.ch <- time.Now()
	eventually(t, "draft save", func() bool { return drafts.n.Load() == 1 })
}

func TestOpenFactoryError(t *testing.T) {
	r := newRegistry(t, time.Hour, &ticker{ch: make(chan time.Time)})
	_, err := r.Open("BK-1", "", func(string) (*waiver.Wizard, error) { return nil, errors.New("no booking") })
	if err == nil {
		t.Fatal("expected factory error")
	}
	if r.Len() != 0 {
		t.Errorf("failed open left a session behind")
	}
}

func TestIdleSessionExpires(t *testing.T) {
	tk := &ticker{ch: make(chan time.Time)}
	r := newRegistry(t, 40*time.Millisecond, tk)
	s, err := r.Open("BK-1", "", factory(&countingDrafts{}))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	eventually(t, "expiry", func() bool {
		_, err := r.Get(s.ID)
		return err == ErrSessionNotFound
	})
	eventually(t, "registry cleanup", func() bool { return r.Len() == 0 })
	eventually(t, "autosave stop", func() bool { return tk.stopped.Load() == 1 })
}

func TestCloseAll(t *testing.T) {
	tk := &ticker{ch: make(chan time.Time)}
	log, _ := test.NewNullLogger()
	r := NewRegistry(Options{TTL: time.Hour, Ticker: tk.fn}, log)
	for i := 0; i < 3; i++ {
		if _, err := r.Open("BK-1", "", factory(&countingDrafts{})); err != nil {
			t.Fatalf("Open: %v", err)
		}
	}
	r.CloseAll()
	if r.Len() != 0 {
		t.Errorf("Len after CloseAll: want 0, got %d", r.Len())
	}
	if got := tk.stopped.Load(); got != 3 {
		t.Errorf("stopped tickers: want 3, got %d", got)
	}
}
