package waiver

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultAutosaveInterval is the draft-save period of a mounted wizard.
const DefaultAutosaveInterval = 30 * time.Second

// TickerFunc returns a tick channel and its stop function. Tests substitute
// a manual channel to drive simulated time.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Autosaver saves a wizard's draft on a fixed interval between Start and
// Stop. A tick that finds the previous save still running is skipped.
// Failures are logged and shown in the wizard view; they are not retried.
type Autosaver struct {
	wizard    *Wizard
	interval  time.Duration
	log       logrus.FieldLogger
	newTicker TickerFunc

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	inflight sync.WaitGroup
}

func NewAutosaver(w *Wizard, interval time.Duration, log logrus.FieldLogger) *Autosaver {
	if interval <= 0 {
		interval = DefaultAutosaveInterval
	}
	return &Autosaver{wizard: w, interval: interval, log: log, newTicker: realTicker}
}

// WithTicker swaps the tick source. Call before Start.
func (a *Autosaver) WithTicker(f TickerFunc) *Autosaver {
	a.newTicker = f
	return a
}

// Start launches the loop. Starting a running autosaver is a no-op.
func (a *Autosaver) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return
	}
	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan struct{})
	ticks, stop := a.newTicker(a.interval)
	go a.loop(ctx, ticks, stop, a.done)
}

// Stop ends the loop and waits for an in-flight save to return. It is safe
// to call more than once.
func (a *Autosaver) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel = nil
	a.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	a.inflight.Wait()
}

func (a *Autosaver) loop(ctx context.Context, ticks <-chan time.Time, stop func(), done chan struct{}) {
	defer close(done)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			a.inflight.Add(1)
			go a.save(ctx)
		}
	}
}

func (a *Autosaver) save(ctx context.Context) {
	defer a.inflight.Done()
	// The save outlives Stop's cancellation but not one interval.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.interval)
	defer cancel()

	saved, err := a.wizard.autosave(ctx)
	switch {
	case err != nil:
		a.log.WithError(err).Warn("autosave failed")
	case !saved:
		a.log.Debug("autosave skipped")
	default:
		a.log.Debug("draft autosaved")
	}
}
