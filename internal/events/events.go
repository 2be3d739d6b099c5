// Package events fans out domain events to interested listeners.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Submitted is emitted once a waiver has been stored.
type Submitted struct {
	Code        string
	BookingRef  string
	FullName    string
	Email       string
	IsUnder18   bool
	SubmittedAt time.Time
}

// Listener reacts to a submission. Errors are logged and do not affect the
// submission itself.
type Listener func(ctx context.Context, e Submitted) error

type named struct {
	name string
	fn   Listener
}

// Bus is a synchronous event dispatcher. The zero value is not usable; use
// NewBus.
type Bus struct {
	mu        sync.RWMutex
	submitted []named
	log       logrus.FieldLogger
}

func NewBus(log logrus.FieldLogger) *Bus {
	return &Bus{log: log}
}

// OnSubmitted registers fn under name.
func (b *Bus) OnSubmitted(name string, fn Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitted = append(b.submitted, named{name: name, fn: fn})
}

// EmitSubmitted calls every listener in registration order.
func (b *Bus) EmitSubmitted(ctx context.Context, e Submitted) {
	if b == nil {
		return
	}
	b.mu.RLock()
	ls := append([]named(nil), b.submitted...)
	b.mu.RUnlock()
	for _, l := range ls {
		if err := l.fn(ctx, e); err != nil {
			b.log.WithError(err).WithFields(logrus.Fields{
				"listener": l.name,
				"code":     e.Code,
			}).Warn("submitted listener failed")
		}
	}
}
