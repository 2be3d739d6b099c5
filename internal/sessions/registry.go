// Package sessions keeps the live wizard sessions of the HTTP API. Each
// session owns a wizard and its autosave loop; idle sessions expire.
package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/zekroTJA/timedmap"

	"github.com/trailhead/waivers/internal/waiver"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is one participant working through one waiver.
type Session struct {
	ID         string
	BookingRef string
	Email      string
	OpenedAt   time.Time
	Wizard     *waiver.Wizard

	autosave *waiver.Autosaver
}

// Factory builds the wizard for a freshly allocated session id.
type Factory func(id string) (*waiver.Wizard, error)

type Options struct {
	TTL              time.Duration
	AutosaveInterval time.Duration
	// Ticker overrides the autosave tick source.
	Ticker waiver.TickerFunc
}

type Registry struct {
	opts     Options
	log      logrus.FieldLogger
	sessions *timedmap.TimedMap

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	live map[string]*Session
}

func NewRegistry(opts Options, log logrus.FieldLogger) *Registry {
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Hour
	}
	cleanup := opts.TTL / 4
	if cleanup > time.Minute {
		cleanup = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		opts:     opts,
		log:      log,
		sessions: timedmap.New(cleanup),
		ctx:      ctx,
		cancel:   cancel,
		live:     map[string]*Session{},
	}
}

// Open allocates a session, builds its wizard and starts autosaving.
func (r *Registry) Open(bookingRef, email string, build Factory) (*Session, error) {
	id := uuid.NewString()
	w, err := build(id)
	if err != nil {
		return nil, err
	}
	log := r.log.WithFields(logrus.Fields{"session": id, "booking": bookingRef})
	a := waiver.NewAutosaver(w, r.opts.AutosaveInterval, log)
	if r.opts.Ticker != nil {
		a.WithTicker(r.opts.Ticker)
	}
	s := &Session{
		ID:         id,
		BookingRef: bookingRef,
		Email:      email,
		OpenedAt:   time.Now().UTC(),
		Wizard:     w,
		autosave:   a,
	}

	r.mu.Lock()
	r.live[id] = s
	r.mu.Unlock()
	r.sessions.Set(id, s, r.opts.TTL, r.expired)
	a.Start(r.ctx)

	log.Info("waiver session opened")
	return s, nil
}

// expired runs inside the timedmap lock, so it must not touch the map.
func (r *Registry) expired(v interface{}) {
	s, ok := v.(*Session)
	if !ok {
		return
	}
	r.mu.Lock()
	delete(r.live, s.ID)
	r.mu.Unlock()
	go s.autosave.Stop()
	r.log.WithField("session", s.ID).Info("waiver session expired")
}

// Get returns a live session and pushes its expiry back by the TTL.
func (r *Registry) Get(id string) (*Session, error) {
	s, ok := r.sessions.GetValue(id).(*Session)
	if !ok {
		return nil, ErrSessionNotFound
	}
	_ = r.sessions.SetExpires(id, r.opts.TTL)
	return s, nil
}

// Close stops a session's autosave and forgets it.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.live[id]
	delete(r.live, id)
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	r.sessions.Remove(id)
	s.autosave.Stop()
	r.log.WithField("session", id).Info("waiver session closed")
	return nil
}

// CloseAll closes every session and stops the expiry cleaner. The registry
// is unusable afterwards.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.live))
	for id := range r.live {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		_ = r.Close(id)
	}
	r.cancel()
	r.sessions.StopCleaner()
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}
