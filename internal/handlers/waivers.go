package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/trailhead/waivers/internal/logging"
	"github.com/trailhead/waivers/internal/services"
	"github.com/trailhead/waivers/internal/sessions"
	"github.com/trailhead/waivers/internal/waiver"
)

// Env carries what the waiver handlers need.
type Env struct {
	Store           *services.WaiverStore
	Sessions        *sessions.Registry
	Files           services.SignatureFiles
	Log             logrus.FieldLogger
	BaseURL         string
	SavingIndicator time.Duration
}

// sessionView is the wizard view plus the session it belongs to.
type sessionView struct {
	SessionID string `json:"sessionId"`
	waiver.View
	Code       string `json:"code,omitempty"`
	SummaryURL string `json:"summaryUrl,omitempty"`
}

func (env *Env) render(w http.ResponseWriter, r *http.Request, status int, s *sessions.Session) {
	v := sessionView{SessionID: s.ID, View: s.Wizard.View()}
	if v.Submitted {
		if wv, err := env.Store.FindBySession(r.Context(), s.ID); err == nil {
			v.Code = wv.Code
			v.SummaryURL = SummaryURL(env.BaseURL, wv.Code)
		}
	}
	writeJSON(w, status, v)
}

// session resolves {sid}; on failure it has already answered.
func (env *Env) session(w http.ResponseWriter, r *http.Request) (*sessions.Session, bool) {
	s, err := env.Sessions.Get(chi.URLParam(r, "sid"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session_not_found")
		return nil, false
	}
	return s, true
}

type createWaiverReq struct {
	BookingRef string          `json:"bookingRef"`
	Email      string          `json:"email"`
	Prefill    json.RawMessage `json:"prefill"`
}

// POST /waivers
func CreateWaiver(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createWaiverReq
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.BookingRef = strings.TrimSpace(req.BookingRef)
		if req.BookingRef == "" {
			writeError(w, http.StatusBadRequest, "bookingRef is required")
			return
		}

		tour, known, err := env.Store.Prefill(r.Context(), req.BookingRef, req.Email)
		if errors.Is(err, services.ErrBookingNotFound) {
			writeError(w, http.StatusNotFound, "booking_not_found")
			return
		}
		if err != nil {
			logging.From(r.Context(), env.Log).WithError(err).Error("prefill failed")
			writeError(w, http.StatusInternalServerError, "prefill_failed")
			return
		}

		s, err := env.Sessions.Open(tour.BookingRef, req.Email, func(id string) (*waiver.Wizard, error) {
			bound := env.Store.ForSession(id, tour.BookingRef)
			wz, err := waiver.New(tour, known, bound,
				waiver.WithDraftSaver(bound),
				waiver.WithSavingIndicator(env.SavingIndicator))
			if err != nil {
				return nil, err
			}
			if len(req.Prefill) > 0 && string(req.Prefill) != "null" {
				if err := wz.Update(req.Prefill); err != nil {
					return nil, errors.Wrap(errMalformed, err.Error())
				}
			}
			return wz, nil
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		env.render(w, r, http.StatusCreated, s)
	}
}

// GET /waivers/{sid}
func GetWaiver(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := env.session(w, r)
		if !ok {
			return
		}
		env.render(w, r, http.StatusOK, s)
	}
}

// PATCH /waivers/{sid}
func UpdateWaiver(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := env.session(w, r)
		if !ok {
			return
		}
		patch, err := readObject(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		switch err := s.Wizard.Update(patch); {
		case err == waiver.ErrAlreadySubmitted:
			writeError(w, http.StatusConflict, "already_submitted")
			return
		case err == waiver.ErrSubmitInProgress:
			writeError(w, http.StatusConflict, "submit_in_progress")
			return
		case err != nil:
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		env.render(w, r, http.StatusOK, s)
	}
}

// DELETE /waivers/{sid}
func CloseWaiver(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := env.Sessions.Close(chi.URLParam(r, "sid")); err != nil {
			writeError(w, http.StatusNotFound, "session_not_found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /waivers/{sid}/continue
func ContinueWaiver(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := env.session(w, r)
		if !ok {
			return
		}
		s.Wizard.Continue()
		status := http.StatusOK
		if len(s.Wizard.View().Errors) > 0 {
			status = http.StatusUnprocessableEntity
		}
		env.render(w, r, status, s)
	}
}

// POST /waivers/{sid}/previous
func PreviousWaiver(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := env.session(w, r)
		if !ok {
			return
		}
		s.Wizard.Previous()
		env.render(w, r, http.StatusOK, s)
	}
}

// POST /waivers/{sid}/submit
func SubmitWaiver(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := env.session(w, r)
		if !ok {
			return
		}
		err := s.Wizard.Submit(r.Context())
		switch {
		case err == nil:
			env.render(w, r, http.StatusOK, s)
		case errors.Is(err, waiver.ErrInvalid):
			env.render(w, r, http.StatusUnprocessableEntity, s)
		case errors.Is(err, waiver.ErrAlreadySubmitted),
			errors.Is(err, waiver.ErrSubmitInProgress),
			errors.Is(err, waiver.ErrNotOnFinalSection):
			writeError(w, http.StatusConflict, err.Error())
		default:
			logging.From(r.Context(), env.Log).WithError(err).WithField("session", s.ID).Error("waiver submit failed")
			env.render(w, r, http.StatusInternalServerError, s)
		}
	}
}

// POST /waivers/{sid}/draft
func SaveDraft(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := env.session(w, r)
		if !ok {
			return
		}
		if err := s.Wizard.SaveDraft(r.Context()); err != nil {
			logging.From(r.Context(), env.Log).WithError(err).WithField("session", s.ID).Warn("draft save failed")
			env.render(w, r, http.StatusInternalServerError, s)
			return
		}
		env.render(w, r, http.StatusOK, s)
	}
}
