package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/trailhead/waivers/internal/signature"
	"github.com/trailhead/waivers/internal/waiver"
)

// maxStrokePoints caps one stroke request; a real pointer drag is a few
// hundred samples.
const maxStrokePoints = 4096

// signatureError maps pad errors to a response; it reports whether it wrote
// one.
func signatureError(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, waiver.ErrUnknownRole):
		writeError(w, http.StatusNotFound, "unknown_role")
	case errors.Is(err, waiver.ErrAlreadySubmitted):
		writeError(w, http.StatusConflict, "already_submitted")
	case errors.Is(err, waiver.ErrSubmitInProgress):
		writeError(w, http.StatusConflict, "submit_in_progress")
	case errors.Is(err, signature.ErrNotPNG):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
	return true
}

// POST /waivers/{sid}/signatures/{role}/strokes
func SignatureStroke(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := env.session(w, r)
		if !ok {
			return
		}
		var req struct {
			Points []signature.Point `json:"points"`
		}
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if len(req.Points) == 0 {
			writeError(w, http.StatusBadRequest, "points are required")
			return
		}
		if len(req.Points) > maxStrokePoints {
			writeError(w, http.StatusBadRequest, "too many points")
			return
		}
		if signatureError(w, s.Wizard.Stroke(waiver.Role(chi.URLParam(r, "role")), req.Points)) {
			return
		}
		env.render(w, r, http.StatusOK, s)
	}
}

// PUT /waivers/{sid}/signatures/{role}
func SignatureUpload(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := env.session(w, r)
		if !ok {
			return
		}
		var req struct {
			DataURL string `json:"dataUrl"`
		}
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if signatureError(w, s.Wizard.SetSignatureImage(waiver.Role(chi.URLParam(r, "role")), req.DataURL)) {
			return
		}
		env.render(w, r, http.StatusOK, s)
	}
}

// DELETE /waivers/{sid}/signatures/{role}
func SignatureClear(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := env.session(w, r)
		if !ok {
			return
		}
		if signatureError(w, s.Wizard.ClearSignature(waiver.Role(chi.URLParam(r, "role")))) {
			return
		}
		env.render(w, r, http.StatusOK, s)
	}
}
