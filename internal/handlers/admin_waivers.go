package handlers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/trailhead/waivers/internal/logging"
	"github.com/trailhead/waivers/internal/models"
	"github.com/trailhead/waivers/internal/services"
	"github.com/trailhead/waivers/internal/waiver"
)

type adminRow struct {
	Code        string    `json:"code"`
	Status      string    `json:"status"`
	BookingRef  string    `json:"bookingRef"`
	FullName    string    `json:"fullName"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	IsUnder18   bool      `json:"isUnder18"`
	SubmittedAt time.Time `json:"submittedAt"`
}

func toAdminRow(w models.Waiver) adminRow {
	return adminRow{
		Code:        w.Code,
		Status:      w.Status,
		BookingRef:  w.BookingRef,
		FullName:    w.FullName,
		Email:       w.Email,
		Phone:       w.Phone,
		IsUnder18:   w.IsUnder18,
		SubmittedAt: w.SubmittedAt,
	}
}

// filterFrom reads ?booking=&email=&status=&limit=. status=all lifts the
// default of current waivers only.
func filterFrom(r *http.Request) services.Filter {
	q := r.URL.Query()
	f := services.Filter{
		BookingRef: strings.TrimSpace(q.Get("booking")),
		Email:      strings.TrimSpace(q.Get("email")),
		Status:     models.WaiverSubmitted,
	}
	switch s := strings.TrimSpace(q.Get("status")); s {
	case "":
	case "all":
		f.Status = ""
	default:
		f.Status = s
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		f.Limit = n
	}
	return f
}

// GET /admin/waivers
func AdminWaivers(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := env.Store.List(r.Context(), filterFrom(r))
		if err != nil {
			logging.From(r.Context(), env.Log).WithError(err).Error("list waivers")
			writeError(w, http.StatusInternalServerError, "list_failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"waivers": lo.Map(rows, func(wv models.Waiver, _ int) adminRow { return toAdminRow(wv) }),
		})
	}
}

// GET /admin/waivers.csv
func AdminWaiversCSV(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := env.Store.List(r.Context(), filterFrom(r))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		filename := fmt.Sprintf("waivers_%s.csv", time.Now().Format("20060102_150405"))
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", "attachment; filename="+filename)

		cw := csv.NewWriter(w)
		_ = cw.Write([]string{"Code", "Status", "Booking", "Name", "Email", "Phone", "Minor", "Submitted"})
		for _, wv := range rows {
			minor := "no"
			if wv.IsUnder18 {
				minor = "yes"
			}
			_ = cw.Write([]string{
				wv.Code, wv.Status, wv.BookingRef, wv.FullName, wv.Email, wv.Phone, minor,
				wv.SubmittedAt.UTC().Format(time.RFC3339),
			})
		}
		cw.Flush()
	}
}

type adminDetail struct {
	adminRow
	Record         waiver.Record `json:"record"`
	SignatureURL   string        `json:"signatureUrl"`
	GuardianSigURL string        `json:"guardianSignatureUrl,omitempty"`
}

// GET /admin/waivers/{code}
func AdminWaiver(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wv, err := env.Store.FindByCode(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			writeError(w, http.StatusNotFound, "waiver_not_found")
			return
		}
		d := adminDetail{
			adminRow:     toAdminRow(*wv),
			SignatureURL: "/admin/waivers/" + wv.Code + "/signatures/participant.png",
		}
		if err := json.Unmarshal(wv.Record, &d.Record); err != nil {
			logging.From(r.Context(), env.Log).WithError(err).WithField("code", wv.Code).Warn("stored record unreadable")
		}
		if wv.GuardianSignaturePath != "" {
			d.GuardianSigURL = "/admin/waivers/" + wv.Code + "/signatures/guardian.png"
		}
		writeJSON(w, http.StatusOK, d)
	}
}

// GET /admin/waivers/{code}/signatures/{role}.png
func AdminSignatureImage(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wv, err := env.Store.FindByCode(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		var rel string
		switch waiver.Role(chi.URLParam(r, "role")) {
		case waiver.RoleParticipant:
			rel = wv.SignaturePath
		case waiver.RoleGuardian:
			rel = wv.GuardianSignaturePath
		}
		if rel == "" {
			http.NotFound(w, r)
			return
		}
		path, err := env.Files.Path(rel)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		http.ServeFile(w, r, path)
	}
}
