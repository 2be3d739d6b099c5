package handlers

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/trailhead/waivers/internal/models"
)

// SummaryURL is where a waiver's QR code points.
func SummaryURL(base, code string) string {
	return base + "/w/" + url.PathEscape(code)
}

// GET /qr/{code}.png
func QR(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wv, err := env.Store.FindByCode(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		png, err := qrcode.Encode(SummaryURL(env.BaseURL, wv.Code), qrcode.Medium, 256)
		if err != nil {
			http.Error(w, "failed to generate qr", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(png)
	}
}

// waiverSummary is the public view of a submitted waiver: enough for a guide
// to confirm it at the trailhead, nothing medical.
type waiverSummary struct {
	Code        string    `json:"code"`
	Status      string    `json:"status"`
	BookingRef  string    `json:"bookingRef"`
	FullName    string    `json:"fullName"`
	IsUnder18   bool      `json:"isUnder18"`
	SubmittedAt time.Time `json:"submittedAt"`
	QRURL       string    `json:"qrUrl"`
}

func summarize(base string, wv *models.Waiver) waiverSummary {
	return waiverSummary{
		Code:        wv.Code,
		Status:      wv.Status,
		BookingRef:  wv.BookingRef,
		FullName:    wv.FullName,
		IsUnder18:   wv.IsUnder18,
		SubmittedAt: wv.SubmittedAt,
		QRURL:       base + "/qr/" + url.PathEscape(wv.Code) + ".png",
	}
}

// GET /w/{code}
func WaiverSummary(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wv, err := env.Store.FindByCode(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			writeError(w, http.StatusNotFound, "waiver_not_found")
			return
		}
		writeJSON(w, http.StatusOK, summarize(env.BaseURL, wv))
	}
}
