package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/trailhead/waivers/internal/bot"
	"github.com/trailhead/waivers/internal/logging"
)

// TelegramWebhook feeds bot updates to the dispatcher. Requests must carry
// ?secret= matching the configured secret; an empty secret disables it.
func TelegramWebhook(d *bot.Dispatcher, secret string, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("secret")
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		var up bot.Update
		if err := json.Unmarshal(b, &up); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		// Telegram retries non-2xx answers, so failures are only logged.
		if err := d.Handle(r.Context(), &up); err != nil {
			logging.From(r.Context(), log).WithError(err).Warn("telegram update failed")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
