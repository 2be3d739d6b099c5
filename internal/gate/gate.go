// Package gate holds the site back until its launch time, letting through
// visitors that present a bypass token.
package gate

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"
)

const (
	DefaultCookieName = "waivers_bypass"
	HeaderName        = "X-Bypass-Token"
	QueryParam        = "bypass"
)

// Gate is built once at bootstrap and handed to the router. A zero LaunchAt
// means the site is live.
type Gate struct {
	LaunchAt     time.Time
	BypassTokens []string
	CookieName   string

	now func() time.Time
}

func New(launchAt time.Time, tokens []string) *Gate {
	return &Gate{
		LaunchAt: launchAt,
		BypassTokens: lo.Filter(lo.Map(tokens, func(t string, _ int) string {
			return strings.TrimSpace(t)
		}), func(t string, _ int) bool { return t != "" }),
		CookieName: DefaultCookieName,
		now:        time.Now,
	}
}

// Open reports whether the site has launched at now.
func (g *Gate) Open(now time.Time) bool {
	return g.LaunchAt.IsZero() || !now.Before(g.LaunchAt)
}

// Allows reports whether token is one of the configured bypass tokens.
func (g *Gate) Allows(token string) bool {
	return token != "" && lo.Contains(g.BypassTokens, token)
}

func (g *Gate) cookieName() string {
	if g.CookieName == "" {
		return DefaultCookieName
	}
	return g.CookieName
}

// Middleware passes requests through once launched, or when they carry a
// valid bypass token in the header, the query or the bypass cookie. A query
// token is remembered in the cookie for the rest of the browser session.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		if g.now != nil {
			now = g.now()
		}
		if g.Open(now) {
			next.ServeHTTP(w, r)
			return
		}

		if tok := r.URL.Query().Get(QueryParam); g.Allows(tok) {
			http.SetCookie(w, &http.Cookie{
				Name:     g.cookieName(),
				Value:    tok,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
			next.ServeHTTP(w, r)
			return
		}
		if g.Allows(r.Header.Get(HeaderName)) {
			next.ServeHTTP(w, r)
			return
		}
		if c, err := r.Cookie(g.cookieName()); err == nil && g.Allows(c.Value) {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":    "not_launched",
			"launchAt": g.LaunchAt.UTC().Format(time.RFC3339),
		})
	})
}
