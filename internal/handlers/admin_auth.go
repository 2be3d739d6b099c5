package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/zekroTJA/timedmap"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminCookieName = "admin_session"
	adminTokenTTL   = 12 * time.Hour
)

// AdminAuth checks the admin password against a bcrypt hash and tracks the
// resulting session tokens until they go idle.
type AdminAuth struct {
	hash   []byte
	tokens *timedmap.TimedMap
	ttl    time.Duration
}

// NewAdminAuth with an empty hash refuses every login.
func NewAdminAuth(passwordHash string) *AdminAuth {
	return &AdminAuth{
		hash:   []byte(passwordHash),
		tokens: timedmap.New(time.Minute),
		ttl:    adminTokenTTL,
	}
}

// Close stops the token cleaner.
func (a *AdminAuth) Close() { a.tokens.StopCleaner() }

func (a *AdminAuth) valid(r *http.Request) bool {
	c, err := r.Cookie(adminCookieName)
	if err != nil || c.Value == "" {
		return false
	}
	if a.tokens.GetValue(c.Value) == nil {
		return false
	}
	_ = a.tokens.SetExpires(c.Value, a.ttl)
	return true
}

// RequireAdmin blocks requests without a live admin session.
func (a *AdminAuth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.valid(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// POST /admin/login {password}
func (a *AdminAuth) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(a.hash) == 0 || bcrypt.CompareHashAndPassword(a.hash, []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}
	token := uuid.NewString()
	a.tokens.Set(token, true, a.ttl)
	http.SetCookie(w, &http.Cookie{
		Name:     adminCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(a.ttl.Seconds()),
	})
	w.WriteHeader(http.StatusNoContent)
}

// POST /admin/logout
func (a *AdminAuth) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(adminCookieName); err == nil {
		a.tokens.Remove(c.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     adminCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
}
