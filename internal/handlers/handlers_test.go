package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/trailhead/waivers/internal/bot"
	"github.com/trailhead/waivers/internal/logging"
)

func TestReadObjectRejectsNonObjects(t *testing.T) {
	for _, body := range []string{"", "null", "[1]", `"x"`, "{"} {
		req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(body))
		if _, err := readObject(httptest.NewRecorder(), req); err == nil {
			t.Errorf("readObject(%q): want error", body)
		}
	}
	req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"fullName":"Jane"}`))
	if _, err := readObject(httptest.NewRecorder(), req); err != nil {
		t.Errorf("readObject(object): %v", err)
	}
}

func TestReadJSONEmptyBody(t *testing.T) {
	var v struct{ A string }
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := readJSON(httptest.NewRecorder(), req, &v); err != nil {
		t.Errorf("empty body: want nil, got %v", err)
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusTeapot, "brew")
	if rec.Code != http.StatusTeapot {
		t.Errorf("status: want 418, got %d", rec.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != "brew" {
		t.Errorf("body: want error=brew, got %v", body)
	}
}

func TestSummaryURL(t *testing.T) {
	if got := SummaryURL("https://w.example", "WVR-0A1B2C3D"); got != "https://w.example/w/WVR-0A1B2C3D" {
		t.Errorf("want https://w.example/w/WVR-0A1B2C3D, got %s", got)
	}
}

func TestAdminAuthWithoutHashRefusesLogin(t *testing.T) {
	a := NewAdminAuth("")
	defer a.Close()
	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(`{"password":""}`))
	rec := httptest.NewRecorder()
	a.Login(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("want 401, got %d", rec.Code)
	}
}

func TestAdminAuthSession(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	a := NewAdminAuth(string(hash))
	defer a.Close()

	rec := httptest.NewRecorder()
	a.Login(rec, httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(`{"password":"pw"}`)))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("login: want 204, got %d", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || !cookies[0].HttpOnly || cookies[0].Value == "" {
		t.Fatalf("want one HttpOnly session cookie, got %+v", cookies)
	}

	guarded := a.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/admin/waivers", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with session: want 200, got %d", rec.Code)
	}
}

func TestTelegramWebhookSecret(t *testing.T) {
	var sends int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&sends, 1)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer api.Close()
	d := bot.NewDispatcher(bot.NewClient("tok").WithBaseURL(api.URL), nil, logging.Discard())
	update := `{"update_id":1,"message":{"message_id":1,"chat":{"id":42},"text":"hello"}}`

	cases := []struct {
		name, secret, query, body string
		want                      int
	}{
		{"disabled", "", "", update, http.StatusForbidden},
		{"wrong secret", "s3", "?secret=nope", update, http.StatusForbidden},
		{"bad json", "s3", "?secret=s3", "{", http.StatusBadRequest},
		{"ok", "s3", "?secret=s3", update, http.StatusOK},
	}
	for _, c := range cases {
		h := TelegramWebhook(d, c.secret, logging.Discard())
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodPost, "/tg/webhook"+c.query, strings.NewReader(c.body)))
		if rec.Code != c.want {
			t.Errorf("%s: want %d, got %d", c.name, c.want, rec.Code)
		}
	}
	if n := atomic.LoadInt32(&sends); n != 1 {
		t.Errorf("help replies: want 1, got %d", n)
	}
}
