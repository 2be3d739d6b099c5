package services

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/trailhead/waivers/internal/db"
	"github.com/trailhead/waivers/internal/events"
	"github.com/trailhead/waivers/internal/logging"
	"github.com/trailhead/waivers/internal/models"
	"github.com/trailhead/waivers/internal/signature"
	"github.com/trailhead/waivers/internal/waiver"
)

var codeRE = regexp.MustCompile(`^WVR-[0-9A-F]{8}$`)

type fixture struct {
	db      *gorm.DB
	store   *WaiverStore
	uploads string
	emitted []events.Submitted
}

// newFixture opens an isolated SQLite database with one guided booking.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	gdb, err := db.Open("sqlite", filepath.Join(dir, "test.db"), logging.Discard())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	f := &fixture{db: gdb, uploads: filepath.Join(dir, "uploads")}
	bus := events.NewBus(logging.Discard())
	bus.OnSubmitted("test", func(_ context.Context, e events.Submitted) error {
		f.emitted = append(f.emitted, e)
		return nil
	})
	f.store = NewWaiverStore(gdb, SignatureFiles{Root: f.uploads}, bus, logging.Discard())

	guide := models.Guide{Name: "Ana Ruiz", Contact: "+33 6 12 34 56 78"}
	gdb.Create(&guide)
	gdb.Create(&models.Booking{
		Ref:       "BK-2024-0193",
		TourName:  "Mont Blanc Traverse",
		StartDate: time.Date(2024, 7, 14, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 7, 18, 0, 0, 0, 0, time.UTC),
		Location:  "Chamonix",
		Party:     2,
		GuideID:   &guide.ID,
	})
	return f
}

func signed(t *testing.T) string {
	t.Helper()
	pad := signature.NewPad(120, 40)
	pad.Begin(signature.Point{X: 10, Y: 10})
	pad.Move(signature.Point{X: 100, Y: 30})
	url, err := pad.End()
	if err != nil {
		t.Fatalf("pad: %v", err)
	}
	return url
}

func completeRecord(t *testing.T) waiver.Record {
	t.Helper()
	r := waiver.NewRecord(waiver.TourContext{BookingRef: "BK-2024-0193"})
	r.FullName = "John Doe"
	r.DateOfBirth = "04/12/1990"
	r.Email = "John@Example.com"
	r.Phone = "+44 (0)7700-900123"
	r.EmergencyName = "Mary Doe"
	r.EmergencyPhone = "+44 7700 900456"
	r.MedicalConditions = []string{waiver.NoneOfTheAbove}
	r.InsuranceProvider, r.PolicyNumber = "Alpine Cover", "AC-99812"
	r.RiskInitials, r.LiabilityInitials, r.ConductInitials, r.MediaInitials = "JD", "JD", "JD", "JD"
	r.Signature = signed(t)
	at := time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)
	r.SignatureDate, r.SubmittedAt = &at, &at
	return r
}

func TestTour(t *testing.T) {
	f := newFixture(t)
	tour, err := f.store.Tour(context.Background(), " BK-2024-0193 ")
	if err != nil {
		t.Fatalf("Tour: %v", err)
	}
	if tour.TourName != "Mont Blanc Traverse" || tour.GuideName != "Ana Ruiz" || tour.Location != "Chamonix" {
		t.Errorf("tour: got %+v", tour)
	}
	if _, err := f.store.Tour(context.Background(), "BK-404"); err != ErrBookingNotFound {
		t.Errorf("unknown booking: want ErrBookingNotFound, got %v", err)
	}
}

func TestSaveDraftUpsertsBySession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.store.ForSession("sess-1", "BK-2024-0193")

	r := waiver.NewRecord(waiver.TourContext{BookingRef: "BK-2024-0193"})
	r.FullName = "Half"
	r.Signature = signed(t)
	if err := sess.SaveDraft(ctx, r); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	r.FullName = "Half Done"
	r.Email = "Half@Example.com"
	if err := sess.SaveDraft(ctx, r); err != nil {
		t.Fatalf("SaveDraft again: %v", err)
	}

	var drafts []models.WaiverDraft
	f.db.Find(&drafts)
	if len(drafts) != 1 {
		t.Fatalf("drafts: want 1 row per session, got %d", len(drafts))
	}
	var got waiver.Record
	if err := json.Unmarshal(drafts[0].Payload, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.FullName != "Half Done" {
		t.Errorf("last write should win, got %q", got.FullName)
	}
	if got.Signature != "" {
		t.Error("drafts must not keep signatures")
	}
	if drafts[0].Email != "half@example.com" {
		t.Errorf("draft email column: want normalised, got %q", drafts[0].Email)
	}
}

func TestSubmitStoresWaiver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.store.ForSession("sess-1", "BK-2024-0193")
	_ = sess.SaveDraft(ctx, waiver.NewRecord(waiver.TourContext{}))

	r := completeRecord(t)
	w, err := f.store.Submit(ctx, "sess-1", "BK-2024-0193", r)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !codeRE.MatchString(w.Code) {
		t.Errorf("code %q does not match WVR-[0-9A-F]{8}", w.Code)
	}
	if w.Email != "john@example.com" || w.Phone != "+4407700900123" {
		t.Errorf("lookup columns: got email %q phone %q", w.Email, w.Phone)
	}
	if !w.SubmittedAt.Equal(*r.SubmittedAt) {
		t.Errorf("submittedAt: want %v, got %v", r.SubmittedAt, w.SubmittedAt)
	}

	if _, err := os.Stat(filepath.Join(f.uploads, filepath.FromSlash(w.SignaturePath))); err != nil {
		t.Errorf("signature file: %v", err)
	}
	if w.GuardianSignaturePath != "" {
		t.Error("adult waiver should have no guardian signature")
	}

	var stored waiver.Record
	if err := json.Unmarshal(w.Record, &stored); err != nil {
		t.Fatalf("record: %v", err)
	}
	if stored.Signature != w.SignaturePath {
		t.Errorf("stored record should reference the file, got %.40q", stored.Signature)
	}
	if stored.DateOfBirth != "04/12/1990" || stored.Phone != r.Phone {
		t.Error("stored record must keep entered values verbatim")
	}

	var d models.WaiverDraft
	f.db.Where("session_id = ?", "sess-1").First(&d)
	if d.SubmittedAt == nil {
		t.Error("draft not marked submitted")
	}

	var p models.Participant
	if err := f.db.Where("email = ?", "john@example.com").First(&p).Error; err != nil {
		t.Fatalf("participant profile: %v", err)
	}
	if p.DateOfBirth != "1990-04-12" {
		t.Errorf("profile dob: want 1990-04-12, got %q", p.DateOfBirth)
	}

	if len(f.emitted) != 1 || f.emitted[0].Code != w.Code {
		t.Errorf("events: want one Submitted for %s, got %+v", w.Code, f.emitted)
	}
}

func TestSubmitMinorStoresGuardianSignature(t *testing.T) {
	f := newFixture(t)
	r := completeRecord(t)
	r.IsUnder18 = true
	r.GuardianName, r.GuardianRelationship = "Mary Doe", "Mother"
	r.GuardianSignature = signed(t)

	w, err := f.store.Submit(context.Background(), "sess-1", "BK-2024-0193", r)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if w.GuardianSignaturePath == "" {
		t.Fatal("guardian signature not stored")
	}
	if _, err := os.Stat(filepath.Join(f.uploads, filepath.FromSlash(w.GuardianSignaturePath))); err != nil {
		t.Errorf("guardian file: %v", err)
	}
}

func TestSubmitRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	r := completeRecord(t)
	r.Signature = "data:image/jpeg;base64,AAAA"
	if _, err := f.store.Submit(context.Background(), "sess-1", "BK-2024-0193", r); errors.Cause(err) != signature.ErrNotPNG {
		t.Errorf("want ErrNotPNG, got %v", err)
	}
	var n int64
	f.db.Model(&models.Waiver{}).Count(&n)
	if n != 0 {
		t.Errorf("no waiver should be stored, got %d", n)
	}
}

func TestResubmitVoidsEarlierWaiver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.store.Submit(ctx, "sess-1", "BK-2024-0193", completeRecord(t))
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	second, err := f.store.Submit(ctx, "sess-2", "BK-2024-0193", completeRecord(t))
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}

	old, err := f.store.FindByCode(ctx, first.Code)
	if err != nil {
		t.Fatalf("FindByCode: %v", err)
	}
	if old.Status != models.WaiverVoid {
		t.Errorf("earlier waiver status: want void, got %q", old.Status)
	}
	n, _ := f.store.SubmittedCount(ctx, "BK-2024-0193")
	if n != 1 {
		t.Errorf("SubmittedCount: want 1, got %d", n)
	}

	list, err := f.store.List(ctx, Filter{BookingRef: "BK-2024-0193", Status: models.WaiverSubmitted})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Code != second.Code {
		t.Errorf("List submitted: got %+v", list)
	}
	all, _ := f.store.List(ctx, Filter{Email: "JOHN@example.com"})
	if len(all) != 2 {
		t.Errorf("List by email: want 2, got %d", len(all))
	}
}

func TestFindByCode(t *testing.T) {
	f := newFixture(t)
	w, err := f.store.Submit(context.Background(), "sess-1", "BK-2024-0193", completeRecord(t))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got, err := f.store.FindByCode(context.Background(), " "+strings.ToLower(w.Code)+" ")
	if err != nil || got.ID != w.ID {
		t.Errorf("FindByCode: got %v %v", got, err)
	}
	if _, err := f.store.FindByCode(context.Background(), "WVR-00000000"); err != ErrWaiverNotFound {
		t.Errorf("unknown code: want ErrWaiverNotFound, got %v", err)
	}
}

func TestPrefill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, raw, err := f.store.Prefill(ctx, "BK-2024-0193", "")
	if err != nil || raw != nil {
		t.Fatalf("no email: want nil prefill, got %s %v", raw, err)
	}

	f.db.Create(&models.Participant{
		Email:       "jane@example.com",
		FullName:    "Jane Doe",
		DateOfBirth: "1988-02-03",
		Phone:       "+33612345678",
	})
	tour, raw, err := f.store.Prefill(ctx, "BK-2024-0193", "Jane@Example.com")
	if err != nil {
		t.Fatalf("Prefill: %v", err)
	}
	if tour.TourName != "Mont Blanc Traverse" {
		t.Errorf("tour: got %+v", tour)
	}
	var got map[string]any
	_ = json.Unmarshal(raw, &got)
	if got["fullName"] != "Jane Doe" || got["phone"] != "+33612345678" {
		t.Errorf("profile fields: got %v", got)
	}
	if _, ok := got["nationality"]; ok {
		t.Error("empty profile fields should be omitted")
	}

	draft := waiver.NewRecord(tour)
	draft.FullName = "Jane Q. Doe"
	draft.Email = "jane@example.com"
	draft.EmergencyName = "Sam"
	if err := f.store.SaveDraft(ctx, "sess-9", "BK-2024-0193", draft); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	_, raw, _ = f.store.Prefill(ctx, "BK-2024-0193", "jane@example.com")
	got = nil
	_ = json.Unmarshal(raw, &got)
	if got["fullName"] != "Jane Q. Doe" || got["emergencyName"] != "Sam" {
		t.Errorf("draft should overlay the profile, got %v", got)
	}
	if _, ok := got["tour"]; ok {
		t.Error("draft tour context leaked into prefill")
	}

	w, err := waiver.New(tour, raw, nopSubmitter{})
	if err != nil {
		t.Fatalf("prefill must be accepted by the wizard: %v", err)
	}
	if w.Snapshot().FullName != "Jane Q. Doe" {
		t.Error("wizard did not take the prefill")
	}
}

type nopSubmitter struct{}

func (nopSubmitter) Submit(context.Context, waiver.Record) error { return nil }

func TestNormPhone(t *testing.T) {
	cases := map[string]string{
		"+44 7700 900123":  "+447700900123",
		"0044 7700 900123": "+447700900123",
		"(555) 123-4567":   "5551234567",
		"call me":          "",
		"  ":               "",
		"+1 555#":          "",
	}
	for in, want := range cases {
		if got := NormPhone(in); got != want {
			t.Errorf("NormPhone(%q): want %q, got %q", in, want, got)
		}
	}
}

func TestNormEmail(t *testing.T) {
	if e, ok := NormEmail("  Jane@Example.COM "); !ok || e != "jane@example.com" {
		t.Errorf("NormEmail: got %q %v", e, ok)
	}
	if _, ok := NormEmail("nope"); ok {
		t.Error("invalid address accepted")
	}
	if e, ok := NormEmail(""); !ok || e != "" {
		t.Error("empty address should be ok")
	}
}

func TestSignatureFilesPath(t *testing.T) {
	f := SignatureFiles{Root: "/srv/uploads"}
	if _, err := f.Path("../etc/passwd"); err == nil {
		t.Error("path escaping the root accepted")
	}
	p, err := f.Path("signatures/WVR-1-participant.png")
	if err != nil || p != filepath.Join("/srv/uploads", "signatures", "WVR-1-participant.png") {
		t.Errorf("Path: got %q %v", p, err)
	}
}
