package main

import (
	"bytes"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/trailhead/waivers/internal/db"
	"github.com/trailhead/waivers/internal/events"
	"github.com/trailhead/waivers/internal/logging"
	"github.com/trailhead/waivers/internal/models"
	"github.com/trailhead/waivers/internal/services"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open("sqlite", filepath.Join(t.TempDir(), "test.db"), logging.Discard())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return gdb
}

func TestAddBooking(t *testing.T) {
	conn := openTestDB(t)
	b, err := addBooking(conn, bookingOpts{
		ref: "BK-2024-0193", tour: "Mont Blanc Traverse", location: "Chamonix",
		start: "2024-07-14", end: "2024-07-18", party: 4,
	})
	if err != nil {
		t.Fatalf("addBooking: %v", err)
	}
	if b.StartDate.Day() != 14 || b.EndDate.Day() != 18 || b.Party != 4 || b.GuideID != nil {
		t.Errorf("booking: got %+v", b)
	}

	if _, err := addBooking(conn, bookingOpts{ref: "BK-2", start: "2024-07-18", end: "2024-07-14"}); err == nil {
		t.Error("end before start: want error")
	}
	if _, err := addBooking(conn, bookingOpts{start: "2024-07-18"}); err == nil {
		t.Error("missing ref: want error")
	}
	if _, err := addBooking(conn, bookingOpts{ref: "BK-3", start: "someday"}); err == nil {
		t.Error("bad start: want error")
	}
}

func TestIssueLinkCode(t *testing.T) {
	conn := openTestDB(t)
	g := models.Guide{Name: "Ana Ruiz"}
	conn.Create(&g)

	code, err := issueLinkCode(conn, g.ID)
	if err != nil {
		t.Fatalf("issueLinkCode: %v", err)
	}
	if !regexp.MustCompile(`^[0-9A-F]{6}$`).MatchString(code) {
		t.Errorf("code: want 6 uppercase hex digits, got %q", code)
	}
	var got models.Guide
	conn.First(&got, g.ID)
	if got.LinkCode == nil || *got.LinkCode != code {
		t.Errorf("stored link code: want %s, got %v", code, got.LinkCode)
	}

	if _, err := issueLinkCode(conn, g.ID+99); err == nil {
		t.Error("unknown guide: want error")
	}
}

func TestHashPassword(t *testing.T) {
	cmd := hashPasswordCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"trail-admin"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	hash := strings.TrimSpace(out.String())
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("trail-admin")); err != nil {
		t.Errorf("hash does not verify: %v", err)
	}
}

func TestListRendersTable(t *testing.T) {
	conn := openTestDB(t)
	log := logging.Discard()
	a := &app{
		db:    conn,
		log:   log,
		store: services.NewWaiverStore(conn, services.SignatureFiles{Root: t.TempDir()}, events.NewBus(log), log),
	}
	now := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	conn.Create(&models.Waiver{Code: "WVR-0000000A", BookingRef: "BK-1", Status: models.WaiverSubmitted, FullName: "John Doe", SubmittedAt: now})
	conn.Create(&models.Waiver{Code: "WVR-0000000B", BookingRef: "BK-1", Status: models.WaiverVoid, FullName: "John Doe", SubmittedAt: now.Add(-time.Hour)})

	run := func(args ...string) string {
		cmd := listCmd(a)
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs(args)
		if err := cmd.Execute(); err != nil {
			t.Fatalf("list %v: %v", args, err)
		}
		return out.String()
	}

	out := run()
	if !strings.Contains(out, "WVR-0000000A") || strings.Contains(out, "WVR-0000000B") {
		t.Errorf("default list shows current waivers only:\n%s", out)
	}
	out = run("--status", "all")
	if !strings.Contains(out, "WVR-0000000A") || !strings.Contains(out, "WVR-0000000B") {
		t.Errorf("--status all shows both:\n%s", out)
	}
}
