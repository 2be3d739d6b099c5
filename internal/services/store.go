package services

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trailhead/waivers/internal/events"
	"github.com/trailhead/waivers/internal/models"
	"github.com/trailhead/waivers/internal/waiver"
)

var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrWaiverNotFound  = errors.New("waiver not found")
)

const signatureDir = "signatures"

// WaiverStore persists drafts and submitted waivers.
type WaiverStore struct {
	db    *gorm.DB
	files SignatureFiles
	bus   *events.Bus
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewWaiverStore(conn *gorm.DB, files SignatureFiles, bus *events.Bus, log logrus.FieldLogger) *WaiverStore {
	return &WaiverStore{db: conn, files: files, bus: bus, log: log, now: time.Now}
}

// SessionStore is a WaiverStore bound to one wizard session. It satisfies
// waiver.Submitter and waiver.DraftSaver.
type SessionStore struct {
	store      *WaiverStore
	sessionID  string
	bookingRef string
}

func (s *WaiverStore) ForSession(sessionID, bookingRef string) SessionStore {
	return SessionStore{store: s, sessionID: sessionID, bookingRef: bookingRef}
}

func (b SessionStore) Submit(ctx context.Context, r waiver.Record) error {
	_, err := b.store.Submit(ctx, b.sessionID, b.bookingRef, r)
	return err
}

func (b SessionStore) SaveDraft(ctx context.Context, r waiver.Record) error {
	return b.store.SaveDraft(ctx, b.sessionID, b.bookingRef, r)
}

// SaveDraft upserts the session's draft. Signatures are not kept in drafts.
func (s *WaiverStore) SaveDraft(ctx context.Context, sessionID, bookingRef string, r waiver.Record) error {
	r.Signature, r.GuardianSignature = "", ""
	payload, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "encode draft")
	}
	email, _ := NormEmail(r.Email)
	d := models.WaiverDraft{
		SessionID:  sessionID,
		BookingRef: bookingRef,
		Email:      email,
		Payload:    datatypes.JSON(payload),
		SavedAt:    s.now().UTC(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "payload", "saved_at", "updated_at"}),
	}).Create(&d).Error
	return errors.Wrap(err, "save draft")
}

// Submit stores the signature images and the final record, voids earlier
// submissions by the same person for the booking, marks the draft final and
// refreshes the participant profile. Listeners are told afterwards.
func (s *WaiverStore) Submit(ctx context.Context, sessionID, bookingRef string, r waiver.Record) (*models.Waiver, error) {
	code, err := s.newCode(ctx)
	if err != nil {
		return nil, err
	}

	sigPath, err := s.files.Save(signatureDir, code+"-participant", r.Signature)
	if err != nil {
		return nil, errors.Wrap(err, "participant signature")
	}
	var guardianPath string
	if r.IsUnder18 && r.GuardianSignature != "" {
		if guardianPath, err = s.files.Save(signatureDir, code+"-guardian", r.GuardianSignature); err != nil {
			s.files.Remove(sigPath)
			return nil, errors.Wrap(err, "guardian signature")
		}
	}

	stored := r.Clone()
	stored.Signature, stored.GuardianSignature = sigPath, guardianPath
	raw, err := json.Marshal(stored)
	if err != nil {
		return nil, errors.Wrap(err, "encode waiver")
	}

	now := s.now().UTC()
	email, _ := NormEmail(r.Email)
	w := models.Waiver{
		Code:                  code,
		BookingRef:            bookingRef,
		SessionID:             sessionID,
		Status:                models.WaiverSubmitted,
		FullName:              strings.TrimSpace(r.FullName),
		Email:                 email,
		Phone:                 NormPhone(r.Phone),
		IsUnder18:             r.IsUnder18,
		Record:                datatypes.JSON(raw),
		SignaturePath:         sigPath,
		GuardianSignaturePath: guardianPath,
		SignatureDate:         timeOr(r.SignatureDate, now),
		SubmittedAt:           timeOr(r.SubmittedAt, now),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Waiver{}).
			Where("booking_ref = ? AND email = ? AND full_name = ? AND status = ?",
				bookingRef, email, w.FullName, models.WaiverSubmitted).
			Update("status", models.WaiverVoid).Error; err != nil {
			return err
		}
		if err := tx.Create(&w).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.WaiverDraft{}).
			Where("session_id = ?", sessionID).
			Update("submitted_at", w.SubmittedAt).Error; err != nil {
			return err
		}
		return upsertParticipant(tx, r, email)
	})
	if err != nil {
		s.files.Remove(sigPath)
		s.files.Remove(guardianPath)
		return nil, errors.Wrap(err, "store waiver")
	}

	s.log.WithFields(logrus.Fields{
		"code":    w.Code,
		"booking": bookingRef,
		"session": sessionID,
		"minor":   w.IsUnder18,
	}).Info("waiver submitted")

	s.bus.EmitSubmitted(ctx, events.Submitted{
		Code:        w.Code,
		BookingRef:  w.BookingRef,
		FullName:    w.FullName,
		Email:       w.Email,
		IsUnder18:   w.IsUnder18,
		SubmittedAt: w.SubmittedAt,
	})
	return &w, nil
}

func timeOr(t *time.Time, def time.Time) time.Time {
	if t == nil {
		return def
	}
	return t.UTC()
}

// upsertParticipant keeps the returning-participant profile in step with the
// latest submission.
func upsertParticipant(tx *gorm.DB, r waiver.Record, email string) error {
	if email == "" {
		return nil
	}
	phone := NormPhone(r.Phone)
	if phone == "" {
		phone = strings.TrimSpace(r.Phone)
	}
	p := models.Participant{
		Email:                 email,
		FullName:              strings.TrimSpace(r.FullName),
		DateOfBirth:           waiver.NormalizeDate(r.DateOfBirth),
		Nationality:           strings.TrimSpace(r.Nationality),
		Address:               strings.TrimSpace(r.Address),
		City:                  strings.TrimSpace(r.City),
		Country:               strings.TrimSpace(r.Country),
		Phone:                 phone,
		EmergencyName:         strings.TrimSpace(r.EmergencyName),
		EmergencyPhone:        strings.TrimSpace(r.EmergencyPhone),
		EmergencyRelationship: strings.TrimSpace(r.EmergencyRelationship),
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"full_name", "date_of_birth", "nationality", "address", "city", "country", "phone",
			"emergency_name", "emergency_phone", "emergency_relationship", "updated_at",
		}),
	}).Create(&p).Error
}

// newCode returns an unused WVR-XXXXXXXX code (uppercase hex).
func (s *WaiverStore) newCode(ctx context.Context) (string, error) {
	for i := 0; i < 20; i++ {
		id := uuid.New()
		code := "WVR-" + strings.ToUpper(hex.EncodeToString(id[:4]))
		var exists int64
		if err := s.db.WithContext(ctx).Model(&models.Waiver{}).Where("code = ?", code).Count(&exists).Error; err != nil {
			return "", errors.Wrap(err, "check waiver code")
		}
		if exists == 0 {
			return code, nil
		}
	}
	return "", errors.New("could not allocate a waiver code")
}

// FindByCode looks a waiver up by its code, case-insensitively.
func (s *WaiverStore) FindByCode(ctx context.Context, code string) (*models.Waiver, error) {
	var w models.Waiver
	err := s.db.WithContext(ctx).Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWaiverNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find waiver")
	}
	return &w, nil
}

type Filter struct {
	BookingRef string
	Email      string
	Status     string // empty means any
	Limit      int
}

// List returns waivers newest first.
func (s *WaiverStore) List(ctx context.Context, f Filter) ([]models.Waiver, error) {
	q := s.db.WithContext(ctx).Model(&models.Waiver{})
	if f.BookingRef != "" {
		q = q.Where("booking_ref = ?", f.BookingRef)
	}
	if f.Email != "" {
		email, _ := NormEmail(f.Email)
		q = q.Where("email = ?", email)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []models.Waiver
	if err := q.Order("submitted_at desc, id desc").Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, "list waivers")
	}
	return out, nil
}

// SubmittedCount counts current (non-void) waivers for a booking.
func (s *WaiverStore) SubmittedCount(ctx context.Context, bookingRef string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Waiver{}).
		Where("booking_ref = ? AND status = ?", bookingRef, models.WaiverSubmitted).
		Count(&n).Error
	return n, errors.Wrap(err, "count waivers")
}

// FindBySession returns the current waiver submitted from a wizard session.
func (s *WaiverStore) FindBySession(ctx context.Context, sessionID string) (*models.Waiver, error) {
	var w models.Waiver
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id desc").
		First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWaiverNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find waiver")
	}
	return &w, nil
}
