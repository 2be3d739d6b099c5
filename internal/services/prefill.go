package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/trailhead/waivers/internal/models"
	"github.com/trailhead/waivers/internal/waiver"
)

// Tour loads the booking behind ref and its guide.
func (s *WaiverStore) Tour(ctx context.Context, ref string) (waiver.TourContext, error) {
	var b models.Booking
	err := s.db.WithContext(ctx).Preload("Guide").Where("ref = ?", strings.TrimSpace(ref)).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return waiver.TourContext{}, ErrBookingNotFound
	}
	if err != nil {
		return waiver.TourContext{}, errors.Wrap(err, "load booking")
	}
	tour := waiver.TourContext{
		TourName:   b.TourName,
		BookingRef: b.Ref,
		StartDate:  b.StartDate,
		EndDate:    b.EndDate,
		Location:   b.Location,
	}
	if b.Guide != nil {
		tour.GuideName = b.Guide.Name
		tour.GuideContact = b.Guide.Contact
	}
	return tour, nil
}

// draft keys that never prefill a new session
var draftOnlyKeys = []string{"tour", "signature", "guardianSignature", "signatureDate", "submittedAt"}

// Prefill returns the tour context for ref and a JSON object of known field
// values for email: the returning participant's profile overlaid by their
// latest unsubmitted draft for this booking. The object is nil when nothing
// is known.
func (s *WaiverStore) Prefill(ctx context.Context, ref, email string) (waiver.TourContext, []byte, error) {
	tour, err := s.Tour(ctx, ref)
	if err != nil {
		return tour, nil, err
	}
	norm, ok := NormEmail(email)
	if norm == "" || !ok {
		return tour, nil, nil
	}

	fields := map[string]any{"email": strings.TrimSpace(email)}

	var p models.Participant
	err = s.db.WithContext(ctx).Where("email = ?", norm).First(&p).Error
	switch {
	case err == nil:
		fields = lo.Assign(fields, profileFields(p))
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return tour, nil, errors.Wrap(err, "load participant")
	}

	var d models.WaiverDraft
	err = s.db.WithContext(ctx).
		Where("booking_ref = ? AND email = ? AND submitted_at IS NULL", tour.BookingRef, norm).
		Order("saved_at desc").
		First(&d).Error
	switch {
	case err == nil:
		var draft map[string]any
		if err := json.Unmarshal(d.Payload, &draft); err != nil {
			return tour, nil, errors.Wrap(err, "decode draft")
		}
		fields = lo.Assign(fields, lo.OmitByKeys(draft, draftOnlyKeys))
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return tour, nil, errors.Wrap(err, "load draft")
	}

	raw, err := json.Marshal(fields)
	return tour, raw, errors.Wrap(err, "encode prefill")
}

func profileFields(p models.Participant) map[string]any {
	all := map[string]string{
		"fullName":              p.FullName,
		"dateOfBirth":           p.DateOfBirth,
		"nationality":           p.Nationality,
		"address":               p.Address,
		"city":                  p.City,
		"country":               p.Country,
		"phone":                 p.Phone,
		"emergencyName":         p.EmergencyName,
		"emergencyPhone":        p.EmergencyPhone,
		"emergencyRelationship": p.EmergencyRelationship,
	}
	return lo.MapValues(lo.OmitByValues(all, []string{""}), func(v string, _ string) any { return v })
}
