// Package waiver implements the ten-section participant waiver: the record,
// the per-section validation rules, the wizard state machine driving a
// participant through it, and the autosave loop that persists drafts.
package waiver

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// NoneOfTheAbove is the sentinel medical condition; it excludes all others.
const NoneOfTheAbove = "None of the above"

// MedicalConditions is the fixed list offered in the medical section.
var MedicalConditions = []string{
	"Heart condition",
	"High blood pressure",
	"Asthma or respiratory condition",
	"Diabetes",
	"Epilepsy or seizures",
	"Back, knee or joint problems",
	"Recent surgery or injury",
	"Pregnancy",
	"Severe allergies (anaphylaxis)",
	"Fear of heights or claustrophobia",
	NoneOfTheAbove,
}

// TourContext describes the booked tour. The wizard displays it but never
// changes it.
type TourContext struct {
	TourName     string    `json:"tourName"`
	BookingRef   string    `json:"bookingRef"`
	StartDate    time.Time `json:"startDate"`
	EndDate      time.Time `json:"endDate"`
	Location     string    `json:"location"`
	GuideName    string    `json:"guideName"`
	GuideContact string    `json:"guideContact"`
}

// Record is a participant's waiver, complete or partial.
type Record struct {
	Tour TourContext `json:"tour"`

	FullName    string `json:"fullName"`
	DateOfBirth string `json:"dateOfBirth"`
	Nationality string `json:"nationality"`
	Address     string `json:"address"`
	City        string `json:"city"`
	Country     string `json:"country"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`

	EmergencyName         string `json:"emergencyName"`
	EmergencyPhone        string `json:"emergencyPhone"`
	EmergencyRelationship string `json:"emergencyRelationship"`

	MedicalConditions []string `json:"medicalConditions"`
	MedicalDetails    string   `json:"medicalDetails"`
	Medications       string   `json:"medications"`
	Allergies         string   `json:"allergies"`
	LastTetanus       string   `json:"lastTetanus"`

	HasInsurance             bool   `json:"hasInsurance"`
	InsuranceProvider        string `json:"insuranceProvider"`
	PolicyNumber             string `json:"policyNumber"`
	InsuranceEmergencyNumber string `json:"insuranceEmergencyNumber"`

	RiskInitials      string `json:"riskInitials"`
	LiabilityInitials string `json:"liabilityInitials"`
	ConductInitials   string `json:"conductInitials"`

	MediaConsent  bool   `json:"mediaConsent"`
	MediaInitials string `json:"mediaInitials"`

	IsUnder18            bool   `json:"isUnder18"`
	GuardianName         string `json:"guardianName"`
	GuardianRelationship string `json:"guardianRelationship"`

	Signature         string     `json:"signature"`
	GuardianSignature string     `json:"guardianSignature"`
	SignatureLocation string     `json:"signatureLocation"`
	SignatureDate     *time.Time `json:"signatureDate,omitempty"`
	SubmittedAt       *time.Time `json:"submittedAt,omitempty"`
}

// NewRecord returns a blank record for tour with the documented defaults.
func NewRecord(tour TourContext) Record {
	return Record{
		Tour:              tour,
		MedicalConditions: []string{},
		HasInsurance:      true,
		MediaConsent:      true,
		IsUnder18:         false,
	}
}

// Merge overlays the JSON object patch onto r. Fields absent from patch keep
// their values. The tour context, signatures and timestamps cannot be set
// this way.
func (r *Record) Merge(patch []byte) error {
	if len(patch) == 0 {
		return nil
	}
	keep := r.Clone()
	if err := json.Unmarshal(patch, r); err != nil {
		*r = keep
		return errors.Wrap(err, "merge waiver fields")
	}
	r.Tour = keep.Tour
	r.Signature = keep.Signature
	r.GuardianSignature = keep.GuardianSignature
	r.SignatureDate = keep.SignatureDate
	r.SubmittedAt = keep.SubmittedAt
	r.MedicalConditions = NormalizeConditions(r.MedicalConditions)
	return nil
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	c := r
	c.MedicalConditions = append([]string{}, r.MedicalConditions...)
	if r.SignatureDate != nil {
		t := *r.SignatureDate
		c.SignatureDate = &t
	}
	if r.SubmittedAt != nil {
		t := *r.SubmittedAt
		c.SubmittedAt = &t
	}
	return c
}

// NormalizeConditions trims and dedupes tags. Choosing NoneOfTheAbove together
// with other tags keeps only the other tags.
func NormalizeConditions(tags []string) []string {
	out := lo.Uniq(lo.FilterMap(tags, func(tag string, _ int) (string, bool) {
		tag = strings.TrimSpace(tag)
		return tag, tag != ""
	}))
	if len(out) > 1 {
		out = lo.Without(out, NoneOfTheAbove)
	}
	return out
}

// HasReportableCondition reports whether any condition other than the
// sentinel is selected.
func (r Record) HasReportableCondition() bool {
	return lo.SomeBy(r.MedicalConditions, func(tag string) bool { return tag != NoneOfTheAbove })
}

// patchedFields lists the top-level keys of a JSON object patch.
func patchedFields(patch []byte) []string {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(patch, &m); err != nil {
		return nil
	}
	return lo.Keys(m)
}
