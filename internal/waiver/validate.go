package waiver

import (
	"net/mail"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/samber/lo"
)

// Section is a wizard step, 1 through 10.
type Section int

const (
	SectionTourInfo Section = iota + 1
	SectionParticipant
	SectionEmergency
	SectionMedical
	SectionInsurance
	SectionRisk
	SectionLiability
	SectionConduct
	SectionMedia
	SectionSignature
)

const (
	FirstSection = SectionTourInfo
	LastSection  = SectionSignature
)

var sectionTitles = map[Section]string{
	SectionTourInfo:    "Tour Information",
	SectionParticipant: "Participant Information",
	SectionEmergency:   "Emergency Contact",
	SectionMedical:     "Medical Information",
	SectionInsurance:   "Travel Insurance",
	SectionRisk:        "Risk Acknowledgment",
	SectionLiability:   "Liability Release",
	SectionConduct:     "Code of Conduct",
	SectionMedia:       "Media Consent",
	SectionSignature:   "Signature",
}

func (s Section) Title() string { return sectionTitles[s] }

func (s Section) Valid() bool { return s >= FirstSection && s <= LastSection }

// Errors maps a JSON field name to a message. Empty means valid.
type Errors map[string]string

func (e Errors) require(field, value, msg string) {
	if strings.TrimSpace(value) == "" {
		e[field] = msg
	}
}

const initialsRequired = "Please enter your initials"

// Validate checks the fields owned by section s. Sections without rules
// always pass.
func Validate(s Section, r Record) Errors {
	errs := Errors{}
	switch s {
	case SectionParticipant:
		errs.require("fullName", r.FullName, "Full legal name is required")
		errs.require("dateOfBirth", r.DateOfBirth, "Date of birth is required")
		errs.require("email", r.Email, "Email is required")
		errs.require("phone", r.Phone, "Phone number is required")
		if _, bad := errs["dateOfBirth"]; !bad {
			if dob, err := parseDate(r.DateOfBirth); err != nil {
				errs["dateOfBirth"] = "Enter a valid date of birth"
			} else if dob.After(time.Now()) {
				errs["dateOfBirth"] = "Date of birth cannot be in the future"
			}
		}
		if _, bad := errs["email"]; !bad {
			if _, err := mail.ParseAddress(strings.TrimSpace(r.Email)); err != nil {
				errs["email"] = "Enter a valid email address"
			}
		}
	case SectionEmergency:
		errs.require("emergencyName", r.EmergencyName, "Emergency contact name is required")
		errs.require("emergencyPhone", r.EmergencyPhone, "Emergency contact phone is required")
	case SectionMedical:
		if unknown := lo.Without(r.MedicalConditions, MedicalConditions...); len(unknown) > 0 {
			errs["medicalConditions"] = "Unknown condition: " + unknown[0]
		}
		if r.HasReportableCondition() {
			errs.require("medicalDetails", r.MedicalDetails, "Please describe your conditions")
		}
		if strings.TrimSpace(r.LastTetanus) != "" {
			if _, err := parseDate(r.LastTetanus); err != nil {
				errs["lastTetanus"] = "Enter a valid date"
			}
		}
	case SectionInsurance:
		if r.HasInsurance {
			errs.require("insuranceProvider", r.InsuranceProvider, "Insurance provider is required")
			errs.require("policyNumber", r.PolicyNumber, "Policy number is required")
		}
	case SectionRisk:
		errs.require("riskInitials", r.RiskInitials, initialsRequired)
	case SectionLiability:
		errs.require("liabilityInitials", r.LiabilityInitials, initialsRequired)
	case SectionConduct:
		errs.require("conductInitials", r.ConductInitials, initialsRequired)
	case SectionMedia:
		errs.require("mediaInitials", r.MediaInitials, initialsRequired)
	case SectionSignature:
		errs.require("signature", r.Signature, "Please sign the waiver")
		if r.IsUnder18 {
			errs.require("guardianName", r.GuardianName, "Guardian name is required")
			errs.require("guardianRelationship", r.GuardianRelationship, "Guardian relationship is required")
			errs.require("guardianSignature", r.GuardianSignature, "Guardian signature is required")
		}
	}
	return errs
}

// Complete validates every section; an empty result means the record may be
// submitted.
func (r Record) Complete() Errors {
	all := Errors{}
	for s := FirstSection; s <= LastSection; s++ {
		for k, v := range Validate(s, r) {
			all[k] = v
		}
	}
	return all
}

// parseDate accepts the usual date spellings (2006-01-02, 02/01/2006, "Jan 2 2006").
func parseDate(s string) (time.Time, error) {
	return dateparse.ParseAny(strings.TrimSpace(s))
}

// NormalizeDate rewrites a parsable date as 2006-01-02 and leaves anything
// else untouched.
func NormalizeDate(s string) string {
	if t, err := parseDate(s); err == nil {
		return t.Format("2006-01-02")
	}
	return s
}
