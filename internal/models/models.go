package models

import (
	"time"

	"gorm.io/datatypes"
)

// Participant is a returning hiker's saved profile, used to prefill waivers.
type Participant struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Email       string `gorm:"uniqueIndex;not null"` // participant identity
	FullName    string
	DateOfBirth string // 2006-01-02
	Nationality string
	Address     string
	City        string
	Country     string
	Phone       string

	EmergencyName         string
	EmergencyPhone        string
	EmergencyRelationship string
}

type Booking struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Ref       string `gorm:"uniqueIndex;not null"` // e.g. BK-2024-0193
	TourName  string
	StartDate time.Time
	EndDate   time.Time
	Location  string
	Party     int `gorm:"default:1"` // participants expected to sign

	GuideID *uint
	Guide   *Guide
}

const (
	WaiverSubmitted = "submitted"
	WaiverVoid      = "void" // superseded by a later submission
)

type Waiver struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Code       string `gorm:"uniqueIndex"` // e.g. WVR-1A2B3C4D
	BookingRef string `gorm:"index:idx_waiver_booking_email,priority:1"`
	SessionID  string
	Status     string

	FullName  string
	Email     string `gorm:"index:idx_waiver_booking_email,priority:2"`
	Phone     string
	IsUnder18 bool

	// Full record as submitted, signatures replaced by file paths.
	Record datatypes.JSON

	SignaturePath         string
	GuardianSignaturePath string
	SignatureDate         time.Time
	SubmittedAt           time.Time
}

// WaiverDraft holds the latest partial record of one wizard session.
type WaiverDraft struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	SessionID  string `gorm:"uniqueIndex;not null"`
	BookingRef string `gorm:"index:idx_draft_booking_email,priority:1"`
	Email      string `gorm:"index:idx_draft_booking_email,priority:2"`
	Payload    datatypes.JSON
	SavedAt    time.Time

	SubmittedAt *time.Time // nil until the session's waiver is final
}
