package models

import "time"

type Guide struct {
	ID          uint `gorm:"primarykey"`
	Name        string
	Contact     string  // phone or email shown on the waiver
	LinkCode    *string `gorm:"uniqueIndex"` // sent as "/link CODE" to the bot
	ChatID      int64   // Telegram chat for notifications, 0 when unlinked
	LinkedAt    *time.Time
	Deliverable bool `gorm:"default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WaiverReminder records that a guide was told about missing waivers for a booking.
type WaiverReminder struct {
	ID        uint      `gorm:"primarykey"`
	BookingID uint      `gorm:"uniqueIndex:idx_reminder_booking_offset"`
	LeadTime  string    `gorm:"uniqueIndex:idx_reminder_booking_offset"` // e.g. "24h0m0s"
	SentAt    time.Time `gorm:"index"`
	CreatedAt time.Time
}
