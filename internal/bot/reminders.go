package bot

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trailhead/waivers/internal/models"
)

// DefaultOffsets are the lead times before a tour starts at which guides are
// reminded of missing waivers.
var DefaultOffsets = []time.Duration{24 * time.Hour, 2 * time.Hour}

type Reminders struct {
	db      *gorm.DB
	client  *Client
	offsets []time.Duration
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewReminders(conn *gorm.DB, client *Client, offsets []time.Duration, log logrus.FieldLogger) *Reminders {
	offsets = lo.Filter(offsets, func(d time.Duration, _ int) bool { return d > 0 })
	if len(offsets) == 0 {
		offsets = DefaultOffsets
	}
	return &Reminders{db: conn, client: client, offsets: offsets, log: log, now: time.Now}
}

// Start runs a reminder pass every minute until ctx is done.
func (r *Reminders) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.Run(ctx); err != nil {
					r.log.WithError(err).Warn("reminder pass failed")
				}
			}
		}
	}()
	r.log.WithField("offsets", r.offsets).Info("waiver reminders enabled")
}

// Run sends one reminder per booking and offset: a booking is due for an
// offset once it starts within that offset and still misses waivers.
func (r *Reminders) Run(ctx context.Context) error {
	if !r.client.Enabled() {
		return nil
	}
	now := r.now().UTC()
	for _, ahead := range r.offsets {
		rows, err := pendingBookings(ctx, r.db, now, now.Add(ahead), 0)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			continue
		}

		var sent []uint
		if err := r.db.WithContext(ctx).Model(&models.WaiverReminder{}).
			Where("booking_id IN ? AND lead_time = ?", lo.Map(rows, func(p pendingBooking, _ int) uint { return p.BookingID }), ahead.String()).
			Pluck("booking_id", &sent).Error; err != nil {
			return err
		}

		for _, p := range rows {
			if lo.Contains(sent, p.BookingID) {
				continue
			}
			if err := r.client.SendMessage(ctx, p.ChatID, "⏰ <b>Waivers missing</b>\n"+p.line()); err != nil {
				r.log.WithError(err).WithField("booking", p.Ref).Warn("reminder not delivered")
				continue
			}
			rem := models.WaiverReminder{BookingID: p.BookingID, LeadTime: ahead.String(), SentAt: now}
			if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rem).Error; err != nil {
				return err
			}
			r.log.WithFields(logrus.Fields{"booking": p.Ref, "offset": ahead.String()}).Info("waiver reminder sent")
		}
	}
	return nil
}
