package bot

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/trailhead/waivers/internal/models"
)

// pendingBooking is a guided booking with fewer submitted waivers than
// participants.
type pendingBooking struct {
	BookingID uint
	Ref       string
	TourName  string
	StartDate time.Time
	Party     int
	Signed    int64
	ChatID    int64
}

func (p pendingBooking) line() string {
	return fmt.Sprintf("%s — %s (<code>%s</code>)\nSigned %d of %d",
		html.EscapeString(p.TourName), p.StartDate.UTC().Format("Mon, 02 Jan 2006 15:04"),
		html.EscapeString(p.Ref), p.Signed, p.Party)
}

// pendingBookings lists bookings starting in [from, to) that still miss
// waivers. chatID narrows the search to one guide's chat; zero means every
// linked, deliverable guide.
func pendingBookings(ctx context.Context, conn *gorm.DB, from, to time.Time, chatID int64) ([]pendingBooking, error) {
	q := conn.WithContext(ctx).Table("bookings b").
		Select(`b.id AS booking_id,
		        b.ref,
		        b.tour_name,
		        b.start_date,
		        b.party,
		        g.chat_id,
		        (SELECT COUNT(*) FROM waivers w
		          WHERE w.booking_ref = b.ref AND w.status = ?) AS signed`, models.WaiverSubmitted).
		Joins("JOIN guides g ON g.id = b.guide_id").
		Where("b.start_date >= ? AND b.start_date < ?", from.UTC(), to.UTC())
	if chatID != 0 {
		q = q.Where("g.chat_id = ?", chatID)
	} else {
		q = q.Where("g.chat_id <> 0 AND g.deliverable = ?", true)
	}

	var rows []pendingBooking
	if err := q.Order("b.start_date").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return lo.Filter(rows, func(p pendingBooking, _ int) bool {
		return p.Signed < int64(p.Party)
	}), nil
}

func pendingSummary(rows []pendingBooking) string {
	if len(rows) == 0 {
		return "All waivers are in for the coming week."
	}
	return "<b>Waivers still missing</b>\n\n" + strings.Join(lo.Map(rows, func(p pendingBooking, _ int) string {
		return p.line()
	}), "\n\n")
}
