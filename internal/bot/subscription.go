package bot

import (
	"context"
	"fmt"
	"html"
	"net/url"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/trailhead/waivers/internal/events"
	"github.com/trailhead/waivers/internal/models"
)

// Notifier tells a booking's guide each time a waiver comes in.
type Notifier struct {
	db      *gorm.DB
	client  *Client
	baseURL string
}

func NewNotifier(conn *gorm.DB, client *Client, baseURL string) *Notifier {
	return &Notifier{db: conn, client: client, baseURL: baseURL}
}

// Subscribe registers the notifier on bus.
func (n *Notifier) Subscribe(bus *events.Bus) {
	bus.OnSubmitted("telegram-guide", n.OnSubmitted)
}

func (n *Notifier) OnSubmitted(ctx context.Context, e events.Submitted) error {
	if !n.client.Enabled() {
		return nil
	}
	var b models.Booking
	if err := n.db.WithContext(ctx).Preload("Guide").Where("ref = ?", e.BookingRef).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return errors.Wrap(err, "load booking")
	}
	if b.Guide == nil || b.Guide.ChatID == 0 || !b.Guide.Deliverable {
		return nil
	}

	var signed int64
	if err := n.db.WithContext(ctx).Model(&models.Waiver{}).
		Where("booking_ref = ? AND status = ?", b.Ref, models.WaiverSubmitted).
		Count(&signed).Error; err != nil {
		return errors.Wrap(err, "count waivers")
	}

	who := html.EscapeString(e.FullName)
	if e.IsUnder18 {
		who += " (minor, guardian signed)"
	}
	msg := fmt.Sprintf("✅ <b>Waiver signed</b>\n%s\n%s — %s\nCode: <code>%s</code>\nSigned %d of %d\n%s/w/%s",
		who, html.EscapeString(b.TourName), b.StartDate.UTC().Format("Mon, 02 Jan 2006"),
		e.Code, signed, b.Party, n.baseURL, url.PathEscape(e.Code))
	return n.client.SendMessage(ctx, b.Guide.ChatID, msg)
}
