package bot

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/trailhead/waivers/internal/models"
)

const helpText = "Hi! Send <code>/link CODE</code> with the code from the operations team to get waiver updates for your tours.\n" +
	"/pending lists bookings in the coming week that still miss waivers.\n" +
	"/stop pauses notifications."

// Dispatcher answers guide commands sent to the bot webhook.
type Dispatcher struct {
	c   *Client
	db  *gorm.DB
	log logrus.FieldLogger
	now func() time.Time
}

func NewDispatcher(c *Client, conn *gorm.DB, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{c: c, db: conn, log: log, now: time.Now}
}

func (d *Dispatcher) Handle(ctx context.Context, u *Update) error {
	if u.Message == nil || u.Message.Chat == nil {
		return nil
	}
	chat := u.Message.Chat.ID
	text := strings.TrimSpace(u.Message.Text)
	cmd, arg, _ := strings.Cut(text, " ")

	switch strings.ToLower(cmd) {
	case "/link":
		return d.handleLink(ctx, chat, strings.Trim(arg, " :"))
	case "/pending":
		return d.handlePending(ctx, chat)
	case "/stop":
		return d.handleStop(ctx, chat)
	default:
		return d.c.SendMessage(ctx, chat, helpText)
	}
}

func (d *Dispatcher) handleLink(ctx context.Context, chat int64, code string) error {
	if code == "" {
		return d.c.SendMessage(ctx, chat, "Use: /link CODE")
	}
	var g models.Guide
	err := d.db.WithContext(ctx).Where("link_code = ?", strings.ToUpper(code)).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return d.c.SendMessage(ctx, chat, "Code not recognised.")
	}
	if err != nil {
		return errors.Wrap(err, "find guide")
	}
	now := d.now()
	if err := d.db.WithContext(ctx).Model(&g).Updates(map[string]any{
		"chat_id":     chat,
		"linked_at":   now,
		"deliverable": true,
	}).Error; err != nil {
		return errors.Wrap(err, "link guide")
	}
	d.log.WithFields(logrus.Fields{"guide": g.ID, "chat": chat}).Info("guide linked to telegram")
	return d.c.SendMessage(ctx, chat, fmt.Sprintf("✅ Linked to <b>%s</b>. You will hear about new waivers here.", html.EscapeString(g.Name)))
}

func (d *Dispatcher) handlePending(ctx context.Context, chat int64) error {
	now := d.now()
	rows, err := pendingBookings(ctx, d.db, now, now.Add(7*24*time.Hour), chat)
	if err != nil {
		return errors.Wrap(err, "pending bookings")
	}
	return d.c.SendMessage(ctx, chat, pendingSummary(rows))
}

func (d *Dispatcher) handleStop(ctx context.Context, chat int64) error {
	res := d.db.WithContext(ctx).Model(&models.Guide{}).Where("chat_id = ?", chat).Update("deliverable", false)
	if res.Error != nil {
		return errors.Wrap(res.Error, "pause guide")
	}
	if res.RowsAffected == 0 {
		return d.c.SendMessage(ctx, chat, helpText)
	}
	return d.c.SendMessage(ctx, chat, "Notifications paused. Send /link CODE to resume.")
}
