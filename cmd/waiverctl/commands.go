package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/trailhead/waivers/internal/bot"
	"github.com/trailhead/waivers/internal/handlers"
	"github.com/trailhead/waivers/internal/models"
	"github.com/trailhead/waivers/internal/services"
	"github.com/trailhead/waivers/internal/waiver"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
)

func statusCell(status string) string {
	switch status {
	case models.WaiverSubmitted:
		return green(status)
	case models.WaiverVoid:
		return faint(status)
	default:
		return status
	}
}

func renderWaivers(out io.Writer, rows []models.Waiver) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Code", "Status", "Booking", "Name", "Email", "Minor", "Submitted"})
	for _, w := range rows {
		minor := ""
		if w.IsUnder18 {
			minor = yellow("minor")
		}
		table.Append([]string{
			w.Code, statusCell(w.Status), w.BookingRef, w.FullName, w.Email, minor,
			w.SubmittedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	table.Render()
}

func listCmd(a *app) *cobra.Command {
	var f services.Filter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List waivers, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.Status == "all" {
				f.Status = ""
			}
			rows, err := a.store.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			renderWaivers(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.BookingRef, "booking", "", "booking reference")
	cmd.Flags().StringVar(&f.Email, "email", "", "participant email")
	cmd.Flags().StringVar(&f.Status, "status", models.WaiverSubmitted, "submitted, void or all")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}

func showCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show CODE",
		Short: "Show one waiver in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.store.FindByCode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var r waiver.Record
			if err := json.Unmarshal(w.Record, &r); err != nil {
				return errors.Wrap(err, "decode stored record")
			}
			renderRecord(cmd.OutOrStdout(), w, r)
			return nil
		},
	}
}

func renderRecord(out io.Writer, w *models.Waiver, r waiver.Record) {
	table := tablewriter.NewWriter(out)
	table.SetAutoWrapText(false)
	rows := [][]string{
		{"Code", w.Code},
		{"Status", statusCell(w.Status)},
		{"Booking", w.BookingRef + " " + r.Tour.TourName},
		{"Name", r.FullName},
		{"Date of birth", r.DateOfBirth},
		{"Email", r.Email},
		{"Phone", r.Phone},
		{"Emergency", strings.TrimSpace(r.EmergencyName + " " + r.EmergencyPhone + " " + r.EmergencyRelationship)},
		{"Conditions", strings.Join(r.MedicalConditions, ", ")},
		{"Details", r.MedicalDetails},
		{"Medications", r.Medications},
		{"Allergies", r.Allergies},
		{"Insurance", strings.TrimSpace(r.InsuranceProvider + " " + r.PolicyNumber)},
		{"Media consent", strconv.FormatBool(r.MediaConsent)},
		{"Signature", w.SignaturePath},
	}
	if r.IsUnder18 {
		rows = append(rows,
			[]string{"Guardian", yellow(r.GuardianName + " (" + r.GuardianRelationship + ")")},
			[]string{"Guardian signature", w.GuardianSignaturePath},
		)
	}
	rows = append(rows, []string{"Submitted", w.SubmittedAt.Local().Format(time.RFC1123)})
	table.AppendBulk(rows)
	table.Render()
}

func qrCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "qr CODE",
		Short: "Write the QR code linking to a waiver summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.store.FindByCode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if out == "" {
				out = w.Code + ".png"
			}
			if err := qrcode.WriteFile(handlers.SummaryURL(a.cfg.PublicBaseURL, w.Code), qrcode.Medium, 256, out); err != nil {
				return errors.Wrap(err, "write qr")
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default CODE.png)")
	return cmd
}

type bookingOpts struct {
	ref, tour, location, start, end string
	party                           int
	guideID                         uint
}

func addBooking(conn *gorm.DB, o bookingOpts) (*models.Booking, error) {
	if strings.TrimSpace(o.ref) == "" {
		return nil, errors.New("--ref is required")
	}
	start, err := dateparse.ParseIn(o.start, time.Local)
	if err != nil {
		return nil, errors.Wrap(err, "--start")
	}
	end := start
	if o.end != "" {
		if end, err = dateparse.ParseIn(o.end, time.Local); err != nil {
			return nil, errors.Wrap(err, "--end")
		}
	}
	if end.Before(start) {
		return nil, errors.New("--end is before --start")
	}
	b := models.Booking{
		Ref:       strings.TrimSpace(o.ref),
		TourName:  o.tour,
		Location:  o.location,
		StartDate: start,
		EndDate:   end,
		Party:     o.party,
	}
	if o.guideID != 0 {
		b.GuideID = &o.guideID
	}
	if err := conn.Create(&b).Error; err != nil {
		return nil, errors.Wrap(err, "create booking")
	}
	return &b, nil
}

func bookingCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "booking", Short: "Manage bookings"}
	var o bookingOpts
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a booking participants can sign waivers for",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := addBooking(a.db, o)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s, party of %d)\n",
				green("created"), b.Ref, b.StartDate.Format("2006-01-02"), b.Party)
			return nil
		},
	}
	add.Flags().StringVar(&o.ref, "ref", "", "booking reference, e.g. BK-2024-0193")
	add.Flags().StringVar(&o.tour, "tour", "", "tour name")
	add.Flags().StringVar(&o.location, "location", "", "meeting point")
	add.Flags().StringVar(&o.start, "start", "", "start date")
	add.Flags().StringVar(&o.end, "end", "", "end date (defaults to start)")
	add.Flags().IntVar(&o.party, "party", 1, "participants expected to sign")
	add.Flags().UintVar(&o.guideID, "guide", 0, "guide id")
	cmd.AddCommand(add)
	return cmd
}

func newLinkCode() string {
	id := uuid.New()
	return strings.ToUpper(hex.EncodeToString(id[:3]))
}

// issueLinkCode gives a guide a fresh code to send the bot.
func issueLinkCode(conn *gorm.DB, guideID uint) (string, error) {
	for i := 0; i < 10; i++ {
		code := newLinkCode()
		var n int64
		if err := conn.Model(&models.Guide{}).Where("link_code = ?", code).Count(&n).Error; err != nil {
			return "", errors.Wrap(err, "check link code")
		}
		if n > 0 {
			continue
		}
		res := conn.Model(&models.Guide{}).Where("id = ?", guideID).Update("link_code", code)
		if res.Error != nil {
			return "", errors.Wrap(res.Error, "set link code")
		}
		if res.RowsAffected == 0 {
			return "", errors.Errorf("guide %d not found", guideID)
		}
		return code, nil
	}
	return "", errors.New("could not allocate a link code")
}

func guideCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "guide", Short: "Manage guides"}

	var name, contact string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a guide and issue a bot link code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(name) == "" {
				return errors.New("--name is required")
			}
			g := models.Guide{Name: strings.TrimSpace(name), Contact: strings.TrimSpace(contact)}
			if err := a.db.Create(&g).Error; err != nil {
				return errors.Wrap(err, "create guide")
			}
			code, err := issueLinkCode(a.db, g.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "guide %d: send %s to the bot\n", g.ID, yellow("/link "+code))
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "guide name")
	add.Flags().StringVar(&contact, "contact", "", "phone or email shown on waivers")

	link := &cobra.Command{
		Use:   "link-code GUIDE_ID",
		Short: "Issue a new bot link code for a guide",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 0)
			if err != nil {
				return errors.Wrap(err, "guide id")
			}
			code, err := issueLinkCode(a.db, uint(id))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "send %s to the bot\n", yellow("/link "+code))
			return nil
		},
	}
	cmd.AddCommand(add, link)
	return cmd
}

func remindCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Run one reminder pass now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := bot.NewClient(a.cfg.TelegramToken)
			if !client.Enabled() {
				return errors.New("WAIVERS_TELEGRAM_TOKEN is not set")
			}
			return bot.NewReminders(a.db, client, a.cfg.RemindOffsets, a.log).Run(cmd.Context())
		},
	}
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password PASSWORD",
		Short: "Print a bcrypt hash for WAIVERS_ADMIN_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(h))
			return nil
		},
	}
}
