// Command waiverctl is the operations CLI: it lists and exports waivers,
// registers bookings and guides, and runs reminder passes by hand.
package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/trailhead/waivers/internal/config"
	"github.com/trailhead/waivers/internal/db"
	"github.com/trailhead/waivers/internal/events"
	"github.com/trailhead/waivers/internal/logging"
	"github.com/trailhead/waivers/internal/services"
)

// app is opened lazily so that commands like hash-password need no database.
type app struct {
	cfg   *config.AppConfig
	log   *logrus.Logger
	db    *gorm.DB
	store *services.WaiverStore
}

func (a *app) open(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New("warn", "text")
	conn, err := db.Open(cfg.DbDriver, cfg.DbDsn, a.log)
	if err != nil {
		return err
	}
	a.db = conn
	a.store = services.NewWaiverStore(conn, services.SignatureFiles{Root: cfg.UploadDir}, events.NewBus(a.log), a.log)
	return nil
}

func newRoot() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "waiverctl",
		Short:         "Operate the trailhead waiver service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		withDB(a, listCmd(a)),
		withDB(a, showCmd(a)),
		withDB(a, qrCmd(a)),
		withDB(a, bookingCmd(a)),
		withDB(a, guideCmd(a)),
		withDB(a, remindCmd(a)),
		hashPasswordCmd(),
	)
	return root
}

// withDB opens the app before cmd and all of its subcommands run.
func withDB(a *app, cmd *cobra.Command) *cobra.Command {
	cmd.PersistentPreRunE = a.open
	return cmd
}

func main() {
	if err := newRoot().Execute(); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}
