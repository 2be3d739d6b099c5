package db

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/trailhead/waivers/internal/logging"
	"github.com/trailhead/waivers/internal/models"
)

// Open connects to the configured database and migrates the schema.
// driver is "sqlite" (default) or "mysql".
func Open(driver, dsn string, log *logrus.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, errors.Errorf("unsupported db driver %q", driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{Logger: logging.Gorm(log)})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", driver)
	}

	if driver != "mysql" {
		// SQLite works best with a single writer; cap the pool accordingly.
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	}

	if err := Migrate(conn); err != nil {
		return nil, err
	}
	log.WithField("driver", dialector.Name()).Info("database ready")
	return conn, nil
}

func Migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&models.Guide{},
		&models.Booking{},
		&models.Participant{},
		&models.Waiver{},
		&models.WaiverDraft{},
		&models.WaiverReminder{},
	); err != nil {
		return errors.Wrap(err, "auto-migrate")
	}
	return nil
}
