package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const Prefix = "WAIVERS"

type AppConfig struct {
	Addr          string `default:":8080"`
	PublicBaseURL string `split_words:"true" default:"http://localhost:8080"`

	DbDriver string `split_words:"true" default:"sqlite"` // sqlite | mysql
	DbDsn    string `split_words:"true" default:"waivers.db?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"`

	UploadDir string `split_words:"true" default:"uploads"`

	AutosaveInterval time.Duration `split_words:"true" default:"30s"`
	SavingIndicator  time.Duration `split_words:"true" default:"2s"`
	SessionTTL       time.Duration `split_words:"true" default:"2h"`

	// Zero LaunchAt means the site is live.
	LaunchAt     time.Time `split_words:"true"`
	BypassTokens []string  `split_words:"true"`

	// bcrypt hash; an empty value disables the admin area.
	AdminPasswordHash string `split_words:"true"`

	TelegramToken   string          `split_words:"true"`
	WebhookSecret   string          `split_words:"true"` // ?secret= on /tg/webhook
	RemindersEnable bool            `split_words:"true" default:"false"`
	RemindOffsets   []time.Duration `split_words:"true" default:"24h,2h"`

	LogLevel  string `split_words:"true" default:"info"`
	LogFormat string `split_words:"true" default:"json"` // json | text
}

// Load reads an optional .env file and then the WAIVERS_* environment.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, errors.Wrap(err, "load .env")
	}
	cfg := &AppConfig{}
	if err := envconfig.Process(Prefix, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse env vars")
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	if cfg.AutosaveInterval <= 0 {
		return nil, errors.Errorf("autosave interval must be positive, got %s", cfg.AutosaveInterval)
	}
	return cfg, nil
}
