package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	DefaultURL   = "https://governmentofbc.maps.arcgis.com"
	DefaultUser  = "Province.Of.British.Columbia"
	DefaultGroup = "23fe22d4f7c54475958319baecbd5b28"

	// MaxBatchSize is the largest addUsers request the portal accepts.
	MaxBatchSize = 25
)

// Config carries everything a sync run needs. The CLI fills it from env and
// then overrides fields from flags.
type Config struct {
	Portal struct {
		URL      string        `env:"AGO_URL" env-default:"https://governmentofbc.maps.arcgis.com"`
		User     string        `env:"AGO_USER" env-default:"Province.Of.British.Columbia"`
		Password string        `env:"AGO_PASSWORD"`
		Insecure bool          `env:"AGO_INSECURE" env-default:"false"`
		Timeout  time.Duration `env:"AGO_HTTP_TIMEOUT" env-default:"60s"`
		Retries  int           `env:"AGO_RETRIES" env-default:"3"`
	}

	Sync struct {
		GroupID   string `env:"AGO_GROUP" env-default:"23fe22d4f7c54475958319baecbd5b28"`
		MaxUsers  int    `env:"AGO_MAX_USERS" env-default:"1000"`
		BatchSize int    `env:"AGO_BATCH_SIZE" env-default:"25"`
		DryRun    bool   `env:"DRY_RUN" env-default:"false"`
		Report    string `env:"REPORT_PATH"`
	}

	// PasswordSecret names an AWS Secrets Manager secret to read the portal
	// password from when Password is empty.
	PasswordSecret string `env:"AGO_PASSWORD_SECRET"`

	LDAP struct {
		Verify   bool   `env:"VERIFY_IDIR" env-default:"false"`
		Server   string `env:"LDAP_SERVER"`
		Port     string `env:"LDAP_PORT" env-default:"389"`
		User     string `env:"LDAP_USER"`
		Password string `env:"LDAP_PASSWORD"`
		BaseDN   string `env:"BASE_DN"`
	}

	LogLevel string `env:"LOG_LEVEL" env-default:"info"`
}

// Load reads the environment into a Config with defaults applied.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("cannot read config from env: %w", err)
	}
	return &cfg, nil
}

// Validate checks the fields a run cannot start without.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Portal.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("portal url %q is not an absolute URL", c.Portal.URL))
	}
	if c.Portal.User == "" {
		errs = append(errs, errors.New("portal user is required"))
	}
	if c.Portal.Password == "" && c.PasswordSecret == "" {
		errs = append(errs, errors.New("portal password is required (-pwd or -pwd-secret)"))
	}
	if c.Portal.Retries < 1 {
		errs = append(errs, fmt.Errorf("retries must be at least 1, got %d", c.Portal.Retries))
	}
	if c.Sync.GroupID == "" {
		errs = append(errs, errors.New("group id is required"))
	}
	if c.Sync.MaxUsers < 1 {
		errs = append(errs, fmt.Errorf("max users must be positive, got %d", c.Sync.MaxUsers))
	}
	if c.Sync.BatchSize < 1 || c.Sync.BatchSize > MaxBatchSize {
		errs = append(errs, fmt.Errorf("batch size must be between 1 and %d, got %d", MaxBatchSize, c.Sync.BatchSize))
	}
	if c.LDAP.Verify && (c.LDAP.Server == "" || c.LDAP.BaseDN == "") {
		errs = append(errs, errors.New("IDIR verification needs LDAP_SERVER and BASE_DN"))
	}

	return errors.Join(errs...)
}
