package service

import (
	"errors"
	"fmt"
	"os"
	"time"

	"parkpro-backend/internal/components/telemetry"
	"parkpro-backend/internal/notify"
	"parkpro-backend/internal/portal"
	"parkpro-backend/internal/rules"
	"parkpro-backend/internal/sniper"
	"parkpro-backend/lib/configutil"
	configlibsql "parkpro-backend/lib/configutil/libsql"
)

const (
	// EnvSecret overrides the `secret` key of the config.
	EnvSecret = "PARKPRO_SECRET"
	// EnvConfig is the path of the config file, if it is unset config.json5
	// is searched for in the working directory and its parents.
	EnvConfig = "PARKPRO_CONFIG"

	ConfigName = "config.json5"

	DefaultRulesCron = "5 0 * * *"
)

var ErrMissingSecret = errors.New("no secret configured (set " + EnvSecret + " or the `secret` key)")

type SniperConfig struct {
	IntervalSeconds int `json:"interval_seconds"`
	// ResumeSeconds is how often the daemon adopts snipers persisted as
	// active by other processes.
	ResumeSeconds int `json:"resume_seconds"`
}

func (c SniperConfig) Interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return sniper.DefaultInterval
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c SniperConfig) ResumeInterval() time.Duration {
	if c.ResumeSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.ResumeSeconds) * time.Second
}

type RulesConfig struct {
	HorizonDays int `json:"horizon_days"`
	// Cron is when the daemon runs every rule, in Timezone.
	Cron     string `json:"cron"`
	Timezone string `json:"timezone"`
}

func (c RulesConfig) Horizon() int {
	if c.HorizonDays <= 0 {
		return rules.DefaultHorizon
	}
	return c.HorizonDays
}

func (c RulesConfig) CronSpec() string {
	if c.Cron == "" {
		return DefaultRulesCron
	}
	return c.Cron
}

type Config struct {
	Secret    string              `json:"secret"`
	Database  configlibsql.Struct `json:"database"`
	Portal    portal.Config       `json:"portal"`
	Sniper    SniperConfig        `json:"sniper"`
	Rules     RulesConfig         `json:"rules"`
	Smtp      notify.SmtpConfig   `json:"smtp"`
	Telemetry telemetry.Config    `json:"telemetry"`
}

func (c Config) Validate() error {
	if c.Secret == "" {
		return ErrMissingSecret
	}
	if c.Database.File == "" && c.Database.Url == "" {
		return fmt.Errorf("no database configured")
	}
	return nil
}

// LoadConfig reads the config file and applies environment overrides. A
// missing config file is not an error as long as the result validates.
func LoadConfig() (Config, error) {
	config, err := configutil.Locate[Config](EnvConfig, ConfigName)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}
	if secret := os.Getenv(EnvSecret); secret != "" {
		config.Secret = secret
	}
	if config.Database.File == "" && config.Database.Url == "" {
		config.Database.File = "<dev_state>/parkpro.db"
	}
	return config, config.Validate()
}
