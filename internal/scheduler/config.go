package scheduler

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
)

// Config defines when scheduled runs fire
type Config struct {
	// Standard 5-field cron expression or descriptor (@daily, @every 1h)
	Schedule string `toml:"schedule"`

	// IANA zone the expression is evaluated in
	Timezone string `toml:"timezone"`
}

// DefaultConfig runs once a day at midnight UTC
func DefaultConfig() Config {
	return Config{
		Schedule: "0 0 * * *",
		Timezone: "UTC",
	}
}

// ParseSchedule parses a standard cron expression
func ParseSchedule(expr string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return schedule, nil
}

// validateConfig validates scheduler configuration and returns the parsed schedule and zone
func validateConfig(config Config) (cron.Schedule, *time.Location, error) {
	if config.Schedule == "" {
		return nil, nil, fmt.Errorf("schedule must be specified")
	}

	schedule, err := ParseSchedule(config.Schedule)
	if err != nil {
		return nil, nil, err
	}

	tz := config.Timezone
	if tz == "" {
		tz = "UTC"
	}
	location, err := time.LoadLocation(tz)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid timezone %q: %w", config.Timezone, err)
	}

	return schedule, location, nil
}

// Validate checks the schedule expression and timezone
func (c Config) Validate() error {
	_, _, err := validateConfig(c)
	return err
}
