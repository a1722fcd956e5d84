// Package config reads the control plane's environment-variable
// configuration with plain os.Getenv; there is no config-file layer.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every environment-driven setting the control plane reads
// at startup.
type Config struct {
	DBPath             string
	APIKey             string
	RateLimitPerMinute int
	TaskLockTTL        time.Duration
	SchedulerPoll      time.Duration
	ReaperPoll         time.Duration
	GatewayURLs        []string
}

// Load reads Config from the environment, applying defaults for anything
// unset. A set but unparsable numeric value is returned as an error.
func Load() (*Config, error) {
	c := &Config{
		DBPath:             getEnv("CONTROL_DB_PATH", "skynet-control.db"),
		APIKey:             os.Getenv("CONTROL_API_KEY"),
		RateLimitPerMinute: 120,
		TaskLockTTL:        300 * time.Second,
		SchedulerPoll:      1500 * time.Millisecond,
		ReaperPoll:         15 * time.Second,
	}

	if v := os.Getenv("CONTROL_RATE_LIMIT_PER_MIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse CONTROL_RATE_LIMIT_PER_MIN: %w", err)
		}
		c.RateLimitPerMinute = n
	}

	if v := os.Getenv("CONTROL_TASK_LOCK_TTL_SECONDS"); v != "" {
		d, err := parseSecondsFloat(v)
		if err != nil {
			return nil, fmt.Errorf("parse CONTROL_TASK_LOCK_TTL_SECONDS: %w", err)
		}
		c.TaskLockTTL = d
	}

	if v := os.Getenv("CONTROL_SCHEDULER_POLL_SECONDS"); v != "" {
		d, err := parseSecondsFloat(v)
		if err != nil {
			return nil, fmt.Errorf("parse CONTROL_SCHEDULER_POLL_SECONDS: %w", err)
		}
		c.SchedulerPoll = d
	}

	if v := os.Getenv("CONTROL_REAPER_POLL_SECONDS"); v != "" {
		d, err := parseSecondsFloat(v)
		if err != nil {
			return nil, fmt.Errorf("parse CONTROL_REAPER_POLL_SECONDS: %w", err)
		}
		c.ReaperPoll = d
	}

	if v := os.Getenv("GATEWAY_URLS"); v != "" {
		for _, u := range strings.Split(v, ",") {
			u = strings.TrimSpace(u)
			if u != "" {
				c.GatewayURLs = append(c.GatewayURLs, u)
			}
		}
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseSecondsFloat(v string) (time.Duration, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(f * float64(time.Second)), nil
}
