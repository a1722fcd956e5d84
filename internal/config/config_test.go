package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONTROL_DB_PATH", "")
	t.Setenv("CONTROL_RATE_LIMIT_PER_MIN", "")
	t.Setenv("CONTROL_TASK_LOCK_TTL_SECONDS", "")
	t.Setenv("CONTROL_SCHEDULER_POLL_SECONDS", "")
	t.Setenv("CONTROL_REAPER_POLL_SECONDS", "")
	t.Setenv("GATEWAY_URLS", "")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 120, c.RateLimitPerMinute)
	assert.Equal(t, 300*time.Second, c.TaskLockTTL)
	assert.Equal(t, 1500*time.Millisecond, c.SchedulerPoll)
	assert.Equal(t, 15*time.Second, c.ReaperPoll)
	assert.Empty(t, c.GatewayURLs)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CONTROL_DB_PATH", "/tmp/x.db")
	t.Setenv("CONTROL_RATE_LIMIT_PER_MIN", "30")
	t.Setenv("CONTROL_TASK_LOCK_TTL_SECONDS", "1.5")
	t.Setenv("GATEWAY_URLS", "http://a, http://b")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", c.DBPath)
	assert.Equal(t, 30, c.RateLimitPerMinute)
	assert.Equal(t, 1500*time.Millisecond, c.TaskLockTTL)
	assert.Equal(t, []string{"http://a", "http://b"}, c.GatewayURLs)
}

func TestLoadRejectsBadNumber(t *testing.T) {
	t.Setenv("CONTROL_RATE_LIMIT_PER_MIN", "not-a-number")
	_, err := Load()
	assert.Error(t, err)
}
