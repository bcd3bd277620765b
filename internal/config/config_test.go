package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("STORAGE_DRIVER", StorageDriverMemory)

	cfg, err := Load()
	req.NoError(err)
	req.Equal(7*24*time.Hour, cfg.Session.IdleTimeout)
	req.Equal(7*24*time.Hour, cfg.Mediation.PendingTimeout)
	req.Equal(8, cfg.Mediation.IDLength)
	req.Equal(5, cfg.Mediation.IDMaxAttempts)
	req.Equal(10, cfg.Chat.RateLimit)
	req.Equal(time.Minute, cfg.Chat.RateWindow)
	req.Equal("@hourly", cfg.Janitor.Schedule)
}

func TestLoad_Overrides(t *testing.T) {
	req := require.New(t)
	t.Setenv("STORAGE_DRIVER", StorageDriverMemory)
	t.Setenv("CHAT_RATE_LIMIT", "3")
	t.Setenv("CHAT_RATE_WINDOW", "30s")
	t.Setenv("JANITOR_SCHEDULE", "*/5 * * * *")
	t.Setenv("LOG_PRETTY", "true")

	cfg, err := Load()
	req.NoError(err)
	req.Equal(3, cfg.Chat.RateLimit)
	req.Equal(30*time.Second, cfg.Chat.RateWindow)
	req.Equal("*/5 * * * *", cfg.Janitor.Schedule)
	req.True(cfg.Log.Pretty)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("should reject unknown storage driver", func(t *testing.T) {
		t.Setenv("STORAGE_DRIVER", "cassandra")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("should reject a bad janitor schedule", func(t *testing.T) {
		t.Setenv("STORAGE_DRIVER", StorageDriverMemory)
		t.Setenv("JANITOR_SCHEDULE", "every hour")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("should refuse the default secret in production", func(t *testing.T) {
		t.Setenv("STORAGE_DRIVER", StorageDriverMemory)
		t.Setenv("ENVIRONMENT", "production")
		_, err := Load()
		require.Error(t, err)
	})
}
