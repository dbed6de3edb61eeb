package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "https://openapi.alipay.com/gateway.do", cfg.Alipay.GatewayURL)
	assert.Equal(t, 1, cfg.Download.Workers)
	assert.Equal(t, 0, cfg.Download.MaxRetries)
	assert.Equal(t, "alipay-bill", cfg.Storage.Namespace)
	assert.Equal(t, "Asia/Shanghai", cfg.Job.TimeZone)
	assert.Equal(t, []string{"0 9 * * *", "0 10 * * *"}, cfg.Job.Schedule)
	assert.Equal(t, 30*time.Minute, cfg.Redis.LockTTL)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: mysql
  dsn: "bill:secret@tcp(127.0.0.1:3306)/bill?parseTime=true"
download:
  workers: 4
  timeout: 10s
storage:
  directory: /var/lib/alipay-bill
job:
  time_zone: UTC
  schedule:
    - "30 8 * * *"
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "bill:secret@tcp(127.0.0.1:3306)/bill?parseTime=true", cfg.Database.DSN)
	assert.Equal(t, 4, cfg.Download.Workers)
	assert.Equal(t, 10*time.Second, cfg.Download.Timeout)
	assert.Equal(t, "/var/lib/alipay-bill", cfg.Storage.Directory)
	assert.Equal(t, []string{"30 8 * * *"}, cfg.Job.Schedule)

	loc, err := cfg.Job.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "download:\n  workers: 4\n")
	t.Setenv("ALIPAY_BILL_DOWNLOAD_WORKERS", "3")
	t.Setenv("ALIPAY_BILL_STORAGE_NAMESPACE", "bills")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Download.Workers)
	assert.Equal(t, "bills", cfg.Storage.Namespace)
}

func TestLoadChangedFlagWins(t *testing.T) {
	t.Setenv("ALIPAY_BILL_DOWNLOAD_WORKERS", "3")
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("download.workers", "1", "")
	flags.String("log.log-level", "info", "")
	flags.String("date", "", "")
	flags.Bool("help", false, "")
	require.NoError(t, flags.Parse([]string{"--download.workers=2", "--log.log-level=debug", "--date=2026-10-01"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Download.Workers)
	assert.Equal(t, "debug", cfg.Log.LogLevel)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"zero workers":     "download:\n  workers: 0\n",
		"unknown driver":   "database:\n  driver: oracle\n",
		"bad gateway url":  "alipay:\n  gateway_url: not-a-url\n",
		"bad time zone":    "job:\n  time_zone: Mars/Olympus\n",
		"unknown key":      "download:\n  parallelism: 3\n",
		"telegram no chat": "notify:\n  telegram:\n    token: abc\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body), nil)
			require.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}
