package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validConfig = `
system:
  log_level: INFO
  deploy_dir: deploy
  trades_dir: trades
accounts:
  - short_code: ACC1
    broker: mock
    client_id: C12345
    app_key: key
    app_secret: secret
    multiple: 1
timing:
  trade_track_interval: 5
  strategy_monitor_offset: 3
telemetry:
  metrics_port: 9090
  enable_metrics: true
`

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.System.LogLevel)
	require.Len(t, cfg.Accounts, 1)
	assert.Equal(t, "ACC1", cfg.Accounts[0].ShortCode)
	assert.Equal(t, "mock", cfg.Accounts[0].BrokerName)
	assert.Equal(t, 5, cfg.Timing.TradeTrackInterval)
	assert.Equal(t, 3, cfg.Timing.StrategyMonitorOffset)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
accounts:
  - short_code: ACC1
    broker: mock
    client_id: C12345
`))
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.System.LogLevel)
	assert.Equal(t, 5, cfg.Timing.TradeTrackInterval)
	assert.Equal(t, 3, cfg.Timing.StrategyMonitorOffset)
	assert.Equal(t, 30, cfg.Timing.OrderBookRefresh)
	assert.Equal(t, 10, cfg.Timing.BrokerRateLimit)
	assert.Equal(t, 9090, cfg.Telemetry.MetricsPort)
}

func TestLoadConfigExpandsEnvVars(t *testing.T) {
	t.Setenv("BROKER_APP_SECRET", "supersecret")

	cfg, err := LoadConfig(writeConfig(t, `
accounts:
  - short_code: ACC1
    broker: mock
    client_id: C12345
    app_secret: ${BROKER_APP_SECRET}
`))
	require.NoError(t, err)
	assert.Equal(t, "supersecret", cfg.Accounts[0].AppSecret)
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "no accounts",
			content: "system:\n  log_level: INFO\n",
			wantErr: "at least one account",
		},
		{
			name: "duplicate short code",
			content: `
accounts:
  - {short_code: ACC1, broker: mock, client_id: A}
  - {short_code: ACC1, broker: mock, client_id: B}
`,
			wantErr: "duplicate short code",
		},
		{
			name: "bad log level",
			content: `
system:
  log_level: verbose
accounts:
  - {short_code: ACC1, broker: mock, client_id: A}
`,
			wantErr: "log_level",
		},
		{
			name: "offset not below interval",
			content: `
accounts:
  - {short_code: ACC1, broker: mock, client_id: A}
timing:
  trade_track_interval: 5
  strategy_monitor_offset: 5
`,
			wantErr: "strategy_monitor_offset",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadHolidays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "holidays.txt")
	require.NoError(t, os.WriteFile(path, []byte("# exchange holidays\n2024-10-02\n\n2024-11-01\n"), 0o644))

	holidays, err := LoadHolidays(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-10-02", "2024-11-01"}, holidays)
}

func TestLoadHolidaysMissingFile(t *testing.T) {
	holidays, err := LoadHolidays(filepath.Join(t.TempDir(), "nope.txt"))
	require.NoError(t, err)
	assert.Empty(t, holidays)
}

func TestLoadHolidaysRejectsBadDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "holidays.txt")
	require.NoError(t, os.WriteFile(path, []byte("02-10-2024\n"), 0o644))

	_, err := LoadHolidays(path)
	require.Error(t, err)
}
