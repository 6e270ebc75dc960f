package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
service_name = "rebalancer-test"

[venue]
base_url = "https://venue.example.com"
key = "k"
secret = "s"
passphrase = "p"

[trading]
base_keep = "500"
symbols = ["BTC", "ETH"]

[kafka]
brokers = ["localhost:9092"]
group_id = "test-group"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "rebalancer-test", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.Environment)
	assert.Equal(t, "USDT", cfg.Trading.Quote)
	assert.Equal(t, "2", cfg.Venue.KeyVersion)
	assert.Equal(t, "balance", cfg.Kafka.BalanceTopic)
	assert.Equal(t, "candle", cfg.Kafka.CandleTopic)
	assert.Equal(t, 60, cfg.Reaper.Interval)
	assert.Equal(t, 3540, cfg.Reaper.StaleThreshold)
	assert.True(t, cfg.Trading.BaseKeepDecimal().IsPositive())
}

func TestLoadMissingCredentialsIsFatal(t *testing.T) {
	content := `
service_name = "rebalancer-test"

[venue]
base_url = "https://venue.example.com"
key = "k"

[trading]
base_keep = "500"

[kafka]
brokers = ["localhost:9092"]
group_id = "g"
`
	_, err := Load(writeConfig(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials")
}

func TestLoadRejectsInvalidBaseKeep(t *testing.T) {
	for _, keep := range []string{`"abc"`, `"0"`, `"-10"`} {
		content := `
service_name = "rebalancer-test"

[venue]
base_url = "https://venue.example.com"
key = "k"
secret = "s"
passphrase = "p"

[trading]
base_keep = ` + keep + `

[kafka]
brokers = ["localhost:9092"]
group_id = "g"
`
		_, err := Load(writeConfig(t, content))
		assert.Error(t, err, "base_keep %s", keep)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("APP_VENUE_SECRET", "env-secret")

	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Venue.Secret)
}
