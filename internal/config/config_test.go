package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `{
		"listen_addr": ":9090",
		"events_endpoint": "ws://localhost:8181/ws",
		"database": {"host": "db", "port": 5432, "user": "pool", "password": "secret", "database": "tpool"},
		"redis": {"addr": "redis:6379"},
		"fee": 0.1,
		"coins": [
			{"name": "xmr", "min_payout": 0.1, "address_prefix": "4", "min_address_length": 90,
			 "wallet_rpc_url": "http://localhost:18083/json_rpc"},
			{"name": "tari", "requires_confirmation": true, "explorer_url": "https://textexplore.tari.com"}
		]
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.ListenAddr)
	require.Equal(t, 0.1, cfg.Fee)
	require.Equal(t, "host=db user=pool password=secret dbname=tpool port=5432 sslmode=disable", cfg.DSN())
	require.Equal(t, []string{"xmr", "tari"}, cfg.CoinNames())

	tari, ok := cfg.Coin("tari")
	require.True(t, ok)
	require.True(t, tari.RequiresConfirmation)
	_, ok = cfg.Coin("doge")
	require.False(t, ok)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `{"coins": [{"name": "xmr"}]}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, 0.08, cfg.Fee)
	require.Equal(t, 30*24*time.Hour, cfg.ShareTTL())
	require.Equal(t, 18*time.Hour, cfg.FreezeWindow())
	require.Equal(t, time.Minute, cfg.ValidateInterval())
	require.Equal(t, time.Hour, cfg.PayoutInterval())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"database": {"host": "db", "password": "from-file"},
		"coins": [{"name": "xmr"}]
	}`)
	t.Setenv("TPOOL_DB_PASSWORD", "from-env")
	t.Setenv("TPOOL_DB_HOST", "db.internal")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Database.Password)
	require.Equal(t, "db.internal", cfg.Database.Host)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
