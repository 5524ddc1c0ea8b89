package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

type RedisConfig struct {
	Addr string `json:"addr"`
	DB   int    `json:"db"`
}

// CoinConfig describes one coin the pool pays. Coins whose reward event is
// reported before chain confirmation (RequiresConfirmation) are settled
// tentatively and later checked against the explorer.
type CoinConfig struct {
	Name                 string  `json:"name"`
	RequiresConfirmation bool    `json:"requires_confirmation"`
	ExplorerURL          string  `json:"explorer_url"`
	MinPayout            float64 `json:"min_payout"`
	AddressPrefix        string  `json:"address_prefix"`
	MinAddressLength     int     `json:"min_address_length"`
	WalletRPCURL         string  `json:"wallet_rpc_url"`
	WalletRPCUser        string  `json:"wallet_rpc_user"`
	WalletRPCPassword    string  `json:"wallet_rpc_password"`
}

type Config struct {
	ListenAddr              string         `json:"listen_addr"`
	EventsEndpoint          string         `json:"events_endpoint"`
	Database                DatabaseConfig `json:"database"`
	Redis                   RedisConfig    `json:"redis"`
	Fee                     float64        `json:"fee"`
	ShareTTLDays            int            `json:"share_ttl_days"`
	FreezeWindowHours       int            `json:"freeze_window_hours"`
	ValidateIntervalSeconds int            `json:"validate_interval_seconds"`
	PayoutIntervalMinutes   int            `json:"payout_interval_minutes"`
	Coins                   []CoinConfig   `json:"coins"`
}

// LoadConfig reads the JSON config file and applies .env / environment
// overrides for the values that should not live in the file.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()
	if v := os.Getenv("TPOOL_DB_PASSWORD"); v != "" {
		config.Database.Password = v
	}
	if v := os.Getenv("TPOOL_DB_HOST"); v != "" {
		config.Database.Host = v
	}
	if v := os.Getenv("TPOOL_REDIS_ADDR"); v != "" {
		config.Redis.Addr = v
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Fee == 0 {
		c.Fee = 0.08
	}
	if c.ShareTTLDays == 0 {
		c.ShareTTLDays = 30
	}
	if c.FreezeWindowHours == 0 {
		c.FreezeWindowHours = 18
	}
	if c.ValidateIntervalSeconds == 0 {
		c.ValidateIntervalSeconds = 60
	}
	if c.PayoutIntervalMinutes == 0 {
		c.PayoutIntervalMinutes = 60
	}
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.Database.Host, c.Database.User, c.Database.Password, c.Database.Database, c.Database.Port)
}

func (c *Config) ShareTTL() time.Duration {
	return time.Duration(c.ShareTTLDays) * 24 * time.Hour
}

func (c *Config) FreezeWindow() time.Duration {
	return time.Duration(c.FreezeWindowHours) * time.Hour
}

func (c *Config) ValidateInterval() time.Duration {
	return time.Duration(c.ValidateIntervalSeconds) * time.Second
}

func (c *Config) PayoutInterval() time.Duration {
	return time.Duration(c.PayoutIntervalMinutes) * time.Minute
}

// Coin looks up the configuration for one coin by name.
func (c *Config) Coin(name string) (CoinConfig, bool) {
	for _, coin := range c.Coins {
		if coin.Name == name {
			return coin, true
		}
	}
	return CoinConfig{}, false
}

// CoinNames lists every coin this pool pays. A share submission credits all of
// them jointly.
func (c *Config) CoinNames() []string {
	names := make([]string, 0, len(c.Coins))
	for _, coin := range c.Coins {
		names = append(names, coin.Name)
	}
	return names
}
