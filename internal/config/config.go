package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"sendcash-backend/internal/utils"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Blockchain BlockchainConfig `yaml:"blockchain"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Watcher    WatcherConfig    `yaml:"watcher"`
	NATS       NATSConfig       `yaml:"nats"`
	Receipt    ReceiptConfig    `yaml:"receipt"`
	Admin      AdminConfig      `yaml:"admin"`
	CORS       CORSConfig       `yaml:"cors"`
	Log        LogConfig        `yaml:"log"`
	Tokens     []TokenConfig    `yaml:"tokens"` // extra entries for the static token table
}

// ServerConfig server configuration
type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ShutdownTimeout int    `yaml:"shutdownTimeout"` // seconds
}

// DatabaseConfig Database configuration. Driver is one of sqlite, postgres, mysql.
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// BlockchainConfig chain RPC and contract addresses
type BlockchainConfig struct {
	RPCURL           string `yaml:"rpcUrl"`
	ChainID          int64  `yaml:"chainId"`
	UsernameRegistry string `yaml:"usernameRegistry"`
	SendCash         string `yaml:"sendCash"`
	ExplorerTxURL    string `yaml:"explorerTxUrl"` // printf template with one %s for the tx hash
	CallTimeout      int    `yaml:"callTimeout"`   // seconds
}

// TelegramConfig bot transport configuration
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	Debug    bool   `yaml:"debug"`
	Enabled  bool   `yaml:"enabled"`
}

// SchedulerConfig payment reminder scheduler configuration
type SchedulerConfig struct {
	Enabled          bool `yaml:"enabled"`
	Interval         int  `yaml:"interval"`         // seconds between ticks
	PendingThreshold int  `yaml:"pendingThreshold"` // seconds a payment must be pending before a reminder
	RemindEvery      int  `yaml:"remindEvery"`      // seconds between reminders for the same payment
	MaxReminders     int  `yaml:"maxReminders"`
	BatchSize        int  `yaml:"batchSize"`
}

// WatcherConfig on-chain PaymentSent log watcher
type WatcherConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Interval      int    `yaml:"interval"` // seconds
	BatchBlocks   uint64 `yaml:"batchBlocks"`
	Confirmations uint64 `yaml:"confirmations"`
	StartBlock    uint64 `yaml:"startBlock"` // 0 means start from the current head
}

// NATSConfig NATS event publishing configuration
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Timeout int    `yaml:"timeout"`
}

// ReceiptConfig share link configuration
type ReceiptConfig struct {
	BaseURL string `yaml:"baseUrl"`
}

// AdminConfig Admin API access control configuration
type AdminConfig struct {
	Username     string   `yaml:"username"`
	PasswordHash string   `yaml:"passwordHash"` // bcrypt
	TOTPSecret   string   `yaml:"totpSecret"`
	JWTSecret    string   `yaml:"jwtSecret"`
	TokenTTL     int      `yaml:"tokenTTL"` // minutes
	AllowedIPs   []string `yaml:"allowedIPs"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// LogConfig logrus configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// TokenConfig one entry of the token table
type TokenConfig struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
}

// LoadConfig reads the YAML file (config.local.yaml wins over config.yaml when
// no path is given), applies environment overrides and defaults.
// A missing default file is not an error: the service can run from env alone.
func LoadConfig(configPath string) (*Config, error) {
	explicit := configPath != ""
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
		}
	}

	var cfg Config
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case explicit || !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	overrideFromEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that have no sensible default
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.Driver != "sqlite" && c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required for driver %s", c.Database.Driver)
	}
	if c.Blockchain.RPCURL == "" {
		return fmt.Errorf("blockchain.rpcUrl is required for chain %d", c.Blockchain.ChainID)
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.botToken is required when telegram is enabled")
	}
	if c.Watcher.Enabled && c.Blockchain.SendCash == "" {
		return fmt.Errorf("blockchain.sendCash is required when the watcher is enabled")
	}
	if !strings.Contains(c.Blockchain.ExplorerTxURL, "%s") {
		return fmt.Errorf("blockchain.explorerTxUrl must contain %%s")
	}
	return nil
}

func applyDefaults(c *Config) {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3001
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 15
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		c.Database.DSN = "sendcash.db"
	}
	if c.Blockchain.ChainID == 0 {
		c.Blockchain.ChainID = 8453
	}
	if network, ok := utils.GlobalChainRegistry.Get(c.Blockchain.ChainID); ok {
		if c.Blockchain.RPCURL == "" && len(network.RPCEndpoints) > 0 {
			c.Blockchain.RPCURL = network.RPCEndpoints[0]
		}
		if c.Blockchain.ExplorerTxURL == "" {
			c.Blockchain.ExplorerTxURL = network.ExplorerTxURL
		}
	}
	if c.Blockchain.CallTimeout <= 0 {
		c.Blockchain.CallTimeout = 10
	}
	if c.Scheduler.Interval <= 0 {
		c.Scheduler.Interval = 60
	}
	if c.Scheduler.PendingThreshold <= 0 {
		c.Scheduler.PendingThreshold = 600
	}
	if c.Scheduler.RemindEvery <= 0 {
		c.Scheduler.RemindEvery = 3600
	}
	if c.Scheduler.MaxReminders <= 0 {
		c.Scheduler.MaxReminders = 3
	}
	if c.Scheduler.BatchSize <= 0 {
		c.Scheduler.BatchSize = 100
	}
	if c.Watcher.Interval <= 0 {
		c.Watcher.Interval = 15
	}
	if c.Watcher.BatchBlocks == 0 {
		c.Watcher.BatchBlocks = 500
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "sendcash.payments.stored"
	}
	if c.NATS.Timeout <= 0 {
		c.NATS.Timeout = 10
	}
	if c.Receipt.BaseURL == "" {
		c.Receipt.BaseURL = "https://sendcash.app/receipt"
	}
	if c.Admin.Username == "" {
		c.Admin.Username = "admin"
	}
	if c.Admin.TokenTTL <= 0 {
		c.Admin.TokenTTL = 60
	}
	if c.CORS.MaxAge <= 0 {
		c.CORS.MaxAge = 3600
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// overrideFromEnv environment variables win over the file
func overrideFromEnv(config *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if driver := os.Getenv("DATABASE_DRIVER"); driver != "" {
		config.Database.Driver = strings.ToLower(driver)
	}
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	} else if dsn := os.Getenv("SUPABASE_DB_URL"); dsn != "" {
		config.Database.DSN = dsn
		if os.Getenv("DATABASE_DRIVER") == "" {
			config.Database.Driver = "postgres"
		}
	}

	if rpcURL := os.Getenv("RPC_URL"); rpcURL != "" {
		config.Blockchain.RPCURL = rpcURL
	}
	if chainID := os.Getenv("CHAIN_ID"); chainID != "" {
		if id, err := strconv.ParseInt(chainID, 10, 64); err == nil {
			config.Blockchain.ChainID = id
		}
	}
	if registry := os.Getenv("USERNAME_REGISTRY_ADDRESS"); registry != "" {
		config.Blockchain.UsernameRegistry = registry
	}
	if sendCash := os.Getenv("SEND_CASH_ADDRESS"); sendCash != "" {
		config.Blockchain.SendCash = sendCash
	}
	if explorer := os.Getenv("EXPLORER_TX_URL"); explorer != "" {
		config.Blockchain.ExplorerTxURL = explorer
	}

	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		config.Telegram.BotToken = token
		config.Telegram.Enabled = true
	}

	if enabled := os.Getenv("SCHEDULER_ENABLED"); enabled != "" {
		config.Scheduler.Enabled = enabled == "true"
	}
	if interval := os.Getenv("SCHEDULER_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.Scheduler.Interval = int(d.Seconds())
		}
	}

	if enabled := os.Getenv("WATCHER_ENABLED"); enabled != "" {
		config.Watcher.Enabled = enabled == "true"
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}

	if receiptURL := os.Getenv("RECEIPT_BASE_URL"); receiptURL != "" {
		config.Receipt.BaseURL = receiptURL
	}

	if secret := os.Getenv("ADMIN_JWT_SECRET"); secret != "" {
		config.Admin.JWTSecret = secret
	}
	if hash := os.Getenv("ADMIN_PASSWORD_HASH"); hash != "" {
		config.Admin.PasswordHash = hash
	}
	if totpSecret := os.Getenv("ADMIN_TOTP_SECRET"); totpSecret != "" {
		config.Admin.TOTPSecret = totpSecret
	}

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		origins := strings.Split(corsOrigins, ",")
		config.CORS.AllowedOrigins = make([]string, 0, len(origins))
		for _, origin := range origins {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				config.CORS.AllowedOrigins = append(config.CORS.AllowedOrigins, trimmed)
			}
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Log.Format = format
	}
}

// SchedulerInterval tick interval as a duration
func (c *Config) SchedulerInterval() time.Duration {
	return time.Duration(c.Scheduler.Interval) * time.Second
}

// CallTimeout per-call chain RPC timeout
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Blockchain.CallTimeout) * time.Second
}

// Addr listen address for the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
