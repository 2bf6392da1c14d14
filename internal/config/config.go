package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	ServiceName    = "ibkr-paper-gateway"
	ServiceVersion = "1.0.0"
)

var (
	Env *EnvConfig
)

type EnvConfig struct {
	Env                     string                    `mapstructure:"env"`
	Log                     LogConfig                 `mapstructure:"log"`
	GracefulShutdownTimeout time.Duration             `mapstructure:"graceful_shutdown_timeout"`
	Port                    map[string]string         `mapstructure:"port"`
	IBKR                    IBKRConfig                `mapstructure:"ibkr"`
	Database                map[string]DatabaseConfig `mapstructure:"database"`
	Redis                   map[string]RedisConfig    `mapstructure:"redis"`
	NatsJetstream           NatsJetstreamConfig       `mapstructure:"nats_jetstream"`
}

type IBKRConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	ClientID         int64         `mapstructure:"client_id"`
	ConnectionPolicy string        `mapstructure:"connection_policy"` // reuse|per_request
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	SettleDelay      time.Duration `mapstructure:"settle_delay"`
}

type NatsJetstreamConfig struct {
	URL             string        `mapstructure:"url"`
	MaxRetries      int           `mapstructure:"max_retries"`
	ReconnectFactor float64       `mapstructure:"reconnect_factor"`
	MinJitter       time.Duration `mapstructure:"min_jitter"`
	MaxJitter       time.Duration `mapstructure:"max_jitter"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	ReconnectFactor float64       `mapstructure:"reconnect_factor"`
	MinJitter       time.Duration `mapstructure:"min_jitter"`
	MaxJitter       time.Duration `mapstructure:"max_jitter"`
	MaxRetry        int           `mapstructure:"max_retry"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxActiveConns  int           `mapstructure:"max_active_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type LogConfig struct {
	ShowCaller bool   `mapstructure:"show_caller"`
	LogLevel   string `mapstructure:"log_level"`
}

type RedisConfig struct {
	CacheDSN string        `mapstructure:"cache_dsn"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

func LoadConfig(configPath string) error {
	viper.Reset()

	configPath = strings.TrimSpace(configPath)
	if configPath == "" {
		viper.SetConfigName("config")
		viper.SetConfigType("yml")
		viper.AddConfigPath(".")
	} else {
		ext := strings.ToLower(filepath.Ext(configPath))
		if ext == ".yml" || ext == ".yaml" {
			viper.SetConfigFile(configPath)
		} else {
			viper.SetConfigName(filepath.Base(configPath))
			viper.SetConfigType("yml")
			configDir := filepath.Dir(configPath)
			if configDir == "." || configDir == "" {
				viper.AddConfigPath(".")
			} else {
				viper.AddConfigPath(configDir)
			}
		}
	}

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	setDefaults()
	bindGatewayEnv()

	err := viper.ReadInConfig()
	if err != nil {
		// The gateway runs on defaults plus env vars when no config file
		// is present; only an explicitly requested file is required.
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	err = viper.Unmarshal(&Env)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("env", "development")
	viper.SetDefault("log.log_level", "debug")
	viper.SetDefault("log.show_caller", false)
	viper.SetDefault("graceful_shutdown_timeout", 10*time.Second)
	viper.SetDefault("port.trading_gateway_http", "5000")
	viper.SetDefault("ibkr.host", "127.0.0.1")
	viper.SetDefault("ibkr.port", 7497) // TWS paper trading port
	viper.SetDefault("ibkr.client_id", 1)
	viper.SetDefault("ibkr.connection_policy", "per_request")
	viper.SetDefault("ibkr.connect_timeout", 10*time.Second)
	viper.SetDefault("ibkr.settle_delay", 100*time.Millisecond)
}

func bindGatewayEnv() {
	_ = viper.BindEnv("ibkr.host", "IB_HOST")
	_ = viper.BindEnv("ibkr.port", "IB_PORT")
	_ = viper.BindEnv("ibkr.client_id", "CLIENT_ID")
	_ = viper.BindEnv("ibkr.connection_policy", "IB_CONNECTION_POLICY")
}
