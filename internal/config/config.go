package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppConf struct {
	Name            string `mapstructure:"name"`
	Env             string `mapstructure:"env"`
	Port            int    `mapstructure:"port"`
	ShutdownSeconds int    `mapstructure:"shutdown_seconds"`
	CORSOrigins     string `mapstructure:"cors_origins"`
}

func (a *AppConf) PortString() string { return fmt.Sprintf("%d", a.Port) }

type MongoConf struct {
	URI                     string `mapstructure:"uri"`
	Database                string `mapstructure:"database"`
	UsersCollection         string `mapstructure:"users_collection"`
	ConversationsCollection string `mapstructure:"conversations_collection"`
	MessagesCollection      string `mapstructure:"messages_collection"`
	ConnectRetrySeconds     int    `mapstructure:"connect_retry_seconds"`
}

type RedisConf struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaConf struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type JWTConf struct {
	Alg           string `mapstructure:"alg"`
	HSSecret      string `mapstructure:"hs_secret"`
	PublicKeyPath string `mapstructure:"public_key_path"`
}

type WSConf struct {
	PingIntervalSeconds  int     `mapstructure:"ping_interval_seconds"`
	PongWaitSeconds      int     `mapstructure:"pong_wait_seconds"`
	WriteDeadlineSeconds int     `mapstructure:"write_deadline_seconds"`
	EventTimeoutSeconds  int     `mapstructure:"event_timeout_seconds"`
	MaxMessageSizeBytes  int64   `mapstructure:"max_message_size_bytes"`
	SendBuffer           int     `mapstructure:"send_buffer"`
	RateLimitPerSec      float64 `mapstructure:"rate_limit_per_sec"`
	RateLimitBurst       int     `mapstructure:"rate_limit_burst"`
}

type RateLimitConf struct {
	Requests      int `mapstructure:"requests"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

type ChatConf struct {
	MaxContentLength int `mapstructure:"max_content_length"`
	DefaultPageSize  int `mapstructure:"default_page_size"`
	MaxPageSize      int `mapstructure:"max_page_size"`
}

type Config struct {
	App       AppConf       `mapstructure:"app"`
	Mongo     MongoConf     `mapstructure:"mongo"`
	Redis     RedisConf     `mapstructure:"redis"`
	Kafka     KafkaConf     `mapstructure:"kafka"`
	JWT       JWTConf       `mapstructure:"jwt"`
	WS        WSConf        `mapstructure:"ws"`
	RateLimit RateLimitConf `mapstructure:"ratelimit"`
	Chat      ChatConf      `mapstructure:"chat"`

	// derived
	ShutdownTimeout time.Duration `mapstructure:"-"`
	ConnectRetry    time.Duration `mapstructure:"-"`
	PingInterval    time.Duration `mapstructure:"-"`
	PongWait        time.Duration `mapstructure:"-"`
	WriteDeadline   time.Duration `mapstructure:"-"`
	EventTimeout    time.Duration `mapstructure:"-"`
	RateWindow      time.Duration `mapstructure:"-"`
}

func (c *Config) Development() bool { return c.App.Env == "development" }

// Load reads path (optional) and the environment. Nested keys map to
// upper-case variables with dots replaced by underscores, e.g. MONGO_URI.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	// AutomaticEnv leaves comma separated lists as one string
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}
	cfg.derive()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "messaging-service")
	v.SetDefault("app.env", "production")
	v.SetDefault("app.port", 8085)
	v.SetDefault("app.shutdown_seconds", 15)
	v.SetDefault("app.cors_origins", "*")

	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "jobboard")
	v.SetDefault("mongo.users_collection", "users")
	v.SetDefault("mongo.conversations_collection", "conversations")
	v.SetDefault("mongo.messages_collection", "messages")
	v.SetDefault("mongo.connect_retry_seconds", 30)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "msg")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "chat.events")

	v.SetDefault("jwt.alg", "HS256")
	v.SetDefault("jwt.hs_secret", "")
	v.SetDefault("jwt.public_key_path", "")

	v.SetDefault("ws.ping_interval_seconds", 25)
	v.SetDefault("ws.pong_wait_seconds", 60)
	v.SetDefault("ws.write_deadline_seconds", 10)
	v.SetDefault("ws.event_timeout_seconds", 5)
	v.SetDefault("ws.max_message_size_bytes", 65536)
	v.SetDefault("ws.send_buffer", 256)
	v.SetDefault("ws.rate_limit_per_sec", 10)
	v.SetDefault("ws.rate_limit_burst", 20)

	v.SetDefault("ratelimit.requests", 120)
	v.SetDefault("ratelimit.window_seconds", 60)

	v.SetDefault("chat.max_content_length", 5000)
	v.SetDefault("chat.default_page_size", 50)
	v.SetDefault("chat.max_page_size", 100)
}

func (c *Config) derive() {
	c.ShutdownTimeout = time.Duration(c.App.ShutdownSeconds) * time.Second
	c.ConnectRetry = time.Duration(c.Mongo.ConnectRetrySeconds) * time.Second
	c.PingInterval = time.Duration(c.WS.PingIntervalSeconds) * time.Second
	c.PongWait = time.Duration(c.WS.PongWaitSeconds) * time.Second
	c.WriteDeadline = time.Duration(c.WS.WriteDeadlineSeconds) * time.Second
	c.EventTimeout = time.Duration(c.WS.EventTimeoutSeconds) * time.Second
	c.RateWindow = time.Duration(c.RateLimit.WindowSeconds) * time.Second
}

func (c *Config) Validate() error {
	if c.App.Port <= 0 {
		return errors.New("app.port missing or invalid")
	}
	if c.Mongo.URI == "" {
		return errors.New("mongo.uri missing")
	}
	if c.Mongo.Database == "" {
		return errors.New("mongo.database missing")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr required when redis is enabled")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers missing")
		}
		if c.Kafka.Topic == "" {
			return errors.New("kafka.topic missing")
		}
	}

	switch strings.ToUpper(c.JWT.Alg) {
	case "RS256":
		if c.JWT.PublicKeyPath == "" {
			return errors.New("jwt.public_key_path required for RS256")
		}
	case "HS256":
		if c.JWT.HSSecret == "" {
			return errors.New("jwt.hs_secret required for HS256")
		}
	default:
		return errors.New("invalid jwt.alg (use RS256 or HS256)")
	}

	if c.PongWait <= c.PingInterval {
		return errors.New("ws.pong_wait_seconds must exceed ws.ping_interval_seconds")
	}
	if c.EventTimeout <= 0 {
		return errors.New("ws.event_timeout_seconds must be positive")
	}
	if c.Chat.DefaultPageSize <= 0 || c.Chat.MaxPageSize < c.Chat.DefaultPageSize {
		return errors.New("chat page sizes invalid")
	}
	if c.Chat.MaxContentLength <= 0 {
		return errors.New("chat.max_content_length must be positive")
	}
	return nil
}
