package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/lessonloop/chat-service/pkg/config"
	"github.com/lessonloop/chat-service/pkg/log"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Lifecycle LifecycleConfig
	Store     StoreConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Log       log.Config
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

// LifecycleConfig holds the timers driving connection lifecycle: the
// post-disconnect grace window, the stale-record sweep, and the
// threshold a record must exceed before the sweep removes it.
type LifecycleConfig struct {
	GracePeriod    time.Duration `mapstructure:"grace_period"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	StaleThreshold time.Duration `mapstructure:"stale_threshold"`
}

// StoreConfig configures the durable store RPC client. An empty URL
// disables persistence entirely (relay-only mode).
type StoreConfig struct {
	NATSURL        string        `mapstructure:"nats_url"`
	SubjectPrefix  string        `mapstructure:"subject_prefix"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RedisConfig configures the best-effort presence mirror. An empty
// address disables it.
type RedisConfig struct {
	Address           string
	Password          string
	DB                int
	KeyPrefix         string        `mapstructure:"key_prefix"`
	KeyTTL            time.Duration `mapstructure:"key_ttl"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// KafkaConfig configures the append-only message archive feed. Empty
// brokers disable it.
type KafkaConfig struct {
	Brokers    string
	Topic      string
	Partitions int
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("lifecycle.grace_period", "5s")
	v.SetDefault("lifecycle.sweep_interval", "2m")
	v.SetDefault("lifecycle.stale_threshold", "2m")
	v.SetDefault("store.nats_url", "nats://localhost:4222")
	v.SetDefault("store.subject_prefix", "store")
	v.SetDefault("store.request_timeout", "2s")
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "presence:online")
	v.SetDefault("redis.key_ttl", "90s")
	v.SetDefault("redis.heartbeat_interval", "30s")
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "chat-messages")
	v.SetDefault("kafka.partitions", 8)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "chat-service")

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("store.nats_url", "STORE_NATS_URL")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_TOPIC")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Lifecycle.GracePeriod = parseDuration(v, "lifecycle.grace_period", 5*time.Second)
	cfg.Lifecycle.SweepInterval = parseDuration(v, "lifecycle.sweep_interval", 2*time.Minute)
	cfg.Lifecycle.StaleThreshold = parseDuration(v, "lifecycle.stale_threshold", 2*time.Minute)
	cfg.Store.RequestTimeout = parseDuration(v, "store.request_timeout", 2*time.Second)
	cfg.Redis.KeyTTL = parseDuration(v, "redis.key_ttl", 90*time.Second)
	cfg.Redis.HeartbeatInterval = parseDuration(v, "redis.heartbeat_interval", 30*time.Second)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
