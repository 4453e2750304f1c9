package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/dwp"
	"github.com/Jiyabhaviksadaria/smartqueue/id"
)

const envPrefix = "SMARTQUEUE_"

// Store drivers.
const (
	driverMemory   = "memory"
	driverRedis    = "redis"
	driverPostgres = "postgres"
)

// Kafka clients.
const (
	kafkaClientKafkaGo = "kafka-go"
	kafkaClientSarama  = "sarama"
)

// RedisConfig selects the Redis primary.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MongoConfig selects the optional Mongo corpus for history and the
// status change journal.
type MongoConfig struct {
	URI      string
	Database string
}

// KafkaConfig enables the relay hook when Brokers is set.
type KafkaConfig struct {
	Brokers   []string
	Topic     string
	Client    string
	OutboxDir string
}

// MQTTConfig enables the display board hook when Broker is set.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Prefix   string
	QoS      byte
}

// WebhookConfig enables the webhook hook when URLs is set.
type WebhookConfig struct {
	URLs   []string
	Secret string
}

// AuthConfig selects how DWP callers are identified.
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
	APIKeys   []dwp.APIKeyEntry

	// Insecure accepts every caller as admin. Development only.
	Insecure bool
}

// Config is the process configuration.
type Config struct {
	Addr     string
	LogLevel slog.Level

	Store       string
	PostgresDSN string
	Redis       RedisConfig
	Mongo       MongoConfig

	Runtime smartqueue.Config

	Auth    AuthConfig
	Kafka   KafkaConfig
	MQTT    MQTTConfig
	Webhook WebhookConfig
}

func defaultConfig() Config {
	return Config{
		Addr:     ":8080",
		LogLevel: slog.LevelInfo,
		Store:    driverMemory,
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Mongo:    MongoConfig{Database: "smartqueue"},
		Runtime:  smartqueue.DefaultConfig(),
		Kafka:    KafkaConfig{Topic: "smartqueue.events", Client: kafkaClientKafkaGo, OutboxDir: "./outbox"},
		MQTT:     MQTTConfig{ClientID: "smartqueue", Prefix: "smartqueue"},
	}
}

// loadConfig reads SMARTQUEUE_* variables through getenv over the defaults.
func loadConfig(getenv func(string) string) (Config, error) {
	cfg := defaultConfig()
	env := envReader{getenv: getenv}

	env.str("ADDR", &cfg.Addr)
	env.level("LOG_LEVEL", &cfg.LogLevel)

	env.str("STORE", &cfg.Store)
	env.str("POSTGRES_DSN", &cfg.PostgresDSN)
	env.str("REDIS_ADDR", &cfg.Redis.Addr)
	env.str("REDIS_PASSWORD", &cfg.Redis.Password)
	env.integer("REDIS_DB", &cfg.Redis.DB)
	env.str("MONGO_URI", &cfg.Mongo.URI)
	env.str("MONGO_DATABASE", &cfg.Mongo.Database)

	env.integer("DEFAULT_CAPACITY", &cfg.Runtime.DefaultCapacity)
	env.duration("EXPIRY_GRACE", &cfg.Runtime.ExpiryGrace)
	env.str("EXPIRY_SCHEDULE", &cfg.Runtime.ExpirySchedule)
	env.str("RETRAIN_SCHEDULE", &cfg.Runtime.RetrainSchedule)
	env.duration("OPERATION_TIMEOUT", &cfg.Runtime.OperationTimeout)
	env.duration("SHUTDOWN_TIMEOUT", &cfg.Runtime.ShutdownTimeout)

	env.str("JWT_SECRET", &cfg.Auth.JWTSecret)
	env.str("JWT_ISSUER", &cfg.Auth.JWTIssuer)
	env.boolean("AUTH_INSECURE", &cfg.Auth.Insecure)
	if raw := getenv(envPrefix + "API_KEYS"); raw != "" {
		keys, err := parseAPIKeys(raw)
		if err != nil {
			env.fail("API_KEYS", err)
		}
		cfg.Auth.APIKeys = keys
	}

	env.list("KAFKA_BROKERS", &cfg.Kafka.Brokers)
	env.str("KAFKA_TOPIC", &cfg.Kafka.Topic)
	env.str("KAFKA_CLIENT", &cfg.Kafka.Client)
	env.str("OUTBOX_DIR", &cfg.Kafka.OutboxDir)

	env.str("MQTT_BROKER", &cfg.MQTT.Broker)
	env.str("MQTT_CLIENT_ID", &cfg.MQTT.ClientID)
	env.str("MQTT_USERNAME", &cfg.MQTT.Username)
	env.str("MQTT_PASSWORD", &cfg.MQTT.Password)
	env.str("MQTT_PREFIX", &cfg.MQTT.Prefix)
	var qos int
	if env.integer("MQTT_QOS", &qos) {
		if qos < 0 || qos > 2 {
			env.fail("MQTT_QOS", fmt.Errorf("qos %d out of range", qos))
		}
		cfg.MQTT.QoS = byte(qos)
	}

	env.list("WEBHOOK_URLS", &cfg.Webhook.URLs)
	env.str("WEBHOOK_SECRET", &cfg.Webhook.Secret)

	if env.err != nil {
		return Config{}, env.err
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Store {
	case driverMemory, driverRedis:
	case driverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("config: %sPOSTGRES_DSN is required for the postgres store", envPrefix)
		}
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}
	switch c.Kafka.Client {
	case kafkaClientKafkaGo, kafkaClientSarama:
	default:
		return fmt.Errorf("config: unknown kafka client %q", c.Kafka.Client)
	}
	if !c.Auth.Insecure && c.Auth.JWTSecret == "" && len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("config: set %sJWT_SECRET or %sAPI_KEYS, or %sAUTH_INSECURE=true",
			envPrefix, envPrefix, envPrefix)
	}
	if c.Runtime.DefaultCapacity <= 0 {
		return errors.New("config: default capacity must be positive")
	}
	return nil
}

// parseAPIKeys parses "key:role[:user_id]" entries separated by commas.
func parseAPIKeys(raw string) ([]dwp.APIKeyEntry, error) {
	var entries []dwp.APIKeyEntry
	for _, item := range splitList(raw) {
		parts := strings.Split(item, ":")
		if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
			return nil, fmt.Errorf("malformed entry %q", item)
		}
		role := smartqueue.Role(parts[1])
		switch role {
		case smartqueue.RolePatient, smartqueue.RoleCustomer, smartqueue.RoleAdmin,
			smartqueue.RoleDoctor, smartqueue.RoleBankStaff, smartqueue.RoleCounterOperator:
		default:
			return nil, fmt.Errorf("unknown role %q", parts[1])
		}
		ident := dwp.Identity{Subject: string(role), Role: role}
		if len(parts) == 3 {
			userID, err := id.ParseUserID(parts[2])
			if err != nil {
				return nil, fmt.Errorf("entry %q: %w", item, err)
			}
			ident.UserID = userID
			ident.Subject = userID.String()
		}
		entries = append(entries, dwp.APIKeyEntry{Key: parts[0], Identity: ident})
	}
	return entries, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// envReader records the first parse failure.
type envReader struct {
	getenv func(string) string
	err    error
}

func (r *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(r.getenv(envPrefix + key))
	return v, v != ""
}

func (r *envReader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("config: %s%s: %w", envPrefix, key, err)
	}
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.lookup(key); ok {
		*dst = v
	}
}

func (r *envReader) list(key string, dst *[]string) {
	if v, ok := r.lookup(key); ok {
		*dst = splitList(v)
	}
}

func (r *envReader) integer(key string, dst *int) bool {
	v, ok := r.lookup(key)
	if !ok {
		return false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, err)
		return false
	}
	*dst = n
	return true
}

func (r *envReader) boolean(key string, dst *bool) {
	if v, ok := r.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			r.fail(key, err)
			return
		}
		*dst = b
	}
}

func (r *envReader) duration(key string, dst *time.Duration) {
	if v, ok := r.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			r.fail(key, err)
			return
		}
		*dst = d
	}
}

func (r *envReader) level(key string, dst *slog.Level) {
	if v, ok := r.lookup(key); ok {
		if err := dst.UnmarshalText([]byte(v)); err != nil {
			r.fail(key, err)
		}
	}
}
