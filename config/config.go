package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Logger     LoggerConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Checkpoint CheckpointConfig
	Status     StatusConfig
	Flight     FlightConfig
}

type ServerConfig struct {
	AppEnv      string
	GRPCPort    string
	MetricsPort string
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers        []string
	MutationTopic  string
	MovementTopic  string
	GroupID        string
	PublishEnabled bool
}

type CheckpointConfig struct {
	Enabled bool
	Dir     string
}

// StatusConfig is the free-text status to category table. Anything listed
// in neither slice classifies as active.
type StatusConfig struct {
	Completed []string
	Failed    []string
}

type FlightConfig struct {
	// Backend is "memory" or "redis".
	Backend string
	TTL     time.Duration
}

func LoadEnv() *Config {
	return &Config{
		Server: ServerConfig{
			AppEnv:      getEnv("APP_ENV", "dev"),
			GRPCPort:    getEnv("GRPC_PORT", ":8083"),
			MetricsPort: getEnv("METRICS_PORT", ":9093"),
		},
		Logger: LoggerConfig{
			Level:             getEnv("LOGGER_LEVEL", "debug"),
			Encoding:          getEnv("LOGGER_ENCODING", "console"),
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
		Postgres: PostgresConfig{
			Host:            getEnv("POSTGRES_HOST", "localhost"),
			Port:            getEnv("POSTGRES_PORT", "5433"),
			User:            getEnv("POSTGRES_USER", "omnipos"),
			Password:        getEnv("POSTGRES_PASSWORD", "omnipos"),
			DBName:          getEnv("POSTGRES_DB", "omnipos_commerce"),
			SSLMode:         getEnv("POSTGRES_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("POSTGRES_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvInt("POSTGRES_CONN_MAX_LIFETIME", 300),
			ConnMaxIdleTime: getEnvInt("POSTGRES_CONN_MAX_IDLE_TIME", 60),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:        getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			MutationTopic:  getEnv("KAFKA_TOPIC_MUTATIONS", "commerce.mutations"),
			MovementTopic:  getEnv("KAFKA_TOPIC_MOVEMENTS", "inventory.movements"),
			GroupID:        getEnv("KAFKA_GROUP_COMMERCE", "commerce-engine"),
			PublishEnabled: getEnvBool("KAFKA_PUBLISH_MOVEMENTS", true),
		},
		Checkpoint: CheckpointConfig{
			Enabled: getEnvBool("CHECKPOINT_ENABLED", true),
			Dir:     getEnv("CHECKPOINT_DIR", "./data/checkpoints"),
		},
		Status: StatusConfig{
			Completed: getEnvSlice("STATUS_COMPLETED", []string{"Paid", "Delivered"}),
			Failed:    getEnvSlice("STATUS_FAILED", []string{"Failed", "Canceled", "Returned", "Refunded"}),
		},
		Flight: FlightConfig{
			Backend: getEnv("FLIGHT_BACKEND", "memory"),
			TTL:     time.Duration(getEnvInt("FLIGHT_TTL_SECONDS", 30)) * time.Second,
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return fallback
}
