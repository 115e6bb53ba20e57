package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadEnv_Defaults(t *testing.T) {
	cfg := LoadEnv()

	assert.Equal(t, []string{"Paid", "Delivered"}, cfg.Status.Completed)
	assert.Equal(t, []string{"Failed", "Canceled", "Returned", "Refunded"}, cfg.Status.Failed)
	assert.Equal(t, "memory", cfg.Flight.Backend)
	assert.Equal(t, 30*time.Second, cfg.Flight.TTL)
	assert.Equal(t, "commerce.mutations", cfg.Kafka.MutationTopic)
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("STATUS_COMPLETED", "Paid, Delivered ,Settled")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("FLIGHT_TTL_SECONDS", "5")
	t.Setenv("CHECKPOINT_ENABLED", "false")
	t.Setenv("POSTGRES_MAX_OPEN_CONNS", "not-a-number")

	cfg := LoadEnv()

	assert.Equal(t, []string{"Paid", "Delivered", "Settled"}, cfg.Status.Completed)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5*time.Second, cfg.Flight.TTL)
	assert.False(t, cfg.Checkpoint.Enabled)
	assert.Equal(t, 10, cfg.Postgres.MaxOpenConns)
}
