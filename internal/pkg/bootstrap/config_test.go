package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
app:
  port: 9090
store:
  driver: memory
  seed:
    - id: P
      stockQuantity: 10
reservation:
  ttl: 15m
  itemRule: "item.quantity <= 20"
sweep:
  interval: 30s
  lock: redis
infra:
  redis:
    addrs: redis:6379
  kafka:
    brokers: kafka:9092
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stock-service.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, "stock-service", cfg.App.Name)
	assert.Equal(t, "memory", cfg.Store.Driver)
	require.Len(t, cfg.Store.Seed, 1)
	assert.Equal(t, SeedProduct{ID: "P", StockQuantity: 10}, cfg.Store.Seed[0])
	assert.Equal(t, 15*time.Minute, cfg.Reservation.TTL)
	assert.Equal(t, 30*time.Second, cfg.Sweep.Interval)
	assert.Equal(t, 100, cfg.Sweep.BatchSize)
	assert.Equal(t, "redis", cfg.Sweep.Lock)
	assert.Equal(t, "payment-outcomes", cfg.Infra.Kafka.PaymentOutcomesTopic)
}

func TestLoadConfig_EnvWins(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REDIS_ADDRS", "r1:6379")
	t.Setenv("JAEGER_ENDPOINT", "http://jaeger:14268/api/traces")

	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "k1:9092,k2:9092", cfg.Infra.Kafka.Brokers)
	assert.Equal(t, "r1:6379", cfg.Infra.Redis.Addrs)
	assert.Equal(t, "http://jaeger:14268/api/traces", cfg.Infra.Jaeger.Endpoint)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_Validation(t *testing.T) {
	t.Setenv("MYSQL_DSN", "")
	_, err := LoadConfig(writeConfig(t, "store:\n  driver: mysql\n"))
	assert.ErrorContains(t, err, "store.mysql.dsn")

	_, err = LoadConfig(writeConfig(t, "store:\n  driver: memory\nsweep:\n  lock: etcd\n"))
	assert.ErrorContains(t, err, "unknown sweep.lock")

	_, err = LoadConfig(writeConfig(t, "store:\n  driver: memory\nsweep:\n  lock: zookeeper\n"))
	assert.ErrorContains(t, err, "infra.zookeeper.servers")
}

func TestConfig_MergeYAMLKeepsUnsetFields(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.MergeYAML([]byte("reservation:\n  ttl: 5m\n")))
	assert.Equal(t, 5*time.Minute, cfg.Reservation.TTL)
	assert.Equal(t, 2*time.Minute, cfg.Sweep.Interval)

	assert.Error(t, cfg.MergeYAML([]byte("reservation: [")))
}

func TestSweepConfig_EffectiveLockTTL(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 2*time.Minute, cfg.Sweep.EffectiveLockTTL())

	cfg, err := LoadConfig(writeConfig(t, "store:\n  driver: memory\nsweep:\n  interval: 5m\n  lockTTL: 1m\n"))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Sweep.LockTTL)
	assert.Equal(t, 5*time.Minute, cfg.Sweep.EffectiveLockTTL())

	cfg.Sweep.LockTTL = 10 * time.Minute
	assert.Equal(t, 10*time.Minute, cfg.Sweep.EffectiveLockTTL())
}
