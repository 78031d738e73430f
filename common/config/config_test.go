package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseConfig_GetDSN(t *testing.T) {
	c := &DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "hms",
		Password: "secret",
		Database: "hms",
		SSLMode:  "disable",
	}

	assert.Equal(t, "host=db port=5433 user=hms password=secret dbname=hms sslmode=disable", c.GetDSN())
}

func TestDatabaseConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "pg.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_NAME", "wards")
	t.Setenv("DB_MAX_CONNS", "not-a-number")

	c := &DatabaseConfig{Host: "localhost", Port: 5432, Database: "hms", MaxConns: 10}
	c.LoadFromEnv("DB")

	assert.Equal(t, "pg.internal", c.Host)
	assert.Equal(t, 6543, c.Port)
	assert.Equal(t, "wards", c.Database)
	// 非法数字保留原值
	assert.Equal(t, 10, c.MaxConns)
}

func TestRedisConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_DB", "3")

	c := &RedisConfig{Addr: "localhost:6379"}
	c.LoadFromEnv("REDIS")

	assert.Equal(t, "redis:6380", c.Addr)
	assert.Equal(t, 3, c.DB)
}

func TestMQTTConfig_LoadFromEnv_QoSBounds(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("MQTT_QOS", "5")

	c := &MQTTConfig{QoS: 1}
	c.LoadFromEnv("MQTT")

	assert.Equal(t, "tcp://broker:1883", c.Broker)
	assert.Equal(t, byte(1), c.QoS)

	t.Setenv("MQTT_QOS", "2")
	c.LoadFromEnv("MQTT")
	assert.Equal(t, byte(2), c.QoS)
}

func TestHTTPClientConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("WARD_API_BASE_URL", "http://ward-api:8000")
	t.Setenv("WARD_API_TIMEOUT_SEC", "7")
	t.Setenv("WARD_API_RETRY_COUNT", "0")

	c := &HTTPClientConfig{Timeout: 10 * time.Second, RetryCount: 2}
	c.LoadFromEnv("WARD_API")

	assert.Equal(t, "http://ward-api:8000", c.BaseURL)
	assert.Equal(t, 7*time.Second, c.Timeout)
	assert.Equal(t, 0, c.RetryCount)
}
