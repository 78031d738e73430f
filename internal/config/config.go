package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	commoncfg "hms-vitals/common/config"
)

// 病区后端类型
const (
	BackendAPI      = "api"
	BackendPostgres = "postgres"
)

// Config 生命体征监测服务配置
type Config struct {
	HTTP struct {
		Addr string
	}
	DBEnabled bool
	Database  commoncfg.DatabaseConfig
	Redis     commoncfg.RedisConfig

	MQTTEnabled bool
	MQTT        commoncfg.MQTTConfig
	// MQTTTopicPrefix 主题前缀，如 "hms"
	MQTTTopicPrefix string

	// WardBackend 病区数据来源: "api"（REST）或 "postgres"（直连数据库）
	WardBackend string
	WardAPI     commoncfg.HTTPClientConfig

	Vitals struct {
		PollInterval time.Duration // 轮询间隔，默认 30 秒
		FetchTimeout time.Duration // 单次拉取超时，默认 10 秒
		RecordGrace  time.Duration // 记录后旧数据最长屏蔽时间，默认 5 分钟
		WardID       *int64        // 默认病区范围（nil 表示全部病区）

		Cache struct {
			DashboardPrefix string // 看板缓存键前缀，如 "vitals:dashboard:"
			DashboardTTL    time.Duration
			DismissPrefix   string // 已忽略告警键前缀，如 "vitals:dismissed:"
			DismissTTL      time.Duration
			SettingsPrefix  string // 用户提示音设置键前缀
		}

		AlertStream       string // Redis Stream 名称
		AlertStreamMaxLen int64
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.DBEnabled = getEnv("DB_ENABLED", "false") == "true"
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "hms"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 10
	cfg.Database.MaxIdle = 5
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTTEnabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "hms-vitals"
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")
	cfg.MQTTTopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "hms")

	cfg.WardBackend = getEnv("WARD_BACKEND", BackendAPI)
	cfg.WardAPI.BaseURL = "http://localhost:8000"
	cfg.WardAPI.Timeout = 10 * time.Second
	cfg.WardAPI.RetryCount = 2
	cfg.WardAPI.LoadFromEnv("WARD_API")

	cfg.Vitals.PollInterval = time.Duration(parseInt(getEnv("VITALS_POLL_INTERVAL_SEC", "30"), 30)) * time.Second
	cfg.Vitals.FetchTimeout = time.Duration(parseInt(getEnv("VITALS_FETCH_TIMEOUT_SEC", "10"), 10)) * time.Second
	cfg.Vitals.RecordGrace = time.Duration(parseInt(getEnv("VITALS_RECORD_GRACE_SEC", "300"), 300)) * time.Second
	if v := os.Getenv("VITALS_WARD_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid VITALS_WARD_ID %q: %w", v, err)
		}
		cfg.Vitals.WardID = &id
	}

	cfg.Vitals.Cache.DashboardPrefix = getEnv("CACHE_DASHBOARD_PREFIX", "vitals:dashboard:")
	cfg.Vitals.Cache.DashboardTTL = time.Duration(parseInt(getEnv("CACHE_DASHBOARD_TTL_SEC", "120"), 120)) * time.Second
	cfg.Vitals.Cache.DismissPrefix = getEnv("CACHE_DISMISS_PREFIX", "vitals:dismissed:")
	cfg.Vitals.Cache.DismissTTL = time.Duration(parseInt(getEnv("CACHE_DISMISS_TTL_SEC", "86400"), 86400)) * time.Second
	cfg.Vitals.Cache.SettingsPrefix = getEnv("CACHE_SETTINGS_PREFIX", "vitals:settings:")

	cfg.Vitals.AlertStream = getEnv("VITALS_ALERT_STREAM", "vitals:alerts")
	cfg.Vitals.AlertStreamMaxLen = int64(parseInt(getEnv("VITALS_ALERT_STREAM_MAXLEN", "10000"), 10000))

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.WardBackend {
	case BackendAPI:
		if c.WardAPI.BaseURL == "" {
			return fmt.Errorf("WARD_API_BASE_URL is required for backend %q", BackendAPI)
		}
	case BackendPostgres:
		if !c.DBEnabled {
			return fmt.Errorf("WARD_BACKEND=%s requires DB_ENABLED=true", BackendPostgres)
		}
	default:
		return fmt.Errorf("unsupported WARD_BACKEND %q", c.WardBackend)
	}
	if c.Vitals.PollInterval <= 0 {
		return fmt.Errorf("VITALS_POLL_INTERVAL_SEC must be positive")
	}
	if c.Vitals.FetchTimeout <= 0 {
		return fmt.Errorf("VITALS_FETCH_TIMEOUT_SEC must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
