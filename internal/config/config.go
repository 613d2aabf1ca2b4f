package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultSecretCode 与未配置口令时的回退值一致，生产环境禁止使用。
const DefaultSecretCode = "default"

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// MaxHistoryLimit 是加入房间时下发历史的条数上限。
const MaxHistoryLimit = 50

type Config struct {
	Port           string
	Env            string
	LogLevel       string
	StoreDriver    string
	DatabaseDSN    string
	SecretCode     string
	SecretCodeHash string
	CORSOrigins    []string

	HistoryLimit      int
	TempTTL           time.Duration
	ReapInterval      time.Duration
	WSEventsPerSecond float64
	WSEventBurst      int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// getlist 解析逗号分隔的列表，忽略空项。
func getlist(key string) []string {
	var out []string
	for _, v := range strings.Split(getenv(key, ""), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// getint 解析正整数，非法值回退到默认值。
func getint(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, ""))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func getfloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(getenv(key, ""), 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// Load 先尝试加载当前目录下的 .env，再从环境变量读取配置。
func Load() Config {
	_ = godotenv.Load(".env")

	return Config{
		Port:              getenv("APP_PORT", "8080"),
		Env:               getenv("APP_ENV", "dev"),
		LogLevel:          getenv("LOG_LEVEL", ""),
		StoreDriver:       getenv("STORE_DRIVER", DriverPostgres),
		DatabaseDSN:       getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=chatrelay port=5432 sslmode=disable TimeZone=UTC"),
		SecretCode:        getenv("SECRET_CODE", DefaultSecretCode),
		SecretCodeHash:    getenv("SECRET_CODE_HASH", ""),
		CORSOrigins:       getlist("CORS_ORIGINS"),
		HistoryLimit:      getint("HISTORY_LIMIT", 50),
		TempTTL:           time.Duration(getint("TEMP_TTL_HOURS", 24)) * time.Hour,
		ReapInterval:      time.Duration(getint("REAP_INTERVAL_SECONDS", 30)) * time.Second,
		WSEventsPerSecond: getfloat("WS_EVENTS_PER_SECOND", 20),
		WSEventBurst:      getint("WS_EVENT_BURST", 40),
	}
}

// Validate 校验启动所需的最小配置。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("APP_PORT is required")
	}
	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseDSN == "" {
			return errors.New("DATABASE_DSN is required for the postgres store")
		}
	case DriverMemory:
	default:
		return errors.New("STORE_DRIVER must be postgres or memory")
	}
	if cfg.SecretCode == "" && cfg.SecretCodeHash == "" {
		return errors.New("SECRET_CODE or SECRET_CODE_HASH is required")
	}
	if cfg.Env != "dev" && cfg.SecretCodeHash == "" && cfg.SecretCode == DefaultSecretCode {
		return errors.New("default SECRET_CODE is not allowed outside dev")
	}
	if cfg.HistoryLimit <= 0 || cfg.HistoryLimit > MaxHistoryLimit {
		return fmt.Errorf("HISTORY_LIMIT must be between 1 and %d", MaxHistoryLimit)
	}
	return nil
}
