package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init 根据运行环境配置全局 zerolog：dev 使用彩色控制台输出，其余输出 JSON。
// level 为空时 dev 取 debug，其余取 info。
func Init(env, level string) {
	InitWriter(env, level, os.Stdout)
}

func InitWriter(env, level string, out io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLevel(env, level))
	if env == "dev" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

func parseLevel(env, level string) zerolog.Level {
	if lv, err := zerolog.ParseLevel(level); err == nil && level != "" {
		return lv
	}
	if env == "dev" {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}
