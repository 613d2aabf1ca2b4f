package db

import (
	"context"
	"fmt"
	"time"

	"chatrelay/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Pool 是连接池与重试参数，零值字段取默认值。
type Pool struct {
	MaxIdle     int
	MaxOpen     int
	MaxLifetime time.Duration
	Attempts    int
}

func (p Pool) withDefaults() Pool {
	if p.MaxIdle <= 0 {
		p.MaxIdle = 5
	}
	if p.MaxOpen <= 0 {
		p.MaxOpen = 20
	}
	if p.MaxLifetime <= 0 {
		p.MaxLifetime = time.Hour
	}
	if p.Attempts <= 0 {
		p.Attempts = 10
	}
	return p
}

// Connect 建立到 Postgres 的连接，重试等待容器就绪；ctx 结束时放弃重试。
func Connect(ctx context.Context, dsn string, pool Pool) (*gorm.DB, error) {
	pool = pool.withDefaults()
	var err error
	for i := 0; i < pool.Attempts; i++ {
		var gdb *gorm.DB
		if gdb, err = open(ctx, dsn, pool); err == nil {
			return gdb, nil
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("db connect retry")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(500+i*200) * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("connect postgres after %d attempts: %w", pool.Attempts, err)
}

func open(ctx context.Context, dsn string, pool Pool) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(pool.MaxIdle)
	sqlDB.SetMaxOpenConns(pool.MaxOpen)
	sqlDB.SetConnMaxLifetime(pool.MaxLifetime)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return gdb, nil
}

// Migrate 迁移消息与反应表。
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&models.Message{}, &models.Reaction{})
}
