package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatrelay/internal/auth"
	"chatrelay/internal/config"
	"chatrelay/internal/db"
	clog "chatrelay/internal/log"
	"chatrelay/internal/reaper"
	"chatrelay/internal/server"
	"chatrelay/internal/store"

	"github.com/rs/zerolog/log"
)

func main() {
	hashCode := flag.String("hash-code", "", "Print the bcrypt hash of a passphrase for SECRET_CODE_HASH and exit")
	flag.Parse()
	if *hashCode != "" {
		if err := printHash(os.Stdout, *hashCode); err != nil {
			log.Fatal().Err(err).Msg("hash code")
		}
		return
	}

	// main 负责加载配置、初始化日志、打开消息存储，启动过期清理与 Gin 服务。
	cfg := config.Load()
	clog.Init(cfg.Env, cfg.LogLevel)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("open store")
	}
	defer st.Close()

	stopReaper := reaper.New(st, cfg.ReapInterval).Start(ctx)
	defer stopReaper()

	app := server.NewApp(cfg, st)
	defer app.Close()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: server.SetupRouter(cfg, app)}
	go func() {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.StoreDriver).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.StoreDriver == config.DriverMemory {
		return store.NewMemoryStore(), nil
	}
	gdb, err := db.Connect(ctx, cfg.DatabaseDSN, db.Pool{})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, err
	}
	return store.NewGormStore(gdb), nil
}

// printHash 输出口令的 bcrypt 哈希，结果可直接填入 SECRET_CODE_HASH。
func printHash(out io.Writer, code string) error {
	hash, err := auth.HashCode(code)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}
