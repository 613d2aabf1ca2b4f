package server

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"chatrelay/internal/auth"
	"chatrelay/internal/config"
	"chatrelay/internal/metrics"
	"chatrelay/internal/mw"
	"chatrelay/internal/service"
	"chatrelay/internal/store"
	"chatrelay/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// App 持有组装好的各组件，main 与测试共用同一套装配。
type App struct {
	Hub        *ws.Hub
	Gate       *auth.Passphrase
	Rooms      *service.RoomService
	Messages   *service.MessageService
	Dispatcher *service.Dispatcher

	httpLimiter *mw.Limiter
	wsLimiter   *mw.Limiter
}

// NewApp 基于配置与消息存储装配会话、消息、在线状态与信令服务。
// HTTP 按 IP+路由限速，WebSocket 按连接限制入站事件速率。
func NewApp(cfg config.Config, st store.Store) *App {
	hub := ws.NewHub()
	rooms := service.DefaultRooms()
	gate := auth.NewPassphrase(cfg.SecretCode, cfg.SecretCodeHash)
	msgs := service.NewMessageService(st, hub, service.MessageOptions{
		Rooms:        rooms,
		TempTTL:      cfg.TempTTL,
		HistoryLimit: cfg.HistoryLimit,
	})
	sessions := service.NewSessionService(hub, gate, msgs)
	app := &App{
		Hub:        hub,
		Gate:       gate,
		Rooms:      service.NewRoomService(hub, rooms),
		Messages:   msgs,
		Dispatcher: service.NewDispatcher(hub, sessions, msgs, service.NewPresenceService(hub), service.NewSignalService(hub)),
	}
	app.httpLimiter = mw.NewLimiter(rate.Every(time.Second/20), 40, 2*time.Minute)
	app.wsLimiter = mw.NewLimiter(rate.Limit(cfg.WSEventsPerSecond), cfg.WSEventBurst, 10*time.Minute)
	return app
}

// Close 停止限速器的后台回收。
func (a *App) Close() {
	a.httpLimiter.Stop()
	a.wsLimiter.Stop()
}

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, app *App) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env, cfg.CORSOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": app.Hub.Connected()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := NewHandler(app.Rooms, app.Messages)
	api := r.Group("/api/v1")
	api.Use(mw.RateLimit(app.httpLimiter))
	api.GET("/rooms", h.ListRooms)
	api.GET("/rooms/:name/messages", auth.Middleware(app.Gate), h.ListMessages)

	r.GET("/ws", ws.Serve(app.Hub, app.Dispatcher, app.wsLimiter, mw.CheckOrigin(cfg.Env, cfg.CORSOrigins)))

	// 静态页面由外部提供，存在 ./web 时顺带托管。
	webDir := filepath.Join(".", "web")
	if _, err := os.Stat(filepath.Join(webDir, "index.html")); err == nil {
		r.StaticFile("/", filepath.Join(webDir, "index.html"))
		r.Static("/static", webDir)
	}
	return r
}
