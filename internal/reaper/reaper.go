package reaper

import (
	"context"
	"time"

	"chatrelay/internal/metrics"

	"github.com/rs/zerolog/log"
)

// Expirer 删除 now 时刻已过期的消息，store.Store 实现了它。
type Expirer interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Reaper 周期性清理过期的临时消息。不会通知在线客户端，
// 客户端在下一次拉取历史时才会发现消息消失。
type Reaper struct {
	store    Expirer
	interval time.Duration
	now      func() time.Time
}

func New(store Expirer, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reaper{store: store, interval: interval, now: time.Now}
}

// Start 在后台运行清理循环，返回的 cancel 用于优雅停服。
func (r *Reaper) Start(ctx context.Context) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	go r.Run(ctx)
	return cancel
}

// Run 阻塞直到 ctx 结束。
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	log.Info().Dur("interval", r.interval).Msg("reaper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reaper stopping")
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				log.Error().Err(err).Msg("reaper sweep")
			}
		}
	}
}

// Sweep 执行一次清理，返回删除条数。
func (r *Reaper) Sweep(ctx context.Context) (int64, error) {
	n, err := r.store.DeleteExpired(ctx, r.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.ReapedMessagesTotal.Add(float64(n))
		log.Debug().Int64("count", n).Msg("expired messages removed")
	}
	return n, nil
}
