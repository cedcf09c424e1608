// Package overdue は延滞貸出のスイープを定期実行するワーカージョブを提供する。
// スイープ本体は貸出サービスが持ち、このパッケージは実行間隔と失敗時の再試行のみを扱う。
package overdue

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper は延滞スイープの実行インターフェース。
type Sweeper interface {
	// SweepOverdue は延滞した有効な貸出をEXPIREDに遷移させ、遷移した件数を返す。
	SweepOverdue(ctx context.Context) (int, error)
}

// Scheduler は延滞スイープを一定間隔で実行する。
// 失敗したサイクルは次のティックを待たずに指数バックオフで再試行する。
type Scheduler struct {
	sweeper Sweeper
	logger  *slog.Logger

	// MaxRetries は1サイクル内で失敗時に再試行する最大回数（デフォルト: 3）。
	MaxRetries int
	// RetryBase は初回再試行までの待機時間（デフォルト: 30秒）。
	RetryBase time.Duration
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(sweeper Sweeper, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		sweeper:    sweeper,
		logger:     logger,
		MaxRetries: 3,
		RetryBase:  30 * time.Second,
	}
}

// Start はintervalごとのティッカーでスイープを実行する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("延滞スイープスケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("延滞スイープスケジューラを停止しました")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle はRunOnceを実行し、失敗時はバックオフを挟んで再試行する。
func (s *Scheduler) runCycle(ctx context.Context) {
	for attempt := 0; ; attempt++ {
		_, err := s.RunOnce(ctx)
		if err == nil {
			return
		}
		if ctx.Err() != nil || attempt >= s.MaxRetries {
			s.logger.Error("延滞スイープサイクルの実行に失敗しました",
				slog.Int("attempts", attempt+1),
				slog.String("error", err.Error()),
			)
			return
		}

		delay := CalculateBackoff(s.RetryBase, attempt)
		s.logger.Warn("延滞スイープを再試行します",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunOnce はスイープを1回実行し、EXPIREDに遷移した件数を返す。
// 一部の貸出で失敗した場合も遷移済みの件数とエラーを両方返す。
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()

	expired, err := s.sweeper.SweepOverdue(ctx)
	if err != nil {
		return expired, err
	}

	s.logger.Info("延滞スイープサイクルが完了しました",
		slog.Int("expired_count", expired),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return expired, nil
}
