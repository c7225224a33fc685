package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// defaultInterval はintervalが0以下の場合の実行間隔。
const defaultInterval = time.Hour

// Scheduler はCleanupJobを一定間隔で実行する。
// 開始直後に1回実行し、前回の実行が終わっていなければ次の実行はスキップする。
type Scheduler struct {
	scheduler *gocron.Scheduler
	job       *CleanupJob
	interval  time.Duration
	logger    *slog.Logger

	root context.Context
	stop context.CancelFunc
}

// NewScheduler は新しいSchedulerを生成する。
func NewScheduler(job *CleanupJob, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	root, stop := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		job:       job,
		interval:  interval,
		logger:    logger,
		root:      root,
		stop:      stop,
	}
}

// Start はジョブを登録してスケジューラーを非同期で開始する。
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		// 失敗はRun内でログ出力済み。次の実行で再試行する
		_ = s.job.Run(s.root)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule session cleanup: %w", err)
	}

	s.logger.Info("session cleanup scheduled", slog.Duration("interval", s.interval))
	s.scheduler.StartAsync()
	return nil
}

// Stop は実行中のジョブをキャンセルし、スケジューラーを停止する。
func (s *Scheduler) Stop() {
	s.stop()
	s.scheduler.Stop()
}

// JobCount は登録済みのジョブ数を返す。テスト用。
func (s *Scheduler) JobCount() int {
	return len(s.scheduler.Jobs())
}
