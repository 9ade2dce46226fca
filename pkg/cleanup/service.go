// Package cleanup provides data retention and cleanup services.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/overseer-ai/overseer/pkg/config"
	"github.com/overseer-ai/overseer/pkg/hitl"
	"github.com/overseer-ai/overseer/pkg/queue"
	"github.com/overseer-ai/overseer/pkg/services"
)

// Service periodically enforces retention policies:
//   - Removes terminal queue tasks past the task retention window
//   - Removes resolved approval requests past the approval retention window
//   - Removes performance/cost history rows past the history retention window
//
// All operations are idempotent; pending work is never deleted.
type Service struct {
	config    *config.RetentionConfig
	taskStore *queue.Store
	gate      *hitl.Gate
	profiles  *services.ProfileService
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, taskStore *queue.Store, gate *hitl.Gate, profiles *services.ProfileService, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		config:    cfg,
		taskStore: taskStore,
		gate:      gate,
		profiles:  profiles,
		logger:    logger.With("component", "cleanup"),
	}
}

// Start launches the background cleanup loop. The first run is delayed
// so startup work is not competing with a large delete.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("Cleanup service started",
		"task_retention_days", s.config.TaskRetentionDays,
		"approval_retention_days", s.config.ApprovalRetentionDays,
		"history_retention_days", s.config.HistoryRetentionDays,
		"interval", s.config.CleanupInterval,
		"startup_delay", s.config.StartupDelay)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	select {
	case <-ctx.Done():
		return
	case <-time.After(s.config.StartupDelay):
	}
	s.RunAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunAll(ctx)
		}
	}
}

// RunAll executes one full retention pass. Exposed so operators can
// trigger a sweep on demand.
func (s *Service) RunAll(ctx context.Context) {
	now := time.Now()
	s.cleanupTasks(ctx, now)
	s.cleanupApprovals(ctx, now)
	s.cleanupHistory(ctx, now)
}

func (s *Service) cleanupTasks(ctx context.Context, now time.Time) {
	cutoff := now.AddDate(0, 0, -s.config.TaskRetentionDays)
	count, err := s.taskStore.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("Retention: task cleanup failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("Retention: deleted old terminal tasks", "count", count)
	}
}

func (s *Service) cleanupApprovals(ctx context.Context, now time.Time) {
	cutoff := now.AddDate(0, 0, -s.config.ApprovalRetentionDays)
	count, err := s.gate.DeleteResolvedBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("Retention: approval cleanup failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("Retention: deleted old resolved approvals", "count", count)
	}
}

func (s *Service) cleanupHistory(ctx context.Context, now time.Time) {
	cutoff := now.AddDate(0, 0, -s.config.HistoryRetentionDays)
	count, err := s.profiles.DeleteHistoryBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("Retention: history cleanup failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("Retention: deleted old history rows", "count", count)
	}
}
