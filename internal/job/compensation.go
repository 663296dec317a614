package job

import (
	"context"
	"errors"
	"time"

	"paytransfer/internal/config"
	"paytransfer/internal/infrastructure/logger"
	"paytransfer/internal/model"
	"paytransfer/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Compensator 由 service.LedgerService 实现
type Compensator interface {
	ApplyCompensation(ctx context.Context, comp *model.Compensation) error
}

// CompensationJob 重试转账时未能同步完成的冲正，多实例同时运行时每条记录只会生效一次
type CompensationJob struct {
	compRepo  *repository.CompensationRepository
	ledger    Compensator
	cfg       *config.Config
	log       *zap.Logger
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

func NewCompensationJob(db *gorm.DB, ledger Compensator, cfg *config.Config) *CompensationJob {
	return &CompensationJob{
		compRepo:  repository.NewCompensationRepository(db),
		ledger:    ledger,
		cfg:       cfg,
		log:       logger.Named("compensation_job"),
		stopCh:    make(chan struct{}),
		interval:  10 * time.Second,
		batchSize: 100,
	}
}

func (j *CompensationJob) Start(ctx context.Context) {
	j.log.Info("冲正补偿任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.log.Info("任务停止")
			return
		case <-ticker.C:
			j.processPending(ctx)
		}
	}
}

func (j *CompensationJob) Stop() {
	close(j.stopCh)
}

func (j *CompensationJob) processPending(ctx context.Context) {
	comps, err := j.compRepo.GetPending(ctx, j.batchSize)
	if err != nil {
		j.log.Warn("查询待补偿记录失败", zap.Error(err))
		return
	}
	if len(comps) == 0 {
		return
	}

	j.log.Info("发现待补偿记录", zap.Int("count", len(comps)))

	for _, comp := range comps {
		j.compensate(ctx, comp)
	}
}

func (j *CompensationJob) compensate(ctx context.Context, comp *model.Compensation) {
	err := j.ledger.ApplyCompensation(ctx, comp)
	switch {
	case err == nil:
		j.log.Info("冲正补偿完成",
			zap.String("transaction_no", comp.TransactionNo),
			zap.Int64("account_id", comp.AccountID),
			zap.String("amount", comp.Amount.StringFixed(2)))
	case errors.Is(err, repository.ErrCompensationSettled):
		j.log.Debug("补偿记录已被处理，跳过", zap.String("transaction_no", comp.TransactionNo))
	default:
		j.fail(ctx, comp, err)
	}
}

func (j *CompensationJob) fail(ctx context.Context, comp *model.Compensation, cause error) {
	err := j.compRepo.RecordFailure(ctx, comp, cause.Error(), j.cfg.Business.MaxRetryCount)
	if errors.Is(err, repository.ErrCompensationSettled) {
		return
	}
	if err != nil {
		j.log.Warn("记录补偿失败次数失败", zap.Int64("id", comp.ID), zap.Error(err))
		return
	}

	if comp.RetryCount+1 >= j.cfg.Business.MaxRetryCount {
		// 需要人工处理
		j.log.Error("冲正补偿超过最大重试次数",
			zap.String("transaction_no", comp.TransactionNo),
			zap.Int64("account_id", comp.AccountID),
			zap.String("amount", comp.Amount.StringFixed(2)),
			zap.Error(cause))
		return
	}
	j.log.Warn("冲正补偿失败，等待重试",
		zap.String("transaction_no", comp.TransactionNo),
		zap.Int("retry_count", comp.RetryCount+1),
		zap.Error(cause))
}
