package repository

import (
	"context"
	"errors"

	"paytransfer/internal/model"

	"gorm.io/gorm"
)

// ErrCompensationSettled 记录已不是 PENDING，被其他实例处理过
var ErrCompensationSettled = errors.New("补偿记录已被处理")

type CompensationRepository struct {
	db *gorm.DB
}

func NewCompensationRepository(db *gorm.DB) *CompensationRepository {
	return &CompensationRepository{db: db}
}

func (r *CompensationRepository) Create(ctx context.Context, comp *model.Compensation) error {
	return r.db.WithContext(ctx).Create(comp).Error
}

func (r *CompensationRepository) GetPending(ctx context.Context, limit int) ([]*model.Compensation, error) {
	var comps []*model.Compensation
	err := r.db.WithContext(ctx).
		Where("status = ?", model.CompensationStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&comps).Error
	return comps, err
}

// Apply 在同一事务内把记录从 PENDING 置为 DONE 并记冲正流水。
// 条件更新没有命中说明记录已被处理，返回 ErrCompensationSettled，不再加余额
func (r *CompensationRepository) Apply(ctx context.Context, comp *model.Compensation) error {
	if !ValidAmount(comp.Amount) {
		return ErrInvalidAmount
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Compensation{}).
			Where("id = ? AND status = ?", comp.ID, model.CompensationStatusPending).
			Update("status", model.CompensationStatusDone)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrCompensationSettled
		}

		_, err := creditTx(tx, comp.AccountID, comp.Amount, model.EntryTypeReversal, comp.TransactionNo)
		return err
	})
}

// RecordFailure 记录一次失败，重试次数达到上限后标记为 FAILED
func (r *CompensationRepository) RecordFailure(ctx context.Context, comp *model.Compensation, lastError string, maxRetry int) error {
	updates := map[string]interface{}{
		"retry_count": gorm.Expr("retry_count + 1"),
		"last_error":  truncate(lastError, 512),
	}
	if comp.RetryCount+1 >= maxRetry {
		updates["status"] = model.CompensationStatusFailed
	}

	result := r.db.WithContext(ctx).
		Model(&model.Compensation{}).
		Where("id = ? AND status = ?", comp.ID, model.CompensationStatusPending).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCompensationSettled
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
