package repository

import (
	"context"
	"errors"
	"time"

	"paytransfer/internal/model"

	"gorm.io/gorm"
)

var (
	ErrRequestNotFound      = errors.New("收款请求不存在")
	ErrRequestStatusInvalid = errors.New("收款请求状态不合法")
	ErrRequestClaimed       = errors.New("收款请求已被占用")
)

type MoneyRequestRepository struct {
	db *gorm.DB
}

func NewMoneyRequestRepository(db *gorm.DB) *MoneyRequestRepository {
	return &MoneyRequestRepository{db: db}
}

func (r *MoneyRequestRepository) Create(ctx context.Context, req *model.MoneyRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *MoneyRequestRepository) GetByID(ctx context.Context, id int64) (*model.MoneyRequest, error) {
	var req model.MoneyRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

// UpdateStatus 条件更新：只有当前状态仍为 fromStatus 且没有进行中的付款时才会生效
func (r *MoneyRequestRepository) UpdateStatus(ctx context.Context, id int64, fromStatus, toStatus string) error {
	if !model.CanRequestTransitionTo(fromStatus, toStatus) {
		return ErrRequestStatusInvalid
	}

	result := r.db.WithContext(ctx).
		Model(&model.MoneyRequest{}).
		Where("id = ? AND status = ? AND claim_no = ''", id, fromStatus).
		Update("status", toStatus)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRequestStatusInvalid
	}
	return nil
}

// DeletePending 取消请求，只能删除 pending 且未被占用的记录
func (r *MoneyRequestRepository) DeletePending(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND status = ? AND claim_no = ''", id, model.RequestStatusPending).
		Delete(&model.MoneyRequest{})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRequestStatusInvalid
	}
	return nil
}

// Claim 付款前占用请求，同一时刻只有一个转账单号能占用成功。
// 已被占用返回 ErrRequestClaimed，已不是 pending 返回 ErrRequestStatusInvalid
func (r *MoneyRequestRepository) Claim(ctx context.Context, id int64, claimNo string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.MoneyRequest{}).
		Where("id = ? AND status = ? AND claim_no = ''", id, model.RequestStatusPending).
		Updates(map[string]interface{}{
			"claim_no":   claimNo,
			"claimed_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	req, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if req.Status != model.RequestStatusPending {
		return ErrRequestStatusInvalid
	}
	return ErrRequestClaimed
}

// ReleaseClaim 付款未发生时释放占用，只释放 claimNo 自己的占用
func (r *MoneyRequestRepository) ReleaseClaim(ctx context.Context, id int64, claimNo string) error {
	result := r.db.WithContext(ctx).
		Model(&model.MoneyRequest{}).
		Where("id = ? AND status = ? AND claim_no = ?", id, model.RequestStatusPending, claimNo).
		Updates(map[string]interface{}{
			"claim_no":   "",
			"claimed_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRequestStatusInvalid
	}
	return nil
}

// CompleteClaim 占用对应的转账已成功，请求置为 approved
func (r *MoneyRequestRepository) CompleteClaim(ctx context.Context, id int64, claimNo string) error {
	result := r.db.WithContext(ctx).
		Model(&model.MoneyRequest{}).
		Where("id = ? AND status = ? AND claim_no = ?", id, model.RequestStatusPending, claimNo).
		Update("status", model.RequestStatusApproved)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRequestStatusInvalid
	}
	return nil
}

// ListByAccountID 发起或收到的请求，status 为空时不过滤
func (r *MoneyRequestRepository) ListByAccountID(ctx context.Context, accountID int64, status string) ([]*model.MoneyRequest, error) {
	var requests []*model.MoneyRequest

	query := r.db.WithContext(ctx).
		Where("requester_id = ? OR recipient_id = ?", accountID, accountID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	err := query.
		Order("timestamp DESC").
		Order("id DESC").
		Find(&requests).Error
	return requests, err
}
