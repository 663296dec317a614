package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 取消请求直接删除记录，不设置状态
const (
	RequestStatusPending  = "pending"
	RequestStatusApproved = "approved"
	RequestStatusRejected = "rejected"
)

var ValidRequestTransitions = map[string][]string{
	RequestStatusPending: {RequestStatusApproved, RequestStatusRejected},
}

func CanRequestTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidRequestTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// MoneyRequest 收款请求：requester 请 recipient 付款
type MoneyRequest struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	RequesterID int64           `gorm:"index;not null" json:"requester_id"`
	RecipientID int64           `gorm:"index;not null" json:"recipient_id"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Message     string          `gorm:"type:varchar(256)" json:"message"`
	Status      string          `gorm:"type:varchar(20);index;not null" json:"status"`
	Timestamp   time.Time       `gorm:"index;not null" json:"timestamp"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	// 同意时占用请求的转账单号，非空表示付款进行中或结果未确认
	ClaimNo   string     `gorm:"type:varchar(64);not null;default:''" json:"-"`
	ClaimedAt *time.Time `json:"-"`
}

func (MoneyRequest) TableName() string {
	return "money_request"
}

func (r *MoneyRequest) Claimed() bool {
	return r.ClaimNo != ""
}
