package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CompensationStatusPending = "PENDING"
	CompensationStatusDone    = "DONE"
	CompensationStatusFailed  = "FAILED"
)

// Compensation 入账失败且同步冲正也失败时，待补偿的冲正记录
type Compensation struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	AccountID     int64           `gorm:"index;not null" json:"account_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Status        string          `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount    int             `gorm:"not null;default:0" json:"retry_count"`
	LastError     string          `gorm:"type:varchar(512)" json:"last_error"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Compensation) TableName() string {
	return "ledger_compensation"
}
