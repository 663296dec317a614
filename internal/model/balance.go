package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountBalance 账户余额表
// 每个账户持有人一行，只允许通过 Ledger 的原子操作修改
type AccountBalance struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID    int64           `gorm:"uniqueIndex;not null" json:"account_id"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`
	CurrencyCode string          `gorm:"type:varchar(8);not null" json:"currency_code"`
	Version      int             `gorm:"not null;default:0" json:"version"` // 每次变动 +1
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AccountBalance) TableName() string {
	return "account_balance"
}
