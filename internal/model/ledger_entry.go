package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 余额流水
// ============================================================================

const (
	EntryTypeDebit    = "DEBIT"    // 转账扣款
	EntryTypeCredit   = "CREDIT"   // 转账入账
	EntryTypeTopUp    = "TOPUP"    // 充值
	EntryTypeReversal = "REVERSAL" // 入账失败后的冲正
)

// LedgerEntry 余额流水表
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除
// 2. 与余额更新在同一个数据库事务内写入
// 3. 记录变动前后余额，便于核对
type LedgerEntry struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo       string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"`
	AccountID     int64           `gorm:"index;not null" json:"account_id"`
	Type          string          `gorm:"type:varchar(20);not null" json:"type"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"` // 正数入账，负数出账
	BalanceBefore decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance_after"`
	Reference     string          `gorm:"type:varchar(256)" json:"reference"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entry"
}
