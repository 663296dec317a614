package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransferStatusCompleted = "COMPLETED"
	TransferStatusFailed    = "FAILED"
)

// FailureReason 转账失败原因，封闭集合
type FailureReason string

const (
	FailureCredentialNotSet       FailureReason = "CREDENTIAL_NOT_SET"
	FailureInvalidCredential      FailureReason = "INVALID_CREDENTIAL"
	FailureCredentialServiceError FailureReason = "CREDENTIAL_SERVICE_ERROR"
	FailureSenderLookupError      FailureReason = "SENDER_LOOKUP_ERROR"
	FailureRecipientNotFound      FailureReason = "RECIPIENT_NOT_FOUND"
	FailureRecipientLookupError   FailureReason = "RECIPIENT_LOOKUP_ERROR"
	FailureInsufficientBalance    FailureReason = "INSUFFICIENT_BALANCE"
	FailureDebitServiceError      FailureReason = "DEBIT_SERVICE_ERROR"
	FailureCreditServiceError     FailureReason = "CREDIT_SERVICE_ERROR"
)

// Text 对外展示的失败原因，detail 为下游返回的错误信息
func (r FailureReason) Text(detail string) string {
	switch r {
	case FailureCredentialNotSet:
		return "Transaction password not set"
	case FailureInvalidCredential:
		return "Invalid transaction password"
	case FailureCredentialServiceError:
		return "Error verifying transaction password: " + detail
	case FailureSenderLookupError:
		return "Error fetching sender user details"
	case FailureRecipientNotFound:
		return "Recipient user not found"
	case FailureRecipientLookupError:
		return "Error fetching recipient user: " + detail
	case FailureInsufficientBalance:
		return "Insufficient balance"
	default:
		return detail
	}
}

// Transaction 转账记录表
// 每次转账尝试恰好一行，状态只写一次，写入后不再修改
type Transaction struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	SenderID      int64           `gorm:"index;not null" json:"sender_id"`
	RecipientID   *int64          `gorm:"index" json:"recipient_id"` // 收款方解析成功前为空
	Amount        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Description   string          `gorm:"type:varchar(256)" json:"description"`
	Status        string          `gorm:"type:varchar(20);not null" json:"-"`
	FailureReason FailureReason   `gorm:"type:varchar(32)" json:"-"`
	FailureDetail string          `gorm:"type:varchar(512)" json:"-"`
	Timestamp     time.Time       `gorm:"index;not null" json:"timestamp"`
}

func (Transaction) TableName() string {
	return "transfer_transaction"
}

// Complete 标记成功，状态已确定时不做任何修改
func (t *Transaction) Complete() bool {
	if t.Status != "" {
		return false
	}
	t.Status = TransferStatusCompleted
	return true
}

// Fail 标记失败，状态已确定时不做任何修改
func (t *Transaction) Fail(reason FailureReason, detail string) bool {
	if t.Status != "" {
		return false
	}
	t.Status = TransferStatusFailed
	t.FailureReason = reason
	t.FailureDetail = detail
	return true
}

func (t *Transaction) Completed() bool {
	return t.Status == TransferStatusCompleted
}

func (t *Transaction) Failed() bool {
	return t.Status == TransferStatusFailed
}

// Reason 失败原因文本，成功时为空
func (t *Transaction) Reason() string {
	if !t.Failed() {
		return ""
	}
	return t.FailureReason.Text(t.FailureDetail)
}

// StatusText 对外状态："COMPLETED" 或 "FAILED: <原因>"
func (t *Transaction) StatusText() string {
	if t.Failed() {
		return TransferStatusFailed + ": " + t.Reason()
	}
	return t.Status
}
