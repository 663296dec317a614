package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// 下游服务（用户服务）约定的错误
var (
	ErrCredentialNotSet   = errors.New("交易密码未设置")
	ErrCredentialMismatch = errors.New("交易密码错误")
	ErrIdentityNotFound   = errors.New("用户不存在")
)

// Identity 用户服务返回的身份信息
type Identity struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CredentialVerifier 校验交易密码。
// 未设置返回 ErrCredentialNotSet，不匹配返回 ErrCredentialMismatch，其余为调用失败
type CredentialVerifier interface {
	VerifyCredential(ctx context.Context, accountID int64, secret string) error
}

// IdentityResolver 按 ID 或邮箱查询用户，不存在返回 ErrIdentityNotFound
type IdentityResolver interface {
	GetAccount(ctx context.Context, accountID int64) (*Identity, error)
	GetAccountByAddress(ctx context.Context, address string) (*Identity, error)
}

// BalanceLedger 转账编排只通过这个接口修改余额
type BalanceLedger interface {
	Debit(ctx context.Context, accountID int64, amount decimal.Decimal, reference string) error
	Credit(ctx context.Context, accountID int64, amount decimal.Decimal, reference string) error
	Reverse(ctx context.Context, accountID int64, amount decimal.Decimal, reference string) error
}

// NotificationEmitter 通知发送，不关心结果
type NotificationEmitter interface {
	Emit(ctx context.Context, accountID int64, message, category string)
}
