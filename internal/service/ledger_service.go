package service

import (
	"context"
	"fmt"

	"paytransfer/internal/config"
	"paytransfer/internal/model"
	"paytransfer/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerService 余额账本，唯一允许修改余额的组件
type LedgerService struct {
	balanceRepo *repository.BalanceRepository
	compRepo    *repository.CompensationRepository
	notifier    NotificationEmitter
	currency    string
}

var _ BalanceLedger = (*LedgerService)(nil)

func NewLedgerService(db *gorm.DB, cfg *config.Config, notifier NotificationEmitter) *LedgerService {
	return &LedgerService{
		balanceRepo: repository.NewBalanceRepository(db),
		compRepo:    repository.NewCompensationRepository(db),
		notifier:    notifier,
		currency:    cfg.Business.DefaultCurrency,
	}
}

func (s *LedgerService) GetOrCreate(ctx context.Context, accountID int64) (*model.AccountBalance, error) {
	return s.balanceRepo.GetOrCreate(ctx, accountID, s.currency)
}

func (s *LedgerService) GetBalance(ctx context.Context, accountID int64) (*model.AccountBalance, error) {
	return s.balanceRepo.GetByAccountID(ctx, accountID)
}

// Debit 余额不足返回 repository.ErrInsufficientFunds，账户不存在返回 repository.ErrAccountNotFound
func (s *LedgerService) Debit(ctx context.Context, accountID int64, amount decimal.Decimal, reference string) error {
	_, err := s.balanceRepo.Debit(ctx, accountID, amount, reference)
	return err
}

// Credit 转账入账
func (s *LedgerService) Credit(ctx context.Context, accountID int64, amount decimal.Decimal, reference string) error {
	_, err := s.balanceRepo.Credit(ctx, accountID, amount, model.EntryTypeCredit, reference)
	return err
}

// Reverse 冲正：把已扣的金额退回付款方
func (s *LedgerService) Reverse(ctx context.Context, accountID int64, amount decimal.Decimal, reference string) error {
	_, err := s.balanceRepo.Credit(ctx, accountID, amount, model.EntryTypeReversal, reference)
	return err
}

// ApplyCompensation 执行一条待补偿的冲正，状态变更与加余额在同一事务内。
// 已被其他实例处理时返回 repository.ErrCompensationSettled
func (s *LedgerService) ApplyCompensation(ctx context.Context, comp *model.Compensation) error {
	return s.compRepo.Apply(ctx, comp)
}

// Add 外部充值，机制上与 Credit 相同，单独记流水并通知用户
func (s *LedgerService) Add(ctx context.Context, accountID int64, amount decimal.Decimal) (*model.AccountBalance, error) {
	if _, err := s.balanceRepo.Credit(ctx, accountID, amount, model.EntryTypeTopUp, "top-up"); err != nil {
		return nil, err
	}

	s.notifier.Emit(ctx, accountID,
		fmt.Sprintf("You added %s to your wallet.", amount.StringFixed(2)),
		model.NotificationTypeSystem)

	return s.balanceRepo.GetByAccountID(ctx, accountID)
}

func (s *LedgerService) DeleteAccount(ctx context.Context, accountID int64) error {
	return s.balanceRepo.DeleteByAccountID(ctx, accountID)
}
