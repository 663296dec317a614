package repository

import (
	"context"
	"errors"

	"paytransfer/internal/model"
	"paytransfer/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound   = errors.New("余额账户不存在")
	ErrInsufficientFunds = errors.New("余额不足")
	ErrInvalidAmount     = errors.New("金额必须大于0且最多两位小数")
)

type BalanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) GetByAccountID(ctx context.Context, accountID int64) (*model.AccountBalance, error) {
	return getBalance(r.db.WithContext(ctx), accountID)
}

// GetOrCreate 不存在时以 0 余额创建。
// 并发首次访问依赖 account_id 唯一索引 + ON CONFLICT DO NOTHING，只会留下一行
func (r *BalanceRepository) GetOrCreate(ctx context.Context, accountID int64, currency string) (*model.AccountBalance, error) {
	balance, err := r.GetByAccountID(ctx, accountID)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	newBalance := &model.AccountBalance{
		AccountID:    accountID,
		Amount:       decimal.Zero,
		CurrencyCode: currency,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}},
			DoNothing: true,
		}).
		Create(newBalance).Error
	if err != nil {
		return nil, err
	}

	return r.GetByAccountID(ctx, accountID)
}

// Debit 扣减余额
//
// 【关键点】余额检查和扣减是同一条 UPDATE：
//
//	UPDATE account_balance SET amount = amount - ? WHERE account_id = ? AND amount >= ?
//
// 两个并发扣款不可能同时通过检查，余额永远不会为负。
// 影响行数为 0 时再区分是账户不存在还是余额不足。
func (r *BalanceRepository) Debit(ctx context.Context, accountID int64, amount decimal.Decimal, reference string) (*model.LedgerEntry, error) {
	if !ValidAmount(amount) {
		return nil, ErrInvalidAmount
	}

	var entry *model.LedgerEntry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.AccountBalance{}).
			Where("account_id = ? AND amount >= ?", accountID, amount).
			Updates(map[string]interface{}{
				"amount":  gorm.Expr("amount - ?", amount),
				"version": gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			if _, err := getBalance(tx, accountID); err != nil {
				return err
			}
			return ErrInsufficientFunds
		}

		var err error
		entry, err = appendEntry(tx, accountID, amount.Neg(), model.EntryTypeDebit, reference)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Credit 增加余额，entryType 区分转账入账、充值、冲正
func (r *BalanceRepository) Credit(ctx context.Context, accountID int64, amount decimal.Decimal, entryType, reference string) (*model.LedgerEntry, error) {
	if !ValidAmount(amount) {
		return nil, ErrInvalidAmount
	}

	var entry *model.LedgerEntry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = creditTx(tx, accountID, amount, entryType, reference)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// creditTx 在调用方的事务内加余额并记流水
func creditTx(tx *gorm.DB, accountID int64, amount decimal.Decimal, entryType, reference string) (*model.LedgerEntry, error) {
	result := tx.Model(&model.AccountBalance{}).
		Where("account_id = ?", accountID).
		Updates(map[string]interface{}{
			"amount":  gorm.Expr("amount + ?", amount),
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrAccountNotFound
	}
	return appendEntry(tx, accountID, amount, entryType, reference)
}

// DeleteByAccountID 注销账户时删除余额，流水保留
func (r *BalanceRepository) DeleteByAccountID(ctx context.Context, accountID int64) error {
	return r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Delete(&model.AccountBalance{}).Error
}

func (r *BalanceRepository) ListEntries(ctx context.Context, accountID int64, limit int) ([]*model.LedgerEntry, error) {
	var entries []*model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// HasEntry 是否存在指定类型和业务单号的流水
func (r *BalanceRepository) HasEntry(ctx context.Context, entryType, reference string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("type = ? AND reference = ?", entryType, reference).
		Count(&count).Error
	return count > 0, err
}

// ValidAmount 金额必须为正，且不超过两位小数
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Truncate(2))
}

func getBalance(db *gorm.DB, accountID int64) (*model.AccountBalance, error) {
	var balance model.AccountBalance
	err := db.Where("account_id = ?", accountID).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &balance, nil
}

// appendEntry 在同一事务内读取变动后的余额并写流水
func appendEntry(tx *gorm.DB, accountID int64, delta decimal.Decimal, entryType, reference string) (*model.LedgerEntry, error) {
	balance, err := getBalance(tx, accountID)
	if err != nil {
		return nil, err
	}

	entry := &model.LedgerEntry{
		EntryNo:       idgen.GenerateEntryNo(),
		AccountID:     accountID,
		Type:          entryType,
		Amount:        delta,
		BalanceBefore: balance.Amount.Sub(delta),
		BalanceAfter:  balance.Amount,
		Reference:     reference,
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}
