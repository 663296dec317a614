package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"paytransfer/internal/config"
	"paytransfer/internal/infrastructure/logger"
	"paytransfer/internal/model"
	"paytransfer/internal/repository"
	"paytransfer/pkg/idgen"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidTransfer = errors.New("转账参数不合法")

// TransferDeps 转账编排依赖的下游
type TransferDeps struct {
	Verifier   CredentialVerifier
	Identities IdentityResolver
	Ledger     BalanceLedger
	Notifier   NotificationEmitter
}

// TransferService 转账编排：校验密码 -> 解析双方 -> 扣款 -> 入账 -> 记录 -> 通知
type TransferService struct {
	transactionRepo  *repository.TransactionRepository
	compensationRepo *repository.CompensationRepository
	verifier         CredentialVerifier
	identities       IdentityResolver
	ledger           BalanceLedger
	notifier         NotificationEmitter
	callTimeout      time.Duration
	log              *zap.Logger
	now              func() time.Time
}

func NewTransferService(db *gorm.DB, cfg *config.Config, deps TransferDeps) *TransferService {
	return &TransferService{
		transactionRepo:  repository.NewTransactionRepository(db),
		compensationRepo: repository.NewCompensationRepository(db),
		verifier:         deps.Verifier,
		identities:       deps.Identities,
		ledger:           deps.Ledger,
		notifier:         deps.Notifier,
		callTimeout:      cfg.Business.RPCTimeout,
		log:              logger.Named("transfer"),
		now:              time.Now,
	}
}

type TransferRequest struct {
	SenderID       int64
	RecipientEmail string
	Amount         decimal.Decimal
	Description    string
	AuthSecret     string
	// 为空时自动生成
	TransactionNo string
}

// AttemptTransfer 执行一次转账尝试，无论成功失败都恰好落一条转账记录。
// 业务失败体现在返回记录的状态上，error 只表示参数不合法或记录无法保存
func (s *TransferService) AttemptTransfer(ctx context.Context, req *TransferRequest) (*model.Transaction, error) {
	if req == nil || req.SenderID <= 0 || strings.TrimSpace(req.RecipientEmail) == "" || !repository.ValidAmount(req.Amount) {
		return nil, ErrInvalidTransfer
	}

	// 扣款后调用方断开也要走完入账或冲正
	ctx = context.WithoutCancel(ctx)

	transactionNo := req.TransactionNo
	if transactionNo == "" {
		transactionNo = idgen.GenerateTransactionNo()
	}

	trans := &model.Transaction{
		TransactionNo: transactionNo,
		SenderID:      req.SenderID,
		Amount:        req.Amount,
		Description:   req.Description,
		Timestamp:     s.now(),
	}

	s.execute(ctx, trans, req)

	if err := s.transactionRepo.Create(ctx, trans); err != nil {
		s.log.Error("保存转账记录失败",
			zap.String("transaction_no", trans.TransactionNo),
			zap.String("status", trans.StatusText()),
			zap.Error(err))
		return nil, fmt.Errorf("保存转账记录失败: %w", err)
	}

	s.log.Info("转账完成",
		zap.String("transaction_no", trans.TransactionNo),
		zap.Int64("sender_id", trans.SenderID),
		zap.String("amount", trans.Amount.StringFixed(2)),
		zap.String("status", trans.StatusText()))

	return trans, nil
}

// execute 按顺序推进，任何一步失败即确定最终状态并返回
func (s *TransferService) execute(ctx context.Context, trans *model.Transaction, req *TransferRequest) {
	// 1. 校验交易密码，失败时不触碰账本
	err := s.call(ctx, func(ctx context.Context) error {
		return s.verifier.VerifyCredential(ctx, req.SenderID, req.AuthSecret)
	})
	switch {
	case errors.Is(err, ErrCredentialNotSet):
		trans.Fail(model.FailureCredentialNotSet, "")
		return
	case errors.Is(err, ErrCredentialMismatch):
		trans.Fail(model.FailureInvalidCredential, "")
		return
	case err != nil:
		trans.Fail(model.FailureCredentialServiceError, err.Error())
		return
	}

	// 2. 付款方
	var sender *Identity
	err = s.call(ctx, func(ctx context.Context) (err error) {
		sender, err = s.identities.GetAccount(ctx, req.SenderID)
		return err
	})
	if err == nil && sender == nil {
		err = ErrIdentityNotFound
	}
	if err != nil {
		trans.Fail(model.FailureSenderLookupError, err.Error())
		return
	}

	// 3. 收款方
	var recipient *Identity
	err = s.call(ctx, func(ctx context.Context) (err error) {
		recipient, err = s.identities.GetAccountByAddress(ctx, req.RecipientEmail)
		return err
	})
	switch {
	case errors.Is(err, ErrIdentityNotFound), err == nil && (recipient == nil || recipient.ID <= 0):
		trans.Fail(model.FailureRecipientNotFound, "")
		return
	case err != nil:
		trans.Fail(model.FailureRecipientLookupError, err.Error())
		return
	}
	recipientID := recipient.ID
	trans.RecipientID = &recipientID

	// 4. 扣款
	err = s.call(ctx, func(ctx context.Context) error {
		return s.ledger.Debit(ctx, req.SenderID, trans.Amount, trans.TransactionNo)
	})
	if errors.Is(err, repository.ErrInsufficientFunds) {
		trans.Fail(model.FailureInsufficientBalance, "")
		s.notifier.Emit(ctx, req.SenderID,
			fmt.Sprintf("Transaction of %s to %s failed due to insufficient balance.", trans.Amount.StringFixed(2), req.RecipientEmail),
			model.NotificationTypeTransaction)
		return
	}
	if err != nil {
		trans.Fail(model.FailureDebitServiceError, err.Error())
		return
	}

	// 5. 入账，失败则冲正
	err = s.call(ctx, func(ctx context.Context) error {
		return s.ledger.Credit(ctx, recipientID, trans.Amount, trans.TransactionNo)
	})
	if err != nil {
		trans.Fail(model.FailureCreditServiceError, err.Error())
		s.compensate(ctx, trans, recipient.Name)
		return
	}

	trans.Complete()
	s.notifier.Emit(ctx, req.SenderID,
		fmt.Sprintf("You sent %s to %s.", trans.Amount.StringFixed(2), recipient.Name),
		model.NotificationTypeTransaction)
	s.notifier.Emit(ctx, recipientID,
		fmt.Sprintf("You received %s from %s.", trans.Amount.StringFixed(2), sender.Name),
		model.NotificationTypeTransaction)
}

// compensate 入账失败后把扣款退回付款方。
// 同步冲正失败时写补偿记录，由 CompensationJob 重试
func (s *TransferService) compensate(ctx context.Context, trans *model.Transaction, recipientName string) {
	err := s.call(ctx, func(ctx context.Context) error {
		return s.ledger.Reverse(ctx, trans.SenderID, trans.Amount, trans.TransactionNo)
	})
	if err == nil {
		s.log.Warn("入账失败，已冲正",
			zap.String("transaction_no", trans.TransactionNo),
			zap.String("reason", trans.FailureDetail))
		s.notifier.Emit(ctx, trans.SenderID,
			fmt.Sprintf("Transfer of %s to %s failed; %s was returned to your wallet.",
				trans.Amount.StringFixed(2), recipientName, trans.Amount.StringFixed(2)),
			model.NotificationTypeTransaction)
		return
	}

	s.log.Error("冲正失败，写入补偿记录",
		zap.String("transaction_no", trans.TransactionNo),
		zap.Int64("account_id", trans.SenderID),
		zap.Error(err))

	comp := &model.Compensation{
		TransactionNo: trans.TransactionNo,
		AccountID:     trans.SenderID,
		Amount:        trans.Amount,
		Status:        model.CompensationStatusPending,
	}
	if cerr := s.compensationRepo.Create(ctx, comp); cerr != nil {
		// 资金已扣出且无法自动退回，只能人工处理
		s.log.Error("补偿记录写入失败",
			zap.String("transaction_no", trans.TransactionNo),
			zap.Int64("account_id", trans.SenderID),
			zap.String("amount", trans.Amount.StringFixed(2)),
			zap.Error(cerr))
	}
}

// call 每次下游调用单独计时
func (s *TransferService) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.callTimeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return fn(callCtx)
}

func (s *TransferService) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	return s.transactionRepo.GetByID(ctx, id)
}

func (s *TransferService) GetTransactionByNo(ctx context.Context, transactionNo string) (*model.Transaction, error) {
	return s.transactionRepo.GetByTransactionNo(ctx, transactionNo)
}

// ListTransactions 查询用户作为付款方或收款方的转账记录，按时间倒序
func (s *TransferService) ListTransactions(ctx context.Context, accountID int64, page, pageSize int) ([]*model.Transaction, int64, error) {
	page, pageSize = NormalizePage(page, pageSize)
	return s.transactionRepo.ListByAccountID(ctx, accountID, page, pageSize)
}

// NormalizePage 页码从 1 开始，每页 1~100 条，越界时取默认 10 条
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	return page, pageSize
}

func (s *TransferService) DeleteTransactionsByAccount(ctx context.Context, accountID int64) (int64, error) {
	return s.transactionRepo.DeleteByAccountID(ctx, accountID)
}
