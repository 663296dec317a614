package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paytransfer/internal/config"
	"paytransfer/internal/infrastructure/lock"
	"paytransfer/internal/infrastructure/logger"
	"paytransfer/internal/model"
	"paytransfer/internal/repository"
	"paytransfer/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrRequestNotFound   = repository.ErrRequestNotFound
	ErrRequestNotPending = errors.New("收款请求不是待处理状态")
	ErrRequestBusy       = errors.New("收款请求正在处理中，请稍后重试")
	ErrInvalidRequest    = errors.New("收款请求参数不合法")
)

// TransferFailedError 同意请求时内部转账失败，请求保持 pending
type TransferFailedError struct {
	Transaction *model.Transaction
}

func (e *TransferFailedError) Error() string {
	return "转账失败: " + e.Transaction.Reason()
}

// Transferer 同意收款请求时发起转账
type Transferer interface {
	AttemptTransfer(ctx context.Context, req *TransferRequest) (*model.Transaction, error)
}

const (
	lockRetryInterval = 100 * time.Millisecond
	lockMaxRetries    = 30

	// 一次转账最多 6 次下游调用，再加一次落库
	transferSteps = 7
	claimMargin   = 5 * time.Second
)

type RequestService struct {
	requestRepo     *repository.MoneyRequestRepository
	transactionRepo *repository.TransactionRepository
	balanceRepo     *repository.BalanceRepository
	redisClient     *redis.Client
	identities      IdentityResolver
	transfers       Transferer
	notifier        NotificationEmitter
	lockTTL         time.Duration
	claimWindow     time.Duration
	log             *zap.Logger
	now             func() time.Time
}

func NewRequestService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config,
	identities IdentityResolver, transfers Transferer, notifier NotificationEmitter) *RequestService {
	// 没有转账记录的占用在这段时间内视为付款仍在进行
	claimWindow := cfg.Business.RPCTimeout*transferSteps + claimMargin
	// 锁至少覆盖一次完整转账
	lockTTL := cfg.Business.LockTTL
	if lockTTL < claimWindow {
		lockTTL = claimWindow
	}

	return &RequestService{
		requestRepo:     repository.NewMoneyRequestRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		balanceRepo:     repository.NewBalanceRepository(db),
		redisClient:     redisClient,
		identities:      identities,
		transfers:       transfers,
		notifier:        notifier,
		lockTTL:         lockTTL,
		claimWindow:     claimWindow,
		log:             logger.Named("request"),
		now:             time.Now,
	}
}

// Create 发起收款请求：requester 请 recipient 付款
func (s *RequestService) Create(ctx context.Context, requesterID, recipientID int64, amount decimal.Decimal, message string) (*model.MoneyRequest, error) {
	if requesterID <= 0 || recipientID <= 0 || !repository.ValidAmount(amount) {
		return nil, ErrInvalidRequest
	}

	req := &model.MoneyRequest{
		RequesterID: requesterID,
		RecipientID: recipientID,
		Amount:      amount,
		Message:     message,
		Status:      model.RequestStatusPending,
		Timestamp:   s.now(),
	}
	if err := s.requestRepo.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("创建收款请求失败: %w", err)
	}

	s.notifier.Emit(ctx, recipientID,
		fmt.Sprintf("You have a new money request for %s.", amount.StringFixed(2)),
		model.NotificationTypeRequest)

	return req, nil
}

// Approve 付款方同意请求，用付款方的交易密码向请求方转账。
// 转账前先用转账单号占用请求，锁过期后其他实例也无法对同一请求再次付款。
// 转账失败返回 *TransferFailedError，请求保持 pending 可再次同意
func (s *RequestService) Approve(ctx context.Context, requestID int64, authSecret string) (*model.MoneyRequest, *model.Transaction, error) {
	unlock, err := s.lock(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	req, err := s.getPending(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}

	requester, err := s.identities.GetAccount(ctx, req.RequesterID)
	if err == nil && requester == nil {
		err = ErrIdentityNotFound
	}
	if err != nil {
		return req, nil, fmt.Errorf("查询请求方信息失败: %w", err)
	}

	claimNo := idgen.GenerateTransactionNo()
	if err := s.requestRepo.Claim(ctx, requestID, claimNo, s.now()); err != nil {
		switch {
		case errors.Is(err, repository.ErrRequestClaimed):
			return nil, nil, ErrRequestBusy
		case errors.Is(err, repository.ErrRequestStatusInvalid):
			return nil, nil, ErrRequestNotPending
		case errors.Is(err, repository.ErrRequestNotFound):
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("占用收款请求失败: %w", err)
	}

	trans, err := s.transfers.AttemptTransfer(ctx, &TransferRequest{
		SenderID:       req.RecipientID,
		RecipientEmail: requester.Email,
		Amount:         req.Amount,
		Description:    "Payment for money request: " + req.Message,
		AuthSecret:     authSecret,
		TransactionNo:  claimNo,
	})

	// 转账结束后的状态写入不受调用方取消影响
	bg := context.WithoutCancel(ctx)

	if err != nil {
		if errors.Is(err, ErrInvalidTransfer) {
			s.releaseClaim(bg, requestID, claimNo)
		} else {
			// 结果未知，保留占用，下次操作时按转账记录确认
			s.log.Error("收款请求付款结果未知",
				zap.Int64("request_id", requestID),
				zap.String("transaction_no", claimNo),
				zap.Error(err))
		}
		return req, nil, fmt.Errorf("发起转账失败: %w", err)
	}
	if !trans.Completed() {
		s.releaseClaim(bg, requestID, claimNo)
		return req, trans, &TransferFailedError{Transaction: trans}
	}

	if err := s.requestRepo.CompleteClaim(bg, requestID, claimNo); err != nil {
		// 资金已转出但请求状态未更新，占用保留，下次操作时补齐
		s.log.Error("收款请求状态更新失败",
			zap.Int64("request_id", requestID),
			zap.String("transaction_no", trans.TransactionNo),
			zap.Error(err))
		return req, trans, fmt.Errorf("更新收款请求状态失败: %w", err)
	}
	req.Status = model.RequestStatusApproved
	req.ClaimNo = claimNo

	s.notifyApproved(ctx, req)
	s.log.Info("收款请求已同意",
		zap.Int64("request_id", requestID),
		zap.String("transaction_no", trans.TransactionNo))

	return req, trans, nil
}

// Reject 付款方拒绝请求
func (s *RequestService) Reject(ctx context.Context, requestID int64) (*model.MoneyRequest, error) {
	unlock, err := s.lock(ctx, requestID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	req, err := s.getPending(ctx, requestID)
	if err != nil {
		return nil, err
	}

	err = s.requestRepo.UpdateStatus(ctx, requestID, model.RequestStatusPending, model.RequestStatusRejected)
	if errors.Is(err, repository.ErrRequestStatusInvalid) {
		return nil, ErrRequestNotPending
	}
	if err != nil {
		return nil, fmt.Errorf("更新收款请求状态失败: %w", err)
	}
	req.Status = model.RequestStatusRejected

	s.notifier.Emit(ctx, req.RequesterID,
		fmt.Sprintf("Your money request for %s was rejected.", req.Amount.StringFixed(2)),
		model.NotificationTypeRequestRejected)

	return req, nil
}

// Cancel 请求方撤回请求，记录直接删除
func (s *RequestService) Cancel(ctx context.Context, requestID int64) error {
	unlock, err := s.lock(ctx, requestID)
	if err != nil {
		return err
	}
	defer unlock()

	req, err := s.getPending(ctx, requestID)
	if err != nil {
		return err
	}

	err = s.requestRepo.DeletePending(ctx, requestID)
	if errors.Is(err, repository.ErrRequestStatusInvalid) {
		return ErrRequestNotPending
	}
	if err != nil {
		return fmt.Errorf("删除收款请求失败: %w", err)
	}

	s.notifier.Emit(ctx, req.RecipientID,
		fmt.Sprintf("A money request for %s was canceled.", req.Amount.StringFixed(2)),
		model.NotificationTypeRequestCanceled)

	return nil
}

// List 用户发起或收到的请求，status 为空返回全部
func (s *RequestService) List(ctx context.Context, accountID int64, status string) ([]*model.MoneyRequest, error) {
	switch status {
	case "", model.RequestStatusPending, model.RequestStatusApproved, model.RequestStatusRejected:
	default:
		return nil, ErrInvalidRequest
	}
	return s.requestRepo.ListByAccountID(ctx, accountID, status)
}

// getPending 取 pending 请求，带占用的请求先按转账结果确认
func (s *RequestService) getPending(ctx context.Context, requestID int64) (*model.MoneyRequest, error) {
	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != model.RequestStatusPending {
		return nil, ErrRequestNotPending
	}
	if req.Claimed() {
		if err := s.settleClaim(ctx, req); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// settleClaim 处理上一次同意留下的占用：
// 转账成功则补齐为 approved，转账失败或确认未扣款则释放，其余情况视为仍在处理
func (s *RequestService) settleClaim(ctx context.Context, req *model.MoneyRequest) error {
	claimNo := req.ClaimNo

	trans, err := s.transactionRepo.GetByTransactionNo(ctx, claimNo)
	switch {
	case err == nil && trans.Completed():
		err := s.requestRepo.CompleteClaim(ctx, req.ID, claimNo)
		if errors.Is(err, repository.ErrRequestStatusInvalid) {
			return ErrRequestNotPending
		}
		if err != nil {
			return fmt.Errorf("更新收款请求状态失败: %w", err)
		}
		req.Status = model.RequestStatusApproved
		s.notifyApproved(ctx, req)
		s.log.Warn("收款请求已付款，补齐状态",
			zap.Int64("request_id", req.ID),
			zap.String("transaction_no", claimNo))
		return ErrRequestNotPending
	case err == nil:
		return s.releaseStaleClaim(ctx, req)
	case !errors.Is(err, repository.ErrTransactionNotFound):
		return fmt.Errorf("查询转账记录失败: %w", err)
	}

	// 没有转账记录，付款可能还在进行
	if req.ClaimedAt == nil || s.now().Sub(*req.ClaimedAt) < s.claimWindow {
		return ErrRequestBusy
	}

	debited, err := s.balanceRepo.HasEntry(ctx, model.EntryTypeDebit, claimNo)
	if err != nil {
		return fmt.Errorf("查询扣款流水失败: %w", err)
	}
	if debited {
		reversed, err := s.balanceRepo.HasEntry(ctx, model.EntryTypeReversal, claimNo)
		if err != nil {
			return fmt.Errorf("查询冲正流水失败: %w", err)
		}
		if !reversed {
			// 已扣款但没有转账记录，需要人工核对
			s.log.Error("收款请求付款结果无法确认",
				zap.Int64("request_id", req.ID),
				zap.String("transaction_no", claimNo))
			return ErrRequestBusy
		}
	}

	return s.releaseStaleClaim(ctx, req)
}

func (s *RequestService) releaseStaleClaim(ctx context.Context, req *model.MoneyRequest) error {
	err := s.requestRepo.ReleaseClaim(ctx, req.ID, req.ClaimNo)
	if errors.Is(err, repository.ErrRequestStatusInvalid) {
		return ErrRequestBusy
	}
	if err != nil {
		return fmt.Errorf("释放收款请求占用失败: %w", err)
	}
	s.log.Info("释放收款请求占用",
		zap.Int64("request_id", req.ID),
		zap.String("transaction_no", req.ClaimNo))
	req.ClaimNo = ""
	req.ClaimedAt = nil
	return nil
}

// releaseClaim 本次付款没有发生，释放自己的占用
func (s *RequestService) releaseClaim(ctx context.Context, requestID int64, claimNo string) {
	if err := s.requestRepo.ReleaseClaim(ctx, requestID, claimNo); err != nil {
		s.log.Warn("释放收款请求占用失败",
			zap.Int64("request_id", requestID),
			zap.String("transaction_no", claimNo),
			zap.Error(err))
	}
}

func (s *RequestService) notifyApproved(ctx context.Context, req *model.MoneyRequest) {
	s.notifier.Emit(ctx, req.RequesterID,
		fmt.Sprintf("Your money request for %s was approved.", req.Amount.StringFixed(2)),
		model.NotificationTypeRequestApproved)
}

// lock 同一请求的同意/拒绝/取消串行执行
func (s *RequestService) lock(ctx context.Context, requestID int64) (func(), error) {
	l := lock.NewRequestLock(s.redisClient, requestID, s.lockTTL)
	if err := l.Lock(ctx, lockRetryInterval, lockMaxRetries); err != nil {
		if errors.Is(err, lock.ErrLockFailed) {
			return nil, ErrRequestBusy
		}
		return nil, fmt.Errorf("获取收款请求锁失败: %w", err)
	}

	return func() {
		if err := l.Unlock(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("释放收款请求锁失败", zap.String("key", l.Key()), zap.Error(err))
		}
	}, nil
}
