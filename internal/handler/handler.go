package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"paytransfer/internal/model"
	"paytransfer/internal/repository"
	"paytransfer/internal/service"
	"paytransfer/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	transferService *service.TransferService
	ledgerService   *service.LedgerService
	requestService  *service.RequestService
}

// NewHandler 创建处理器实例
func NewHandler(transferService *service.TransferService, ledgerService *service.LedgerService, requestService *service.RequestService) *Handler {
	return &Handler{
		transferService: transferService,
		ledgerService:   ledgerService,
		requestService:  requestService,
	}
}

// ============================================================
// 转账相关接口
// ============================================================

// TransactionView 转账记录对外格式，status 为 COMPLETED 或 "FAILED: <原因>"
type TransactionView struct {
	ID            int64           `json:"id"`
	TransactionNo string          `json:"transaction_no"`
	SenderID      int64           `json:"sender_id"`
	RecipientID   *int64          `json:"recipient_id"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	Timestamp     time.Time       `json:"timestamp"`
	Status        string          `json:"status"`
}

func toTransactionView(t *model.Transaction) *TransactionView {
	return &TransactionView{
		ID:            t.ID,
		TransactionNo: t.TransactionNo,
		SenderID:      t.SenderID,
		RecipientID:   t.RecipientID,
		Amount:        t.Amount,
		Description:   t.Description,
		Timestamp:     t.Timestamp,
		Status:        t.StatusText(),
	}
}

// TransferRequest 转账请求
type TransferRequest struct {
	SenderID            int64           `json:"sender_id" binding:"required"`
	RecipientEmail      string          `json:"recipient_email" binding:"required"`
	Amount              decimal.Decimal `json:"amount"`
	Description         string          `json:"description"`
	TransactionPassword string          `json:"transaction_password"`
}

// ExecuteTransfer 执行转账
// POST /api/v1/transfer/execute
func (h *Handler) ExecuteTransfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	trans, err := h.transferService.AttemptTransfer(c.Request.Context(), &service.TransferRequest{
		SenderID:       req.SenderID,
		RecipientEmail: req.RecipientEmail,
		Amount:         req.Amount,
		Description:    req.Description,
		AuthSecret:     req.TransactionPassword,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidTransfer) {
			response.ParamError(c, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	if !trans.Completed() {
		response.ErrorWithData(c, response.CodeTransferFailed, trans.Reason(), toTransactionView(trans))
		return
	}
	response.Success(c, toTransactionView(trans))
}

// GetTransaction 查询转账记录，按 id 或 transaction_no
// GET /api/v1/transaction/detail?id=xxx
func (h *Handler) GetTransaction(c *gin.Context) {
	var (
		trans *model.Transaction
		err   error
	)
	if transactionNo := c.Query("transaction_no"); transactionNo != "" {
		trans, err = h.transferService.GetTransactionByNo(c.Request.Context(), transactionNo)
	} else {
		id, ok := queryInt64(c, "id")
		if !ok {
			return
		}
		trans, err = h.transferService.GetTransaction(c.Request.Context(), id)
	}
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			response.BusinessError(c, response.CodeTransactionNotFound, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, toTransactionView(trans))
}

// ListTransactions 查询用户转账记录
// GET /api/v1/transaction/list?user_id=xxx&page=1&page_size=10
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	page, pageSize = service.NormalizePage(page, pageSize)

	transactions, total, err := h.transferService.ListTransactions(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	views := make([]*TransactionView, 0, len(transactions))
	for _, t := range transactions {
		views = append(views, toTransactionView(t))
	}

	response.Success(c, gin.H{
		"list":      views,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// DeleteUserTransactions 删除用户的全部转账记录
// DELETE /api/v1/transaction/user?user_id=xxx
func (h *Handler) DeleteUserTransactions(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}

	deleted, err := h.transferService.DeleteTransactionsByAccount(c.Request.Context(), userID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"deleted": deleted})
}

// ============================================================
// 钱包相关接口
// ============================================================

func balanceData(b *model.AccountBalance) gin.H {
	return gin.H{
		"user_id":  b.AccountID,
		"balance":  b.Amount,
		"currency": b.CurrencyCode,
	}
}

// GetBalance 查询余额，账户不存在时自动创建
// GET /api/v1/wallet/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}

	balance, err := h.ledgerService.GetOrCreate(c.Request.Context(), userID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, balanceData(balance))
}

// WalletRequest 钱包操作请求
type WalletRequest struct {
	UserID    int64           `json:"user_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

// CreateWallet 创建余额账户，已存在时直接返回
// POST /api/v1/wallet/create
func (h *Handler) CreateWallet(c *gin.Context) {
	var req WalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	balance, err := h.ledgerService.GetOrCreate(c.Request.Context(), req.UserID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, balanceData(balance))
}

// Debit 扣减余额
// POST /api/v1/wallet/debit
func (h *Handler) Debit(c *gin.Context) {
	h.changeBalance(c, h.ledgerService.Debit)
}

// Credit 增加余额
// POST /api/v1/wallet/credit
func (h *Handler) Credit(c *gin.Context) {
	h.changeBalance(c, h.ledgerService.Credit)
}

func (h *Handler) changeBalance(c *gin.Context, apply func(ctx context.Context, accountID int64, amount decimal.Decimal, reference string) error) {
	var req WalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := apply(ctx, req.UserID, req.Amount, req.Reference); err != nil {
		writeLedgerError(c, err)
		return
	}

	balance, err := h.ledgerService.GetBalance(ctx, req.UserID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, balanceData(balance))
}

// AddMoney 充值
// POST /api/v1/wallet/add
func (h *Handler) AddMoney(c *gin.Context) {
	var req WalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	balance, err := h.ledgerService.Add(c.Request.Context(), req.UserID, req.Amount)
	if err != nil {
		writeLedgerError(c, err)
		return
	}

	response.Success(c, balanceData(balance))
}

// DeleteWallet 删除余额账户
// DELETE /api/v1/wallet/user?user_id=xxx
func (h *Handler) DeleteWallet(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}

	if err := h.ledgerService.DeleteAccount(c.Request.Context(), userID); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, nil)
}

func writeLedgerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrInsufficientFunds):
		response.BusinessError(c, response.CodeBalanceNotEnough, err.Error())
	case errors.Is(err, repository.ErrAccountNotFound):
		response.BusinessError(c, response.CodeAccountNotFound, err.Error())
	case errors.Is(err, repository.ErrInvalidAmount):
		response.BusinessError(c, response.CodeInvalidAmount, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 收款请求相关接口
// ============================================================

// CreateMoneyRequest 发起收款请求
type CreateMoneyRequest struct {
	RequesterID int64           `json:"requester_id" binding:"required"`
	RecipientID int64           `json:"recipient_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Message     string          `json:"message"`
}

// CreateRequest 发起收款请求
// POST /api/v1/request/create
func (h *Handler) CreateRequest(c *gin.Context) {
	var req CreateMoneyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	moneyReq, err := h.requestService.Create(c.Request.Context(), req.RequesterID, req.RecipientID, req.Amount, req.Message)
	if err != nil {
		writeRequestError(c, err)
		return
	}

	response.Success(c, moneyReq)
}

// ListRequests 查询用户发起或收到的收款请求
// GET /api/v1/request/list?user_id=xxx&status=pending
func (h *Handler) ListRequests(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}

	requests, err := h.requestService.List(c.Request.Context(), userID, c.Query("status"))
	if err != nil {
		writeRequestError(c, err)
		return
	}

	response.Success(c, gin.H{"list": requests})
}

// RequestAction 处理收款请求
type RequestAction struct {
	RequestID           int64  `json:"request_id" binding:"required"`
	TransactionPassword string `json:"transaction_password"`
}

// ApproveRequest 同意收款请求，付款方需提供交易密码
// POST /api/v1/request/approve
func (h *Handler) ApproveRequest(c *gin.Context) {
	var req RequestAction
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	moneyReq, trans, err := h.requestService.Approve(c.Request.Context(), req.RequestID, req.TransactionPassword)
	if err != nil {
		var failed *service.TransferFailedError
		if errors.As(err, &failed) {
			response.ErrorWithData(c, response.CodeTransferFailed, failed.Transaction.Reason(), gin.H{
				"request":     moneyReq,
				"transaction": toTransactionView(failed.Transaction),
			})
			return
		}
		writeRequestError(c, err)
		return
	}

	response.Success(c, gin.H{
		"request":     moneyReq,
		"transaction": toTransactionView(trans),
	})
}

// RejectRequest 拒绝收款请求
// POST /api/v1/request/reject
func (h *Handler) RejectRequest(c *gin.Context) {
	var req RequestAction
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	moneyReq, err := h.requestService.Reject(c.Request.Context(), req.RequestID)
	if err != nil {
		writeRequestError(c, err)
		return
	}

	response.Success(c, moneyReq)
}

// CancelRequest 撤回收款请求
// POST /api/v1/request/cancel
func (h *Handler) CancelRequest(c *gin.Context) {
	var req RequestAction
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.requestService.Cancel(c.Request.Context(), req.RequestID); err != nil {
		writeRequestError(c, err)
		return
	}

	response.Success(c, gin.H{"request_id": req.RequestID})
}

func writeRequestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrRequestNotFound):
		response.BusinessError(c, response.CodeRequestNotFound, err.Error())
	case errors.Is(err, service.ErrRequestNotPending):
		response.BusinessError(c, response.CodeRequestNotPending, err.Error())
	case errors.Is(err, service.ErrRequestBusy):
		response.BusinessError(c, response.CodeRequestBusy, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

func queryInt64(c *gin.Context, key string) (int64, bool) {
	v, err := strconv.ParseInt(c.Query(key), 10, 64)
	if err != nil {
		response.ParamError(c, key+" 参数错误")
		return 0, false
	}
	return v, true
}
