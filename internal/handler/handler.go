package handler

import (
	"context"
	"errors"
	"strconv"

	"walletservice/internal/service"
	"walletservice/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OutboxAdmin is the operator surface of the outbox sender.
type OutboxAdmin interface {
	RetryFailed(ctx context.Context, limit int) (int64, error)
}

// Handler binds HTTP requests to the wallet services.
type Handler struct {
	deposits  *service.DepositService
	withdraws *service.WithdrawService
	transfers *service.TransferService
	wallets   *service.WalletService
	outbox    OutboxAdmin
	logger    *zap.Logger
}

type Services struct {
	Deposits  *service.DepositService
	Withdraws *service.WithdrawService
	Transfers *service.TransferService
	Wallets   *service.WalletService
	Outbox    OutboxAdmin
}

func NewHandler(s Services, logger *zap.Logger) *Handler {
	return &Handler{
		deposits:  s.Deposits,
		withdraws: s.Withdraws,
		transfers: s.Transfers,
		wallets:   s.Wallets,
		outbox:    s.Outbox,
		logger:    logger.With(zap.String("component", "handler")),
	}
}

// ============================================================
// Payment
// ============================================================

type CreateDepositRequest struct {
	UserID string          `json:"userId" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
}

// CreateDeposit opens a PENDING deposit and returns its gateway reference.
// POST /api/v1/payment/deposit
func (h *Handler) CreateDeposit(c *gin.Context) {
	var req CreateDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	dep, err := h.deposits.CreateDeposit(c.Request.Context(), req.UserID, req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, dep)
}

// GetDeposit GET /api/v1/payment/deposit/:id
func (h *Handler) GetDeposit(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	log, err := h.deposits.GetDeposit(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, log)
}

// VNPayIPN answers the gateway's server-to-server callback. The gateway reads
// only the Ack body, so every outcome is HTTP 200.
// GET|POST /api/v1/payment/vnpay/ipn
func (h *Handler) VNPayIPN(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		h.logger.Warn("parse ipn params", zap.Error(err))
	}

	params := make(map[string]string, len(c.Request.Form))
	for key, values := range c.Request.Form {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	ack := h.deposits.HandleCallback(c.Request.Context(), params)
	c.JSON(200, ack)
}

// ============================================================
// Wallet
// ============================================================

// GetOrCreateWallet POST /api/v1/wallet
func (h *Handler) GetOrCreateWallet(c *gin.Context) {
	var req struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	wallet, err := h.wallets.GetOrCreateWallet(c.Request.Context(), req.UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, wallet)
}

// GetBalance GET /api/v1/wallet/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	balance, err := h.wallets.GetBalance(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"userId":  userID,
		"balance": balance,
	})
}

// ListTransactions GET /api/v1/wallet/transactions?user_id=xxx&page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}
	page, pageSize := pageParams(c)

	result, err := h.wallets.ListTransactions(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// ListLedger GET /api/v1/wallet/ledger?user_id=xxx&page=1&page_size=20
func (h *Handler) ListLedger(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}
	page, pageSize := pageParams(c)

	result, err := h.wallets.ListLedger(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// ListPayments GET /api/v1/wallet/payments?user_id=xxx
func (h *Handler) ListPayments(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	payments, err := h.wallets.ListPayments(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, payments)
}

// Reconcile GET /api/v1/wallet/:id/reconcile
func (h *Handler) Reconcile(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	report, err := h.wallets.Reconcile(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, report)
}

// ============================================================
// Withdraw
// ============================================================

// CreateWithdraw POST /api/v1/withdraw/create
func (h *Handler) CreateWithdraw(c *gin.Context) {
	var req service.CreateWithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.withdraws.CreateRequest(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// ApproveWithdraw POST /api/v1/withdraw/:id/approve
func (h *Handler) ApproveWithdraw(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	result, err := h.withdraws.ApproveRequest(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// RejectWithdraw POST /api/v1/withdraw/:id/reject
func (h *Handler) RejectWithdraw(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	result, err := h.withdraws.RejectRequest(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// ListPendingWithdraws GET /api/v1/withdraw/pending
func (h *Handler) ListPendingWithdraws(c *gin.Context) {
	list, err := h.withdraws.ListPending(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, list)
}

// ListUserWithdraws GET /api/v1/withdraw/list?user_id=xxx
func (h *Handler) ListUserWithdraws(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	list, err := h.withdraws.ListByUser(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, list)
}

// GetWithdraw GET /api/v1/withdraw/:id
func (h *Handler) GetWithdraw(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	result, err := h.withdraws.GetRequest(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// Transfer
// ============================================================

// Transfer moves funds between two users, idempotent on referenceId.
// POST /api/v1/transfer
func (h *Handler) Transfer(c *gin.Context) {
	var req service.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.transfers.Transfer(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// Outbox
// ============================================================

// RetryFailedOutbox POST /api/v1/outbox/retry-failed?limit=100
func (h *Handler) RetryFailedOutbox(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		response.ParamError(c, "invalid limit")
		return
	}

	n, err := h.outbox.RetryFailed(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"requeued": n})
}

// writeError maps service errors to business codes. Anything unknown is an
// internal error and its detail stays in the log.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrWalletNotFound):
		response.BusinessError(c, response.CodeWalletNotFound, err.Error())
	case errors.Is(err, service.ErrInsufficientBalance):
		response.BusinessError(c, response.CodeBalanceNotEnough, err.Error())
	case errors.Is(err, service.ErrInvalidAmount):
		response.BusinessError(c, response.CodeInvalidAmount, err.Error())
	case errors.Is(err, service.ErrRequestNotFound):
		response.BusinessError(c, response.CodeRequestNotFound, err.Error())
	case errors.Is(err, service.ErrRequestAlreadyProcessed):
		response.BusinessError(c, response.CodeRequestProcessed, err.Error())
	case errors.Is(err, service.ErrWithdrawNotEligible):
		response.BusinessError(c, response.CodeWithdrawNotEligible, err.Error())
	case errors.Is(err, service.ErrEligibilityUnavailable):
		response.BusinessError(c, response.CodeEligibilityDown, "withdraw eligibility could not be verified, try again later")
	case errors.Is(err, service.ErrDepositNotFound):
		response.BusinessError(c, response.CodeDepositNotFound, err.Error())
	case errors.Is(err, service.ErrSameWallet):
		response.BusinessError(c, response.CodeSameWallet, err.Error())
	default:
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		response.ServerError(c, "internal error")
	}
}

func queryUserID(c *gin.Context) (string, bool) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ParamError(c, "user_id is required")
		return "", false
	}
	return userID, true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "invalid id")
		return 0, false
	}
	return id, true
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}

