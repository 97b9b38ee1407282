package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetupRouter wires middleware and routes.
func SetupRouter(h *Handler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware(logger))
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	{
		payment := api.Group("/payment")
		{
			payment.POST("/deposit", h.CreateDeposit)
			payment.GET("/deposit/:id", h.GetDeposit)
			payment.GET("/vnpay/ipn", h.VNPayIPN)
			payment.POST("/vnpay/ipn", h.VNPayIPN)
		}

		wallet := api.Group("/wallet")
		{
			wallet.POST("", h.GetOrCreateWallet)
			wallet.GET("/balance", h.GetBalance)
			wallet.GET("/transactions", h.ListTransactions)
			wallet.GET("/ledger", h.ListLedger)
			wallet.GET("/payments", h.ListPayments)
			wallet.GET("/:id/reconcile", h.Reconcile)
		}

		withdraw := api.Group("/withdraw")
		{
			withdraw.POST("/create", h.CreateWithdraw)
			withdraw.GET("/pending", h.ListPendingWithdraws)
			withdraw.GET("/list", h.ListUserWithdraws)
			withdraw.GET("/:id", h.GetWithdraw)
			withdraw.POST("/:id/approve", h.ApproveWithdraw)
			withdraw.POST("/:id/reject", h.RejectWithdraw)
		}

		api.POST("/transfer", h.Transfer)
		api.POST("/outbox/retry-failed", h.RetryFailedOutbox)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
