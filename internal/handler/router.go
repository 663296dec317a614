package handler

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	{
		// 转账
		transfer := api.Group("/transfer")
		{
			transfer.POST("/execute", h.ExecuteTransfer)
		}

		// 转账记录
		transaction := api.Group("/transaction")
		{
			transaction.GET("/detail", h.GetTransaction)
			transaction.GET("/list", h.ListTransactions)
			transaction.DELETE("/user", h.DeleteUserTransactions)
		}

		// 钱包余额
		wallet := api.Group("/wallet")
		{
			wallet.GET("/balance", h.GetBalance)
			wallet.POST("/create", h.CreateWallet)
			wallet.POST("/debit", h.Debit)
			wallet.POST("/credit", h.Credit)
			wallet.POST("/add", h.AddMoney)
			wallet.DELETE("/user", h.DeleteWallet)
		}

		// 收款请求
		request := api.Group("/request")
		{
			request.POST("/create", h.CreateRequest)
			request.GET("/list", h.ListRequests)
			request.POST("/approve", h.ApproveRequest)
			request.POST("/reject", h.RejectRequest)
			request.POST("/cancel", h.CancelRequest)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
