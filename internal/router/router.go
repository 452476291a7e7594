package router

import (
	"context"
	"net/http"
	"time"

	"github.com/blues/fundchain/internal/handler"
	"github.com/blues/fundchain/internal/logger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// HealthChecker 健康检查项
type HealthChecker interface {
	GetHealthStatus(ctx context.Context) map[string]interface{}
}

// StatusReporter 后台组件状态
type StatusReporter interface {
	GetStatus() map[string]interface{}
}

// Deps 路由依赖, Monitor 可为 nil
type Deps struct {
	Sessions  *handler.SessionHandler
	Campaigns *handler.CampaignHandler
	Actions   *handler.ActionHandler
	Events    *handler.EventHandler
	Chain     HealthChecker
	Monitor   StatusReporter
}

func Setup(deps Deps) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(requestID())
	r.Use(accessLog(logger.GetDefaultZapLogger()))
	r.Use(recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		body := gin.H{
			"status":  "ok",
			"service": "fundchain",
		}
		if deps.Chain != nil {
			body["chain"] = deps.Chain.GetHealthStatus(ctx)
		}
		if deps.Monitor != nil {
			body["monitor"] = deps.Monitor.GetStatus()
		}
		c.JSON(http.StatusOK, body)
	})

	// API版本组
	v1 := r.Group("/api/v1")
	{
		// 会话
		session := v1.Group("/session")
		{
			session.GET("", deps.Sessions.GetSession)
			session.POST("/connect", deps.Sessions.Connect)
			session.POST("/disconnect", deps.Sessions.Disconnect)
		}

		// 项目查询与动作
		campaigns := v1.Group("/campaigns")
		{
			campaigns.GET("", deps.Campaigns.GetCampaigns)
			campaigns.POST("", deps.Actions.CreateCampaign)
			campaigns.GET("/:id", deps.Campaigns.GetCampaign)
			campaigns.GET("/:id/manage", deps.Campaigns.GetManage)
			campaigns.POST("/:id/donate", deps.Actions.Donate)
			campaigns.POST("/:id/refund", deps.Actions.Refund)
			campaigns.POST("/:id/withdraw", deps.Actions.Withdraw)
			campaigns.POST("/:id/finalize", deps.Actions.Finalize)
			campaigns.POST("/:id/reviews", deps.Actions.AddReview)
			campaigns.POST("/:id/milestones", deps.Actions.AddMilestone)
			campaigns.POST("/:id/rewards", deps.Actions.AddReward)
			campaigns.POST("/:id/milestones/:index/vote", deps.Actions.Vote)
			campaigns.POST("/:id/milestones/:index/withdraw", deps.Actions.WithdrawMilestone)
			campaigns.POST("/:id/rewards/:index/claim", deps.Actions.ClaimReward)
		}

		v1.GET("/accounts/:address/campaigns", deps.Campaigns.GetAccountCampaigns)
		v1.GET("/stats", deps.Campaigns.GetStats)
		v1.GET("/actions/:kind/status", deps.Actions.GetStatus)
		v1.GET("/events", deps.Events.GetEvents)
	}

	return r
}
