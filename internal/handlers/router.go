package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"solroll-backend/internal/config"
	"solroll-backend/internal/middleware"
	"solroll-backend/internal/services"
)

// NewRouter wires every route onto a fresh engine.
func NewRouter(cfg *config.Config, redisService *services.RedisService, ledgerService *services.LedgerService,
	jwtService *services.JWTService, wsHandler *WebSocketHandler, log logrus.FieldLogger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Api-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	authHandler := NewAuthHandler(redisService, ledgerService, jwtService, log)
	userHandler := NewUserHandler(redisService, ledgerService)
	gameHandler := NewGameHandler(ledgerService, !cfg.IsProduction())
	poolHandler := NewPoolHandler(ledgerService)

	router.POST("/auth/token", middleware.APIKeyMiddleware(cfg.APIKey), authHandler.IssueToken)

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(jwtService, redisService))
	protected.Use(middleware.RateLimitMiddleware(redisService, log))
	{
		protected.GET("/me", userHandler.GetCurrentUser)
		protected.POST("/logout", userHandler.Logout)
		protected.GET("/balance", gameHandler.GetBalance)
		protected.GET("/transactions", gameHandler.GetTransactions)
		protected.POST("/airdrop", gameHandler.Airdrop)

		if wsHandler != nil {
			protected.GET("/ws", wsHandler.HandleWebSocket)
		}

		pool := protected.Group("/pool")
		{
			pool.GET("", poolHandler.GetPool)
			pool.POST("/deposit", poolHandler.Deposit)
			pool.POST("/withdraw", poolHandler.Withdraw)
		}

		bets := protected.Group("/bets")
		{
			bets.POST("/commit", gameHandler.CommitBet)
			bets.POST("/verify", gameHandler.VerifyOutcome)
			bets.GET("/active", gameHandler.GetActiveBets)
			bets.GET("/history", gameHandler.GetBetHistory)
			bets.GET("/:id", gameHandler.GetBet)
			bets.POST("/:id/resolve", gameHandler.ResolveBet)
		}
	}

	return router
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		})
		if len(c.Errors) > 0 {
			entry.WithError(c.Errors.Last()).Error("Request failed")
			return
		}
		entry.Debug("Request handled")
	}
}
