package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"solroll-backend/internal/services"
)

func AuthMiddleware(jwtService *services.JWTService, redisService *services.RedisService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		var tokenString string

		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
				c.Abort()
				return
			}
			tokenString = parts[1]
		} else {
			// browsers cannot set headers on a websocket upgrade
			tokenString = c.Query("token")
			if tokenString == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
				c.Abort()
				return
			}
		}

		claims, err := jwtService.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		if _, err := redisService.GetUserSession(claims.Participant, claims.SessionID); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired or invalid"})
			c.Abort()
			return
		}

		c.Set("participant", claims.Participant)
		c.Set("session_id", claims.SessionID)

		c.Next()
	}
}

// APIKeyMiddleware guards token issuance. An empty key leaves it open.
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey != "" && c.GetHeader("X-Api-Key") != apiKey {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func RateLimitMiddleware(redisService *services.RedisService, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		participant := c.GetString("participant")
		if participant == "" {
			c.Next()
			return
		}

		path := c.Request.URL.Path

		var action string
		var limit int
		window := time.Minute

		switch {
		case strings.HasSuffix(path, "/bets/commit"):
			action, limit = "commit", services.DefaultRateLimitBets
		case strings.HasSuffix(path, "/resolve"):
			action, limit = "resolve", services.DefaultRateLimitResolves
		case strings.Contains(path, "/pool/"):
			action, limit = "pool", services.DefaultRateLimitPool
		default:
			c.Next()
			return
		}

		allowed, err := redisService.CheckRateLimit(participant, action, limit, window)
		if err != nil {
			log.WithError(err).WithField("participant", participant).Error("Rate limit check failed")
		}
		if err != nil || !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": window.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
