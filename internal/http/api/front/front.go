// Package front registers the user-facing HTTP API.
package front

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quillforge/quillforge-server/internal/config"
	"github.com/quillforge/quillforge-server/internal/http/api/front/handlers"
	"github.com/quillforge/quillforge-server/internal/models"
	"github.com/quillforge/quillforge-server/internal/security"
	"github.com/quillforge/quillforge-server/internal/vault"
	"gorm.io/gorm"
)

// RegisterFrontRoutes registers health, auth, and vault routes with middleware.
func RegisterFrontRoutes(r *gin.Engine, conn *gorm.DB, jwtCfg config.JWTConfig, svc *vault.Service) {
	if r == nil || conn == nil || svc == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(conn)
	r.GET("/healthz", healthHandler.Healthz)

	api := r.Group("/api")

	authHandler := handlers.NewAuthHandler(conn, jwtCfg)
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(userAuthMiddleware(conn, jwtCfg))
	authed.GET("/session", authHandler.Session)

	providerHandler := handlers.NewAIProviderHandler(svc)
	providerGroup := authed.Group("/ai-providers")
	providerGroup.GET("", providerHandler.List)
	providerGroup.POST("", providerHandler.Create)
	providerGroup.GET("/:id", providerHandler.Get)
	providerGroup.PUT("/:id", providerHandler.Update)
	providerGroup.DELETE("/:id", providerHandler.Delete)
	providerGroup.POST("/openrouter/exchange", providerHandler.ExchangeOpenRouter)
}

// userAuthMiddleware validates session JWTs and loads the user context.
func userAuthMiddleware(conn *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		claims, errJWT := security.ParseUserToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		var user models.User
		if errFind := conn.WithContext(c.Request.Context()).First(&user, "id = ?", claims.UserID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		if !user.Active {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set("userID", user.ID)
		c.Set("userEmail", user.Email)
		c.Set("userName", user.Name)
		c.Next()
	}
}
