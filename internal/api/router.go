package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"webpush-backend/config"
	"webpush-backend/internal/auth"
	"webpush-backend/internal/mw"
	"webpush-backend/internal/notification"
	"webpush-backend/internal/store"
)

// NewRouter creates and configures the push service's Gin router.
func NewRouter(cfg *config.Config, s store.Store, d *notification.Dispatcher, tokens *auth.TokenManager, vapidPublicKey string) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, d, tokens, vapidPublicKey)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)

	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/health", handler.Health)
		api.GET("/vapid-public-key", caching, handler.GetVAPIDPublicKey)
		api.POST("/subscribe", handler.Subscribe)

		// Tenant-originated calls, authenticated by application secret.
		push := api.Group("/push", mw.ApplicationAuth(s))
		{
			push.POST("/single/:user_id", handler.PushSingle)
			push.POST("/broadcast", handler.PushBroadcast)
			push.POST("/users", handler.PushUsers)
		}

		admin := api.Group("/admin")
		{
			admin.POST("/login", handler.Login)

			authed := admin.Group("", mw.AdminAuth(tokens, s))
			{
				authed.PUT("/password", handler.ChangePassword)

				authed.GET("/applications", handler.ListApplications)
				authed.POST("/applications", handler.CreateApplication)
				authed.GET("/applications/:id", handler.GetApplication)
				authed.PUT("/applications/:id", handler.UpdateApplication)
				authed.DELETE("/applications/:id", handler.DeleteApplication)
				authed.POST("/applications/:id/reset-secret", handler.ResetApplicationSecret)

				authed.GET("/users", handler.ListSubscriptions)
				authed.POST("/users", handler.CreateSubscription)
				authed.DELETE("/users/:id", handler.DeleteSubscription)
				authed.PUT("/users/:id/assign", handler.AssignSubscription)

				authed.POST("/push/single/:user_id", handler.AdminPushSingle)
				authed.POST("/push/broadcast", handler.AdminPushBroadcast)
				authed.POST("/push/users", handler.AdminPushUsers)
				authed.POST("/push/application/:id", handler.AdminPushApplication)

				super := authed.Group("/admins", mw.SuperAdminOnly())
				{
					super.GET("", handler.ListAdmins)
					super.POST("", handler.CreateAdmin)
					super.DELETE("/:id", handler.DeleteAdmin)
					super.PUT("/:id/permissions", handler.UpdateAdminPermissions)
				}
			}
		}
	}

	return r
}
