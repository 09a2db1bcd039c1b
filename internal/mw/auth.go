package mw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"webpush-backend/internal/auth"
	"webpush-backend/internal/model"
	"webpush-backend/internal/store"
)

const (
	// AdminContextKey is the gin context key for the authenticated admin.
	AdminContextKey = "admin"
	// ApplicationContextKey is the gin context key for the authenticated application.
	ApplicationContextKey = "application"

	// ApplicationSecretHeader carries the raw application secret on
	// tenant-originated calls.
	ApplicationSecretHeader = "X-Application-Secret"
	// ApplicationIDHeader optionally narrows secret verification to a
	// single application, avoiding the full scan.
	ApplicationIDHeader = "X-Application-Id"
)

// AdminAuth authenticates the bearer token and loads the admin record into
// the request context. Every verification failure is a plain 401.
func AdminAuth(tokens *auth.TokenManager, s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authentication credentials"})
			return
		}

		username, err := tokens.Verify(strings.TrimPrefix(header, prefix))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authentication credentials"})
			return
		}

		admin, err := s.GetAdminByUsername(c.Request.Context(), username)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authentication credentials"})
			return
		}

		c.Set(AdminContextKey, admin)
		c.Next()
	}
}

// SuperAdminOnly requires the authenticated admin to be a super-admin.
// Must run after AdminAuth.
func SuperAdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		admin := AdminFrom(c)
		if admin == nil || !admin.IsSuperAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "super admin access required"})
			return
		}
		c.Next()
	}
}

// ApplicationAuth authenticates tenant-originated calls via the application
// secret header. Without an id hint this is a linear scan over all stored
// applications, verifying the secret against each hash.
func ApplicationAuth(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := c.GetHeader(ApplicationSecretHeader)
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ApplicationSecretHeader + " header is required"})
			return
		}

		ctx := c.Request.Context()

		if id := c.GetHeader(ApplicationIDHeader); id != "" {
			app, err := s.GetApplication(ctx, id)
			if err == nil && auth.VerifySecret(secret, app.SecretHash) {
				c.Set(ApplicationContextKey, app)
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid application secret"})
			return
		}

		apps, err := s.ListApplications(ctx)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to authenticate application"})
			return
		}
		for i := range apps {
			if auth.VerifySecret(secret, apps[i].SecretHash) {
				c.Set(ApplicationContextKey, &apps[i])
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid application secret"})
	}
}

// AdminFrom returns the authenticated admin set by AdminAuth, or nil.
func AdminFrom(c *gin.Context) *model.Admin {
	v, ok := c.Get(AdminContextKey)
	if !ok {
		return nil
	}
	admin, _ := v.(*model.Admin)
	return admin
}

// ApplicationFrom returns the authenticated application set by
// ApplicationAuth, or nil.
func ApplicationFrom(c *gin.Context) *model.Application {
	v, ok := c.Get(ApplicationContextKey)
	if !ok {
		return nil
	}
	app, _ := v.(*model.Application)
	return app
}
