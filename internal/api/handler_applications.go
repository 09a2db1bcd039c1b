package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"webpush-backend/internal/auth"
	"webpush-backend/internal/model"
	"webpush-backend/internal/mw"
)

type applicationResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Secret           string    `json:"secret,omitempty"`
	StoreFingerprint *string   `json:"store_fingerprint,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func toApplicationResponse(app *model.Application, secret string) applicationResponse {
	return applicationResponse{
		ID:               app.ID,
		Name:             app.Name,
		Secret:           secret,
		StoreFingerprint: app.StoreFingerprint,
		CreatedAt:        app.CreatedAt,
	}
}

type createApplicationRequest struct {
	Name             string  `json:"name" binding:"required"`
	StoreFingerprint *string `json:"store_fingerprint"`
}

// CreateApplication registers a new application. The generated secret is
// returned in plaintext exactly once; only its hash is stored. The creating
// admin, unless super, is granted access to the new application.
func (h *Handler) CreateApplication(c *gin.Context) {
	var req createApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	secret, err := auth.GenerateSecret()
	if err != nil {
		abortWithError(c, err)
		return
	}
	secretHash, err := auth.HashSecret(secret)
	if err != nil {
		abortWithError(c, err)
		return
	}

	app := &model.Application{
		Name:             req.Name,
		SecretHash:       secretHash,
		StoreFingerprint: req.StoreFingerprint,
		CreatedAt:        time.Now().UTC(),
	}

	ctx := c.Request.Context()
	if err := h.store.CreateApplication(ctx, app); err != nil {
		abortWithError(c, err)
		return
	}

	admin := mw.AdminFrom(c)
	if !admin.IsSuperAdmin {
		admin.ApplicationIDs = append(admin.ApplicationIDs, app.ID)
		if err := h.store.UpdateAdmin(ctx, admin); err != nil {
			abortWithError(c, err)
			return
		}
	}

	c.JSON(http.StatusCreated, toApplicationResponse(app, secret))
}

// ListApplications returns the applications visible to the calling admin:
// all of them for a super-admin, the allowed set otherwise.
func (h *Handler) ListApplications(c *gin.Context) {
	apps, err := h.store.ListApplications(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	admin := mw.AdminFrom(c)
	visible := make([]applicationResponse, 0, len(apps))
	for i := range apps {
		if admin.CanAccess(apps[i].ID) {
			visible = append(visible, toApplicationResponse(&apps[i], ""))
		}
	}
	c.JSON(http.StatusOK, visible)
}

// GetApplication returns a single application.
func (h *Handler) GetApplication(c *gin.Context) {
	app, ok := h.authorizedApplication(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toApplicationResponse(app, ""))
}

type updateApplicationRequest struct {
	Name             string  `json:"name" binding:"required"`
	StoreFingerprint *string `json:"store_fingerprint"`
}

// UpdateApplication renames an application or changes its fingerprint.
func (h *Handler) UpdateApplication(c *gin.Context) {
	app, ok := h.authorizedApplication(c)
	if !ok {
		return
	}

	var req updateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if req.Name != app.Name {
		if _, err := h.store.GetApplicationByName(ctx, req.Name); err == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "application name already exists"})
			return
		}
	}

	app.Name = req.Name
	app.StoreFingerprint = req.StoreFingerprint
	if err := h.store.UpdateApplication(ctx, app); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toApplicationResponse(app, ""))
}

// DeleteApplication removes an application. Blocked while any subscription
// still references it.
func (h *Handler) DeleteApplication(c *gin.Context) {
	app, ok := h.authorizedApplication(c)
	if !ok {
		return
	}
	if err := h.store.DeleteApplication(c.Request.Context(), app.ID); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ResetApplicationSecret replaces the application's secret. The new secret
// is returned in plaintext once; the old one stops authenticating immediately.
func (h *Handler) ResetApplicationSecret(c *gin.Context) {
	app, ok := h.authorizedApplication(c)
	if !ok {
		return
	}

	secret, err := auth.GenerateSecret()
	if err != nil {
		abortWithError(c, err)
		return
	}
	secretHash, err := auth.HashSecret(secret)
	if err != nil {
		abortWithError(c, err)
		return
	}

	app.SecretHash = secretHash
	if err := h.store.UpdateApplication(c.Request.Context(), app); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toApplicationResponse(app, secret))
}

// authorizedApplication loads the application from the id path parameter and
// enforces tenant-scoped access for the calling admin. On failure the
// response has already been written.
func (h *Handler) authorizedApplication(c *gin.Context) (*model.Application, bool) {
	admin := mw.AdminFrom(c)
	id := c.Param("id")

	if err := auth.AuthorizeApplication(admin, id); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "you don't have permission to access this application"})
		return nil, false
	}

	app, err := h.store.GetApplication(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	return app, true
}
