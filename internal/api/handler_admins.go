package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"webpush-backend/internal/auth"
	"webpush-backend/internal/model"
	"webpush-backend/internal/mw"
)

type adminResponse struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	IsSuperAdmin   bool      `json:"is_super_admin"`
	ApplicationIDs []string  `json:"application_ids"`
	CreatedAt      time.Time `json:"created_at"`
}

func toAdminResponse(a *model.Admin) adminResponse {
	ids := a.ApplicationIDs
	if ids == nil {
		ids = []string{}
	}
	return adminResponse{
		ID:             a.ID,
		Username:       a.Username,
		IsSuperAdmin:   a.IsSuperAdmin,
		ApplicationIDs: ids,
		CreatedAt:      a.CreatedAt,
	}
}

// ListAdmins returns all admin accounts. Super-admin only.
func (h *Handler) ListAdmins(c *gin.Context) {
	admins, err := h.store.ListAdmins(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	out := make([]adminResponse, 0, len(admins))
	for i := range admins {
		out = append(out, toAdminResponse(&admins[i]))
	}
	c.JSON(http.StatusOK, out)
}

type createAdminRequest struct {
	Username       string   `json:"username" binding:"required"`
	Password       string   `json:"password" binding:"required,min=8"`
	IsSuperAdmin   bool     `json:"is_super_admin"`
	ApplicationIDs []string `json:"application_ids"`
}

// CreateAdmin provisions a new admin account. Super-admin only. Granted
// application ids must reference existing applications.
func (h *Handler) CreateAdmin(c *gin.Context) {
	var req createAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	for _, id := range req.ApplicationIDs {
		if _, err := h.store.GetApplication(ctx, id); err != nil {
			abortWithError(c, err)
			return
		}
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}

	admin := &model.Admin{
		Username:       req.Username,
		PasswordHash:   hash,
		IsSuperAdmin:   req.IsSuperAdmin,
		ApplicationIDs: req.ApplicationIDs,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.store.CreateAdmin(ctx, admin); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAdminResponse(admin))
}

// DeleteAdmin removes an admin account. Self-deletion is forbidden.
func (h *Handler) DeleteAdmin(c *gin.Context) {
	caller := mw.AdminFrom(c)
	id := c.Param("id")
	if id == caller.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete your own account"})
		return
	}
	if err := h.store.DeleteAdmin(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type updatePermissionsRequest struct {
	IsSuperAdmin   *bool    `json:"is_super_admin"`
	ApplicationIDs []string `json:"application_ids"`
}

// UpdateAdminPermissions edits an admin's super flag and allowed
// application set. Super-admin only.
func (h *Handler) UpdateAdminPermissions(c *gin.Context) {
	var req updatePermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	admin, err := h.store.GetAdminByID(ctx, c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	if req.ApplicationIDs != nil {
		for _, id := range req.ApplicationIDs {
			if _, err := h.store.GetApplication(ctx, id); err != nil {
				abortWithError(c, err)
				return
			}
		}
		admin.ApplicationIDs = req.ApplicationIDs
	}
	if req.IsSuperAdmin != nil {
		admin.IsSuperAdmin = *req.IsSuperAdmin
	}

	if err := h.store.UpdateAdmin(ctx, admin); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAdminResponse(admin))
}
