package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"webpush-backend/internal/auth"
	"webpush-backend/internal/mw"
)

// loginMessage is deliberately identical for an unknown username and a
// wrong password so login attempts cannot enumerate accounts.
const loginMessage = "incorrect username or password"

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates an admin and issues a bearer token.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	admin, err := h.store.GetAdminByUsername(c.Request.Context(), req.Username)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": loginMessage})
		return
	}
	if !auth.CheckPassword(req.Password, admin.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": loginMessage})
		return
	}

	token, err := h.tokens.Issue(admin.Username)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":         token,
		"token_type":           "bearer",
		"must_change_password": admin.MustChangePassword,
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

// ChangePassword updates the calling admin's password and clears the
// forced-change flag set by bootstrap provisioning.
func (h *Handler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	admin := mw.AdminFrom(c)
	if !auth.CheckPassword(req.CurrentPassword, admin.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": loginMessage})
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		abortWithError(c, err)
		return
	}
	admin.PasswordHash = hash
	admin.MustChangePassword = false
	if err := h.store.UpdateAdmin(c.Request.Context(), admin); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "password updated"})
}
