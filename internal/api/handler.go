package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"webpush-backend/internal/auth"
	"webpush-backend/internal/notification"
	"webpush-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store          store.Store
	dispatcher     *notification.Dispatcher
	tokens         *auth.TokenManager
	vapidPublicKey string
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, d *notification.Dispatcher, tokens *auth.TokenManager, vapidPublicKey string) *Handler {
	return &Handler{
		store:          s,
		dispatcher:     d,
		tokens:         tokens,
		vapidPublicKey: vapidPublicKey,
	}
}

// statusFromErr maps domain errors onto HTTP status codes.
func statusFromErr(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFromErr(err), gin.H{"error": err.Error()})
}
