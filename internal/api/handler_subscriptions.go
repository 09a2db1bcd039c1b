package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"webpush-backend/internal/model"
	"webpush-backend/internal/store"
)

type subscriptionKeys struct {
	P256DH string `json:"p256dh" binding:"required"`
	Auth   string `json:"auth" binding:"required"`
}

type subscribeRequest struct {
	Endpoint string           `json:"endpoint" binding:"required"`
	Keys     subscriptionKeys `json:"keys" binding:"required"`
	UserID   *string          `json:"user_id"`
	AppName  *string          `json:"app_name"`
}

// Subscribe stores a push subscription. Public and idempotent by endpoint:
// re-subscribing the same endpoint updates keys and user id in place.
func (h *Handler) Subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	sub := model.PushSubscription{
		Endpoint:  req.Endpoint,
		P256DH:    req.Keys.P256DH,
		Auth:      req.Keys.Auth,
		UserID:    req.UserID,
		CreatedAt: time.Now().UTC(),
	}

	if req.AppName != nil && *req.AppName != "" {
		app, err := h.store.GetApplicationByName(ctx, *req.AppName)
		if err != nil {
			abortWithError(c, err)
			return
		}
		sub.ApplicationID = &app.ID
	}

	if err := h.store.UpsertSubscription(ctx, &sub); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"message":         "subscription stored",
		"subscription_id": sub.ID,
	})
}

type subscriptionResponse struct {
	ID            string    `json:"id"`
	Endpoint      string    `json:"endpoint"`
	UserID        *string   `json:"user_id"`
	ApplicationID *string   `json:"application_id"`
	CreatedAt     time.Time `json:"created_at"`
}

func toSubscriptionResponse(s *model.PushSubscription) subscriptionResponse {
	return subscriptionResponse{
		ID:            s.ID,
		Endpoint:      s.Endpoint,
		UserID:        s.UserID,
		ApplicationID: s.ApplicationID,
		CreatedAt:     s.CreatedAt,
	}
}

// ListSubscriptions returns stored subscriptions, optionally filtered by
// user_id and application_id query parameters.
func (h *Handler) ListSubscriptions(c *gin.Context) {
	filter := store.SubscriptionFilter{
		UserID:        c.Query("user_id"),
		ApplicationID: c.Query("application_id"),
	}
	subs, err := h.store.ListSubscriptions(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}

	out := make([]subscriptionResponse, 0, len(subs))
	for i := range subs {
		out = append(out, toSubscriptionResponse(&subs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"users": out, "total": len(out)})
}

type createSubscriptionRequest struct {
	Endpoint      string           `json:"endpoint" binding:"required"`
	Keys          subscriptionKeys `json:"keys" binding:"required"`
	UserID        *string          `json:"user_id"`
	ApplicationID *string          `json:"application_id"`
}

// CreateSubscription stores a subscription on behalf of an admin. An
// application id, if given, must reference an existing application.
func (h *Handler) CreateSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if req.ApplicationID != nil {
		if _, err := h.store.GetApplication(ctx, *req.ApplicationID); err != nil {
			abortWithError(c, err)
			return
		}
	}

	sub := model.PushSubscription{
		Endpoint:      req.Endpoint,
		P256DH:        req.Keys.P256DH,
		Auth:          req.Keys.Auth,
		UserID:        req.UserID,
		ApplicationID: req.ApplicationID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := h.store.UpsertSubscription(ctx, &sub); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSubscriptionResponse(&sub))
}

// DeleteSubscription removes a subscription by id.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	if err := h.store.DeleteSubscription(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type assignSubscriptionRequest struct {
	ApplicationID *string `json:"application_id"`
}

// AssignSubscription moves a subscription into an application, or detaches
// it when application_id is null.
func (h *Handler) AssignSubscription(c *gin.Context) {
	var req assignSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.AssignSubscription(c.Request.Context(), c.Param("id"), req.ApplicationID); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "subscription assignment updated"})
}
