package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"webpush-backend/internal/auth"
	"webpush-backend/internal/mw"
	"webpush-backend/internal/notification"
	"webpush-backend/internal/store"
)

type pushRequest struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Icon  string         `json:"icon"`
	Badge string         `json:"badge"`
	Data  map[string]any `json:"data"`
}

func (r *pushRequest) payload() notification.Payload {
	title := r.Title
	if title == "" {
		title = "Test Notification"
	}
	body := r.Body
	if body == "" {
		body = "This is a test push notification"
	}
	return notification.Payload{
		Title: title,
		Body:  body,
		Icon:  r.Icon,
		Badge: r.Badge,
		Data:  r.Data,
	}
}

// dispatchTo resolves the candidate set for the filter and fans the payload
// out to it. An empty candidate set is a 404; individual delivery failures
// are only ever counted.
func (h *Handler) dispatchTo(c *gin.Context, filter store.SubscriptionFilter, emptyMessage, okMessage string) {
	var req pushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	subs, err := h.store.ListSubscriptions(ctx, filter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if len(subs) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": emptyMessage})
		return
	}

	result := h.dispatcher.Dispatch(ctx, subs, req.payload(), okMessage)
	c.JSON(http.StatusOK, result)
}

// --- Application-secret authenticated endpoints ---

// PushSingle sends to every subscription of the given user within the
// authenticated application.
func (h *Handler) PushSingle(c *gin.Context) {
	app := mw.ApplicationFrom(c)
	h.dispatchTo(c, store.SubscriptionFilter{
		UserID:        c.Param("user_id"),
		ApplicationID: app.ID,
	}, "subscription not found", "push notification sent")
}

// PushBroadcast sends to every subscription of the authenticated application.
func (h *Handler) PushBroadcast(c *gin.Context) {
	app := mw.ApplicationFrom(c)
	h.dispatchTo(c, store.SubscriptionFilter{
		ApplicationID: app.ID,
	}, "no subscriptions found", "broadcast push notifications sent")
}

type pushUsersRequest struct {
	UserIDs []string       `json:"user_ids"`
	Title   string         `json:"title"`
	Body    string         `json:"body"`
	Icon    string         `json:"icon"`
	Badge   string         `json:"badge"`
	Data    map[string]any `json:"data"`
}

// PushUsers sends to the subscriptions of an explicit user-id list within
// the authenticated application.
func (h *Handler) PushUsers(c *gin.Context) {
	app := mw.ApplicationFrom(c)
	h.pushUsers(c, app.ID)
}

func (h *Handler) pushUsers(c *gin.Context, applicationID string) {
	var req pushUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.UserIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_ids must not be empty"})
		return
	}

	ctx := c.Request.Context()
	subs, err := h.store.ListSubscriptions(ctx, store.SubscriptionFilter{
		UserIDs:       req.UserIDs,
		ApplicationID: applicationID,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	if len(subs) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no subscriptions found for the given users"})
		return
	}

	payload := (&pushRequest{Title: req.Title, Body: req.Body, Icon: req.Icon, Badge: req.Badge, Data: req.Data}).payload()
	result := h.dispatcher.Dispatch(ctx, subs, payload, "push notifications sent")
	c.JSON(http.StatusOK, result)
}

// --- Admin-token authenticated equivalents ---

// AdminPushSingle sends to every subscription of the given user, across all
// applications or narrowed by the application_id query parameter.
func (h *Handler) AdminPushSingle(c *gin.Context) {
	filter := store.SubscriptionFilter{UserID: c.Param("user_id")}
	if appID := c.Query("application_id"); appID != "" {
		if err := auth.AuthorizeApplication(mw.AdminFrom(c), appID); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "you don't have permission to access this application"})
			return
		}
		filter.ApplicationID = appID
	}
	h.dispatchTo(c, filter, "subscription not found", "push notification sent")
}

// AdminPushBroadcast sends to every stored subscription.
func (h *Handler) AdminPushBroadcast(c *gin.Context) {
	h.dispatchTo(c, store.SubscriptionFilter{}, "no subscriptions found", "broadcast push notifications sent")
}

// AdminPushUsers sends to an explicit user-id list across all applications.
func (h *Handler) AdminPushUsers(c *gin.Context) {
	h.pushUsers(c, "")
}

// AdminPushApplication broadcasts within one application, subject to
// tenant-scoped authorization.
func (h *Handler) AdminPushApplication(c *gin.Context) {
	id := c.Param("id")
	if err := auth.AuthorizeApplication(mw.AdminFrom(c), id); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "you don't have permission to access this application"})
		return
	}
	if _, err := h.store.GetApplication(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	h.dispatchTo(c, store.SubscriptionFilter{
		ApplicationID: id,
	}, "no subscriptions found", "broadcast push notifications sent")
}
