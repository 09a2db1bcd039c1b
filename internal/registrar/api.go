package registrar

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"webpush-backend/internal/auth"
	"webpush-backend/internal/notification"
)

const userContextKey = "user"

// Handler holds shared dependencies for registration service handlers.
type Handler struct {
	db     *gorm.DB
	client *Client
	tokens *auth.TokenManager
}

// NewHandler creates a registration service handler.
func NewHandler(db *gorm.DB, client *Client, tokens *auth.TokenManager) *Handler {
	return &Handler{db: db, client: client, tokens: tokens}
}

// Migrate runs the registration service's schema migrations.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &UserFingerprint{}, &UserPushSubscription{})
}

// NewRouter creates and configures the registration service's Gin router.
func NewRouter(db *gorm.DB, client *Client, tokens *auth.TokenManager) *gin.Engine {
	r := gin.Default()
	handler := NewHandler(db, client, tokens)

	api := r.Group("/api")
	{
		api.GET("/health", handler.Health)
		api.POST("/register", handler.Register)
		api.POST("/login", handler.Login)

		authed := api.Group("", handler.userAuth())
		{
			authed.GET("/user/me", handler.Me)
			authed.POST("/user/fingerprint", handler.UpdateFingerprint)
			authed.POST("/push/subscribe", handler.PushSubscribe)
			authed.POST("/push/send", handler.PushSend)
			authed.POST("/push/broadcast", handler.PushBroadcast)
		}
	}

	return r
}

func (h *Handler) userAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authentication credentials"})
			return
		}
		userID, err := h.tokens.Verify(strings.TrimPrefix(header, prefix))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authentication credentials"})
			return
		}

		var user User
		if err := h.db.WithContext(c.Request.Context()).First(&user, "id = ?", userID).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authentication credentials"})
			return
		}

		c.Set(userContextKey, &user)
		c.Next()
	}
}

func userFrom(c *gin.Context) *User {
	v, ok := c.Get(userContextKey)
	if !ok {
		return nil
	}
	user, _ := v.(*User)
	return user
}

// proxyError forwards the push service's status for upstream failures and
// falls back to 502 otherwise.
func proxyError(c *gin.Context, err error) {
	var ue *upstreamError
	if errors.As(err, &ue) {
		c.JSON(ue.status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type registerRequest struct {
	Username    string         `json:"username" binding:"required"`
	Email       string         `json:"email" binding:"required,email"`
	Password    string         `json:"password" binding:"required,min=8"`
	Fingerprint string         `json:"fingerprint" binding:"required"`
	DeviceInfo  map[string]any `json:"device_info"`
}

// Register creates a user account together with its device fingerprint.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !ValidateFingerprint(req.Fingerprint) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fingerprint format"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	user := User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    now,
	}
	info := NormalizeDeviceInfo(req.DeviceInfo)

	err = h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var existing User
		result := tx.Limit(1).Find(&existing, "username = ? OR email = ?", req.Username, req.Email)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 0 {
			if existing.Username == req.Username {
				return errors.New("username already exists")
			}
			return errors.New("email already exists")
		}

		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return tx.Create(&UserFingerprint{
			ID:              uuid.NewString(),
			UserID:          user.ID,
			FingerprintHash: HashFingerprint(req.Fingerprint),
			Browser:         info.Browser,
			OS:              info.OS,
			Device:          info.Device,
			CreatedAt:       now,
			UpdatedAt:       now,
		}).Error
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, userResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"` // username or email
	Password string `json:"password" binding:"required"`
}

// Login authenticates by username or email.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user User
	err := h.db.WithContext(c.Request.Context()).
		First(&user, "username = ? OR email = ?", req.Username, req.Username).Error
	if err != nil || !auth.CheckPassword(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect username/email or password"})
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"user_id":      user.ID,
		"username":     user.Username,
		"email":        user.Email,
	})
}

// Me returns the authenticated user's information.
func (h *Handler) Me(c *gin.Context) {
	user := userFrom(c)
	c.JSON(http.StatusOK, userResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	})
}

type fingerprintRequest struct {
	Fingerprint string         `json:"fingerprint" binding:"required"`
	DeviceInfo  map[string]any `json:"device_info"`
}

// UpdateFingerprint upserts the user's device fingerprint.
func (h *Handler) UpdateFingerprint(c *gin.Context) {
	var req fingerprintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !ValidateFingerprint(req.Fingerprint) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fingerprint format"})
		return
	}

	user := userFrom(c)
	info := NormalizeDeviceInfo(req.DeviceInfo)
	now := time.Now().UTC()

	ctx := c.Request.Context()
	var fp UserFingerprint
	err := h.db.WithContext(ctx).First(&fp, "user_id = ?", user.ID).Error
	switch {
	case err == nil:
		fp.FingerprintHash = HashFingerprint(req.Fingerprint)
		fp.Browser = info.Browser
		fp.OS = info.OS
		fp.Device = info.Device
		fp.UpdatedAt = now
		err = h.db.WithContext(ctx).Save(&fp).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		err = h.db.WithContext(ctx).Create(&UserFingerprint{
			ID:              uuid.NewString(),
			UserID:          user.ID,
			FingerprintHash: HashFingerprint(req.Fingerprint),
			Browser:         info.Browser,
			OS:              info.OS,
			Device:          info.Device,
			CreatedAt:       now,
			UpdatedAt:       now,
		}).Error
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "fingerprint updated"})
}

type pushSubscribeRequest struct {
	Endpoint string           `json:"endpoint" binding:"required"`
	Keys     SubscriptionKeys `json:"keys" binding:"required"`
}

// PushSubscribe proxies the subscription to the push service and records the
// link locally.
func (h *Handler) PushSubscribe(c *gin.Context) {
	var req pushSubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := userFrom(c)
	ctx := c.Request.Context()
	result, err := h.client.Subscribe(ctx, user.ID, req.Endpoint, req.Keys)
	if err != nil {
		proxyError(c, err)
		return
	}

	if result.Success && result.SubscriptionID != "" {
		var link UserPushSubscription
		err := h.db.WithContext(ctx).First(&link, "user_id = ?", user.ID).Error
		switch {
		case err == nil:
			link.PushSubscriptionID = result.SubscriptionID
			link.ApplicationID = result.ApplicationID
			link.Endpoint = req.Endpoint
			err = h.db.WithContext(ctx).Save(&link).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			err = h.db.WithContext(ctx).Create(&UserPushSubscription{
				ID:                 uuid.NewString(),
				UserID:             user.ID,
				PushSubscriptionID: result.SubscriptionID,
				ApplicationID:      result.ApplicationID,
				Endpoint:           req.Endpoint,
				CreatedAt:          time.Now().UTC(),
			}).Error
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, result)
}

type pushPayloadRequest struct {
	Title string         `json:"title" binding:"required"`
	Body  string         `json:"body" binding:"required"`
	Icon  string         `json:"icon"`
	Badge string         `json:"badge"`
	Data  map[string]any `json:"data"`
}

func (r *pushPayloadRequest) payload() notification.Payload {
	return notification.Payload{
		Title: r.Title,
		Body:  r.Body,
		Icon:  r.Icon,
		Badge: r.Badge,
		Data:  r.Data,
	}
}

// PushSend sends a notification to the authenticated user via the push
// service.
func (h *Handler) PushSend(c *gin.Context) {
	var req pushPayloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := userFrom(c)
	result, err := h.client.SendToUser(c.Request.Context(), user.ID, req.payload())
	if err != nil {
		proxyError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PushBroadcast broadcasts to every subscriber of this service's application.
func (h *Handler) PushBroadcast(c *gin.Context) {
	var req pushPayloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.client.Broadcast(c.Request.Context(), req.payload())
	if err != nil {
		proxyError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Health reports service and database health.
func (h *Handler) Health(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": "connected"})
}
