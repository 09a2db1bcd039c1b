package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"webpush-backend/config"
	"webpush-backend/internal/auth"
	"webpush-backend/internal/model"
	"webpush-backend/internal/notification"
	"webpush-backend/internal/store"
)

// okSender acknowledges every delivery so push endpoints can be exercised
// without talking to a real push service.
type okSender struct{}

func (okSender) Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return &http.Response{StatusCode: http.StatusCreated, Body: io.NopCloser(strings.NewReader(""))}, nil
}

type testServer struct {
	router *gin.Engine
	store  store.Store
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Admin{}, &model.Application{}, &model.PushSubscription{}))

	s := store.NewGormStore(db)
	tokens := auth.NewTokenManager([]byte("test-secret"), time.Hour)

	dispatcher := notification.NewDispatcher(db, &webpush.Options{}, 2, time.Second)
	dispatcher.SetSender(okSender{})

	cfg := &config.Config{}
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000
	cfg.Server.CacheTTLSeconds = 1

	return &testServer{
		router: NewRouter(cfg, s, dispatcher, tokens, "test-vapid-public-key"),
		store:  s,
		tokens: tokens,
	}
}

func (ts *testServer) seedAdmin(t *testing.T, username, password string, super bool, appIDs ...string) *model.Admin {
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	admin := &model.Admin{
		Username:       username,
		PasswordHash:   hash,
		IsSuperAdmin:   super,
		ApplicationIDs: appIDs,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, ts.store.CreateAdmin(context.Background(), admin))
	return admin
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func (ts *testServer) login(t *testing.T, username, password string) string {
	w := ts.do(t, http.MethodPost, "/api/admin/login", gin.H{"username": username, "password": password}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	token, _ := body["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	ts.seedAdmin(t, "root", "correct-horse", true)

	t.Run("success", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/admin/login", gin.H{"username": "root", "password": "correct-horse"}, nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.NotEmpty(t, body["access_token"])
		assert.Equal(t, "bearer", body["token_type"])
	})

	t.Run("failures are indistinguishable", func(t *testing.T) {
		wrongPassword := ts.do(t, http.MethodPost, "/api/admin/login", gin.H{"username": "root", "password": "nope"}, nil)
		unknownUser := ts.do(t, http.MethodPost, "/api/admin/login", gin.H{"username": "ghost", "password": "nope"}, nil)

		assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
		assert.Equal(t, http.StatusUnauthorized, unknownUser.Code)
		assert.JSONEq(t, wrongPassword.Body.String(), unknownUser.Body.String())
	})
}

func TestChangePassword_ClearsForcedFlag(t *testing.T) {
	ts := newTestServer(t)
	hash, err := auth.HashPassword("admin")
	require.NoError(t, err)
	created, err := store.EnsureBootstrapAdmin(context.Background(), ts.store, "admin", hash)
	require.NoError(t, err)
	require.True(t, created)

	w := ts.do(t, http.MethodPost, "/api/admin/login", gin.H{"username": "admin", "password": "admin"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["must_change_password"])
	token := body["access_token"].(string)

	w = ts.do(t, http.MethodPut, "/api/admin/password", gin.H{
		"current_password": "admin",
		"new_password":     "a-much-longer-password",
	}, bearer(token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/admin/login", gin.H{"username": "admin", "password": "a-much-longer-password"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["must_change_password"])
}

func TestCreateApplication_SecretShownOnce(t *testing.T) {
	ts := newTestServer(t)
	ts.seedAdmin(t, "root", "password-1", true)
	token := ts.login(t, "root", "password-1")

	w := ts.do(t, http.MethodPost, "/api/admin/applications", gin.H{"name": "Storefront"}, bearer(token))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody(t, w)
	secret, _ := created["secret"].(string)
	assert.Len(t, secret, auth.SecretLength)

	// Subsequent reads never include the secret.
	w = ts.do(t, http.MethodGet, fmt.Sprintf("/api/admin/applications/%s", created["id"]), nil, bearer(token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, decodeBody(t, w), "secret")
}

func TestResetApplicationSecret_RotatesCredential(t *testing.T) {
	ts := newTestServer(t)
	ts.seedAdmin(t, "root", "password-1", true)
	token := ts.login(t, "root", "password-1")

	w := ts.do(t, http.MethodPost, "/api/admin/applications", gin.H{"name": "Rotated"}, bearer(token))
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeBody(t, w)
	appID := created["id"].(string)
	oldSecret := created["secret"].(string)

	w = ts.do(t, http.MethodPost, "/api/admin/applications/"+appID+"/reset-secret", nil, bearer(token))
	require.Equal(t, http.StatusOK, w.Code)
	newSecret := decodeBody(t, w)["secret"].(string)
	require.NotEqual(t, oldSecret, newSecret)

	// The old secret stops authenticating immediately; the new one reaches the
	// handler (404 here means auth passed and the application has no subscribers).
	w = ts.do(t, http.MethodPost, "/api/push/broadcast", gin.H{}, map[string]string{"X-Application-Secret": oldSecret})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/api/push/broadcast", gin.H{}, map[string]string{"X-Application-Secret": newSecret})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// The id hint path verifies against a single application.
	w = ts.do(t, http.MethodPost, "/api/push/broadcast", gin.H{}, map[string]string{
		"X-Application-Secret": newSecret,
		"X-Application-Id":     appID,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTenantScoping(t *testing.T) {
	ts := newTestServer(t)
	ts.seedAdmin(t, "root", "password-1", true)
	rootToken := ts.login(t, "root", "password-1")

	w := ts.do(t, http.MethodPost, "/api/admin/applications", gin.H{"name": "Mine"}, bearer(rootToken))
	require.Equal(t, http.StatusCreated, w.Code)
	mineID := decodeBody(t, w)["id"].(string)

	w = ts.do(t, http.MethodPost, "/api/admin/applications", gin.H{"name": "Theirs"}, bearer(rootToken))
	require.Equal(t, http.StatusCreated, w.Code)
	theirsID := decodeBody(t, w)["id"].(string)

	ts.seedAdmin(t, "scoped", "password-2", false, mineID)
	scopedToken := ts.login(t, "scoped", "password-2")

	// Listing filters to the allowed set.
	w = ts.do(t, http.MethodGet, "/api/admin/applications", nil, bearer(scopedToken))
	require.Equal(t, http.StatusOK, w.Code)
	var listed []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, mineID, listed[0]["id"])

	// Direct access to another tenant is denied before existence is revealed.
	w = ts.do(t, http.MethodGet, "/api/admin/applications/"+theirsID, nil, bearer(scopedToken))
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = ts.do(t, http.MethodPost, "/api/admin/push/application/"+theirsID, gin.H{}, bearer(scopedToken))
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Admin management stays super-only.
	w = ts.do(t, http.MethodGet, "/api/admin/admins", nil, bearer(scopedToken))
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = ts.do(t, http.MethodGet, "/api/admin/admins", nil, bearer(rootToken))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSubscribe_UpsertsByEndpoint(t *testing.T) {
	ts := newTestServer(t)

	body := gin.H{
		"endpoint": "https://push.example.com/device-1",
		"keys":     gin.H{"p256dh": "key-1", "auth": "auth-1"},
		"user_id":  "user-1",
	}
	w := ts.do(t, http.MethodPost, "/api/subscribe", body, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	firstID := decodeBody(t, w)["subscription_id"]

	body["keys"] = gin.H{"p256dh": "key-2", "auth": "auth-2"}
	w = ts.do(t, http.MethodPost, "/api/subscribe", body, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, firstID, decodeBody(t, w)["subscription_id"])

	subs, err := ts.store.ListSubscriptions(context.Background(), store.SubscriptionFilter{})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "key-2", subs[0].P256DH)
}

func TestSubscribe_UnknownAppName(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/subscribe", gin.H{
		"endpoint": "https://push.example.com/device-1",
		"keys":     gin.H{"p256dh": "key", "auth": "auth"},
		"app_name": "no-such-app",
	}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminPush(t *testing.T) {
	ts := newTestServer(t)
	ts.seedAdmin(t, "root", "password-1", true)
	token := ts.login(t, "root", "password-1")

	t.Run("empty broadcast is 404", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/admin/push/broadcast", gin.H{}, bearer(token))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("broadcast counts deliveries", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			w := ts.do(t, http.MethodPost, "/api/subscribe", gin.H{
				"endpoint": fmt.Sprintf("https://push.example.com/device-%d", i),
				"keys":     gin.H{"p256dh": "key", "auth": "auth"},
				"user_id":  "user-1",
			}, nil)
			require.Equal(t, http.StatusOK, w.Code)
		}

		w := ts.do(t, http.MethodPost, "/api/admin/push/broadcast", gin.H{"title": "hello"}, bearer(token))
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, float64(3), body["success_count"])
		assert.Equal(t, float64(0), body["failed_count"])
		assert.Equal(t, float64(3), body["total"])
	})

	t.Run("single user fans out to all devices", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/admin/push/single/user-1", gin.H{}, bearer(token))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(3), decodeBody(t, w)["total"])
	})

	t.Run("empty user list is 400", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/admin/push/users", gin.H{"user_ids": []string{}}, bearer(token))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestVAPIDPublicKey(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/api/vapid-public-key", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "test-vapid-public-key", decodeBody(t, w)["public_key"])
}

func TestAdminAuth_RejectsBadTokens(t *testing.T) {
	ts := newTestServer(t)
	ts.seedAdmin(t, "root", "password-1", true)

	w := ts.do(t, http.MethodGet, "/api/admin/applications", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodGet, "/api/admin/applications", nil, bearer("not-a-token"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other := auth.NewTokenManager([]byte("other-secret"), time.Hour)
	forged, err := other.Issue("root")
	require.NoError(t, err)
	w = ts.do(t, http.MethodGet, "/api/admin/applications", nil, bearer(forged))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
