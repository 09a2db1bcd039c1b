package registrar

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"webpush-backend/internal/auth"
)

func newRegistrarServer(t *testing.T, client *Client) (*gin.Engine, *gorm.DB) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	tokens := auth.NewTokenManager([]byte("registrar-test-secret"), time.Hour)
	return NewRouter(db, client, tokens), db
}

func doRequest(t *testing.T, r *gin.Engine, method, path string, body any, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func registerBody(username, email string) gin.H {
	return gin.H{
		"username":    username,
		"email":       email,
		"password":    "hunter2-hunter2",
		"fingerprint": "canvas:abcd|webgl:efgh",
		"device_info": gin.H{
			"browser": gin.H{"name": "Firefox"},
			"os":      gin.H{"name": "Linux"},
		},
	}
}

func TestRegister(t *testing.T) {
	r, db := newRegistrarServer(t, nil)

	w := doRequest(t, r, http.MethodPost, "/api/register", registerBody("alice", "alice@example.com"), "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp["username"])
	assert.NotEmpty(t, resp["id"])

	var fp UserFingerprint
	require.NoError(t, db.First(&fp, "user_id = ?", resp["id"]).Error)
	assert.Equal(t, HashFingerprint("canvas:abcd|webgl:efgh"), fp.FingerprintHash)
	assert.Equal(t, "Firefox", fp.Browser)
	assert.Equal(t, "Linux", fp.OS)
	assert.Equal(t, "Unknown", fp.Device)

	t.Run("duplicate username", func(t *testing.T) {
		w := doRequest(t, r, http.MethodPost, "/api/register", registerBody("alice", "alice2@example.com"), "")
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "username already exists")
	})

	t.Run("duplicate email", func(t *testing.T) {
		w := doRequest(t, r, http.MethodPost, "/api/register", registerBody("alice2", "alice@example.com"), "")
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "email already exists")
	})

	t.Run("short fingerprint", func(t *testing.T) {
		body := registerBody("bob", "bob@example.com")
		body["fingerprint"] = "short"
		w := doRequest(t, r, http.MethodPost, "/api/register", body, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestLogin_UsernameOrEmail(t *testing.T) {
	r, _ := newRegistrarServer(t, nil)
	w := doRequest(t, r, http.MethodPost, "/api/register", registerBody("carol", "carol@example.com"), "")
	require.Equal(t, http.StatusCreated, w.Code)

	for _, ident := range []string{"carol", "carol@example.com"} {
		w := doRequest(t, r, http.MethodPost, "/api/login", gin.H{"username": ident, "password": "hunter2-hunter2"}, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "carol", resp["username"])
		assert.NotEmpty(t, resp["access_token"])
	}

	w = doRequest(t, r, http.MethodPost, "/api/login", gin.H{"username": "carol", "password": "wrong-password"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMe_RequiresValidToken(t *testing.T) {
	r, _ := newRegistrarServer(t, nil)
	w := doRequest(t, r, http.MethodPost, "/api/register", registerBody("dave", "dave@example.com"), "")
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(t, r, http.MethodPost, "/api/login", gin.H{"username": "dave", "password": "hunter2-hunter2"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var login map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	token := login["access_token"].(string)

	w = doRequest(t, r, http.MethodGet, "/api/user/me", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var me map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "dave@example.com", me["email"])

	w = doRequest(t, r, http.MethodGet, "/api/user/me", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = doRequest(t, r, http.MethodGet, "/api/user/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPushSubscribe_RecordsLink(t *testing.T) {
	fake := newFakePushService(t)
	fake.apps = []map[string]string{{"id": "app-1", "name": "Registration App"}}
	mux := fake.srv.Config.Handler.(*http.ServeMux)
	mux.HandleFunc("POST /api/subscribe", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "subscription_id": "sub-9"})
	})
	mux.HandleFunc("PUT /api/admin/users/sub-9/assign", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})

	r, db := newRegistrarServer(t, newTestClient(fake.srv.URL))

	w := doRequest(t, r, http.MethodPost, "/api/register", registerBody("erin", "erin@example.com"), "")
	require.Equal(t, http.StatusCreated, w.Code)
	w = doRequest(t, r, http.MethodPost, "/api/login", gin.H{"username": "erin", "password": "hunter2-hunter2"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var login map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	token := login["access_token"].(string)
	userID := login["user_id"].(string)

	w = doRequest(t, r, http.MethodPost, "/api/push/subscribe", gin.H{
		"endpoint": "https://push.example.com/erin",
		"keys":     gin.H{"p256dh": "k", "auth": "a"},
	}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var link UserPushSubscription
	require.NoError(t, db.First(&link, "user_id = ?", userID).Error)
	assert.Equal(t, "sub-9", link.PushSubscriptionID)
	assert.Equal(t, "app-1", link.ApplicationID)
	assert.Equal(t, "https://push.example.com/erin", link.Endpoint)

	// Re-subscribing keeps one link row per user.
	w = doRequest(t, r, http.MethodPost, "/api/push/subscribe", gin.H{
		"endpoint": "https://push.example.com/erin-2",
		"keys":     gin.H{"p256dh": "k", "auth": "a"},
	}, token)
	require.Equal(t, http.StatusOK, w.Code)

	var count int64
	require.NoError(t, db.Model(&UserPushSubscription{}).Where("user_id = ?", userID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestProxyError_ForwardsUpstreamStatus(t *testing.T) {
	fake := newFakePushService(t)
	fake.apps = []map[string]string{{"id": "app-1", "name": "Registration App"}}
	mux := fake.srv.Config.Handler.(*http.ServeMux)
	mux.HandleFunc("POST /api/admin/push/application/app-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no subscriptions found"})
	})

	r, _ := newRegistrarServer(t, newTestClient(fake.srv.URL))

	w := doRequest(t, r, http.MethodPost, "/api/register", registerBody("frank", "frank@example.com"), "")
	require.Equal(t, http.StatusCreated, w.Code)
	w = doRequest(t, r, http.MethodPost, "/api/login", gin.H{"username": "frank", "password": "hunter2-hunter2"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var login map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))

	w = doRequest(t, r, http.MethodPost, "/api/push/broadcast", gin.H{
		"title": "hello",
		"body":  "world",
	}, login["access_token"].(string))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
