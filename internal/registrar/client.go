package registrar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"

	"webpush-backend/config"
	"webpush-backend/internal/notification"
)

const (
	tokenCacheKey       = "admin_token"
	applicationCacheKey = "application_id"
)

// Client talks to the push service on behalf of the registration service.
// The admin token and the resolved application id are cached with a TTL;
// a 401 or 404 from the push service drops the stale entry and the call is
// retried once with fresh credentials.
type Client struct {
	baseURL         string
	adminUsername   string
	adminPassword   string
	applicationName string
	http            *http.Client
	creds           *cache.Cache
}

// NewClient creates a push service client from registrar configuration.
func NewClient(cfg *config.RegistrarConfig) *Client {
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	return &Client{
		baseURL:         cfg.PushServiceURL,
		adminUsername:   cfg.AdminUsername,
		adminPassword:   cfg.AdminPassword,
		applicationName: cfg.ApplicationName,
		http:            &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		creds:           cache.New(ttl, 2*ttl),
	}
}

type upstreamError struct {
	status int
	body   string
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("push service returned %d: %s", e.status, e.body)
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("push service request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &upstreamError{status: resp.StatusCode, body: string(raw)}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode push service response: %w", err)
		}
	}
	return nil
}

// AdminToken returns a cached admin bearer token, logging in when the cache
// is empty or expired.
func (c *Client) AdminToken(ctx context.Context) (string, error) {
	if v, found := c.creds.Get(tokenCacheKey); found {
		return v.(string), nil
	}

	var result struct {
		AccessToken string `json:"access_token"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/admin/login", "", map[string]string{
		"username": c.adminUsername,
		"password": c.adminPassword,
	}, &result)
	if err != nil {
		return "", fmt.Errorf("failed to authenticate with push service: %w", err)
	}
	if result.AccessToken == "" {
		return "", fmt.Errorf("no access token in push service response")
	}

	c.creds.SetDefault(tokenCacheKey, result.AccessToken)
	return result.AccessToken, nil
}

// ApplicationID returns the id of this service's application on the push
// service, creating the application if it does not exist yet.
func (c *Client) ApplicationID(ctx context.Context) (string, error) {
	if v, found := c.creds.Get(applicationCacheKey); found {
		return v.(string), nil
	}

	var apps []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := c.adminRequest(ctx, http.MethodGet, "/api/admin/applications", nil, &apps); err != nil {
		return "", err
	}
	for _, app := range apps {
		if app.Name == c.applicationName {
			c.creds.SetDefault(applicationCacheKey, app.ID)
			return app.ID, nil
		}
	}

	log.Printf("Creating application %q on push service", c.applicationName)
	var created struct {
		ID string `json:"id"`
	}
	err := c.adminRequest(ctx, http.MethodPost, "/api/admin/applications", map[string]string{
		"name": c.applicationName,
	}, &created)
	if err != nil {
		return "", err
	}

	c.creds.SetDefault(applicationCacheKey, created.ID)
	return created.ID, nil
}

// adminRequest performs an authenticated call. On a 401 the cached token is
// dropped and the call retried once with a fresh login.
func (c *Client) adminRequest(ctx context.Context, method, path string, body, out any) error {
	token, err := c.AdminToken(ctx)
	if err != nil {
		return err
	}

	err = c.doJSON(ctx, method, path, token, body, out)
	if ue, ok := err.(*upstreamError); ok && ue.status == http.StatusUnauthorized {
		c.creds.Delete(tokenCacheKey)
		token, err = c.AdminToken(ctx)
		if err != nil {
			return err
		}
		err = c.doJSON(ctx, method, path, token, body, out)
	}
	return err
}

// applicationRequest is adminRequest plus application-id resolution in the
// path; a 404 drops the cached id and retries once, covering the case where
// the application was deleted or renamed on the push service.
func (c *Client) applicationRequest(ctx context.Context, method string, pathFor func(appID string) string, body, out any) error {
	appID, err := c.ApplicationID(ctx)
	if err != nil {
		return err
	}

	err = c.adminRequest(ctx, method, pathFor(appID), body, out)
	if ue, ok := err.(*upstreamError); ok && ue.status == http.StatusNotFound {
		c.creds.Delete(applicationCacheKey)
		appID, err = c.ApplicationID(ctx)
		if err != nil {
			return err
		}
		err = c.adminRequest(ctx, method, pathFor(appID), body, out)
	}
	return err
}

// SubscriptionKeys mirrors the push service's subscription key pair.
type SubscriptionKeys struct {
	P256DH string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// SubscribeResult reports the outcome of a proxied subscription.
type SubscribeResult struct {
	Success        bool   `json:"success"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	ApplicationID  string `json:"application_id,omitempty"`
	Message        string `json:"message,omitempty"`
}

// Subscribe registers the subscription with the push service under this
// service's application and the given user id.
func (c *Client) Subscribe(ctx context.Context, userID, endpoint string, keys SubscriptionKeys) (SubscribeResult, error) {
	appID, err := c.ApplicationID(ctx)
	if err != nil {
		return SubscribeResult{}, err
	}

	var subscribed struct {
		Success        bool   `json:"success"`
		SubscriptionID string `json:"subscription_id"`
	}
	err = c.doJSON(ctx, http.MethodPost, "/api/subscribe", "", map[string]any{
		"endpoint": endpoint,
		"keys":     keys,
		"user_id":  userID,
	}, &subscribed)
	if err != nil {
		return SubscribeResult{}, fmt.Errorf("failed to subscribe with push service: %w", err)
	}

	if subscribed.SubscriptionID != "" {
		err = c.adminRequest(ctx, http.MethodPut,
			"/api/admin/users/"+subscribed.SubscriptionID+"/assign",
			map[string]string{"application_id": appID}, nil)
		if err != nil {
			log.Printf("Warning: subscription %s created but assignment failed: %v", subscribed.SubscriptionID, err)
			return SubscribeResult{
				Success:        true,
				SubscriptionID: subscribed.SubscriptionID,
				ApplicationID:  appID,
				Message:        "subscription created but assignment may need to be done manually",
			}, nil
		}
	}

	return SubscribeResult{
		Success:        subscribed.Success,
		SubscriptionID: subscribed.SubscriptionID,
		ApplicationID:  appID,
	}, nil
}

// SendToUser sends a push notification to one user within this service's
// application.
func (c *Client) SendToUser(ctx context.Context, userID string, payload notification.Payload) (notification.Result, error) {
	var result notification.Result
	err := c.applicationRequest(ctx, http.MethodPost, func(appID string) string {
		return "/api/admin/push/single/" + userID + "?application_id=" + appID
	}, payload, &result)
	if err != nil {
		return notification.Result{}, err
	}
	return result, nil
}

// Broadcast sends a push notification to every subscription of this
// service's application.
func (c *Client) Broadcast(ctx context.Context, payload notification.Payload) (notification.Result, error) {
	var result notification.Result
	err := c.applicationRequest(ctx, http.MethodPost, func(appID string) string {
		return "/api/admin/push/application/" + appID
	}, payload, &result)
	if err != nil {
		return notification.Result{}, err
	}
	return result, nil
}
