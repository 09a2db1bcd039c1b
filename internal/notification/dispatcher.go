package notification

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"webpush-backend/internal/model"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of Sender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotificationWithContext(ctx, payload, sub, options)
}

// Payload is the notification body delivered to clients.
type Payload struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Icon  string         `json:"icon,omitempty"`
	Badge string         `json:"badge,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// Result aggregates the outcome of a dispatch across one or more
// subscriptions. Individual delivery failures are counted, never raised.
type Result struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	SuccessCount int    `json:"success_count"`
	FailedCount  int    `json:"failed_count"`
	Total        int    `json:"total"`
}

// Dispatcher fans a payload out to subscriptions with bounded concurrency.
type Dispatcher struct {
	db      *gorm.DB
	options *webpush.Options
	workers int
	timeout time.Duration
	sender  Sender
}

// NewDispatcher creates a dispatcher. workers caps concurrent outbound
// sends; timeout bounds each individual delivery call.
func NewDispatcher(db *gorm.DB, options *webpush.Options, workers int, timeout time.Duration) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		db:      db,
		options: options,
		workers: workers,
		timeout: timeout,
		sender:  &WebPushSender{},
	}
}

// SetSender replaces the delivery primitive. Used by tests.
func (d *Dispatcher) SetSender(s Sender) {
	d.sender = s
}

// Dispatch sends the payload to every subscription and tallies the
// outcome. One failed or slow delivery never aborts the batch; the caller
// always gets aggregate counts for the full candidate set.
func (d *Dispatcher) Dispatch(ctx context.Context, subs []model.PushSubscription, payload Payload, message string) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error marshalling push payload: %v", err)
		return Result{Message: "invalid payload", FailedCount: len(subs), Total: len(subs)}
	}

	var succeeded atomic.Int64

	jobs := make(chan model.PushSubscription)
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sub := range jobs {
				if d.sendOne(ctx, sub, body) {
					succeeded.Add(1)
				}
			}
		}()
	}

	for _, sub := range subs {
		jobs <- sub
	}
	close(jobs)
	wg.Wait()

	success := int(succeeded.Load())
	return Result{
		Success:      true,
		Message:      message,
		SuccessCount: success,
		FailedCount:  len(subs) - success,
		Total:        len(subs),
	}
}

// sendOne delivers the payload to a single subscription. Any delivery-layer
// error converts to false; a 410 response means the endpoint is gone and the
// subscription is removed from the store.
func (d *Dispatcher) sendOne(ctx context.Context, sub model.PushSubscription, body []byte) bool {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	sendCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	resp, err := d.sender.Send(sendCtx, body, wpSub, d.options)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := d.db.WithContext(ctx).Delete(&model.PushSubscription{}, "id = ?", sub.ID).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.ID, err)
		}
		return false
	}

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
