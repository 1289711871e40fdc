package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"notify-delivery-backend/internal/model"
)

// PushClient sends a raw web push request.
type PushClient interface {
	Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

type webPushClient struct{}

func (webPushClient) Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotificationWithContext(ctx, payload, sub, options)
}

// WebPushSender delivers to browser push subscriptions using VAPID.
type WebPushSender struct {
	options *webpush.Options
	client  PushClient
}

// NewWebPushSender creates a sender using the webpush library.
func NewWebPushSender(options *webpush.Options) *WebPushSender {
	return &WebPushSender{options: options, client: webPushClient{}}
}

// WithClient replaces the HTTP push client, for tests.
func (s *WebPushSender) WithClient(c PushClient) *WebPushSender {
	s.client = c
	return s
}

// Send sends a notification and classifies the push service response.
func (s *WebPushSender) Send(ctx context.Context, endpoint model.Endpoint, msg Message) error {
	payload, err := encodePayload(msg)
	if err != nil {
		return err
	}

	sub := &webpush.Subscription{
		Endpoint: endpoint.Token,
		Keys: webpush.Keys{
			P256dh: endpoint.P256DH,
			Auth:   endpoint.Auth,
		},
	}

	resp, err := s.client.Send(ctx, payload, sub, s.options)
	if err != nil {
		return TransientError("web push request failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return classifyStatus(resp.StatusCode)
}

// classifyStatus maps a push service status code. 404 and 410 mean the
// subscription expired or was revoked.
func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return PermanentError(fmt.Sprintf("push service returned %d", code), nil)
	default:
		return TransientError(fmt.Sprintf("push service returned %d", code), nil)
	}
}
