package gateway

import (
	"context"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"notify-delivery-backend/internal/model"
)

// FCMClient is the subset of the Firebase messaging client used here.
type FCMClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMSender delivers to Firebase Cloud Messaging registration tokens.
type FCMSender struct {
	client FCMClient
}

// NewFCMSender initializes a Firebase app from a service account file.
func NewFCMSender(ctx context.Context, credentialsFile string) (*FCMSender, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, err
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, err
	}
	return &FCMSender{client: client}, nil
}

// NewFCMSenderWithClient wraps an existing messaging client.
func NewFCMSenderWithClient(client FCMClient) *FCMSender {
	return &FCMSender{client: client}
}

func (s *FCMSender) Send(ctx context.Context, endpoint model.Endpoint, msg Message) error {
	data := map[string]string{}
	if msg.Link != "" {
		data["link"] = msg.Link
	}

	_, err := s.client.Send(ctx, &messaging.Message{
		Token: endpoint.Token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	})
	if err == nil {
		return nil
	}

	switch {
	case messaging.IsUnregistered(err):
		return PermanentError("fcm token unregistered", err)
	case messaging.IsSenderIDMismatch(err):
		return PermanentError("fcm sender id mismatch", err)
	default:
		return TransientError("fcm send failed", err)
	}
}
