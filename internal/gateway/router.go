package gateway

import (
	"context"
	"fmt"

	"notify-delivery-backend/internal/model"
)

// Router dispatches to the sender registered for the endpoint's platform.
type Router struct {
	senders map[model.Platform]Sender
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{senders: make(map[model.Platform]Sender)}
}

// Register binds a sender to a platform.
func (r *Router) Register(p model.Platform, s Sender) *Router {
	r.senders[p] = s
	return r
}

// Platforms returns the platforms with a registered sender.
func (r *Router) Platforms() []model.Platform {
	platforms := make([]model.Platform, 0, len(r.senders))
	for p := range r.senders {
		platforms = append(platforms, p)
	}
	return platforms
}

// Send routes the message. A platform without a sender is a deployment
// problem, not a dead destination, so it fails transiently.
func (r *Router) Send(ctx context.Context, endpoint model.Endpoint, msg Message) error {
	platform := endpoint.Platform
	if platform == "" {
		platform = model.PlatformWebPush
	}
	s, ok := r.senders[platform]
	if !ok {
		return TransientError(fmt.Sprintf("no gateway for platform %q", platform), nil)
	}
	return s.Send(ctx, endpoint, msg)
}
