package api

import (
	"context"

	"github.com/SherClockHolmes/webpush-go"

	"petfeeder/internal/controller"
	"petfeeder/internal/store"
	"petfeeder/internal/trigger"
)

// Controller is the part of the control loop the API uses.
type Controller interface {
	Snapshot() controller.Snapshot
	Submit(ctx context.Context, action trigger.Action) (controller.Reply, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	ctl     Controller
	store   store.Store
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(ctl Controller, s store.Store, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		ctl:     ctl,
		store:   s,
		webpush: webpushOptions,
	}
}
