package api

import (
	"context"
	"net/http"

	"github.com/smazurov/videofx/internal/events"
	"github.com/smazurov/videofx/internal/processor"
	"github.com/smazurov/videofx/internal/types"
)

// Pipeline is the frame processor surface the API controls.
type Pipeline interface {
	Status() processor.Status
	RegisterInputStream(ctx context.Context, inputType types.InputType, info types.FrameInfo) error
	SignalEndOfInput(ctx context.Context) error
	Flush(ctx context.Context) error
}

// Options configures the API server.
type Options struct {
	AuthUsername string
	AuthPassword string

	Pipeline Pipeline
	EventBus *events.Bus

	// PrometheusHandler is served at /metrics when set.
	PrometheusHandler http.Handler
}
