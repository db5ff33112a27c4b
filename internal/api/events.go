package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/videofx/internal/events"
	"github.com/smazurov/videofx/internal/processor"
)

// registerSSERoutes registers the pipeline event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Pipeline status on connect, then input registrations, switches, dropped frames, stream ends and processing errors",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"pipeline-status":  processor.Status{},
		"input-registered": events.InputRegisteredEvent{},
		"input-switched":   events.InputSwitchedEvent{},
		"frame-dropped":    events.FrameDroppedEvent{},
		"stream-ended":     events.StreamEndedEvent{},
		"processing-error": events.ProcessingErrorEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 64)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.InputRegisteredEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.InputSwitchedEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.FrameDroppedEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.StreamEndedEvent](s.options.EventBus, eventCh),
			events.SubscribeToChannel[events.ProcessingErrorEvent](s.options.EventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		status := processor.Status{Inputs: []processor.InputStatus{}}
		if s.pipeline != nil {
			status = s.pipeline.Status()
		}
		if err := send.Data(status); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
