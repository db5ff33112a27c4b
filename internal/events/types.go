package events

// Event type constants for kelindar/event.
const (
	TypeInputRegistered uint32 = iota + 1
	TypeInputSwitched
	TypeFrameDropped
	TypeStreamEnded
	TypeProcessingError
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// InputRegisteredEvent is published when an input type gets a sampler and frame source.
type InputRegisteredEvent struct {
	InputType string `json:"input_type" example:"surface" doc:"Registered input type"`
	Replaced  bool   `json:"replaced" doc:"Whether a previous registration of the same type was released"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for InputRegisteredEvent.
func (e InputRegisteredEvent) Type() uint32 { return TypeInputRegistered }

// InputSwitchedEvent is published when the active input changes.
type InputSwitchedEvent struct {
	InputType string `json:"input_type" example:"bitmap" doc:"Newly active input type"`
	Previous  string `json:"previous,omitempty" example:"surface" doc:"Previously active input type"`
	Width     int    `json:"width" example:"1280" doc:"Frame width of the new stream"`
	Height    int    `json:"height" example:"720" doc:"Frame height of the new stream"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for InputSwitchedEvent.
func (e InputSwitchedEvent) Type() uint32 { return TypeInputSwitched }

// FrameDroppedEvent is published when an inactive input gate suppresses a listener event.
type FrameDroppedEvent struct {
	InputType          string `json:"input_type" example:"surface" doc:"Input type of the inactive gate"`
	Callback           string `json:"callback" example:"output_frame_available" doc:"Suppressed listener callback"`
	PresentationTimeUs int64  `json:"presentation_time_us" doc:"Presentation time of the dropped frame, when one was involved"`
	Timestamp          string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FrameDroppedEvent.
func (e FrameDroppedEvent) Type() uint32 { return TypeFrameDropped }

// StreamEndedEvent is published when the output of the active input ends.
type StreamEndedEvent struct {
	InputType string `json:"input_type" example:"bitmap" doc:"Input type whose stream ended"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamEndedEvent.
func (e StreamEndedEvent) Type() uint32 { return TypeStreamEnded }

// ProcessingErrorEvent is published when the execution queue reports a failure.
type ProcessingErrorEvent struct {
	Code      string `json:"code" example:"GL_ERROR" doc:"Error code"`
	Message   string `json:"message" doc:"Error message"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ProcessingErrorEvent.
func (e ProcessingErrorEvent) Type() uint32 { return TypeProcessingError }
