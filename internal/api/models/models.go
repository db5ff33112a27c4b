package models

import "github.com/smazurov/videofx/internal/processor"

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2024-01-01T00:00:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"42" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go runtime version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Pipeline models
type PipelineResponse struct {
	Body processor.Status
}

type SwitchInputData struct {
	InputType string `json:"input_type" enum:"surface,bitmap,texture_id" example:"bitmap" doc:"Input to activate"`
	Width     int    `json:"width" minimum:"1" example:"1920" doc:"Frame width of the new stream"`
	Height    int    `json:"height" minimum:"1" example:"1080" doc:"Frame height of the new stream"`
	OffsetUs  int64  `json:"offset_us,omitempty" minimum:"0" example:"1000000" doc:"Offset added to every presentation time of the stream"`
}

type SwitchInputRequest struct {
	Body SwitchInputData
}

// Input metrics models
type InputMetricsData struct {
	InputType        string `json:"input_type" example:"surface" doc:"Input type"`
	Active           bool   `json:"active" example:"true" doc:"Whether the input is active"`
	FramesQueued     uint64 `json:"frames_queued" example:"300" doc:"Frames handed to the input's sampler"`
	EventsSuppressed uint64 `json:"events_suppressed" example:"4" doc:"Callbacks dropped by the input's inactive gate"`
	Switches         uint64 `json:"switches" example:"2" doc:"Times the input was activated"`
	Registrations    uint64 `json:"registrations" example:"1" doc:"Times the input was registered"`
}

type InputMetricsListData struct {
	Inputs       []InputMetricsData `json:"inputs" doc:"Per-input counters"`
	OutputFrames uint64             `json:"output_frames" example:"900" doc:"Frames delivered by the final program"`
}

type InputMetricsResponse struct {
	Body InputMetricsListData
}
