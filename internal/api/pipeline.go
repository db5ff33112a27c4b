package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/videofx/internal/api/models"
	"github.com/smazurov/videofx/internal/metrics"
	"github.com/smazurov/videofx/internal/types"
)

func (s *Server) registerPipelineRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-pipeline",
		Method:      http.MethodGet,
		Path:        "/api/pipeline",
		Summary:     "Pipeline Status",
		Description: "Get the active input and the state of every registered input",
		Tags:        []string{"pipeline"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
	}, func(ctx context.Context, input *struct{}) (*models.PipelineResponse, error) {
		if s.pipeline == nil {
			return nil, errNoPipeline()
		}
		return &models.PipelineResponse{Body: s.pipeline.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "switch-input",
		Method:      http.MethodPost,
		Path:        "/api/pipeline/input",
		Summary:     "Switch Input",
		Description: "Make an input active for a new stream. Frames still travelling through the previous input are dropped.",
		Tags:        []string{"pipeline"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404, 409, 410, 503},
	}, func(ctx context.Context, input *models.SwitchInputRequest) (*models.PipelineResponse, error) {
		if s.pipeline == nil {
			return nil, errNoPipeline()
		}
		inputType, err := types.ParseInputType(input.Body.InputType)
		if err != nil {
			return nil, mapPipelineError(err)
		}
		info := types.NewFrameInfo(input.Body.Width, input.Body.Height).WithOffsetToAddUs(input.Body.OffsetUs)
		if err := s.pipeline.RegisterInputStream(ctx, inputType, info); err != nil {
			return nil, mapPipelineError(err)
		}
		s.logger.Info("Input switched via API", "input_type", inputType.String(), "width", info.Width, "height", info.Height)
		return &models.PipelineResponse{Body: s.pipeline.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "end-input",
		Method:      http.MethodPost,
		Path:        "/api/pipeline/end",
		Summary:     "End Input Stream",
		Description: "Signal end of stream on the active input once its pending frames are processed",
		Tags:        []string{"pipeline"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 410, 503},
	}, func(ctx context.Context, input *struct{}) (*models.PipelineResponse, error) {
		if s.pipeline == nil {
			return nil, errNoPipeline()
		}
		if err := s.pipeline.SignalEndOfInput(ctx); err != nil {
			return nil, mapPipelineError(err)
		}
		return &models.PipelineResponse{Body: s.pipeline.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "flush-pipeline",
		Method:      http.MethodPost,
		Path:        "/api/pipeline/flush",
		Summary:     "Flush Pipeline",
		Description: "Drop every frame in flight and wait until the pipeline is idle",
		Tags:        []string{"pipeline"},
		Security:    withAuth(),
		Errors:      []int{401, 410, 503},
	}, func(ctx context.Context, input *struct{}) (*models.PipelineResponse, error) {
		if s.pipeline == nil {
			return nil, errNoPipeline()
		}
		if err := s.pipeline.Flush(ctx); err != nil {
			return nil, mapPipelineError(err)
		}
		return &models.PipelineResponse{Body: s.pipeline.Status()}, nil
	})
}

func (s *Server) registerMetricsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-input-metrics",
		Method:      http.MethodGet,
		Path:        "/api/metrics/inputs",
		Summary:     "Input Metrics",
		Description: "Per-input frame and gate counters since start",
		Tags:        []string{"metrics"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*models.InputMetricsResponse, error) {
		body := models.InputMetricsListData{
			Inputs:       []models.InputMetricsData{},
			OutputFrames: metrics.GetOutputFrames(),
		}
		for _, t := range types.AllInputTypes {
			m := metrics.GetInputMetrics(t.String())
			if m == nil {
				continue
			}
			body.Inputs = append(body.Inputs, models.InputMetricsData{
				InputType:        t.String(),
				Active:           m.Active,
				FramesQueued:     m.FramesQueued,
				EventsSuppressed: m.EventsSuppressed,
				Switches:         m.Switches,
				Registrations:    m.Registrations,
			})
		}
		return &models.InputMetricsResponse{Body: body}, nil
	})
}

func errNoPipeline() error {
	return huma.Error503ServiceUnavailable("pipeline not running")
}

// mapPipelineError converts processing error codes to HTTP statuses.
func mapPipelineError(err error) error {
	var pe *types.ProcessingError
	if !errors.As(err, &pe) {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return huma.Error503ServiceUnavailable("pipeline busy", err)
		}
		return huma.Error500InternalServerError("internal server error", err)
	}

	switch pe.Code {
	case types.ErrCodeUnsupportedInput:
		return huma.Error400BadRequest(pe.Message, err)
	case types.ErrCodeNotRegistered:
		return huma.Error404NotFound(pe.Message, err)
	case types.ErrCodeIllegalState, types.ErrCodeFrameOrder:
		return huma.Error409Conflict(pe.Message, err)
	case types.ErrCodeReleased:
		return huma.NewError(http.StatusGone, pe.Message, err)
	default:
		return huma.Error500InternalServerError(pe.Message, err)
	}
}
