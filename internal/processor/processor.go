// Package processor runs a complete frame pipeline: an execution queue,
// the input switcher and a downstream chain of an optional effect program
// and the final program delivering output frames.
package processor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/videofx/internal/events"
	"github.com/smazurov/videofx/internal/executor"
	"github.com/smazurov/videofx/internal/glutil"
	"github.com/smazurov/videofx/internal/metrics"
	"github.com/smazurov/videofx/internal/shader"
	"github.com/smazurov/videofx/internal/switcher"
	"github.com/smazurov/videofx/internal/texture"
	"github.com/smazurov/videofx/internal/types"
)

// Listener receives the pipeline output. Calls happen on Options.ListenerRunner.
type Listener interface {
	OnOutputFrameAvailable(frame shader.OutputFrame)
	OnError(err error)
	OnEnded()
}

// Options configures a Processor.
type Options struct {
	InputColor  types.ColorInfo
	OutputColor types.ColorInfo

	// InputTypes are registered on creation. Defaults to every input type.
	// The bitmap input is skipped for HDR input colour.
	InputTypes []types.InputType

	// RGBMatrices and a fixed output size add an effect program before the
	// final program.
	RGBMatrices  []shader.RGBMatrix
	OutputWidth  int
	OutputHeight int

	EnableColorTransfers bool
	SurfaceCapacity      int

	// Provider defaults to a new glutil.SoftwareProvider.
	Provider glutil.ObjectsProvider

	// ListenerRunner runs Listener calls. Defaults to executor.Goroutine.
	ListenerRunner executor.Runner

	// EventBus receives pipeline events (optional).
	EventBus *events.Bus

	// Logger for pipeline diagnostics. If nil, uses slog.Default().
	Logger *slog.Logger
}

// InputStatus describes one registered input.
type InputStatus struct {
	InputType     string `json:"input_type"`
	Active        bool   `json:"active"`
	PendingFrames int    `json:"pending_frames"`
}

// Status is a snapshot of the pipeline.
type Status struct {
	ActiveInput  string        `json:"active_input,omitempty"`
	Inputs       []InputStatus `json:"inputs"`
	OutputFrames uint64        `json:"output_frames"`
	Released     bool          `json:"released"`
}

// Processor owns a frame pipeline.
type Processor struct {
	opts     Options
	logger   *slog.Logger
	listener Listener
	provider glutil.ObjectsProvider

	exec     *executor.TaskExecutor
	switcher *switcher.Switcher
	effect   *shader.DefaultProgram
	final    *shader.FinalProgram

	mu           sync.Mutex
	released     bool
	outputFrames uint64
}

// New creates a pipeline and registers the configured input types.
func New(ctx context.Context, opts Options, listener Listener) (*Processor, error) {
	if listener == nil {
		return nil, errors.New("processor: listener is required")
	}
	if opts.ListenerRunner == nil {
		opts.ListenerRunner = executor.Goroutine
	}
	if opts.Provider == nil {
		opts.Provider = glutil.NewSoftwareProvider()
	}
	if len(opts.InputTypes) == 0 {
		opts.InputTypes = types.AllInputTypes
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Processor{
		opts:     opts,
		logger:   logger,
		listener: listener,
		provider: opts.Provider,
	}
	p.exec = executor.New(executor.Options{
		ErrorListener: p.onError,
		ErrorRunner:   opts.ListenerRunner,
		Logger:        logger,
	})

	sw, err := switcher.New(switcher.Options{
		OutputColor:          opts.OutputColor,
		Provider:             opts.Provider,
		Executor:             p.exec,
		ErrorRunner:          opts.ListenerRunner,
		ErrorListener:        p.onError,
		EnableColorTransfers: opts.EnableColorTransfers,
		SurfaceCapacity:      opts.SurfaceCapacity,
		EventBus:             opts.EventBus,
		Logger:               logger,
	})
	if err != nil {
		return nil, errors.Join(err, p.exec.Release(ctx, nil))
	}
	p.switcher = sw

	if err := p.exec.Invoke(ctx, p.setup); err != nil {
		return nil, errors.Join(err, p.Release(ctx))
	}
	return p, nil
}

// setup builds the downstream chain and registers inputs on the executor.
func (p *Processor) setup() error {
	p.final = shader.NewFinalProgram(p.provider, frameSink{p}, p.opts.ListenerRunner, p.logger)
	p.final.SetErrorListener(p.opts.ListenerRunner, p.onError)
	downstream := shader.Program(p.final)

	if len(p.opts.RGBMatrices) > 0 || p.opts.OutputWidth > 0 || p.opts.OutputHeight > 0 {
		effect, err := shader.NewEffect("effects", shader.Options{
			Provider:     p.provider,
			InputColor:   p.opts.OutputColor,
			OutputColor:  p.opts.OutputColor,
			RGBMatrices:  p.opts.RGBMatrices,
			OutputWidth:  p.opts.OutputWidth,
			OutputHeight: p.opts.OutputHeight,
			Logger:       p.logger,
		})
		if err != nil {
			return err
		}
		effect.SetErrorListener(p.opts.ListenerRunner, p.onError)
		chain := shader.NewChainingListener(effect, p.final, p.exec)
		effect.SetOutputListener(chain)
		p.final.SetInputListener(chain)
		p.effect = effect
		downstream = effect
	}
	p.switcher.SetDownstreamProgram(downstream)

	for _, inputType := range p.opts.InputTypes {
		if inputType == types.InputTypeBitmap && p.opts.InputColor.IsTransferHDR() {
			p.logger.Info("Skipping bitmap input for HDR input colour")
			continue
		}
		if err := p.switcher.RegisterInput(p.opts.InputColor, inputType); err != nil {
			return fmt.Errorf("register %s input: %w", inputType, err)
		}
	}
	return nil
}

// RegisterInputStream switches to inputType for a new stream described by info.
func (p *Processor) RegisterInputStream(ctx context.Context, inputType types.InputType, info types.FrameInfo) error {
	if err := p.checkNotReleased(); err != nil {
		return err
	}
	if !info.Valid() {
		return types.NewProcessingError(types.ErrCodeIllegalState,
			fmt.Sprintf("invalid frame size %dx%d", info.Width, info.Height), nil)
	}
	return p.exec.Invoke(ctx, func() error {
		return p.switcher.SwitchToInput(inputType, info)
	})
}

// InputSurface returns the surface of the surface input.
func (p *Processor) InputSurface() (*texture.Surface, error) {
	if err := p.checkNotReleased(); err != nil {
		return nil, err
	}
	return p.switcher.InputSurface()
}

// QueueInputBitmap queues a bitmap on the active bitmap input.
func (p *Processor) QueueInputBitmap(img image.Image, timing texture.BitmapTiming) error {
	manager, err := p.activeManager(types.InputTypeBitmap)
	if err != nil {
		return err
	}
	return manager.(*texture.BitmapManager).QueueInputBitmap(img, timing)
}

// QueueInputTexture queues a caller-owned texture on the active texture id input.
func (p *Processor) QueueInputTexture(texID int, presentationTimeUs int64) error {
	manager, err := p.activeManager(types.InputTypeTextureID)
	if err != nil {
		return err
	}
	return manager.(*texture.TextureIDManager).QueueInputTexture(texID, presentationTimeUs)
}

// SetOnInputFrameProcessed sets the listener told when a queued texture may be reused.
func (p *Processor) SetOnInputFrameProcessed(listener texture.FrameProcessedListener) error {
	manager, err := p.switcher.Manager(types.InputTypeTextureID)
	if err != nil {
		return err
	}
	manager.(*texture.TextureIDManager).SetOnInputFrameProcessed(listener)
	return nil
}

// SignalEndOfInput ends the active input stream once its frames are processed.
func (p *Processor) SignalEndOfInput(ctx context.Context) error {
	if err := p.checkNotReleased(); err != nil {
		return err
	}
	return p.exec.Invoke(ctx, p.switcher.SignalEndOfActiveStream)
}

// Flush drops every frame in the pipeline and waits until it is idle.
func (p *Processor) Flush(ctx context.Context) error {
	if err := p.checkNotReleased(); err != nil {
		return err
	}
	if err := p.exec.Invoke(ctx, func() error {
		p.final.Flush()
		return nil
	}); err != nil {
		return err
	}
	return p.exec.WaitIdle(ctx)
}

// WaitIdle blocks until the execution queue is empty.
func (p *Processor) WaitIdle(ctx context.Context) error {
	return p.exec.WaitIdle(ctx)
}

// Status returns a snapshot of the pipeline.
func (p *Processor) Status() Status {
	p.mu.Lock()
	status := Status{OutputFrames: p.outputFrames, Released: p.released}
	p.mu.Unlock()

	if active, ok := p.switcher.ActiveInputType(); ok {
		status.ActiveInput = active.String()
	}
	for _, in := range p.switcher.Inputs() {
		status.Inputs = append(status.Inputs, InputStatus{
			InputType:     in.InputType.String(),
			Active:        in.Active,
			PendingFrames: in.PendingFrames,
		})
	}
	return status
}

// Release tears the pipeline down. Later calls are no-ops.
func (p *Processor) Release(ctx context.Context) error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return nil
	}
	p.released = true
	p.mu.Unlock()

	start := time.Now()
	err := p.exec.Release(ctx, func() error {
		var errs []error
		if p.switcher != nil {
			errs = append(errs, p.switcher.Release())
		}
		if p.effect != nil {
			errs = append(errs, p.effect.Release())
		}
		if p.final != nil {
			errs = append(errs, p.final.Release())
		}
		return errors.Join(errs...)
	})
	p.logger.Info("Pipeline released", "duration", time.Since(start), "error", err)
	return err
}

func (p *Processor) activeManager(want types.InputType) (texture.Manager, error) {
	if err := p.checkNotReleased(); err != nil {
		return nil, err
	}
	active, ok := p.switcher.ActiveInputType()
	if !ok || active != want {
		return nil, types.NewProcessingError(types.ErrCodeIllegalState,
			fmt.Sprintf("active input is not %s", want), nil)
	}
	return p.switcher.ActiveManager()
}

func (p *Processor) checkNotReleased() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return types.NewProcessingError(types.ErrCodeReleased, "processor is released", nil)
	}
	return nil
}

// onError reports an asynchronous failure. It runs on the listener runner.
func (p *Processor) onError(err error) {
	code := types.ErrCodeProcessingFailed
	var pe *types.ProcessingError
	if errors.As(err, &pe) {
		code = pe.Code
	}
	p.logger.Error("Processing failed", "code", code, "error", err)
	metrics.IncProcessingErrors(code)
	p.opts.EventBus.Publish(events.ProcessingErrorEvent{
		Code:      code,
		Message:   err.Error(),
		Timestamp: time.Now().Format(time.RFC3339),
	})
	p.listener.OnError(err)
}

// frameSink adapts the final program's output to the Listener.
type frameSink struct {
	p *Processor
}

func (s frameSink) OnOutputFrameAvailable(frame shader.OutputFrame) {
	s.p.mu.Lock()
	s.p.outputFrames++
	s.p.mu.Unlock()
	metrics.IncOutputFrames()
	s.p.listener.OnOutputFrameAvailable(frame)
}

func (s frameSink) OnCurrentInputStreamEnded() {
	s.p.listener.OnEnded()
}
