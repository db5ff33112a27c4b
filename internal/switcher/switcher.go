// Package switcher selects which registered input feeds the downstream
// program.
//
// Each registered input type owns a sampling program and a frame source
// manager. Switching builds a fresh gate between the selected sampler and
// the downstream program and closes every other gate, so at most one input
// reaches the downstream program at a time. All methods except the read
// only accessors must run on the processing executor.
package switcher

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/videofx/internal/events"
	"github.com/smazurov/videofx/internal/executor"
	"github.com/smazurov/videofx/internal/glutil"
	"github.com/smazurov/videofx/internal/metrics"
	"github.com/smazurov/videofx/internal/shader"
	"github.com/smazurov/videofx/internal/texture"
	"github.com/smazurov/videofx/internal/types"
)

// Options configures a Switcher.
type Options struct {
	OutputColor types.ColorInfo
	Provider    glutil.ObjectsProvider
	Executor    shader.Submitter

	// ErrorListener receives sampler errors on ErrorRunner.
	ErrorRunner   executor.Runner
	ErrorListener shader.ErrorListener

	EnableColorTransfers bool

	// SurfaceCapacity is passed to the surface manager.
	SurfaceCapacity int

	// EventBus receives registration, switch and drop events (optional).
	EventBus *events.Bus

	// Logger for switcher diagnostics. If nil, uses slog.Default().
	Logger *slog.Logger
}

// input is one registered input type.
type input struct {
	inputType types.InputType
	manager   texture.Manager
	sampler   *shader.DefaultProgram
	gate      *gatedListener
}

func (in *input) setActive(active bool) {
	if in.gate != nil {
		in.gate.SetActive(active)
	}
}

func (in *input) release() error {
	return errors.Join(in.manager.Release(), in.sampler.Release())
}

// InputState describes one registered input.
type InputState struct {
	InputType     types.InputType
	Active        bool
	PendingFrames int
}

// Switcher owns one sampler and manager per registered input type.
type Switcher struct {
	opts   Options
	logger *slog.Logger

	mu         sync.RWMutex
	inputs     map[types.InputType]*input
	downstream shader.Program
	active     *input
	released   bool
}

// New creates a Switcher.
func New(opts Options) (*Switcher, error) {
	if opts.Provider == nil || opts.Executor == nil {
		return nil, errors.New("switcher: Options.Provider and Options.Executor are required")
	}
	if opts.ErrorRunner == nil {
		opts.ErrorRunner = executor.Goroutine
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Switcher{
		opts:   opts,
		logger: logger,
		inputs: make(map[types.InputType]*input),
	}, nil
}

// RegisterInput creates the sampler and manager for inputType, replacing
// and releasing an earlier registration of the same type. An unsupported
// type leaves every registration untouched.
func (s *Switcher) RegisterInput(inputColor types.ColorInfo, inputType types.InputType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return types.NewProcessingError(types.ErrCodeReleased, "switcher is released", nil)
	}

	in, err := s.newInput(inputColor, inputType)
	if err != nil {
		return err
	}

	old, replaced := s.inputs[inputType]
	if replaced {
		old.setActive(false)
		if s.active == old {
			s.active = nil
			s.logger.Warn("Active input replaced, switch again to resume", "input_type", inputType.String())
		}
		if releaseErr := old.release(); releaseErr != nil {
			s.logger.Warn("Failed to release replaced input", "input_type", inputType.String(), "error", releaseErr)
		}
	}
	s.inputs[inputType] = in
	// Until the first switch to this input its outputs are dropped.
	in.gate = s.newGate(in)
	in.sampler.SetOutputListener(in.gate)
	in.sampler.SetInputListener(in.manager)

	metrics.IncRegistrations(inputType.String())
	s.opts.EventBus.Publish(events.InputRegisteredEvent{
		InputType: inputType.String(),
		Replaced:  replaced,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	s.logger.Info("Input registered", "input_type", inputType.String(), "replaced", replaced)
	return nil
}

// newInput builds the sampler and manager pair, releasing the sampler if
// the manager cannot be built.
func (s *Switcher) newInput(inputColor types.ColorInfo, inputType types.InputType) (*input, error) {
	samplerOpts := shader.Options{
		Provider:             s.opts.Provider,
		InputColor:           inputColor,
		OutputColor:          s.opts.OutputColor,
		EnableColorTransfers: s.opts.EnableColorTransfers,
		Logger:               s.logger,
	}
	managerOpts := texture.Options{
		Provider:        s.opts.Provider,
		Submitter:       s.opts.Executor,
		SurfaceCapacity: s.opts.SurfaceCapacity,
		Logger:          s.logger,
	}

	var sampler *shader.DefaultProgram
	var err error
	switch inputType {
	case types.InputTypeSurface:
		sampler, err = shader.NewExternalSampler(samplerOpts)
	case types.InputTypeBitmap, types.InputTypeTextureID:
		sampler, err = shader.NewInternalSampler(inputType, samplerOpts)
	default:
		return nil, types.NewProcessingError(types.ErrCodeUnsupportedInput,
			fmt.Sprintf("unsupported input type %d", int(inputType)), nil)
	}
	if err != nil {
		return nil, err
	}
	sampler.SetErrorListener(s.opts.ErrorRunner, s.opts.ErrorListener)
	managerOpts.Sampler = sampler

	var manager texture.Manager
	switch inputType {
	case types.InputTypeSurface:
		manager, err = texture.NewExternalManager(managerOpts)
	case types.InputTypeBitmap:
		manager, err = texture.NewBitmapManager(managerOpts)
	default:
		manager, err = texture.NewTextureIDManager(managerOpts)
	}
	if err != nil {
		return nil, errors.Join(err, sampler.Release())
	}
	return &input{inputType: inputType, manager: manager, sampler: sampler}, nil
}

// SetDownstreamProgram sets the program receiving the active input's frames.
func (s *Switcher) SetDownstreamProgram(p shader.Program) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downstream = p
}

// SwitchToInput makes inputType the active input and hands info to its
// manager. Switching to the active type again rebuilds its gate.
func (s *Switcher) SwitchToInput(inputType types.InputType, info types.FrameInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.downstream == nil {
		return types.NewProcessingError(types.ErrCodeIllegalState,
			"downstream program must be set before switching input", nil)
	}
	next, ok := s.inputs[inputType]
	if !ok {
		return types.NewProcessingError(types.ErrCodeNotRegistered,
			fmt.Sprintf("input type %s is not registered", inputType), nil)
	}

	// Close every gate before opening the new one.
	for _, in := range s.inputs {
		in.setActive(false)
	}

	previous := s.active
	gate := s.newGate(next)
	next.gate = gate
	next.sampler.SetOutputListener(gate)
	gate.SetActive(true)
	s.downstream.SetInputListener(gate)
	s.active = next
	next.manager.SetInputFrameInfo(info)

	metrics.SetActiveInput(inputType.String(), s.registeredNamesLocked())
	ev := events.InputSwitchedEvent{
		InputType: inputType.String(),
		Width:     info.Width,
		Height:    info.Height,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if previous != nil {
		ev.Previous = previous.inputType.String()
	}
	s.opts.EventBus.Publish(ev)
	s.logger.Info("Switched input", "input_type", inputType.String(), "previous", ev.Previous,
		"width", info.Width, "height", info.Height)
	return nil
}

func (s *Switcher) newGate(in *input) *gatedListener {
	return newGatedListener(in.inputType, in.sampler, s.downstream, s.opts.Executor,
		s.returnForeignTexture, s.opts.EventBus, s.logger.With("input_type", in.inputType.String()))
}

// returnForeignTexture releases a downstream-processed texture to the
// sampler that produced it, on the executor.
func (s *Switcher) returnForeignTexture(tex glutil.TextureInfo) {
	s.opts.Executor.Submit(func() error {
		s.mu.RLock()
		var owner *shader.DefaultProgram
		for _, in := range s.inputs {
			if in.sampler.Owns(tex) {
				owner = in.sampler
				break
			}
		}
		s.mu.RUnlock()
		if owner == nil {
			s.logger.Debug("No sampler owns processed texture", "tex_id", tex.TexID)
			return nil
		}
		owner.ReleaseOutputFrame(tex)
		return nil
	})
}

// ActiveManager returns the manager of the active input.
func (s *Switcher) ActiveManager() (texture.Manager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return nil, types.NewProcessingError(types.ErrCodeIllegalState, "no input is active", nil)
	}
	return s.active.manager, nil
}

// ActiveInputType returns the active input type, false before the first switch.
func (s *Switcher) ActiveInputType() (types.InputType, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return 0, false
	}
	return s.active.inputType, true
}

// RegisteredInputTypes returns the registered input types in ascending order.
func (s *Switcher) RegisteredInputTypes() []types.InputType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]types.InputType, 0, len(s.inputs))
	for t := range s.inputs {
		result = append(result, t)
	}
	slices.Sort(result)
	return result
}

// Inputs returns the state of every registered input in ascending type order.
func (s *Switcher) Inputs() []InputState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	states := make([]InputState, 0, len(s.inputs))
	for _, in := range s.inputs {
		states = append(states, InputState{
			InputType:     in.inputType,
			Active:        in.gate != nil && in.gate.Active(),
			PendingFrames: in.manager.PendingFrameCount(),
		})
	}
	slices.SortFunc(states, func(a, b InputState) int { return int(a.InputType) - int(b.InputType) })
	return states
}

// SignalEndOfActiveStream ends the stream of the active input only.
func (s *Switcher) SignalEndOfActiveStream() error {
	manager, err := s.ActiveManager()
	if err != nil {
		return err
	}
	manager.SignalEndOfCurrentInputStream()
	return nil
}

// InputSurface returns the surface of the surface input, whichever input
// is active.
func (s *Switcher) InputSurface() (*texture.Surface, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.inputs[types.InputTypeSurface]
	if !ok {
		return nil, types.NewProcessingError(types.ErrCodeIllegalState,
			"surface input is not registered", nil)
	}
	return in.manager.(*texture.ExternalManager).Surface(), nil
}

// Manager returns the manager registered for inputType.
func (s *Switcher) Manager(inputType types.InputType) (texture.Manager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.inputs[inputType]
	if !ok {
		return nil, types.NewProcessingError(types.ErrCodeNotRegistered,
			fmt.Sprintf("input type %s is not registered", inputType), nil)
	}
	return in.manager, nil
}

// Release releases every registered input. Later calls are no-ops.
func (s *Switcher) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true

	var errs []error
	for t, in := range s.inputs {
		in.setActive(false)
		if err := in.release(); err != nil {
			errs = append(errs, fmt.Errorf("release %s input: %w", t, err))
		}
	}
	s.inputs = make(map[types.InputType]*input)
	s.active = nil
	return errors.Join(errs...)
}

func (s *Switcher) registeredNamesLocked() []string {
	names := make([]string, 0, len(s.inputs))
	for t := range s.inputs {
		names = append(names, t.String())
	}
	return names
}
