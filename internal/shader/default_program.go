package shader

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"golang.org/x/image/draw"

	"github.com/smazurov/videofx/internal/executor"
	"github.com/smazurov/videofx/internal/glutil"
	"github.com/smazurov/videofx/internal/types"
)

// SamplerKind selects how a DefaultProgram reads its input.
type SamplerKind int

// Sampler kinds.
const (
	// SamplerInternal reads textures produced inside the pipeline or by the caller.
	SamplerInternal SamplerKind = iota
	// SamplerExternal reads frames latched from an input surface.
	SamplerExternal
)

func (k SamplerKind) String() string {
	if k == SamplerExternal {
		return "external"
	}
	return "internal"
}

// RGBMatrix is a row-major 4x4 matrix applied to normalized (r, g, b, a).
type RGBMatrix [16]float32

// IdentityMatrix leaves colours untouched.
var IdentityMatrix = RGBMatrix{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

// GrayscaleMatrix converts to BT.709 luma.
var GrayscaleMatrix = RGBMatrix{
	0.2126, 0.7152, 0.0722, 0,
	0.2126, 0.7152, 0.0722, 0,
	0.2126, 0.7152, 0.0722, 0,
	0, 0, 0, 1,
}

// Options configures a DefaultProgram.
type Options struct {
	Provider             glutil.ObjectsProvider
	InputColor           types.ColorInfo
	OutputColor          types.ColorInfo
	EnableColorTransfers bool
	RGBMatrices          []RGBMatrix

	// OutputWidth and OutputHeight fix the output size. types.LengthUnset
	// (or zero) keeps the input size.
	OutputWidth  int
	OutputHeight int

	// Capacity is the number of output textures, 1 if unset.
	Capacity int

	// Logger for program diagnostics. If nil, uses slog.Default().
	Logger *slog.Logger
}

// DefaultProgram samples its input into an internal RGBA texture, optionally
// scaling it, expanding limited range input and applying RGB matrices.
type DefaultProgram struct {
	name        string
	sampler     SamplerKind
	inputType   types.InputType
	opts        Options
	expandRange bool
	logger      *slog.Logger

	pool           *TexturePool
	inputListener  InputListener
	outputListener OutputListener
	errors         errorReporter
	released       bool
}

// NewExternalSampler creates the sampling program for surface input.
func NewExternalSampler(opts Options) (*DefaultProgram, error) {
	p, err := newDefaultProgram("external-sampler", SamplerExternal, opts)
	if err != nil {
		return nil, err
	}
	p.inputType = types.InputTypeSurface
	// Decoders emit limited range YUV; the internal format is full range RGB.
	p.expandRange = opts.EnableColorTransfers &&
		opts.InputColor.Range == types.ColorRangeLimited &&
		opts.OutputColor.Range != types.ColorRangeLimited
	return p, nil
}

// NewInternalSampler creates the sampling program for bitmap or texture id input.
func NewInternalSampler(inputType types.InputType, opts Options) (*DefaultProgram, error) {
	if inputType != types.InputTypeBitmap && inputType != types.InputTypeTextureID {
		return nil, types.NewProcessingError(types.ErrCodeUnsupportedInput,
			fmt.Sprintf("internal sampler does not support input type %s", inputType), nil)
	}
	p, err := newDefaultProgram("internal-sampler", SamplerInternal, opts)
	if err != nil {
		return nil, err
	}
	p.inputType = inputType
	return p, nil
}

// NewEffect creates an effect program applying the configured matrices.
func NewEffect(name string, opts Options) (*DefaultProgram, error) {
	return newDefaultProgram(name, SamplerInternal, opts)
}

func newDefaultProgram(name string, sampler SamplerKind, opts Options) (*DefaultProgram, error) {
	if opts.Provider == nil {
		return nil, errors.New("shader: Options.Provider is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.InputColor.IsTransferHDR() && !opts.EnableColorTransfers {
		logger.Warn("HDR input without colour transfers, output keeps the input transfer",
			"program", name)
	}

	return &DefaultProgram{
		name:           name,
		sampler:        sampler,
		opts:           opts,
		logger:         logger.With("program", name),
		pool:           NewTexturePool(opts.Capacity),
		inputListener:  nopInputListener{},
		outputListener: nopOutputListener{},
	}, nil
}

// Name returns the program name used in logs.
func (p *DefaultProgram) Name() string { return p.name }

// Sampler returns how the program reads its input.
func (p *DefaultProgram) Sampler() SamplerKind { return p.sampler }

// InputType returns the input type sampled by the program, zero for effects.
func (p *DefaultProgram) InputType() types.InputType { return p.inputType }

// SetInputListener implements Program. The listener is immediately told
// about every free input slot.
func (p *DefaultProgram) SetInputListener(listener InputListener) {
	if listener == nil {
		listener = nopInputListener{}
	}
	p.inputListener = listener
	for i := 0; i < p.pool.FreeCount(); i++ {
		listener.OnReadyToAcceptInputFrame()
	}
}

// SetOutputListener implements Program.
func (p *DefaultProgram) SetOutputListener(listener OutputListener) {
	if listener == nil {
		listener = nopOutputListener{}
	}
	p.outputListener = listener
}

// SetErrorListener implements Program.
func (p *DefaultProgram) SetErrorListener(runner executor.Runner, listener ErrorListener) {
	p.errors.set(runner, listener)
}

// QueueInputFrame implements Program.
func (p *DefaultProgram) QueueInputFrame(input glutil.TextureInfo, presentationTimeUs int64) {
	if p.released {
		p.logger.Debug("Ignoring frame queued after release", "pts_us", presentationTimeUs)
		return
	}
	width, height := p.outputSize(input.Width, input.Height)
	if err := p.pool.EnsureConfigured(p.opts.Provider, width, height); err != nil {
		p.errors.report(err)
		return
	}
	output, err := p.pool.Use()
	if err != nil {
		p.errors.report(err)
		return
	}
	if renderErr := p.render(input, output); renderErr != nil {
		_ = p.pool.Free(p.opts.Provider, output)
		p.errors.report(types.NewProcessingError(types.ErrCodeGL,
			fmt.Sprintf("%s failed to render frame at %dus", p.name, presentationTimeUs), renderErr))
		return
	}

	p.inputListener.OnInputFrameProcessed(input)
	p.outputListener.OnOutputFrameAvailable(output, presentationTimeUs)
}

// ReleaseOutputFrame implements Program.
func (p *DefaultProgram) ReleaseOutputFrame(output glutil.TextureInfo) {
	if p.released {
		return
	}
	if !p.pool.IsInUse(output) {
		// Returned after a flush already reclaimed it.
		p.logger.Debug("Ignoring release of texture not in use", "tex_id", output.TexID)
		return
	}
	if err := p.pool.Free(p.opts.Provider, output); err != nil {
		p.errors.report(err)
		return
	}
	p.inputListener.OnReadyToAcceptInputFrame()
}

// Owns reports whether output was produced by p and not yet released.
func (p *DefaultProgram) Owns(output glutil.TextureInfo) bool {
	return p.pool.IsInUse(output)
}

// SignalEndOfCurrentInputStream implements Program.
func (p *DefaultProgram) SignalEndOfCurrentInputStream() {
	p.outputListener.OnCurrentOutputStreamEnded()
}

// Flush implements Program.
func (p *DefaultProgram) Flush() {
	if err := p.pool.FreeAll(p.opts.Provider); err != nil {
		p.errors.report(err)
	}
	p.inputListener.OnFlush()
	for i := 0; i < p.pool.FreeCount(); i++ {
		p.inputListener.OnReadyToAcceptInputFrame()
	}
}

// Release implements Program.
func (p *DefaultProgram) Release() error {
	if p.released {
		return nil
	}
	p.released = true
	return p.pool.DeleteAll(p.opts.Provider)
}

func (p *DefaultProgram) outputSize(inputWidth, inputHeight int) (int, int) {
	width, height := inputWidth, inputHeight
	if p.opts.OutputWidth > 0 {
		width = p.opts.OutputWidth
	}
	if p.opts.OutputHeight > 0 {
		height = p.opts.OutputHeight
	}
	return width, height
}

func (p *DefaultProgram) render(input, output glutil.TextureInfo) error {
	src, err := p.opts.Provider.Pixels(input.TexID)
	if err != nil {
		return err
	}
	dst, err := p.opts.Provider.Pixels(output.TexID)
	if err != nil {
		return err
	}

	if src.Bounds().Size() == dst.Bounds().Size() {
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	} else {
		draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	}

	if p.expandRange {
		expandLimitedRange(dst)
	}
	for _, m := range p.opts.RGBMatrices {
		applyMatrix(dst, m)
	}
	return nil
}

func expandLimitedRange(img *image.RGBA) {
	for i := 0; i < len(img.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			v := (float32(img.Pix[i+c]) - 16) * 255 / 219
			img.Pix[i+c] = clampByte(v)
		}
	}
}

func applyMatrix(img *image.RGBA, m RGBMatrix) {
	for i := 0; i < len(img.Pix); i += 4 {
		in := [4]float32{
			float32(img.Pix[i]) / 255,
			float32(img.Pix[i+1]) / 255,
			float32(img.Pix[i+2]) / 255,
			float32(img.Pix[i+3]) / 255,
		}
		for row := 0; row < 4; row++ {
			v := m[row*4]*in[0] + m[row*4+1]*in[1] + m[row*4+2]*in[2] + m[row*4+3]*in[3]
			img.Pix[i+row] = clampByte(v * 255)
		}
	}
}

func clampByte(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
