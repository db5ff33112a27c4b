package shader

import (
	"image"
	"log/slog"

	"github.com/smazurov/videofx/internal/executor"
	"github.com/smazurov/videofx/internal/glutil"
)

// OutputFrame is a processed frame handed out of the pipeline.
type OutputFrame struct {
	PresentationTimeUs int64
	Image              *image.RGBA
}

// FrameListener receives the pipeline output.
type FrameListener interface {
	OnOutputFrameAvailable(frame OutputFrame)
	OnCurrentInputStreamEnded()
}

// FinalProgram is the last stage of a pipeline. It copies each input into
// an OutputFrame, hands it to the frame listener and returns the input
// immediately.
type FinalProgram struct {
	provider      glutil.ObjectsProvider
	listener      FrameListener
	runner        executor.Runner
	capacity      int
	inputListener InputListener
	errors        errorReporter
	logger        *slog.Logger
}

// NewFinalProgram creates a final program delivering frames to listener on runner.
func NewFinalProgram(provider glutil.ObjectsProvider, listener FrameListener, runner executor.Runner, logger *slog.Logger) *FinalProgram {
	if runner == nil {
		runner = executor.Inline
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FinalProgram{
		provider:      provider,
		listener:      listener,
		runner:        runner,
		capacity:      1,
		inputListener: nopInputListener{},
		logger:        logger.With("program", "final"),
	}
}

// SetInputListener implements Program.
func (p *FinalProgram) SetInputListener(listener InputListener) {
	if listener == nil {
		listener = nopInputListener{}
	}
	p.inputListener = listener
	for i := 0; i < p.capacity; i++ {
		listener.OnReadyToAcceptInputFrame()
	}
}

// SetOutputListener implements Program. The final program has no texture output.
func (p *FinalProgram) SetOutputListener(_ OutputListener) {}

// SetErrorListener implements Program.
func (p *FinalProgram) SetErrorListener(runner executor.Runner, listener ErrorListener) {
	p.errors.set(runner, listener)
}

// QueueInputFrame implements Program.
func (p *FinalProgram) QueueInputFrame(input glutil.TextureInfo, presentationTimeUs int64) {
	pix, err := p.provider.Pixels(input.TexID)
	if err != nil {
		p.errors.report(err)
		return
	}
	frame := OutputFrame{
		PresentationTimeUs: presentationTimeUs,
		Image:              cloneRGBA(pix),
	}
	if p.listener != nil {
		listener := p.listener
		p.runner.Run(func() { listener.OnOutputFrameAvailable(frame) })
	}
	p.inputListener.OnInputFrameProcessed(input)
	p.inputListener.OnReadyToAcceptInputFrame()
}

// ReleaseOutputFrame implements Program.
func (p *FinalProgram) ReleaseOutputFrame(_ glutil.TextureInfo) {}

// SignalEndOfCurrentInputStream implements Program.
func (p *FinalProgram) SignalEndOfCurrentInputStream() {
	p.logger.Debug("Input stream ended")
	if p.listener != nil {
		listener := p.listener
		p.runner.Run(listener.OnCurrentInputStreamEnded)
	}
}

// Flush implements Program.
func (p *FinalProgram) Flush() {
	p.inputListener.OnFlush()
	for i := 0; i < p.capacity; i++ {
		p.inputListener.OnReadyToAcceptInputFrame()
	}
}

// Release implements Program.
func (p *FinalProgram) Release() error { return nil }

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}
