package switcher

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/videofx/internal/events"
	"github.com/smazurov/videofx/internal/glutil"
	"github.com/smazurov/videofx/internal/metrics"
	"github.com/smazurov/videofx/internal/shader"
	"github.com/smazurov/videofx/internal/types"
)

// Suppressed callback names, used as metric labels and in dropped frame events.
const (
	callbackReady           = "ready_to_accept_input_frame"
	callbackProcessed       = "input_frame_processed"
	callbackFlush           = "flush"
	callbackOutputAvailable = "output_frame_available"
	callbackStreamEnded     = "current_output_stream_ended"
)

// samplingProgram is a sampler that can tell which outputs it handed out.
type samplingProgram interface {
	shader.Program
	Owns(output glutil.TextureInfo) bool
}

// gatedListener forwards events between a sampler and the downstream
// program only while active. Events arriving while inactive are dropped
// and never replayed. Flush, output and end of stream callbacks are
// serialized with SetActive.
type gatedListener struct {
	inputType types.InputType
	producer  samplingProgram
	chaining  *shader.ChainingListener
	submitter shader.Submitter
	// foreign returns a texture the producer does not own to its owner.
	foreign func(glutil.TextureInfo)
	bus     *events.Bus
	logger  *slog.Logger

	active atomic.Bool
	mu     sync.Mutex
}

func newGatedListener(inputType types.InputType, producer samplingProgram, consumer shader.Program,
	submitter shader.Submitter, foreign func(glutil.TextureInfo), bus *events.Bus, logger *slog.Logger) *gatedListener {
	return &gatedListener{
		inputType: inputType,
		producer:  producer,
		chaining:  shader.NewChainingListener(producer, consumer, submitter),
		submitter: submitter,
		foreign:   foreign,
		bus:       bus,
		logger:    logger,
	}
}

// SetActive opens or closes the gate. Closing it returns buffered outputs
// to the producer.
func (g *gatedListener) SetActive(active bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active.Store(active)
	if active {
		return
	}
	if dropped := g.chaining.ReleasePending(); dropped > 0 {
		g.logger.Debug("Dropped buffered frames on deactivation", "count", dropped)
		for i := 0; i < dropped; i++ {
			g.suppressed(callbackOutputAvailable, 0)
		}
	}
}

// Active reports whether the gate is open.
func (g *gatedListener) Active() bool {
	return g.active.Load()
}

// OnReadyToAcceptInputFrame implements shader.InputListener.
func (g *gatedListener) OnReadyToAcceptInputFrame() {
	if !g.active.Load() {
		g.suppressed(callbackReady, 0)
		return
	}
	g.chaining.OnReadyToAcceptInputFrame()
}

// OnInputFrameProcessed implements shader.InputListener. A frame sent
// through a previous gate goes back to the sampler that produced it.
func (g *gatedListener) OnInputFrameProcessed(input glutil.TextureInfo) {
	if !g.active.Load() {
		g.suppressed(callbackProcessed, 0)
		return
	}
	if !g.producer.Owns(input) && g.foreign != nil {
		g.foreign(input)
		return
	}
	g.chaining.OnInputFrameProcessed(input)
}

// OnFlush implements shader.InputListener.
func (g *gatedListener) OnFlush() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.active.Load() {
		g.suppressed(callbackFlush, 0)
		return
	}
	g.chaining.OnFlush()
}

// OnOutputFrameAvailable implements shader.OutputListener. A suppressed
// output is returned to the producer so its texture pool does not run dry.
func (g *gatedListener) OnOutputFrameAvailable(output glutil.TextureInfo, presentationTimeUs int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.active.Load() {
		g.suppressed(callbackOutputAvailable, presentationTimeUs)
		g.submitter.Submit(func() error {
			g.producer.ReleaseOutputFrame(output)
			return nil
		})
		return
	}
	g.chaining.OnOutputFrameAvailable(output, presentationTimeUs)
}

// OnCurrentOutputStreamEnded implements shader.OutputListener.
func (g *gatedListener) OnCurrentOutputStreamEnded() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.active.Load() {
		g.suppressed(callbackStreamEnded, 0)
		return
	}
	g.chaining.OnCurrentOutputStreamEnded()
	g.bus.Publish(events.StreamEndedEvent{
		InputType: g.inputType.String(),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (g *gatedListener) suppressed(callback string, presentationTimeUs int64) {
	g.logger.Debug("Suppressed event on inactive gate", "callback", callback, "pts_us", presentationTimeUs)
	metrics.IncGateSuppressed(g.inputType.String(), callback)
	g.bus.Publish(events.FrameDroppedEvent{
		InputType:          g.inputType.String(),
		Callback:           callback,
		PresentationTimeUs: presentationTimeUs,
		Timestamp:          time.Now().Format(time.RFC3339),
	})
}
