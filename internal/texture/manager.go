// Package texture contains the frame source managers that feed a sampling
// program with frames of one input type.
//
// Producers call a manager from any goroutine. Every texture operation and
// every call into the sampler happens on the processing executor; manager
// callbacks only record state and submit work, so the sampler is never
// re-entered from its own listener calls.
package texture

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"golang.org/x/image/draw"

	"github.com/smazurov/videofx/internal/glutil"
	"github.com/smazurov/videofx/internal/metrics"
	"github.com/smazurov/videofx/internal/shader"
	"github.com/smazurov/videofx/internal/types"
)

// Manager is the input listener of a sampling program and the source of its frames.
type Manager interface {
	shader.InputListener

	// SetInputFrameInfo applies to frames queued after the call and starts
	// a new stream segment for presentation time ordering.
	SetInputFrameInfo(info types.FrameInfo)
	// SignalEndOfCurrentInputStream ends the stream once every queued frame was processed.
	SignalEndOfCurrentInputStream()
	// PendingFrameCount returns frames queued but not yet processed by the sampler.
	PendingFrameCount() int
	InputType() types.InputType
	Release() error
}

// Options configures a manager.
type Options struct {
	Provider  glutil.ObjectsProvider
	Sampler   shader.Program
	Submitter shader.Submitter

	// SurfaceCapacity bounds the frames a Surface buffers before Draw
	// blocks. Defaults to DefaultSurfaceCapacity. Ignored by other managers.
	SurfaceCapacity int

	// Logger for manager diagnostics. If nil, uses slog.Default().
	Logger *slog.Logger
}

// base holds the state shared by every manager. Fields below mu are
// guarded by it.
type base struct {
	inputType types.InputType
	provider  glutil.ObjectsProvider
	sampler   shader.Program
	submitter shader.Submitter
	logger    *slog.Logger

	mu           sync.Mutex
	capacity     int
	frameInfo    types.FrameInfo
	lastPts      int64
	hasLastPts   bool
	endRequested bool
	released     bool
}

func (b *base) init(inputType types.InputType, opts Options) error {
	if opts.Provider == nil || opts.Sampler == nil || opts.Submitter == nil {
		return fmt.Errorf("texture: %s manager requires Provider, Sampler and Submitter", inputType)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b.inputType = inputType
	b.provider = opts.Provider
	b.sampler = opts.Sampler
	b.submitter = opts.Submitter
	b.logger = logger.With("input_type", inputType.String())
	return nil
}

// InputType implements Manager.
func (b *base) InputType() types.InputType { return b.inputType }

// SetInputFrameInfo implements Manager.
func (b *base) SetInputFrameInfo(info types.FrameInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frameInfo = info
	b.hasLastPts = false
	b.logger.Debug("Frame info set", "width", info.Width, "height", info.Height, "offset_us", info.OffsetToAddUs)
}

// checkOrderLocked records presentationTimeUs as the latest of the segment,
// rejecting a time before the previous one.
func (b *base) checkOrderLocked(presentationTimeUs int64) error {
	if b.hasLastPts && presentationTimeUs < b.lastPts {
		return types.NewProcessingError(types.ErrCodeFrameOrder,
			fmt.Sprintf("%s frame at %dus queued after %dus", b.inputType, presentationTimeUs, b.lastPts), nil)
	}
	b.lastPts = presentationTimeUs
	b.hasLastPts = true
	return nil
}

func (b *base) releasedError() error {
	return types.NewProcessingError(types.ErrCodeReleased,
		fmt.Sprintf("%s manager is released", b.inputType), nil)
}

// takeEndOfStreamLocked reports whether a requested end of stream can be
// signalled now that drained is true, clearing the request if so.
func (b *base) takeEndOfStreamLocked(drained bool) bool {
	if !b.endRequested || !drained {
		return false
	}
	b.endRequested = false
	return true
}

func (b *base) countQueued() {
	metrics.IncFramesQueued(b.inputType.String())
}

// uploadTexture copies pixels into a new input texture.
func uploadTexture(provider glutil.ObjectsProvider, pixels *image.RGBA) (glutil.TextureInfo, error) {
	bounds := pixels.Bounds()
	id, err := provider.CreateTexture(bounds.Dx(), bounds.Dy())
	if err != nil {
		return glutil.UnsetTexture, err
	}
	tex := glutil.NewTextureInfo(id, glutil.IndexUnset, glutil.IndexUnset, bounds.Dx(), bounds.Dy())
	if err := glutil.Upload(provider, id, pixels); err != nil {
		return glutil.UnsetTexture, errors.Join(err, tex.Release(provider))
	}
	return tex, nil
}

// copyImage returns a copy of img with its origin at (0, 0).
func copyImage(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return dst
}
