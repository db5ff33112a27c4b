package texture

import (
	"context"
	"image"
	"sync"

	"github.com/smazurov/videofx/internal/glutil"
	"github.com/smazurov/videofx/internal/types"
)

// DefaultSurfaceCapacity is the number of frames a Surface buffers by default.
const DefaultSurfaceCapacity = 3

// surfaceFrame is a drawn frame waiting for the sampler.
type surfaceFrame struct {
	pixels             *image.RGBA
	presentationTimeUs int64
	offsetUs           int64
}

// Surface is the producer side of an ExternalManager. Decoders draw frames
// into it from their own goroutines.
type Surface struct {
	manager   *ExternalManager
	slots     chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// Draw copies img into the surface queue. It blocks while the queue is
// full, until a slot frees up, ctx is done or the surface is released.
func (s *Surface) Draw(ctx context.Context, img image.Image, presentationTimeUs int64) error {
	select {
	case <-s.closed:
		return s.manager.releasedError()
	default:
	}

	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return s.manager.releasedError()
	}

	frame := surfaceFrame{pixels: copyImage(img), presentationTimeUs: presentationTimeUs}
	if err := s.manager.enqueue(frame); err != nil {
		s.freeSlot()
		return err
	}
	return nil
}

// Capacity returns how many frames the surface buffers before Draw blocks.
func (s *Surface) Capacity() int { return cap(s.slots) }

func (s *Surface) freeSlot() {
	select {
	case <-s.slots:
	default:
	}
}

func (s *Surface) close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// ExternalManager feeds surface frames to the external sampler, one at a
// time. The frame info in effect when a frame is drawn applies to it.
type ExternalManager struct {
	base
	surface *Surface

	// guarded by base.mu
	queue       []surfaceFrame
	inFlight    bool
	externalTex glutil.TextureInfo
}

// NewExternalManager creates the manager and its surface.
func NewExternalManager(opts Options) (*ExternalManager, error) {
	m := &ExternalManager{externalTex: glutil.UnsetTexture}
	if err := m.base.init(types.InputTypeSurface, opts); err != nil {
		return nil, err
	}
	capacity := opts.SurfaceCapacity
	if capacity < 1 {
		capacity = DefaultSurfaceCapacity
	}
	m.surface = &Surface{
		manager: m,
		slots:   make(chan struct{}, capacity),
		closed:  make(chan struct{}),
	}
	return m, nil
}

// Surface returns the surface producers draw into. It is the same for the
// lifetime of the manager.
func (m *ExternalManager) Surface() *Surface { return m.surface }

func (m *ExternalManager) enqueue(frame surfaceFrame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return m.releasedError()
	}
	if err := m.checkOrderLocked(frame.presentationTimeUs); err != nil {
		return err
	}
	frame.offsetUs = m.frameInfo.OffsetToAddUs
	m.queue = append(m.queue, frame)
	m.submitter.Submit(m.maybeQueueFrame)
	return nil
}

// OnReadyToAcceptInputFrame implements shader.InputListener.
func (m *ExternalManager) OnReadyToAcceptInputFrame() {
	m.mu.Lock()
	m.capacity++
	m.mu.Unlock()
	m.submitter.Submit(m.maybeQueueFrame)
}

// OnInputFrameProcessed implements shader.InputListener.
func (m *ExternalManager) OnInputFrameProcessed(_ glutil.TextureInfo) {
	m.mu.Lock()
	m.inFlight = false
	m.mu.Unlock()
	m.submitter.Submit(m.maybeQueueFrame)
}

// OnFlush implements shader.InputListener. Drawn frames not yet sampled are dropped.
func (m *ExternalManager) OnFlush() {
	m.mu.Lock()
	dropped := len(m.queue)
	m.queue = nil
	m.inFlight = false
	m.capacity = 0
	m.mu.Unlock()

	for i := 0; i < dropped; i++ {
		m.surface.freeSlot()
	}
	if dropped > 0 {
		m.logger.Debug("Dropped surface frames on flush", "count", dropped)
	}
}

// SignalEndOfCurrentInputStream implements Manager.
func (m *ExternalManager) SignalEndOfCurrentInputStream() {
	m.mu.Lock()
	m.endRequested = true
	m.mu.Unlock()
	m.submitter.Submit(m.maybeQueueFrame)
}

// PendingFrameCount implements Manager.
func (m *ExternalManager) PendingFrameCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.queue)
	if m.inFlight {
		n++
	}
	return n
}

// Release implements Manager. Producers blocked in Draw return an error.
func (m *ExternalManager) Release() error {
	m.surface.close()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return nil
	}
	m.released = true
	m.queue = nil
	tex := m.externalTex
	m.externalTex = glutil.UnsetTexture
	return tex.Release(m.provider)
}

// maybeQueueFrame runs on the executor.
func (m *ExternalManager) maybeQueueFrame() error {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return nil
	}
	if m.capacity == 0 || m.inFlight || len(m.queue) == 0 {
		signalEnd := m.takeEndOfStreamLocked(len(m.queue) == 0 && !m.inFlight)
		m.mu.Unlock()
		if signalEnd {
			m.logger.Debug("Signalling end of surface stream")
			m.sampler.SignalEndOfCurrentInputStream()
		}
		return nil
	}

	frame := m.queue[0]
	m.queue = m.queue[1:]
	m.capacity--
	m.inFlight = true
	tex, err := m.externalTextureLocked(frame.pixels.Bounds().Dx(), frame.pixels.Bounds().Dy())
	m.mu.Unlock()

	m.surface.freeSlot()
	if err != nil {
		return err
	}
	if err := glutil.Upload(m.provider, tex.TexID, frame.pixels); err != nil {
		return err
	}
	m.countQueued()
	m.sampler.QueueInputFrame(tex, frame.presentationTimeUs+frame.offsetUs)
	return nil
}

// externalTextureLocked returns the reusable input texture, reallocating it
// on size change. Only one frame is in flight, so reuse is safe.
func (m *ExternalManager) externalTextureLocked(width, height int) (glutil.TextureInfo, error) {
	if m.externalTex.TexID != glutil.IndexUnset &&
		m.externalTex.Width == width && m.externalTex.Height == height {
		return m.externalTex, nil
	}
	if err := m.externalTex.Release(m.provider); err != nil {
		return glutil.UnsetTexture, err
	}
	m.externalTex = glutil.UnsetTexture
	id, err := m.provider.CreateTexture(width, height)
	if err != nil {
		return glutil.UnsetTexture, err
	}
	m.externalTex = glutil.NewTextureInfo(id, glutil.IndexUnset, glutil.IndexUnset, width, height)
	return m.externalTex, nil
}
