package texture

import (
	"github.com/smazurov/videofx/internal/glutil"
	"github.com/smazurov/videofx/internal/types"
)

// FrameProcessedListener is told when a caller-owned texture may be reused.
type FrameProcessedListener func(texID int)

type pendingTexture struct {
	tex                glutil.TextureInfo
	presentationTimeUs int64
}

// TextureIDManager feeds caller-owned textures to the sampler. Textures are
// never deleted by the manager.
type TextureIDManager struct {
	base

	// guarded by base.mu
	pending     []pendingTexture
	inFlight    int
	onProcessed FrameProcessedListener
}

// NewTextureIDManager creates a texture id manager.
func NewTextureIDManager(opts Options) (*TextureIDManager, error) {
	m := &TextureIDManager{}
	if err := m.base.init(types.InputTypeTextureID, opts); err != nil {
		return nil, err
	}
	return m, nil
}

// SetOnInputFrameProcessed sets the listener told when a texture is no
// longer used, including textures dropped by a flush. It runs on the executor.
func (m *TextureIDManager) SetOnInputFrameProcessed(listener FrameProcessedListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onProcessed = listener
}

// QueueInputTexture queues texID, sized as the current frame info. The
// texture must stay valid until the processed listener reports it.
func (m *TextureIDManager) QueueInputTexture(texID int, presentationTimeUs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return m.releasedError()
	}
	if err := m.checkOrderLocked(presentationTimeUs); err != nil {
		return err
	}
	tex := glutil.NewTextureInfo(texID, glutil.IndexUnset, glutil.IndexUnset, m.frameInfo.Width, m.frameInfo.Height)
	m.pending = append(m.pending, pendingTexture{
		tex:                tex,
		presentationTimeUs: presentationTimeUs + m.frameInfo.OffsetToAddUs,
	})
	m.submitter.Submit(m.maybeQueueFrame)
	return nil
}

// OnReadyToAcceptInputFrame implements shader.InputListener.
func (m *TextureIDManager) OnReadyToAcceptInputFrame() {
	m.mu.Lock()
	m.capacity++
	m.mu.Unlock()
	m.submitter.Submit(m.maybeQueueFrame)
}

// OnInputFrameProcessed implements shader.InputListener.
func (m *TextureIDManager) OnInputFrameProcessed(input glutil.TextureInfo) {
	m.mu.Lock()
	if m.inFlight > 0 {
		m.inFlight--
	}
	listener := m.onProcessed
	m.mu.Unlock()

	m.submitter.Submit(func() error {
		if listener != nil {
			listener(input.TexID)
		}
		return m.maybeQueueFrame()
	})
}

// OnFlush implements shader.InputListener. Pending textures are handed back
// to the caller through the processed listener.
func (m *TextureIDManager) OnFlush() {
	m.mu.Lock()
	dropped := m.pending
	m.pending = nil
	m.inFlight = 0
	m.capacity = 0
	listener := m.onProcessed
	m.mu.Unlock()

	if listener == nil || len(dropped) == 0 {
		return
	}
	m.submitter.Submit(func() error {
		for _, p := range dropped {
			listener(p.tex.TexID)
		}
		return nil
	})
}

// SignalEndOfCurrentInputStream implements Manager.
func (m *TextureIDManager) SignalEndOfCurrentInputStream() {
	m.mu.Lock()
	m.endRequested = true
	m.mu.Unlock()
	m.submitter.Submit(m.maybeQueueFrame)
}

// PendingFrameCount implements Manager.
func (m *TextureIDManager) PendingFrameCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending) + m.inFlight
}

// Release implements Manager. Caller-owned textures are not deleted.
func (m *TextureIDManager) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = true
	m.pending = nil
	return nil
}

// maybeQueueFrame runs on the executor and queues at most one texture.
func (m *TextureIDManager) maybeQueueFrame() error {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return nil
	}
	if m.capacity == 0 || len(m.pending) == 0 {
		signalEnd := m.takeEndOfStreamLocked(len(m.pending) == 0 && m.inFlight == 0)
		m.mu.Unlock()
		if signalEnd {
			m.logger.Debug("Signalling end of texture stream")
			m.sampler.SignalEndOfCurrentInputStream()
		}
		return nil
	}

	next := m.pending[0]
	m.pending = m.pending[1:]
	m.capacity--
	m.inFlight++
	more := m.capacity > 0 && len(m.pending) > 0
	m.mu.Unlock()

	m.countQueued()
	m.sampler.QueueInputFrame(next.tex, next.presentationTimeUs)
	if more {
		m.submitter.Submit(m.maybeQueueFrame)
	}
	return nil
}
