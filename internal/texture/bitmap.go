package texture

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/smazurov/videofx/internal/glutil"
	"github.com/smazurov/videofx/internal/types"
)

// BitmapTiming describes how long a bitmap is shown and at which rate it
// is repeated.
type BitmapTiming struct {
	DurationUs int64
	FrameRate  float64
}

// FrameCount returns the number of frames the bitmap produces, at least one.
func (t BitmapTiming) FrameCount() int {
	n := int(math.Round(float64(t.DurationUs) * t.FrameRate / 1e6))
	if n < 1 {
		return 1
	}
	return n
}

func (t BitmapTiming) validate() error {
	if t.DurationUs <= 0 || t.FrameRate <= 0 {
		return types.NewProcessingError(types.ErrCodeIllegalState,
			fmt.Sprintf("invalid bitmap timing: duration %dus at %.2f fps", t.DurationUs, t.FrameRate), nil)
	}
	return nil
}

// bitmapJob is one queued bitmap. Its texture is uploaded when the first
// frame is queued and deleted after the last frame was processed.
type bitmapJob struct {
	pixels     *image.RGBA
	startUs    int64
	intervalUs float64
	frames     int
	next       int
	inFlight   int
	tex        glutil.TextureInfo
}

func (j *bitmapJob) exhausted() bool { return j.next >= j.frames }

// BitmapManager repeats queued bitmaps at their frame rate. Bitmaps of a
// stream segment play back to back, each starting when the previous one's
// duration ends.
type BitmapManager struct {
	base

	// guarded by base.mu
	jobs        []*bitmapJob
	uploaded    map[int]*bitmapJob
	nextStartUs int64
}

// NewBitmapManager creates a bitmap manager.
func NewBitmapManager(opts Options) (*BitmapManager, error) {
	m := &BitmapManager{uploaded: make(map[int]*bitmapJob)}
	if err := m.base.init(types.InputTypeBitmap, opts); err != nil {
		return nil, err
	}
	return m, nil
}

// QueueInputBitmap queues img for timing.DurationUs, repeated at
// timing.FrameRate. The image is copied, so the caller may reuse it.
func (m *BitmapManager) QueueInputBitmap(img image.Image, timing BitmapTiming) error {
	if err := timing.validate(); err != nil {
		return err
	}
	pixels := copyImage(img)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return m.releasedError()
	}
	job := &bitmapJob{
		pixels:     pixels,
		startUs:    m.frameInfo.OffsetToAddUs + m.nextStartUs,
		intervalUs: 1e6 / timing.FrameRate,
		frames:     timing.FrameCount(),
		tex:        glutil.UnsetTexture,
	}
	if err := m.checkOrderLocked(job.startUs); err != nil {
		return err
	}
	m.nextStartUs += timing.DurationUs
	m.jobs = append(m.jobs, job)
	m.submitter.Submit(m.maybeQueueFrame)
	m.logger.Debug("Bitmap queued", "start_us", job.startUs, "frames", job.frames)
	return nil
}

// SetInputFrameInfo implements Manager. The next bitmap starts at the new
// segment's offset.
func (m *BitmapManager) SetInputFrameInfo(info types.FrameInfo) {
	m.mu.Lock()
	m.nextStartUs = 0
	m.mu.Unlock()
	m.base.SetInputFrameInfo(info)
}

// OnReadyToAcceptInputFrame implements shader.InputListener.
func (m *BitmapManager) OnReadyToAcceptInputFrame() {
	m.mu.Lock()
	m.capacity++
	m.mu.Unlock()
	m.submitter.Submit(m.maybeQueueFrame)
}

// OnInputFrameProcessed implements shader.InputListener.
func (m *BitmapManager) OnInputFrameProcessed(input glutil.TextureInfo) {
	m.mu.Lock()
	job, ok := m.uploaded[input.TexID]
	if !ok {
		m.mu.Unlock()
		return
	}
	job.inFlight--
	release := glutil.UnsetTexture
	if job.exhausted() && job.inFlight == 0 {
		delete(m.uploaded, input.TexID)
		release = job.tex
	}
	m.mu.Unlock()

	m.submitter.Submit(func() error {
		if err := release.Release(m.provider); err != nil {
			return err
		}
		return m.maybeQueueFrame()
	})
}

// OnFlush implements shader.InputListener. Queued bitmaps are dropped.
func (m *BitmapManager) OnFlush() {
	m.mu.Lock()
	textures := m.dropJobsLocked()
	m.capacity = 0
	m.mu.Unlock()

	m.submitter.Submit(func() error { return releaseAll(m.provider, textures) })
}

// SignalEndOfCurrentInputStream implements Manager.
func (m *BitmapManager) SignalEndOfCurrentInputStream() {
	m.mu.Lock()
	m.endRequested = true
	m.mu.Unlock()
	m.submitter.Submit(m.maybeQueueFrame)
}

// PendingFrameCount implements Manager.
func (m *BitmapManager) PendingFrameCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, job := range m.jobs {
		n += job.frames - job.next
	}
	for _, job := range m.uploaded {
		n += job.inFlight
	}
	return n
}

// Release implements Manager.
func (m *BitmapManager) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return nil
	}
	m.released = true
	return releaseAll(m.provider, m.dropJobsLocked())
}

func (m *BitmapManager) dropJobsLocked() []glutil.TextureInfo {
	var textures []glutil.TextureInfo
	for id, job := range m.uploaded {
		textures = append(textures, job.tex)
		delete(m.uploaded, id)
	}
	m.jobs = nil
	return textures
}

// maybeQueueFrame runs on the executor and queues at most one frame.
func (m *BitmapManager) maybeQueueFrame() error {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return nil
	}
	if m.capacity == 0 || len(m.jobs) == 0 {
		signalEnd := m.takeEndOfStreamLocked(len(m.jobs) == 0 && len(m.uploaded) == 0)
		m.mu.Unlock()
		if signalEnd {
			m.logger.Debug("Signalling end of bitmap stream")
			m.sampler.SignalEndOfCurrentInputStream()
		}
		return nil
	}

	job := m.jobs[0]
	if job.tex.TexID == glutil.IndexUnset {
		tex, err := uploadTexture(m.provider, job.pixels)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		job.tex = tex
		job.pixels = nil
		m.uploaded[tex.TexID] = job
	}
	pts := job.startUs + int64(math.Round(float64(job.next)*job.intervalUs))
	job.next++
	job.inFlight++
	if job.exhausted() {
		m.jobs = m.jobs[1:]
	}
	m.capacity--
	more := m.capacity > 0 && len(m.jobs) > 0
	tex := job.tex
	m.mu.Unlock()

	m.countQueued()
	m.sampler.QueueInputFrame(tex, pts)
	if more {
		m.submitter.Submit(m.maybeQueueFrame)
	}
	return nil
}

func releaseAll(provider glutil.ObjectsProvider, textures []glutil.TextureInfo) error {
	var errs []error
	for _, tex := range textures {
		errs = append(errs, tex.Release(provider))
	}
	return errors.Join(errs...)
}
