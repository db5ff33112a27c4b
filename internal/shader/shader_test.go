package shader

import (
	"image"
	"image/color"
	"testing"

	"github.com/smazurov/videofx/internal/executor"
	"github.com/smazurov/videofx/internal/glutil"
	"github.com/smazurov/videofx/internal/types"
)

// inlineSubmitter runs tasks immediately.
type inlineSubmitter struct{}

func (inlineSubmitter) Submit(task executor.Task) { _ = task() }

// recordingListener records input and output events of a program.
type recordingListener struct {
	ready     int
	processed []glutil.TextureInfo
	flushes   int
	outputs   []glutil.TextureInfo
	pts       []int64
	ended     int
}

func (l *recordingListener) OnReadyToAcceptInputFrame() { l.ready++ }
func (l *recordingListener) OnInputFrameProcessed(tex glutil.TextureInfo) {
	l.processed = append(l.processed, tex)
}
func (l *recordingListener) OnFlush() { l.flushes++ }
func (l *recordingListener) OnOutputFrameAvailable(tex glutil.TextureInfo, pts int64) {
	l.outputs = append(l.outputs, tex)
	l.pts = append(l.pts, pts)
}
func (l *recordingListener) OnCurrentOutputStreamEnded() { l.ended++ }

// recordingProgram is a Program that records the calls it receives.
type recordingProgram struct {
	queued   []int64
	released []glutil.TextureInfo
	ended    int
	flushes  int
	input    InputListener
	output   OutputListener
}

func (p *recordingProgram) SetInputListener(l InputListener)                   { p.input = l }
func (p *recordingProgram) SetOutputListener(l OutputListener)                 { p.output = l }
func (p *recordingProgram) SetErrorListener(_ executor.Runner, _ ErrorListener) {}
func (p *recordingProgram) QueueInputFrame(_ glutil.TextureInfo, pts int64) {
	p.queued = append(p.queued, pts)
}
func (p *recordingProgram) ReleaseOutputFrame(tex glutil.TextureInfo) {
	p.released = append(p.released, tex)
}
func (p *recordingProgram) SignalEndOfCurrentInputStream() { p.ended++ }
func (p *recordingProgram) Flush()                         { p.flushes++ }
func (p *recordingProgram) Release() error                 { return nil }

func solidTexture(t *testing.T, provider *glutil.SoftwareProvider, w, h int, c color.RGBA) glutil.TextureInfo {
	t.Helper()
	tex, err := glutil.CreateFboTexture(provider, w, h)
	if err != nil {
		t.Fatalf("CreateFboTexture failed: %v", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	if err := glutil.Upload(provider, tex.TexID, img); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	return tex
}

func TestDefaultProgram_AnnouncesCapacityOnSetInputListener(t *testing.T) {
	p, err := NewEffect("test", Options{Provider: glutil.NewSoftwareProvider(), Capacity: 3})
	if err != nil {
		t.Fatalf("NewEffect failed: %v", err)
	}
	l := &recordingListener{}
	p.SetInputListener(l)
	if l.ready != 3 {
		t.Errorf("Expected 3 ready callbacks, got %d", l.ready)
	}
}

func TestDefaultProgram_QueueInputFrameProducesOutput(t *testing.T) {
	provider := glutil.NewSoftwareProvider()
	p, err := NewEffect("gray", Options{
		Provider:     provider,
		RGBMatrices:  []RGBMatrix{GrayscaleMatrix},
		OutputWidth:  4,
		OutputHeight: 2,
	})
	if err != nil {
		t.Fatalf("NewEffect failed: %v", err)
	}
	l := &recordingListener{}
	p.SetInputListener(l)
	p.SetOutputListener(l)

	input := solidTexture(t, provider, 8, 8, color.RGBA{R: 255, A: 255})
	p.QueueInputFrame(input, 1000)

	if len(l.processed) != 1 || l.processed[0].TexID != input.TexID {
		t.Fatalf("Expected input to be reported processed, got %v", l.processed)
	}
	if len(l.outputs) != 1 || l.pts[0] != 1000 {
		t.Fatalf("Expected one output at 1000us, got %v %v", l.outputs, l.pts)
	}
	out := l.outputs[0]
	if out.Width != 4 || out.Height != 2 {
		t.Errorf("Expected 4x2 output, got %dx%d", out.Width, out.Height)
	}
	pix, _ := provider.Pixels(out.TexID)
	got := pix.RGBAAt(1, 1)
	if got.R != got.G || got.G != got.B {
		t.Errorf("Expected grey pixel, got %v", got)
	}
	if got.R < 50 || got.R > 56 {
		t.Errorf("Expected BT.709 luma of pure red (~54), got %d", got.R)
	}
}

func TestDefaultProgram_ReleaseOutputFrameFreesSlot(t *testing.T) {
	provider := glutil.NewSoftwareProvider()
	p, _ := NewEffect("test", Options{Provider: provider})
	l := &recordingListener{}
	p.SetInputListener(l)
	p.SetOutputListener(l)

	p.QueueInputFrame(solidTexture(t, provider, 2, 2, color.RGBA{A: 255}), 0)
	if p.pool.FreeCount() != 0 {
		t.Fatalf("Expected pool exhausted, free=%d", p.pool.FreeCount())
	}

	p.ReleaseOutputFrame(l.outputs[0])
	if l.ready != 2 {
		t.Errorf("Expected a second ready callback after release, got %d", l.ready)
	}
	if p.pool.FreeCount() != 1 {
		t.Errorf("Expected one free texture, got %d", p.pool.FreeCount())
	}
}

func TestDefaultProgram_FlushFreesAndAnnounces(t *testing.T) {
	provider := glutil.NewSoftwareProvider()
	p, _ := NewEffect("test", Options{Provider: provider, Capacity: 2})
	l := &recordingListener{}
	p.SetInputListener(l)
	p.SetOutputListener(l)

	p.QueueInputFrame(solidTexture(t, provider, 2, 2, color.RGBA{A: 255}), 0)
	p.QueueInputFrame(solidTexture(t, provider, 2, 2, color.RGBA{A: 255}), 1)
	l.ready = 0

	p.Flush()
	if l.flushes != 1 {
		t.Errorf("Expected one flush callback, got %d", l.flushes)
	}
	if l.ready != 2 {
		t.Errorf("Expected 2 ready callbacks after flush, got %d", l.ready)
	}
}

func TestDefaultProgram_ExpandsLimitedRange(t *testing.T) {
	provider := glutil.NewSoftwareProvider()
	p, err := NewExternalSampler(Options{
		Provider:             provider,
		InputColor:           types.SDRBT709Limited,
		OutputColor:          types.SRGBBT709Full,
		EnableColorTransfers: true,
	})
	if err != nil {
		t.Fatalf("NewExternalSampler failed: %v", err)
	}
	l := &recordingListener{}
	p.SetInputListener(l)
	p.SetOutputListener(l)

	p.QueueInputFrame(solidTexture(t, provider, 2, 2, color.RGBA{R: 16, G: 235, B: 16, A: 255}), 0)
	pix, _ := provider.Pixels(l.outputs[0].TexID)
	got := pix.RGBAAt(0, 0)
	if got.R != 0 || got.G != 255 || got.B != 0 {
		t.Errorf("Expected full range (0,255,0), got %v", got)
	}
}

func TestNewInternalSampler_RejectsSurface(t *testing.T) {
	_, err := NewInternalSampler(types.InputTypeSurface, Options{Provider: glutil.NewSoftwareProvider()})
	if !types.IsCode(err, types.ErrCodeUnsupportedInput) {
		t.Errorf("Expected UNSUPPORTED_INPUT_TYPE, got %v", err)
	}
}

func TestDefaultProgram_ReleaseDeletesTextures(t *testing.T) {
	provider := glutil.NewSoftwareProvider()
	p, _ := NewEffect("test", Options{Provider: provider, Capacity: 2})
	l := &recordingListener{}
	p.SetInputListener(l)
	p.SetOutputListener(l)
	input := solidTexture(t, provider, 2, 2, color.RGBA{A: 255})
	p.QueueInputFrame(input, 0)

	if err := p.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := input.Release(provider); err != nil {
		t.Fatalf("Input release failed: %v", err)
	}
	textures, fbos, _ := provider.LiveObjects()
	if textures != 0 || fbos != 0 {
		t.Errorf("Expected no live objects, got %d textures %d fbos", textures, fbos)
	}
	if err := p.Release(); err != nil {
		t.Errorf("Second release should be a no-op, got %v", err)
	}
}

func TestDefaultProgram_ReportsRenderErrors(t *testing.T) {
	provider := glutil.NewSoftwareProvider()
	p, _ := NewEffect("test", Options{Provider: provider})
	var reported error
	p.SetErrorListener(executor.Inline, func(err error) { reported = err })
	l := &recordingListener{}
	p.SetInputListener(l)
	p.SetOutputListener(l)

	p.QueueInputFrame(glutil.NewTextureInfo(999, glutil.IndexUnset, glutil.IndexUnset, 2, 2), 0)
	if !types.IsCode(reported, types.ErrCodeGL) {
		t.Errorf("Expected GL error, got %v", reported)
	}
	if len(l.outputs) != 0 {
		t.Error("No output expected for failed frame")
	}
	if p.pool.FreeCount() != 1 {
		t.Error("Failed frame should return its output texture")
	}
}

func TestTexturePool_ReconfigureDeletesStaleTextures(t *testing.T) {
	provider := glutil.NewSoftwareProvider()
	pool := NewTexturePool(2)
	if err := pool.EnsureConfigured(provider, 4, 4); err != nil {
		t.Fatalf("EnsureConfigured failed: %v", err)
	}
	stale, _ := pool.Use()

	if err := pool.EnsureConfigured(provider, 8, 8); err != nil {
		t.Fatalf("Reconfigure failed: %v", err)
	}
	if err := pool.Free(provider, stale); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	if err := pool.EnsureConfigured(provider, 8, 8); err != nil {
		t.Fatalf("Top up failed: %v", err)
	}

	textures, _, _ := provider.LiveObjects()
	if textures != 2 {
		t.Errorf("Expected 2 live textures, got %d", textures)
	}
	tex, _ := pool.Use()
	if tex.Width != 8 {
		t.Errorf("Expected 8px texture, got %d", tex.Width)
	}
}

func TestTexturePool_FreeUnknownTexture(t *testing.T) {
	pool := NewTexturePool(1)
	if err := pool.Free(glutil.NewSoftwareProvider(), glutil.UnsetTexture); !types.IsCode(err, types.ErrCodeIllegalState) {
		t.Errorf("Expected ILLEGAL_STATE, got %v", err)
	}
}

func TestDefaultProgram_IgnoresReleaseOfTextureNotInUse(t *testing.T) {
	provider := glutil.NewSoftwareProvider()
	p, _ := NewEffect("test", Options{Provider: provider})
	l := &recordingListener{}
	var reported error
	p.SetErrorListener(executor.Inline, func(err error) { reported = err })
	p.SetInputListener(l)
	p.SetOutputListener(l)

	p.QueueInputFrame(solidTexture(t, provider, 2, 2, color.RGBA{A: 255}), 0)
	output := l.outputs[0]
	if !p.Owns(output) {
		t.Fatal("Expected program to own its output")
	}
	p.Flush()
	if p.Owns(output) {
		t.Fatal("Flush should reclaim the output")
	}
	ready := l.ready

	p.ReleaseOutputFrame(output)
	if reported != nil {
		t.Errorf("Expected no error for a stale release, got %v", reported)
	}
	if l.ready != ready {
		t.Errorf("Stale release must not announce capacity, got %d ready callbacks", l.ready-ready)
	}
}
