package texture

import (
	"context"
	"image/color"
	"sync"
	"testing"

	"github.com/smazurov/videofx/internal/glutil"
	"github.com/smazurov/videofx/internal/types"
)

type processedRecorder struct {
	mu  sync.Mutex
	ids []int
}

func (r *processedRecorder) record(texID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, texID)
}

func (r *processedRecorder) snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.ids...)
}

func callerTexture(t *testing.T, provider *glutil.SoftwareProvider, c color.RGBA) int {
	t.Helper()
	id, err := provider.CreateTexture(2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := glutil.Upload(provider, id, solidImage(2, 2, c)); err != nil {
		t.Fatal(err)
	}
	return id
}

func TestTextureIDManager_ProcessesCallerTextures(t *testing.T) {
	h := newHarness(t, types.InputTypeTextureID)
	m, err := NewTextureIDManager(h.options())
	if err != nil {
		t.Fatalf("NewTextureIDManager failed: %v", err)
	}
	processed := &processedRecorder{}
	m.SetOnInputFrameProcessed(processed.record)
	h.connect(t, m, types.NewFrameInfo(2, 2).WithOffsetToAddUs(7))

	first := callerTexture(t, h.provider, color.RGBA{R: 255, A: 255})
	second := callerTexture(t, h.provider, color.RGBA{G: 255, A: 255})
	if err := m.QueueInputTexture(first, 10); err != nil {
		t.Fatal(err)
	}
	if err := m.QueueInputTexture(second, 20); err != nil {
		t.Fatal(err)
	}
	h.waitIdle(t)

	pts, _ := h.out.snapshot()
	if want := []int64{17, 27}; !equalInt64s(pts, want) {
		t.Errorf("Expected %v, got %v", want, pts)
	}
	ids := processed.snapshot()
	if len(ids) != 2 || ids[0] != first || ids[1] != second {
		t.Errorf("Expected processed [%d %d], got %v", first, second, ids)
	}

	// Caller textures survive release.
	if err := m.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err := h.provider.Pixels(first); err != nil {
		t.Errorf("Caller texture was deleted: %v", err)
	}
}

func TestTextureIDManager_RejectsOutOfOrderTextures(t *testing.T) {
	h := newHarness(t, types.InputTypeTextureID)
	m, _ := NewTextureIDManager(h.options())

	if err := m.QueueInputTexture(1, 100); err != nil {
		t.Fatal(err)
	}
	if err := m.QueueInputTexture(2, 99); !types.IsCode(err, types.ErrCodeFrameOrder) {
		t.Errorf("Expected FRAME_ORDER, got %v", err)
	}
	if err := m.QueueInputTexture(3, 100); err != nil {
		t.Errorf("Equal presentation time should be accepted, got %v", err)
	}
}

func TestTextureIDManager_FlushHandsBackPendingTextures(t *testing.T) {
	h := newHarness(t, types.InputTypeTextureID)
	m, _ := NewTextureIDManager(h.options())
	processed := &processedRecorder{}
	m.SetOnInputFrameProcessed(processed.record)

	for i, pts := range []int64{0, 1, 2} {
		if err := m.QueueInputTexture(i+1, pts); err != nil {
			t.Fatal(err)
		}
	}
	if n := m.PendingFrameCount(); n != 3 {
		t.Errorf("Expected 3 pending textures, got %d", n)
	}

	m.OnFlush()
	h.waitIdle(t)

	ids := processed.snapshot()
	if len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Errorf("Expected textures 1..3 handed back, got %v", ids)
	}
	if n := m.PendingFrameCount(); n != 0 {
		t.Errorf("Expected no pending textures, got %d", n)
	}
}

func TestTextureIDManager_EndOfStreamWithoutFrames(t *testing.T) {
	h := newHarness(t, types.InputTypeTextureID)
	m, _ := NewTextureIDManager(h.options())
	h.connect(t, m, types.NewFrameInfo(2, 2))

	m.SignalEndOfCurrentInputStream()
	h.waitIdle(t)

	_, events := h.out.snapshot()
	if len(events) != 1 || events[0] != "end" {
		t.Errorf("Expected immediate end of stream, got %v", events)
	}

	if err := h.exec.Invoke(context.Background(), func() error { return m.Release() }); err != nil {
		t.Fatal(err)
	}
	if err := m.QueueInputTexture(1, 0); !types.IsCode(err, types.ErrCodeReleased) {
		t.Errorf("Expected RELEASED, got %v", err)
	}
}
