package switcher

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/videofx/internal/events"
	"github.com/smazurov/videofx/internal/executor"
	"github.com/smazurov/videofx/internal/glutil"
	"github.com/smazurov/videofx/internal/shader"
	"github.com/smazurov/videofx/internal/texture"
	"github.com/smazurov/videofx/internal/types"
)

// frameRecorder is the final program's frame listener.
type frameRecorder struct {
	mu    sync.Mutex
	pts   []int64
	ended int
}

func (r *frameRecorder) OnOutputFrameAvailable(frame shader.OutputFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pts = append(r.pts, frame.PresentationTimeUs)
}

func (r *frameRecorder) OnCurrentInputStreamEnded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended++
}

func (r *frameRecorder) snapshot() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.pts...)
}

type testPipeline struct {
	exec     *executor.TaskExecutor
	provider *glutil.SoftwareProvider
	bus      *events.Bus
	sw       *Switcher
	final    *shader.FinalProgram
	frames   *frameRecorder
	errs     chan error
}

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()
	p := &testPipeline{
		provider: glutil.NewSoftwareProvider(),
		bus:      events.New(),
		frames:   &frameRecorder{},
		errs:     make(chan error, 8),
	}
	p.exec = executor.New(executor.Options{ErrorListener: func(err error) { p.errs <- err }})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.exec.Release(ctx, nil)
	})

	sw, err := New(Options{
		OutputColor:   types.SRGBBT709Full,
		Provider:      p.provider,
		Executor:      p.exec,
		ErrorListener: func(err error) { p.errs <- err },
		EventBus:      p.bus,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	p.sw = sw
	p.final = shader.NewFinalProgram(p.provider, p.frames, executor.Inline, nil)
	return p
}

// run executes fn on the executor and returns its error.
func (p *testPipeline) run(t *testing.T, fn func() error) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return p.exec.Invoke(ctx, fn)
}

func (p *testPipeline) mustRun(t *testing.T, fn func() error) {
	t.Helper()
	if err := p.run(t, fn); err != nil {
		t.Fatalf("Task failed: %v", err)
	}
}

func (p *testPipeline) waitIdle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.exec.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}
	select {
	case err := <-p.errs:
		t.Fatalf("Unexpected processing error: %v", err)
	default:
	}
}

func (p *testPipeline) register(t *testing.T, inputTypes ...types.InputType) {
	t.Helper()
	for _, it := range inputTypes {
		p.mustRun(t, func() error { return p.sw.RegisterInput(types.SDRBT709Limited, it) })
	}
}

func (p *testPipeline) activeGates() []types.InputType {
	p.sw.mu.RLock()
	defer p.sw.mu.RUnlock()
	var active []types.InputType
	for t, in := range p.sw.inputs {
		if in.gate != nil && in.gate.Active() {
			active = append(active, t)
		}
	}
	return active
}

func (p *testPipeline) gate(inputType types.InputType) *gatedListener {
	p.sw.mu.RLock()
	defer p.sw.mu.RUnlock()
	return p.sw.inputs[inputType].gate
}

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestNew_RequiresProviderAndExecutor(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("Expected error for empty options")
	}
}

func TestRegisterInput_OnePairPerType(t *testing.T) {
	p := newTestPipeline(t)
	p.register(t, types.InputTypeSurface, types.InputTypeBitmap, types.InputTypeSurface, types.InputTypeTextureID, types.InputTypeBitmap)

	got := p.sw.RegisteredInputTypes()
	want := []types.InputType{types.InputTypeSurface, types.InputTypeBitmap, types.InputTypeTextureID}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v at %d, got %v", want[i], i, got[i])
		}
	}
}

func TestRegisterInput_ReplacementReleasesPreviousPair(t *testing.T) {
	p := newTestPipeline(t)
	p.register(t, types.InputTypeSurface)

	first, err := p.sw.InputSurface()
	if err != nil {
		t.Fatalf("InputSurface failed: %v", err)
	}
	p.register(t, types.InputTypeSurface)
	second, _ := p.sw.InputSurface()

	if first == second {
		t.Error("Expected a new surface after re-registration")
	}
	err = first.Draw(context.Background(), solidImage(2, 2, color.RGBA{A: 255}), 0)
	if !types.IsCode(err, types.ErrCodeReleased) {
		t.Errorf("Expected RELEASED from the replaced surface, got %v", err)
	}
}

func TestRegisterInput_UnsupportedTypeKeepsRegistrations(t *testing.T) {
	p := newTestPipeline(t)
	p.register(t, types.InputTypeBitmap)

	err := p.run(t, func() error { return p.sw.RegisterInput(types.SDRBT709Limited, types.InputType(42)) })
	if !types.IsCode(err, types.ErrCodeUnsupportedInput) {
		t.Errorf("Expected UNSUPPORTED_INPUT_TYPE, got %v", err)
	}
	if got := p.sw.RegisteredInputTypes(); len(got) != 1 || got[0] != types.InputTypeBitmap {
		t.Errorf("Expected only bitmap registered, got %v", got)
	}
}

func TestActiveManager_BeforeSwitch(t *testing.T) {
	p := newTestPipeline(t)
	p.register(t, types.InputTypeBitmap)

	if _, err := p.sw.ActiveManager(); !types.IsCode(err, types.ErrCodeIllegalState) {
		t.Errorf("Expected ILLEGAL_STATE, got %v", err)
	}
	if _, ok := p.sw.ActiveInputType(); ok {
		t.Error("Expected no active input type")
	}
	if err := p.sw.SignalEndOfActiveStream(); !types.IsCode(err, types.ErrCodeIllegalState) {
		t.Errorf("Expected ILLEGAL_STATE, got %v", err)
	}
}

func TestSwitchToInput_Preconditions(t *testing.T) {
	p := newTestPipeline(t)
	p.register(t, types.InputTypeBitmap)
	info := types.NewFrameInfo(2, 2)

	err := p.run(t, func() error { return p.sw.SwitchToInput(types.InputTypeBitmap, info) })
	if !types.IsCode(err, types.ErrCodeIllegalState) {
		t.Errorf("Expected ILLEGAL_STATE without downstream, got %v", err)
	}

	p.sw.SetDownstreamProgram(p.final)
	err = p.run(t, func() error { return p.sw.SwitchToInput(types.InputTypeSurface, info) })
	if !types.IsCode(err, types.ErrCodeNotRegistered) {
		t.Errorf("Expected NOT_REGISTERED, got %v", err)
	}
}

func TestSwitchToInput_ExactlyOneActiveGate(t *testing.T) {
	p := newTestPipeline(t)
	p.register(t, types.InputTypeSurface, types.InputTypeBitmap, types.InputTypeTextureID)
	p.sw.SetDownstreamProgram(p.final)
	info := types.NewFrameInfo(2, 2)

	sequence := []types.InputType{
		types.InputTypeSurface,
		types.InputTypeSurface,
		types.InputTypeBitmap,
		types.InputTypeTextureID,
		types.InputTypeSurface,
	}
	var previousSurfaceGate *gatedListener
	for _, it := range sequence {
		p.mustRun(t, func() error { return p.sw.SwitchToInput(it, info) })

		active := p.activeGates()
		if len(active) != 1 || active[0] != it {
			t.Fatalf("After switching to %s expected only its gate active, got %v", it, active)
		}
		if got, _ := p.sw.ActiveInputType(); got != it {
			t.Errorf("Expected active input %s, got %s", it, got)
		}
		if it == types.InputTypeSurface {
			gate := p.gate(types.InputTypeSurface)
			if gate == previousSurfaceGate {
				t.Error("Switching again must rebuild the gate")
			}
			if previousSurfaceGate != nil && previousSurfaceGate.Active() {
				t.Error("The replaced gate must be inactive")
			}
			previousSurfaceGate = gate
		}
	}
	p.waitIdle(t)
}

func TestInputSurface_SameRegardlessOfActiveInput(t *testing.T) {
	p := newTestPipeline(t)
	p.register(t, types.InputTypeBitmap)

	if _, err := p.sw.InputSurface(); !types.IsCode(err, types.ErrCodeIllegalState) {
		t.Errorf("Expected ILLEGAL_STATE before surface registration, got %v", err)
	}

	p.register(t, types.InputTypeSurface)
	p.sw.SetDownstreamProgram(p.final)
	before, _ := p.sw.InputSurface()

	p.mustRun(t, func() error { return p.sw.SwitchToInput(types.InputTypeBitmap, types.NewFrameInfo(2, 2)) })
	afterBitmap, _ := p.sw.InputSurface()
	p.mustRun(t, func() error { return p.sw.SwitchToInput(types.InputTypeSurface, types.NewFrameInfo(2, 2)) })
	afterSurface, _ := p.sw.InputSurface()

	if before != afterBitmap || before != afterSurface {
		t.Error("Expected the same surface whichever input is active")
	}
}

func TestSwitcher_SurfaceThenBitmapScenario(t *testing.T) {
	p := newTestPipeline(t)
	p.register(t, types.InputTypeSurface, types.InputTypeBitmap)
	p.sw.SetDownstreamProgram(p.final)
	ctx := context.Background()

	f1 := types.NewFrameInfo(4, 4).WithOffsetToAddUs(1_000)
	p.mustRun(t, func() error { return p.sw.SwitchToInput(types.InputTypeSurface, f1) })

	active, _ := p.sw.ActiveManager()
	surfaceManager, _ := p.sw.Manager(types.InputTypeSurface)
	if active != surfaceManager {
		t.Fatal("Expected the surface manager to be active")
	}
	surface, _ := p.sw.InputSurface()
	if err := surface.Draw(ctx, solidImage(4, 4, color.RGBA{R: 255, A: 255}), 0); err != nil {
		t.Fatalf("Draw failed: %v", err)
	}
	p.waitIdle(t)
	if got := p.frames.snapshot(); len(got) != 1 || got[0] != 1_000 {
		t.Fatalf("Expected surface frame with F1 offset at 1000us, got %v", got)
	}

	f2 := types.NewFrameInfo(4, 4).WithOffsetToAddUs(5_000)
	p.mustRun(t, func() error { return p.sw.SwitchToInput(types.InputTypeBitmap, f2) })

	active, _ = p.sw.ActiveManager()
	bitmapManager, _ := p.sw.Manager(types.InputTypeBitmap)
	if active != bitmapManager {
		t.Fatal("Expected the bitmap manager to be active")
	}
	bitmaps := bitmapManager.(*texture.BitmapManager)
	if err := bitmaps.QueueInputBitmap(solidImage(4, 4, color.RGBA{B: 255, A: 255}), texture.BitmapTiming{DurationUs: 1_000_000, FrameRate: 1}); err != nil {
		t.Fatalf("QueueInputBitmap failed: %v", err)
	}
	p.waitIdle(t)
	if got := p.frames.snapshot(); len(got) != 2 || got[1] != 5_000 {
		t.Fatalf("Expected bitmap frame with F2 offset at 5000us, got %v", got)
	}

	surfaceGate := p.gate(types.InputTypeSurface)
	if surfaceGate.Active() {
		t.Fatal("Surface gate must be inactive")
	}

	dropped := make(chan events.FrameDroppedEvent, 16)
	unsub := p.bus.Subscribe(func(e events.FrameDroppedEvent) { dropped <- e })
	defer unsub()

	p.mustRun(t, func() error {
		surfaceGate.OnReadyToAcceptInputFrame()
		return nil
	})
	select {
	case e := <-dropped:
		if e.InputType != "surface" || e.Callback != callbackReady {
			t.Errorf("Expected dropped ready callback on surface, got %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected a dropped frame event")
	}

	// Frames drawn into the inactive surface are dropped without stalling it.
	drawCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	for i := int64(1); i <= 6; i++ {
		if err := surface.Draw(drawCtx, solidImage(4, 4, color.RGBA{G: 255, A: 255}), i*33); err != nil {
			t.Fatalf("Draw %d into inactive surface failed: %v", i, err)
		}
	}
	p.waitIdle(t)
	if got := p.frames.snapshot(); len(got) != 2 {
		t.Errorf("Inactive input must not reach downstream, got %v", got)
	}
}

func TestSwitcher_EndOfActiveStream(t *testing.T) {
	p := newTestPipeline(t)
	p.register(t, types.InputTypeTextureID, types.InputTypeBitmap)
	p.sw.SetDownstreamProgram(p.final)

	p.mustRun(t, func() error { return p.sw.SwitchToInput(types.InputTypeTextureID, types.NewFrameInfo(2, 2)) })
	p.mustRun(t, p.sw.SignalEndOfActiveStream)
	p.waitIdle(t)

	p.frames.mu.Lock()
	ended := p.frames.ended
	p.frames.mu.Unlock()
	if ended != 1 {
		t.Errorf("Expected one end of stream, got %d", ended)
	}
}

func TestSwitcher_ReleaseFreesEverything(t *testing.T) {
	p := newTestPipeline(t)
	p.register(t, types.InputTypeSurface, types.InputTypeBitmap, types.InputTypeTextureID)
	p.sw.SetDownstreamProgram(p.final)
	p.mustRun(t, func() error { return p.sw.SwitchToInput(types.InputTypeSurface, types.NewFrameInfo(2, 2)) })

	surface, _ := p.sw.InputSurface()
	if err := surface.Draw(context.Background(), solidImage(2, 2, color.RGBA{A: 255}), 0); err != nil {
		t.Fatal(err)
	}
	p.waitIdle(t)

	p.mustRun(t, p.sw.Release)
	if textures, fbos, _ := p.provider.LiveObjects(); textures != 0 || fbos != 0 {
		t.Errorf("Expected no live objects after release, got %d textures, %d fbos", textures, fbos)
	}
	if len(p.sw.RegisteredInputTypes()) != 0 {
		t.Error("Expected no registrations after release")
	}
	if err := p.run(t, p.sw.Release); err != nil {
		t.Errorf("Second release should be a no-op, got %v", err)
	}
	err := p.run(t, func() error { return p.sw.RegisterInput(types.SDRBT709Limited, types.InputTypeBitmap) })
	if !types.IsCode(err, types.ErrCodeReleased) {
		t.Errorf("Expected RELEASED after release, got %v", err)
	}
}

func TestSwitcher_InputsReportsState(t *testing.T) {
	p := newTestPipeline(t)
	p.register(t, types.InputTypeBitmap, types.InputTypeSurface)
	p.sw.SetDownstreamProgram(p.final)
	p.mustRun(t, func() error { return p.sw.SwitchToInput(types.InputTypeBitmap, types.NewFrameInfo(2, 2)) })

	states := p.sw.Inputs()
	if len(states) != 2 {
		t.Fatalf("Expected 2 inputs, got %d", len(states))
	}
	if states[0].InputType != types.InputTypeSurface || states[0].Active {
		t.Errorf("Expected inactive surface first, got %+v", states[0])
	}
	if states[1].InputType != types.InputTypeBitmap || !states[1].Active {
		t.Errorf("Expected active bitmap second, got %+v", states[1])
	}
}
