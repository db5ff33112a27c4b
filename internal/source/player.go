package source

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/smazurov/videofx/internal/glutil"
	"github.com/smazurov/videofx/internal/texture"
	"github.com/smazurov/videofx/internal/types"
)

// Pipeline is the part of a frame processor a Player drives.
type Pipeline interface {
	RegisterInputStream(ctx context.Context, inputType types.InputType, info types.FrameInfo) error
	InputSurface() (*texture.Surface, error)
	QueueInputBitmap(img image.Image, timing texture.BitmapTiming) error
	QueueInputTexture(texID int, presentationTimeUs int64) error
	SetOnInputFrameProcessed(listener texture.FrameProcessedListener) error
	WaitIdle(ctx context.Context) error
}

// Step feeds Frames generated frames to one input. Timestamps restart at
// zero for every step and OffsetUs is added by the pipeline.
type Step struct {
	Input    types.InputType
	Frames   int
	OffsetUs int64
}

// StepResult reports what a step handed to the pipeline.
type StepResult struct {
	Step   Step
	Queued int
}

// PlayerOptions configures a Player.
type PlayerOptions struct {
	// Provider backs the textures of texture id steps. Required for those.
	Provider glutil.ObjectsProvider

	// Realtime paces frames at the generator rate.
	Realtime bool

	// Settle waits for the pipeline to go idle before the next switch, so
	// no frame of a step is cut off by the following one.
	Settle bool

	// OnStep is called before each step switches input.
	OnStep func(index int, step Step)

	Logger *slog.Logger
}

// Player plays generated frames through a pipeline step by step.
type Player struct {
	gen      *Generator
	pipeline Pipeline
	opts     PlayerOptions
	logger   *slog.Logger
}

// NewPlayer creates a player. Texture id steps delete their textures once
// the pipeline reports them processed.
func NewPlayer(gen *Generator, pipeline Pipeline, opts PlayerOptions) *Player {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{gen: gen, pipeline: pipeline, opts: opts, logger: logger}
}

// Play runs steps in order and stops at the first error.
func (p *Player) Play(ctx context.Context, steps []Step) ([]StepResult, error) {
	if err := p.prepareTextures(steps); err != nil {
		return nil, err
	}

	results := make([]StepResult, 0, len(steps))
	for i, step := range steps {
		if p.opts.OnStep != nil {
			p.opts.OnStep(i, step)
		}
		queued, err := p.playStep(ctx, step)
		results = append(results, StepResult{Step: step, Queued: queued})
		if err != nil {
			return results, fmt.Errorf("step %d (%s): %w", i, step.Input, err)
		}
		p.logger.Debug("Step done", "index", i, "input_type", step.Input.String(), "queued", queued)

		if p.opts.Settle {
			if err := p.pipeline.WaitIdle(ctx); err != nil {
				return results, err
			}
		}
	}
	return results, nil
}

func (p *Player) prepareTextures(steps []Step) error {
	for _, step := range steps {
		if step.Input != types.InputTypeTextureID {
			continue
		}
		if p.opts.Provider == nil {
			return fmt.Errorf("texture id steps need a provider")
		}
		provider := p.opts.Provider
		return p.pipeline.SetOnInputFrameProcessed(func(texID int) {
			if err := provider.DeleteTexture(texID); err != nil {
				p.logger.Warn("Failed to delete processed texture", "tex_id", texID, "error", err)
			}
		})
	}
	return nil
}

func (p *Player) playStep(ctx context.Context, step Step) (int, error) {
	info := p.gen.FrameInfo().WithOffsetToAddUs(step.OffsetUs)
	if err := p.pipeline.RegisterInputStream(ctx, step.Input, info); err != nil {
		return 0, err
	}
	p.gen.Reset()

	switch step.Input {
	case types.InputTypeSurface:
		surface, err := p.pipeline.InputSurface()
		if err != nil {
			return 0, err
		}
		return p.each(ctx, step.Frames, func(img *image.RGBA, pts int64) error {
			return surface.Draw(ctx, img, pts)
		})
	case types.InputTypeBitmap:
		img, _ := p.gen.Next()
		timing := texture.BitmapTiming{
			DurationUs: int64(float64(step.Frames) * 1e6 / p.gen.FPS()),
			FrameRate:  p.gen.FPS(),
		}
		if err := p.pipeline.QueueInputBitmap(img, timing); err != nil {
			return 0, err
		}
		return timing.FrameCount(), nil
	case types.InputTypeTextureID:
		return p.each(ctx, step.Frames, func(img *image.RGBA, pts int64) error {
			return p.queueTexture(img, pts)
		})
	default:
		return 0, types.NewProcessingError(types.ErrCodeUnsupportedInput, step.Input.String(), nil)
	}
}

func (p *Player) each(ctx context.Context, frames int, fn func(*image.RGBA, int64) error) (int, error) {
	var ticker *time.Ticker
	if p.opts.Realtime {
		ticker = time.NewTicker(time.Duration(float64(time.Second) / p.gen.FPS()))
		defer ticker.Stop()
	}

	for i := 0; i < frames; i++ {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return i, ctx.Err()
			case <-ticker.C:
			}
		}
		img, pts := p.gen.Next()
		if err := fn(img, pts); err != nil {
			return i, err
		}
	}
	return frames, nil
}

func (p *Player) queueTexture(img *image.RGBA, pts int64) error {
	bounds := img.Bounds()
	texID, err := p.opts.Provider.CreateTexture(bounds.Dx(), bounds.Dy())
	if err != nil {
		return err
	}
	if err := glutil.Upload(p.opts.Provider, texID, img); err != nil {
		return err
	}
	if err := p.pipeline.QueueInputTexture(texID, pts); err != nil {
		_ = p.opts.Provider.DeleteTexture(texID)
		return err
	}
	return nil
}
