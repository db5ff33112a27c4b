// Package source generates test pattern frames for driving a pipeline
// without a decoder.
package source

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/draw"

	"github.com/smazurov/videofx/internal/types"
)

// Defaults used when Params leaves a field empty.
const (
	DefaultResolution = "1920x1080"
	DefaultFPS        = "30"
)

// 75% colour bars, left to right.
var bars = []color.RGBA{
	{191, 191, 191, 255},
	{191, 191, 0, 255},
	{0, 191, 191, 255},
	{0, 191, 0, 255},
	{191, 0, 191, 255},
	{191, 0, 0, 255},
	{0, 0, 191, 255},
}

// Params configures a Generator.
type Params struct {
	Resolution string // WxH
	FPS        string
}

// Drawer accepts generated frames. texture.Surface implements it.
type Drawer interface {
	Draw(ctx context.Context, img image.Image, presentationTimeUs int64) error
}

// Generator produces numbered colour bar frames at a fixed rate.
type Generator struct {
	width  int
	height int
	fps    float64
	frame  int
}

// New creates a generator from params.
func New(p Params) (*Generator, error) {
	resolution := p.Resolution
	if resolution == "" {
		resolution = DefaultResolution
	}
	fpsText := p.FPS
	if fpsText == "" {
		fpsText = DefaultFPS
	}

	width, height, err := ParseResolution(resolution)
	if err != nil {
		return nil, err
	}
	fps, err := strconv.ParseFloat(fpsText, 64)
	if err != nil || fps <= 0 {
		return nil, fmt.Errorf("invalid fps %q", fpsText)
	}
	return &Generator{width: width, height: height, fps: fps}, nil
}

// ParseResolution parses a WxH string.
func ParseResolution(s string) (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid resolution %q, expected WxH", s)
	}
	width, errW := strconv.Atoi(w)
	height, errH := strconv.Atoi(h)
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("invalid resolution %q, expected WxH", s)
	}
	return width, height, nil
}

// FrameInfo describes the generated stream.
func (g *Generator) FrameInfo() types.FrameInfo {
	return types.NewFrameInfo(g.width, g.height)
}

// FPS returns the frame rate.
func (g *Generator) FPS() float64 { return g.fps }

// Next returns the next frame and its presentation time.
func (g *Generator) Next() (*image.RGBA, int64) {
	img := ColorBars(g.width, g.height, g.frame)
	pts := int64(float64(g.frame) * 1e6 / g.fps)
	g.frame++
	return img, pts
}

// Reset restarts the frame count at zero.
func (g *Generator) Reset() { g.frame = 0 }

// Play draws count frames into d.
func (g *Generator) Play(ctx context.Context, d Drawer, count int) error {
	for i := 0; i < count; i++ {
		img, pts := g.Next()
		if err := d.Draw(ctx, img, pts); err != nil {
			return fmt.Errorf("draw frame at %dus: %w", pts, err)
		}
	}
	return nil
}

// ColorBars draws colour bars with a white marker column that moves one
// bar width every frame.
func ColorBars(width, height, frame int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, c := range bars {
		x0 := i * width / len(bars)
		x1 := (i + 1) * width / len(bars)
		draw.Draw(img, image.Rect(x0, 0, x1, height), &image.Uniform{C: c}, image.Point{}, draw.Src)
	}

	markerWidth := max(1, width/64)
	x := (frame * markerWidth) % width
	marker := image.Rect(x, 0, min(x+markerWidth, width), max(1, height/8))
	draw.Draw(img, marker, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return img
}
