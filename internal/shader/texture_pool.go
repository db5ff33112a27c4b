package shader

import (
	"errors"

	"github.com/smazurov/videofx/internal/glutil"
	"github.com/smazurov/videofx/internal/types"
)

// TexturePool holds a fixed number of output textures of one size.
// Textures are allocated on first use and reallocated when the size changes.
type TexturePool struct {
	capacity int
	free     []glutil.TextureInfo
	inUse    []glutil.TextureInfo
	width    int
	height   int
}

// NewTexturePool creates a pool holding up to capacity textures.
func NewTexturePool(capacity int) *TexturePool {
	if capacity < 1 {
		capacity = 1
	}
	return &TexturePool{capacity: capacity, width: types.LengthUnset, height: types.LengthUnset}
}

// Capacity returns the maximum number of textures.
func (p *TexturePool) Capacity() int { return p.capacity }

// FreeCount returns how many textures can still be handed out.
func (p *TexturePool) FreeCount() int { return p.capacity - len(p.inUse) }

// InUseCount returns how many textures are handed out.
func (p *TexturePool) InUseCount() int { return len(p.inUse) }

// EnsureConfigured allocates the pool for width x height, deleting textures
// of a previous size. Textures still in use are kept until freed.
func (p *TexturePool) EnsureConfigured(provider glutil.ObjectsProvider, width, height int) error {
	if p.width == width && p.height == height && len(p.free)+len(p.inUse) == p.capacity {
		return nil
	}
	if p.width != width || p.height != height {
		var errs []error
		for _, tex := range p.free {
			errs = append(errs, tex.Release(provider))
		}
		p.free = p.free[:0]
		p.width, p.height = width, height
		if err := errors.Join(errs...); err != nil {
			return err
		}
	}
	for len(p.free)+len(p.inUse) < p.capacity {
		tex, err := glutil.CreateFboTexture(provider, width, height)
		if err != nil {
			return err
		}
		p.free = append(p.free, tex)
	}
	return nil
}

// Use hands out a free texture.
func (p *TexturePool) Use() (glutil.TextureInfo, error) {
	if len(p.free) == 0 {
		return glutil.UnsetTexture, types.NewProcessingError(types.ErrCodeIllegalState,
			"texture pool has no free texture", nil)
	}
	tex := p.free[0]
	p.free = p.free[1:]
	p.inUse = append(p.inUse, tex)
	return tex, nil
}

// Free returns a texture handed out by Use. Textures of a stale size are
// deleted instead of returned.
func (p *TexturePool) Free(provider glutil.ObjectsProvider, tex glutil.TextureInfo) error {
	for i, t := range p.inUse {
		if t.TexID != tex.TexID {
			continue
		}
		p.inUse = append(p.inUse[:i], p.inUse[i+1:]...)
		if t.Width != p.width || t.Height != p.height {
			return t.Release(provider)
		}
		p.free = append(p.free, t)
		return nil
	}
	return types.NewProcessingError(types.ErrCodeIllegalState, "texture is not in use", nil)
}

// IsInUse reports whether tex was handed out and not yet freed.
func (p *TexturePool) IsInUse(tex glutil.TextureInfo) bool {
	for _, t := range p.inUse {
		if t.TexID == tex.TexID {
			return true
		}
	}
	return false
}

// FreeAll returns every texture in use.
func (p *TexturePool) FreeAll(provider glutil.ObjectsProvider) error {
	var errs []error
	for len(p.inUse) > 0 {
		errs = append(errs, p.Free(provider, p.inUse[0]))
	}
	return errors.Join(errs...)
}

// DeleteAll deletes every texture of the pool.
func (p *TexturePool) DeleteAll(provider glutil.ObjectsProvider) error {
	var errs []error
	for _, tex := range p.free {
		errs = append(errs, tex.Release(provider))
	}
	for _, tex := range p.inUse {
		errs = append(errs, tex.Release(provider))
	}
	p.free = nil
	p.inUse = nil
	p.width, p.height = types.LengthUnset, types.LengthUnset
	return errors.Join(errs...)
}
