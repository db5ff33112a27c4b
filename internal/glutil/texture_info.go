package glutil

import (
	"errors"

	"github.com/smazurov/videofx/internal/types"
)

// IndexUnset marks an id that was never allocated.
const IndexUnset = -1

// Gainmap holds the metadata of an ultra HDR gain map attached to a texture.
type Gainmap struct {
	RatioMin [3]float32
	RatioMax [3]float32
	Gamma    [3]float32
}

// TextureInfo describes a texture and the framebuffer objects attached to it.
// Unset ids are IndexUnset, unset sizes are types.LengthUnset.
type TextureInfo struct {
	TexID  int
	FboID  int
	RboID  int
	Width  int
	Height int

	// Gainmap is non-nil exactly when GainmapTexID is set.
	Gainmap      *Gainmap
	GainmapTexID int
}

// UnsetTexture is a TextureInfo with all fields unset.
var UnsetTexture = TextureInfo{
	TexID:        IndexUnset,
	FboID:        IndexUnset,
	RboID:        IndexUnset,
	Width:        types.LengthUnset,
	Height:       types.LengthUnset,
	GainmapTexID: IndexUnset,
}

// NewTextureInfo creates a TextureInfo without gainmap.
func NewTextureInfo(texID, fboID, rboID, width, height int) TextureInfo {
	return TextureInfo{
		TexID:        texID,
		FboID:        fboID,
		RboID:        rboID,
		Width:        width,
		Height:       height,
		GainmapTexID: IndexUnset,
	}
}

// NewTextureInfoWithGainmap creates a TextureInfo with an optional gainmap.
// The gainmap and its texture id must be both present or both absent.
func NewTextureInfoWithGainmap(texID, fboID, rboID, width, height int, gainmap *Gainmap, gainmapTexID int) (TextureInfo, error) {
	if gainmap == nil && gainmapTexID != IndexUnset {
		return UnsetTexture, types.NewProcessingError(types.ErrCodeIllegalState,
			"a gainmap texture requires a non-nil gainmap", nil)
	}
	if gainmap != nil && gainmapTexID == IndexUnset {
		return UnsetTexture, types.NewProcessingError(types.ErrCodeIllegalState,
			"if gainmap is non-nil, the gainmap texture id must be set", nil)
	}
	return TextureInfo{
		TexID:        texID,
		FboID:        fboID,
		RboID:        rboID,
		Width:        width,
		Height:       height,
		Gainmap:      gainmap,
		GainmapTexID: gainmapTexID,
	}, nil
}

// HasGainmap reports whether a gainmap texture is attached.
func (t TextureInfo) HasGainmap() bool {
	return t.Gainmap != nil && t.GainmapTexID != IndexUnset
}

// Release deletes every set object through provider. All deletions are
// attempted; the joined errors are returned.
func (t TextureInfo) Release(provider ObjectsProvider) error {
	var errs []error
	if t.TexID != IndexUnset {
		errs = append(errs, provider.DeleteTexture(t.TexID))
	}
	if t.FboID != IndexUnset {
		errs = append(errs, provider.DeleteFbo(t.FboID))
	}
	if t.RboID != IndexUnset {
		errs = append(errs, provider.DeleteRbo(t.RboID))
	}
	if t.GainmapTexID != IndexUnset {
		errs = append(errs, provider.DeleteTexture(t.GainmapTexID))
	}
	return errors.Join(errs...)
}
