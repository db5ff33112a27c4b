package glutil

import (
	"fmt"
	"image"
	"sync"

	"golang.org/x/image/draw"

	"github.com/smazurov/videofx/internal/types"
)

// ObjectsProvider creates, accesses and deletes GPU objects. Implementations
// are only called from the processing executor.
type ObjectsProvider interface {
	CreateTexture(width, height int) (int, error)
	CreateFbo(texID int) (int, error)
	DeleteTexture(id int) error
	DeleteFbo(id int) error
	DeleteRbo(id int) error

	// Pixels returns the backing storage of a texture. Writes are visible to
	// later readers of the same texture.
	Pixels(texID int) (*image.RGBA, error)
}

// CreateFboTexture allocates a texture with a framebuffer attached.
func CreateFboTexture(provider ObjectsProvider, width, height int) (TextureInfo, error) {
	texID, err := provider.CreateTexture(width, height)
	if err != nil {
		return UnsetTexture, err
	}
	fboID, err := provider.CreateFbo(texID)
	if err != nil {
		_ = provider.DeleteTexture(texID)
		return UnsetTexture, err
	}
	return NewTextureInfo(texID, fboID, IndexUnset, width, height), nil
}

// Upload copies img into the texture, scaling when the sizes differ.
func Upload(provider ObjectsProvider, texID int, img image.Image) error {
	dst, err := provider.Pixels(texID)
	if err != nil {
		return err
	}
	if dst.Bounds().Size() == img.Bounds().Size() {
		draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
		return nil
	}
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return nil
}

// SoftwareProvider keeps textures in memory. It detects deletion of unknown
// or already deleted objects.
type SoftwareProvider struct {
	mu       sync.Mutex
	nextID   int
	textures map[int]*image.RGBA
	fbos     map[int]int
	rbos     map[int]struct{}
}

// NewSoftwareProvider creates an empty SoftwareProvider.
func NewSoftwareProvider() *SoftwareProvider {
	return &SoftwareProvider{
		nextID:   1,
		textures: make(map[int]*image.RGBA),
		fbos:     make(map[int]int),
		rbos:     make(map[int]struct{}),
	}
}

// CreateTexture implements ObjectsProvider.
func (p *SoftwareProvider) CreateTexture(width, height int) (int, error) {
	if width <= 0 || height <= 0 {
		return IndexUnset, glError(fmt.Sprintf("invalid texture size %dx%d", width, height))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.allocID()
	p.textures[id] = image.NewRGBA(image.Rect(0, 0, width, height))
	return id, nil
}

// CreateFbo implements ObjectsProvider.
func (p *SoftwareProvider) CreateFbo(texID int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.textures[texID]; !ok {
		return IndexUnset, glError(fmt.Sprintf("framebuffer attachment to unknown texture %d", texID))
	}
	id := p.allocID()
	p.fbos[id] = texID
	return id, nil
}

// CreateRbo allocates a renderbuffer.
func (p *SoftwareProvider) CreateRbo() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.allocID()
	p.rbos[id] = struct{}{}
	return id
}

// DeleteTexture implements ObjectsProvider.
func (p *SoftwareProvider) DeleteTexture(id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.textures[id]; !ok {
		return glError(fmt.Sprintf("delete of unknown texture %d", id))
	}
	delete(p.textures, id)
	return nil
}

// DeleteFbo implements ObjectsProvider.
func (p *SoftwareProvider) DeleteFbo(id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.fbos[id]; !ok {
		return glError(fmt.Sprintf("delete of unknown framebuffer %d", id))
	}
	delete(p.fbos, id)
	return nil
}

// DeleteRbo implements ObjectsProvider.
func (p *SoftwareProvider) DeleteRbo(id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.rbos[id]; !ok {
		return glError(fmt.Sprintf("delete of unknown renderbuffer %d", id))
	}
	delete(p.rbos, id)
	return nil
}

// Pixels implements ObjectsProvider.
func (p *SoftwareProvider) Pixels(texID int) (*image.RGBA, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	img, ok := p.textures[texID]
	if !ok {
		return nil, glError(fmt.Sprintf("unknown texture %d", texID))
	}
	return img, nil
}

// LiveObjects returns the number of textures, framebuffers and renderbuffers
// that were created and not yet deleted.
func (p *SoftwareProvider) LiveObjects() (textures, fbos, rbos int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.textures), len(p.fbos), len(p.rbos)
}

func (p *SoftwareProvider) allocID() int {
	id := p.nextID
	p.nextID++
	return id
}

func glError(msg string) error {
	return types.NewProcessingError(types.ErrCodeGL, msg, nil)
}
