package glutil

import (
	"errors"
	"testing"

	"github.com/smazurov/videofx/internal/types"
)

// recordingProvider records deletions and can fail on demand.
type recordingProvider struct {
	*SoftwareProvider
	deleted []string
	failTex bool
}

func newRecordingProvider() *recordingProvider {
	return &recordingProvider{SoftwareProvider: NewSoftwareProvider()}
}

func (p *recordingProvider) DeleteTexture(id int) error {
	p.deleted = append(p.deleted, "tex")
	if p.failTex {
		return errors.New("boom")
	}
	return p.SoftwareProvider.DeleteTexture(id)
}

func (p *recordingProvider) DeleteFbo(id int) error {
	p.deleted = append(p.deleted, "fbo")
	return p.SoftwareProvider.DeleteFbo(id)
}

func (p *recordingProvider) DeleteRbo(id int) error {
	p.deleted = append(p.deleted, "rbo")
	return p.SoftwareProvider.DeleteRbo(id)
}

func TestNewTextureInfoWithGainmap_ChecksGainmapConsistency(t *testing.T) {
	tests := []struct {
		name         string
		gainmap      *Gainmap
		gainmapTexID int
		wantErr      bool
	}{
		{"gainmap with unset id", &Gainmap{}, IndexUnset, true},
		{"id without gainmap", nil, 7, true},
		{"neither", nil, IndexUnset, false},
		{"both", &Gainmap{}, 7, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := NewTextureInfoWithGainmap(1, 2, IndexUnset, 4, 4, tt.gainmap, tt.gainmapTexID)
			if tt.wantErr {
				if !types.IsCode(err, types.ErrCodeIllegalState) {
					t.Fatalf("Expected ILLEGAL_STATE error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if want := tt.gainmap != nil; info.HasGainmap() != want {
				t.Errorf("Expected HasGainmap %v, got %v", want, info.HasGainmap())
			}
			if info.TexID != 1 || info.FboID != 2 || info.Width != 4 {
				t.Errorf("Unexpected texture info %+v", info)
			}
		})
	}
}

func TestNewTextureInfo_LeavesGainmapUnset(t *testing.T) {
	info := NewTextureInfo(1, 2, 3, 10, 20)
	if info.Gainmap != nil || info.GainmapTexID != IndexUnset {
		t.Errorf("Expected unset gainmap, got %v / %d", info.Gainmap, info.GainmapTexID)
	}
}

func TestRelease_AllUnsetIsNoop(t *testing.T) {
	p := newRecordingProvider()
	if err := UnsetTexture.Release(p); err != nil {
		t.Fatalf("Release of unset texture failed: %v", err)
	}
	if len(p.deleted) != 0 {
		t.Errorf("Expected no deletions, got %v", p.deleted)
	}
}

func TestRelease_DeletesEverySetObjectInOrder(t *testing.T) {
	p := newRecordingProvider()
	tex, _ := p.CreateTexture(2, 2)
	fbo, _ := p.CreateFbo(tex)
	rbo := p.CreateRbo()
	gainTex, _ := p.CreateTexture(1, 1)

	info, err := NewTextureInfoWithGainmap(tex, fbo, rbo, 2, 2, &Gainmap{}, gainTex)
	if err != nil {
		t.Fatalf("NewTextureInfoWithGainmap failed: %v", err)
	}
	if releaseErr := info.Release(p); releaseErr != nil {
		t.Fatalf("Release failed: %v", releaseErr)
	}

	want := []string{"tex", "fbo", "rbo", "tex"}
	if len(p.deleted) != len(want) {
		t.Fatalf("Expected deletions %v, got %v", want, p.deleted)
	}
	for i := range want {
		if p.deleted[i] != want[i] {
			t.Errorf("Deletion %d: expected %s, got %s", i, want[i], p.deleted[i])
		}
	}

	textures, fbos, rbos := p.LiveObjects()
	if textures != 0 || fbos != 0 || rbos != 0 {
		t.Errorf("Expected no live objects, got %d/%d/%d", textures, fbos, rbos)
	}
}

func TestRelease_TwiceIsDetected(t *testing.T) {
	p := NewSoftwareProvider()
	info, err := CreateFboTexture(p, 4, 4)
	if err != nil {
		t.Fatalf("CreateFboTexture failed: %v", err)
	}
	if err := info.Release(p); err != nil {
		t.Fatalf("First release failed: %v", err)
	}
	if err := info.Release(p); !types.IsCode(err, types.ErrCodeGL) {
		t.Errorf("Expected GL error on double release, got %v", err)
	}
}

func TestRelease_ContinuesAfterFailure(t *testing.T) {
	p := newRecordingProvider()
	tex, _ := p.CreateTexture(2, 2)
	fbo, _ := p.CreateFbo(tex)
	p.failTex = true

	err := NewTextureInfo(tex, fbo, IndexUnset, 2, 2).Release(p)
	if err == nil {
		t.Fatal("Expected error from failing texture deletion")
	}
	if len(p.deleted) != 2 || p.deleted[1] != "fbo" {
		t.Errorf("Expected framebuffer deletion after texture failure, got %v", p.deleted)
	}
}
