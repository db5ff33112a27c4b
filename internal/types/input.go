package types

import (
	"fmt"
	"strings"
)

// InputType identifies the kind of frame source feeding the processor.
type InputType int

// Input types.
const (
	InputTypeSurface   InputType = 1 // Frames drawn into an input surface (decoder, camera)
	InputTypeBitmap    InputType = 2 // In-memory images repeated at a frame rate
	InputTypeTextureID InputType = 3 // Caller-owned textures
)

// AllInputTypes lists every supported input type in registration order.
var AllInputTypes = []InputType{InputTypeSurface, InputTypeBitmap, InputTypeTextureID}

// String returns the config/API name of the input type.
func (t InputType) String() string {
	switch t {
	case InputTypeSurface:
		return "surface"
	case InputTypeBitmap:
		return "bitmap"
	case InputTypeTextureID:
		return "texture_id"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Valid reports whether t is one of the supported input types.
func (t InputType) Valid() bool {
	return t == InputTypeSurface || t == InputTypeBitmap || t == InputTypeTextureID
}

// ParseInputType converts a config/API name into an InputType.
func ParseInputType(s string) (InputType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "surface":
		return InputTypeSurface, nil
	case "bitmap":
		return InputTypeBitmap, nil
	case "texture_id", "texture-id", "texture":
		return InputTypeTextureID, nil
	default:
		return 0, NewProcessingError(ErrCodeUnsupportedInput, fmt.Sprintf("unsupported input type %q", s), nil)
	}
}
