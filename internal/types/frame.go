package types

// LengthUnset marks an unknown width or height.
const LengthUnset = -1

// FrameInfo describes the frames of the upcoming input stream segment.
type FrameInfo struct {
	Width                 int     `json:"width"`
	Height                int     `json:"height"`
	PixelWidthHeightRatio float32 `json:"pixel_width_height_ratio"`
	// OffsetToAddUs is added to every presentation time of the segment.
	OffsetToAddUs int64 `json:"offset_to_add_us"`
}

// NewFrameInfo returns a FrameInfo with square pixels and no offset.
func NewFrameInfo(width, height int) FrameInfo {
	return FrameInfo{Width: width, Height: height, PixelWidthHeightRatio: 1}
}

// WithOffsetToAddUs returns a copy of f with the given offset.
func (f FrameInfo) WithOffsetToAddUs(offsetUs int64) FrameInfo {
	f.OffsetToAddUs = offsetUs
	return f
}

// Valid reports whether both dimensions are positive.
func (f FrameInfo) Valid() bool {
	return f.Width > 0 && f.Height > 0
}
