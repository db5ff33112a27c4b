package types

// ColorSpace is the set of primaries of a ColorInfo.
type ColorSpace int

// Color spaces.
const (
	ColorSpaceUnset ColorSpace = iota
	ColorSpaceBT709
	ColorSpaceBT601
	ColorSpaceBT2020
)

// ColorRange is the quantization range of a ColorInfo.
type ColorRange int

// Color ranges.
const (
	ColorRangeUnset   ColorRange = iota
	ColorRangeLimited            // 16-235 luma
	ColorRangeFull               // 0-255
)

// ColorTransfer is the transfer characteristic of a ColorInfo.
type ColorTransfer int

// Color transfers.
const (
	ColorTransferUnset ColorTransfer = iota
	ColorTransferLinear
	ColorTransferSRGB
	ColorTransferSDR // BT.709/BT.601 gamma
	ColorTransferST2084
	ColorTransferHLG
)

// ColorInfo describes the colour properties of a stream of frames.
type ColorInfo struct {
	Space    ColorSpace    `json:"space" toml:"space"`
	Range    ColorRange    `json:"range" toml:"range"`
	Transfer ColorTransfer `json:"transfer" toml:"transfer"`
}

var (
	// SDRBT709Limited is the usual colour of decoded SDR video.
	SDRBT709Limited = ColorInfo{Space: ColorSpaceBT709, Range: ColorRangeLimited, Transfer: ColorTransferSDR}
	// SRGBBT709Full is the colour of decoded bitmaps.
	SRGBBT709Full = ColorInfo{Space: ColorSpaceBT709, Range: ColorRangeFull, Transfer: ColorTransferSRGB}
)

// IsTransferHDR reports whether the transfer is PQ or HLG.
func (c ColorInfo) IsTransferHDR() bool {
	return c.Transfer == ColorTransferST2084 || c.Transfer == ColorTransferHLG
}
