package texture

type Format uint32

const (
	Luminance8 Format = iota
	Luminance32F
	Rgba8
	Rgba32F
)

// Number of channels stored per texel.
func (f Format) Channels() uint32 {
	switch f {
	case Luminance8, Luminance32F:
		return 1
	default:
		return 4
	}
}

// Size of a single texel in bytes.
func (f Format) TexelSize() uint32 {
	switch f {
	case Luminance8:
		return 1
	case Luminance32F, Rgba8:
		return 4
	default:
		return 16
	}
}
