package tracer

import "fmt"

// NeeMode selects the direct light sampling strategy used by the integrator.
type NeeMode uint32

const (
	// Rely exclusively on BSDF sampling to reach emissive surfaces.
	NeeOff NeeMode = iota

	// Sample a light source directly at each diffuse bounce.
	NeeOn

	// Combine light and BSDF samples using the power heuristic.
	NeeMis
)

// Lookup a NEE mode by its CLI name.
func ParseNeeMode(name string) (NeeMode, error) {
	switch name {
	case "off":
		return NeeOff, nil
	case "nee":
		return NeeOn, nil
	case "mis":
		return NeeMis, nil
	}

	return NeeOff, fmt.Errorf("tracer: unsupported NEE mode %q", name)
}

func (m NeeMode) String() string {
	switch m {
	case NeeOff:
		return "off"
	case NeeOn:
		return "nee"
	case NeeMis:
		return "mis"
	}

	return "unknown"
}

// Tonemap selects the operator that maps accumulated radiance to display
// colors while generating frame buffer pixels.
type Tonemap uint32

const (
	// Exposure and gamma only.
	TonemapNone Tonemap = iota

	// Reinhard: x / (x + 1).
	TonemapReinhard

	// The Narkowicz rational fit of the ACES RRT/ODT curve with the
	// 0.6 exposure adjustment folded in.
	TonemapAces

	// The Narkowicz fit without the exposure adjustment.
	TonemapAcesOverexposed

	// The Hill matrix form of the ACES curve.
	TonemapAcesHill

	// Filmic curve with a fixed white point and white clip.
	TonemapNeutral

	// The Hable curve used by Uncharted 2.
	TonemapUncharted
)

// Lookup a tone-mapping operator by its CLI name.
func ParseTonemap(name string) (Tonemap, error) {
	switch name {
	case "none":
		return TonemapNone, nil
	case "reinhard":
		return TonemapReinhard, nil
	case "aces":
		return TonemapAces, nil
	case "aces-overexposed":
		return TonemapAcesOverexposed, nil
	case "aces-hill":
		return TonemapAcesHill, nil
	case "neutral":
		return TonemapNeutral, nil
	case "uncharted":
		return TonemapUncharted, nil
	}

	return TonemapNone, fmt.Errorf("tracer: unsupported tone-mapping operator %q", name)
}

func (t Tonemap) String() string {
	switch t {
	case TonemapNone:
		return "none"
	case TonemapReinhard:
		return "reinhard"
	case TonemapAces:
		return "aces"
	case TonemapAcesOverexposed:
		return "aces-overexposed"
	case TonemapAcesHill:
		return "aces-hill"
	case TonemapNeutral:
		return "neutral"
	case TonemapUncharted:
		return "uncharted"
	}

	return "unknown"
}
