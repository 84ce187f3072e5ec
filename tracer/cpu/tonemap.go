package cpu

import (
	"github.com/achilleasa/vega/tracer"
	"github.com/achilleasa/vega/types"
	"github.com/chewxy/math32"
)

// ACEScg forward/inverse transforms for the Hill variant of the ACES curve.
var (
	acesInputMat = types.Mat3FromCols(
		types.XYZ(0.59719, 0.07600, 0.02840),
		types.XYZ(0.35458, 0.90834, 0.13383),
		types.XYZ(0.04823, 0.01566, 0.83777),
	)
	acesOutputMat = types.Mat3FromCols(
		types.XYZ(1.60475, -0.10208, -0.00327),
		types.XYZ(-0.53108, 1.10813, -0.07276),
		types.XYZ(-0.07367, -0.00605, 1.07602),
	)
)

// Map accumulated linear radiance to a displayable color using the selected
// operator. The input is clamped to non-negative values first; every operator
// yields channels in [0, 1] except the passthrough which only floors at 0.
// Gamma encoding is left to the frame buffer writer.
func applyTonemap(op tracer.Tonemap, x types.Vec3) types.Vec3 {
	x = types.MaxVec3(x, types.Vec3{})

	switch op {
	case tracer.TonemapReinhard:
		return types.XYZ(x[0]/(x[0]+1), x[1]/(x[1]+1), x[2]/(x[2]+1))
	case tracer.TonemapAces:
		return acesNarkowicz(x.Mul(0.6))
	case tracer.TonemapAcesOverexposed:
		return acesNarkowicz(x)
	case tracer.TonemapAcesHill:
		return acesHill(x)
	case tracer.TonemapNeutral:
		return neutral(x)
	case tracer.TonemapUncharted:
		return uncharted(x)
	}

	return x
}

// The Narkowicz rational fit of the combined ACES RRT/ODT transform.
func acesNarkowicz(x types.Vec3) types.Vec3 {
	curve := func(v float32) float32 {
		return clamp01((v * (2.51*v + 0.03)) / (v*(2.43*v+0.59) + 0.14))
	}
	return types.XYZ(curve(x[0]), curve(x[1]), curve(x[2]))
}

// The Hill matrix form: transform into ACEScg, apply the RRT/ODT fit per
// channel and transform back.
func acesHill(x types.Vec3) types.Vec3 {
	x = acesInputMat.Mul3x1(x)
	x = types.XYZ(rrtAndOdtFit(x[0]), rrtAndOdtFit(x[1]), rrtAndOdtFit(x[2]))
	x = acesOutputMat.Mul3x1(x)
	return clamp01Vec3(x)
}

func rrtAndOdtFit(v float32) float32 {
	a := v*(v+0.0245786) - 0.000090537
	b := v*(0.983729*v+0.4329510) + 0.238081
	return a / b
}

// Filmic curve with a fixed white level; the curve output is normalized by
// the white clip so the white level maps to 1.
func neutral(x types.Vec3) types.Vec3 {
	const (
		a, b, c, d, e, f = 0.2, 0.29, 0.24, 0.272, 0.02, 0.3

		whiteLevel float32 = 5.3
		whiteClip  float32 = 1.0
	)

	curve := func(v float32) float32 {
		return (v*(a*v+c*b)+d*e)/(v*(a*v+b)+d*f) - e/f
	}

	whiteScale := 1.0 / curve(whiteLevel)
	mapChannel := func(v float32) float32 {
		return clamp01(curve(v*whiteScale) * whiteScale / whiteClip)
	}
	return types.XYZ(mapChannel(x[0]), mapChannel(x[1]), mapChannel(x[2]))
}

// The Hable curve used by Uncharted 2, with the usual 2.0 exposure bias and
// white scale normalization.
func uncharted(x types.Vec3) types.Vec3 {
	const (
		exposureBias float32 = 2.0
		white        float32 = 11.2
	)

	whiteScale := 1.0 / hable(white)
	mapChannel := func(v float32) float32 {
		return clamp01(hable(v*exposureBias) * whiteScale)
	}
	return types.XYZ(mapChannel(x[0]), mapChannel(x[1]), mapChannel(x[2]))
}

func hable(v float32) float32 {
	const a, b, c, d, e, f = 0.15, 0.50, 0.10, 0.20, 0.02, 0.30
	return (v*(a*v+c*b)+d*e)/(v*(a*v+b)+d*f) - e/f
}

func clamp01(v float32) float32 {
	return math32.Max(0, math32.Min(1, v))
}

func clamp01Vec3(v types.Vec3) types.Vec3 {
	return types.XYZ(clamp01(v[0]), clamp01(v[1]), clamp01(v[2]))
}
