package cpu

import (
	"github.com/achilleasa/vega/asset/scene"
	"github.com/achilleasa/vega/types"
	"github.com/chewxy/math32"
)

// Single scattering atmosphere parameters. Scatter coefficients are per color
// channel; Rayleigh scattering does not absorb light so its effective
// extinction equals its scatter coefficient while Mie absorption is
// approximated as a factor of its scattering.
var (
	rayScatterCoeff   = types.XYZ(58e-7, 135e-7, 331e-7)
	rayEffectiveCoeff = rayScatterCoeff
	mieScatterCoeff   = types.XYZ(2e-5, 2e-5, 2e-5)
	mieEffectiveCoeff = mieScatterCoeff.Mul(1.1)

	// Earth center; rays are traced in a frame where the surface touches
	// the world origin.
	earthCenter = types.XYZ(0, -earthRadius, 0)
)

const (
	earthRadius      float32 = 6360e3
	atmosphereRadius float32 = 6380e3

	// Scale heights for the Rayleigh and Mie density falloffs.
	hRay float32 = 8e3
	hMie float32 = 12e2

	scatterSteps = 12
)

// Distance along d at which a ray starting at p leaves the sphere of radius r
// around the earth center, or -1 when it never does.
func escape(p, d types.Vec3, r float32) float32 {
	v := p.Sub(earthCenter)
	b := v.Dot(d)
	det := b*b - v.Dot(v) + r*r
	if det < 0 {
		return -1
	}
	det = math32.Sqrt(det)
	if t1 := -b - det; t1 >= 0 {
		return t1
	}
	return -b + det
}

// Rayleigh and Mie densities at a point, relative to sea level.
func densitiesRM(p types.Vec3) types.Vec2 {
	h := math32.Max(p.Sub(earthCenter).Len()-earthRadius, 0)
	return types.XY(math32.Exp(-h/hRay), math32.Exp(-h/hMie))
}

// Approximate the optical depth integral along a segment with two samples.
func scatterDepthInt(o, d types.Vec3, l float32) types.Vec2 {
	return densitiesRM(o).Mul(l / 2).Add(densitiesRM(o.Add(d.Mul(l))).Mul(l / 2))
}

// March along the view ray accumulating in-scattered light per channel.
func scatterIn(origin, dir types.Vec3, depth float32, steps uint32, sunDir types.Vec3) (types.Vec3, types.Vec3) {
	depth = depth / float32(steps)

	var iR, iM types.Vec3
	var totalDepthRM types.Vec2

	for i := uint32(0); i < steps; i++ {
		p := origin.Add(dir.Mul(depth * float32(i)))
		dRM := densitiesRM(p).Mul(depth)
		totalDepthRM = totalDepthRM.Add(dRM)

		depthRMSum := totalDepthRM.Add(scatterDepthInt(p, sunDir, escape(p, sunDir, atmosphereRadius)))

		a := types.XYZ(
			math32.Exp(-rayEffectiveCoeff[0]*depthRMSum[0]-mieEffectiveCoeff[0]*depthRMSum[1]),
			math32.Exp(-rayEffectiveCoeff[1]*depthRMSum[0]-mieEffectiveCoeff[1]*depthRMSum[1]),
			math32.Exp(-rayEffectiveCoeff[2]*depthRMSum[0]-mieEffectiveCoeff[2]*depthRMSum[1]),
		)

		iR = iR.Add(a.Mul(dRM[0]))
		iM = iM.Add(a.Mul(dRM[1]))
	}

	return iR, iM
}

// Evaluate the procedural atmosphere for a ray that escaped the scene. The
// xyz components of sunDir hold the sun direction and w its intensity.
func scatter(sunDir types.Vec4, origin, dir types.Vec3) types.Vec3 {
	iR, iM := scatterIn(origin, dir, escape(origin, dir, atmosphereRadius), scatterSteps, sunDir.Vec3())

	mu := dir.Dot(sunDir.Vec3())
	rayPhase := iR.MulVec(rayEffectiveCoeff).Mul(0.0597)
	miePhase := iM.MulVec(mieScatterCoeff).Mul(0.0196 / math32.Pow(1.58-1.52*mu, 1.5))
	res := rayPhase.Add(miePhase).Mul(sunDir[3] * (1 + mu*mu))

	// The curve is authored in display space; square root then gamma
	// expansion shapes it back to linear radiance.
	res = maskNan(types.XYZ(math32.Sqrt(res[0]), math32.Sqrt(res[1]), math32.Sqrt(res[2])))
	return types.XYZ(
		math32.Pow(res[0], 2.2),
		math32.Pow(res[1], 2.2),
		math32.Pow(res[2], 2.2),
	)
}

// Sky radiance for an escaped ray: an equirectangular environment map when
// the scene carries one, the procedural atmosphere otherwise. The map is
// rotated so its center faces the sun azimuth and scaled by the sun
// intensity.
func skyRadiance(sc *scene.Scene, r ray) types.Vec3 {
	sky := sc.Skybox
	if sky.TextureIndex < 0 {
		return scatter(sky.SunDirection, r.origin, r.dir)
	}

	rotation := math32.Atan2(sky.SunDirection[2], sky.SunDirection[0])
	rotated := types.RotationY3(rotation).Mul3x1(r.dir)

	sinElevation := math32.Max(-1, math32.Min(1, rotated[1]))
	u := 0.5 + math32.Atan2(rotated[2], rotated[0])/(2*math32.Pi)
	v := 1 - (0.5 + math32.Asin(sinElevation)/math32.Pi)

	intensity := sky.SunDirection[3] * (1.0 / 15.0)
	return sc.TextureList[sky.TextureIndex].Sample(types.XY(u, v)).Vec3().Mul(intensity)
}
