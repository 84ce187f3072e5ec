package cpu

import (
	"github.com/achilleasa/vega/asset/scene"
	"github.com/achilleasa/vega/tracer"
	"github.com/achilleasa/vega/types"
	"github.com/chewxy/math32"
)

// Estimate the radiance arriving at a pixel through one monte-carlo path.
// The path starts at the camera, scatters off scene surfaces up to maxBounces
// times and terminates early when it escapes to the sky, gets absorbed by
// russian roulette or hits a light source. All stochastic decisions are
// driven by the supplied sample generator so identical generators trace
// identical paths.
func tracePixel(sc *scene.Scene, frameW, frameH, x, y uint32, smp *sampler, minBounces, maxBounces uint32, mode tracer.NeeMode) types.Vec3 {
	r := generatePrimaryRay(sc.Camera, frameW, frameH, x, y, smp.gen2())

	throughput := types.XYZ(1, 1, 1)
	var radiance types.Vec3
	var lastBsdf bsdfSample
	var lastLight directLightSample

	for bounce := uint32(0); bounce < maxBounces; bounce++ {
		res := traceNearest(sc, r)
		if !res.hit {
			radiance = radiance.Add(maskNan(throughput.MulVec(skyRadiance(sc, r))))
			break
		}

		hit := r.origin.Add(r.dir.Mul(res.t))
		mat := sc.TriangleMaterial(res.triangleIndex)

		if mat.IsEmissive() {
			// Emissive surfaces are single-sided.
			if res.backface {
				break
			}

			// Add the emission unless direct light sampling already
			// accounted for this light at the previous vertex.
			if mode == tracer.NeeOff || bounce == 0 || lastBsdf.lobe != lobeDiffuse {
				radiance = radiance.Add(maskNan(throughput.MulVec(mat.Emissive)))
				break
			}

			// With MIS the bsdf-sampled path to the light still
			// contributes, weighted against the light sample.
			if mode == tracer.NeeMis {
				radiance = radiance.Add(maskNan(calculateBsdfMisContribution(&res, &lastBsdf, &lastLight)))
				break
			}
		}

		normal, uv := interpolateHitAttributes(sc, &res)
		if mat.NormalTex >= 0 {
			normal = applyNormalMap(sc, &res, mat, normal, uv)
		}

		b := makePbrBsdf(mat, sc.TextureList, uv)
		view := r.dir.Mul(-1)
		bs := b.sample(view, normal, smp)
		lastBsdf = bs

		if mode != tracer.NeeOff && bs.lobe == lobeDiffuse {
			lastLight = sampleDirectLighting(sc, mode, throughput, b, bs, hit, normal, r.dir, smp)
			radiance = radiance.Add(maskNan(lastLight.contribution))
		}

		// A degenerate sample is absorbed here instead of poisoning
		// the throughput with a division by zero.
		if bs.pdf <= 0 {
			break
		}
		throughput = throughput.MulVec(bs.spectrum.Mul(1 / bs.pdf))

		r = ray{origin: hit.Add(bs.direction.Mul(epsilon)), dir: bs.direction}

		// Russian roulette. Surviving paths are boosted by the inverse
		// survival probability to keep the estimator unbiased.
		if bounce > minBounces {
			prob := throughput.MaxComponent()
			if !(prob > 0) || smp.gen1() > prob {
				break
			}
			throughput = throughput.Mul(1 / prob)
		}
	}

	return maskNan(radiance)
}

// Map a jittered pixel position to a world space camera ray. The vertical
// axis is flipped so that pixel row 0 maps to the top of the image plane and
// the horizontal field of view is corrected for the frame aspect ratio.
func generatePrimaryRay(camera *scene.Camera, frameW, frameH, x, y uint32, jitter types.Vec2) ray {
	u := (float32(x)+jitter[0])/float32(frameW)*2 - 1
	v := ((1 - (float32(y)+jitter[1])/float32(frameH))*2 - 1) * float32(frameH) / float32(frameW)

	dir := camera.RotateRay(types.XYZ(u, v, 1).Normalize())
	return ray{origin: camera.Position, dir: dir}
}

// Interpolate the vertex normal and UV coordinates at a hit point using its
// barycentric coordinates. Out of range UVs wrap around.
func interpolateHitAttributes(sc *scene.Scene, res *traceResult) (types.Vec3, types.Vec2) {
	offset := res.triangleIndex * 3
	w := 1 - res.baryU - res.baryV

	normal := sc.NormalList[offset].Vec3().Mul(w).
		Add(sc.NormalList[offset+1].Vec3().Mul(res.baryU)).
		Add(sc.NormalList[offset+2].Vec3().Mul(res.baryV)).
		Normalize()

	uv := sc.UvList[offset].Mul(w).
		Add(sc.UvList[offset+1].Mul(res.baryU)).
		Add(sc.UvList[offset+2].Mul(res.baryV))
	uv = types.XY(fract(uv[0]), fract(uv[1]))

	return normal, uv
}

// Perturb the interpolated normal by the material's tangent space normal map.
func applyNormalMap(sc *scene.Scene, res *traceResult, mat *scene.Material, normal types.Vec3, uv types.Vec2) types.Vec3 {
	offset := res.triangleIndex * 3
	w := 1 - res.baryU - res.baryV

	tangent := sc.TangentList[offset].Vec3().Mul(w).
		Add(sc.TangentList[offset+1].Vec3().Mul(res.baryU)).
		Add(sc.TangentList[offset+2].Vec3().Mul(res.baryV))
	if tangent.Len() < epsilon {
		return normal
	}
	tangent = tangent.Normalize()

	sampled := sc.TextureList[mat.NormalTex].Sample(uv).Vec3().Mul(2).Sub(types.XYZ(1, 1, 1))
	tbn := types.Mat3FromCols(tangent, tangent.Cross(normal), normal)
	return tbn.Mul3x1(sampled).Normalize()
}

// Replace non-finite contributions with black. A single NaN sample would
// otherwise corrupt the running average of its pixel for good.
func maskNan(v types.Vec3) types.Vec3 {
	if !v.IsFinite() {
		return types.Vec3{}
	}
	return v
}

func fract(v float32) float32 {
	return v - math32.Floor(v)
}
