package cpu

import (
	"github.com/achilleasa/vega/asset/scene"
	"github.com/achilleasa/vega/tracer"
	"github.com/achilleasa/vega/types"
	"github.com/chewxy/math32"
)

// The outcome of sampling a single light at a path vertex. contribution
// holds the weighted shadow-ray radiance and is ready to accumulate. The
// remaining fields describe the picked light so that a later bsdf-sampled
// hit on the same light can be weighted against this sample.
type directLightSample struct {
	contribution  types.Vec3
	bsdfWeight    types.Vec3
	lightIndex    uint32
	lightArea     float32
	lightNormal   types.Vec3
	lightEmission types.Vec3
	pickPdf       float32
}

// Select a light source from the balanced light table. Each entry pairs two
// triangles with a split ratio so that a single table lookup selects every
// light with probability proportional to its emissive power.
func pickLight(table []scene.LightTableEntry, rng types.Vec2) (triIndex uint32, area float32, pdf float32) {
	index := int(rng[0] * float32(len(table)))
	if index > len(table)-1 {
		index = len(table) - 1
	}

	entry := table[index]
	if rng[1] < entry.Ratio {
		return entry.TriangleA, entry.AreaA, entry.PdfA
	}
	return entry.TriangleB, entry.AreaB, entry.PdfB
}

// Uniformly sample a point on a triangle.
func pickTrianglePoint(a, b, c types.Vec3, rng types.Vec2) types.Vec3 {
	r1s := math32.Sqrt(rng[0])
	return a.Mul(1 - r1s).
		Add(b.Mul(r1s * (1 - rng[1]))).
		Add(c.Mul(r1s * rng[1]))
}

// Convert an area pdf on the light surface to a solid angle pdf at the
// shaded point. Returns 0 when the light faces away from it.
func calculateLightPdf(area, dist float32, lightNormal, lightDir types.Vec3) float32 {
	cosTheta := lightNormal.Dot(lightDir.Mul(-1))
	if cosTheta <= 0 {
		return 0
	}
	return (dist * dist) / (area * cosTheta)
}

// Combination weight for a sampling strategy given its pdf and the pdf of
// the competing strategy. Without multiple importance sampling each strategy
// receives full weight.
func misWeight(mode tracer.NeeMode, pdf, otherPdf float32) float32 {
	if mode == tracer.NeeMis {
		return powerHeuristic(pdf, otherPdf)
	}
	return 1
}

// Sample one light source and trace a shadow ray towards it. throughput, b
// and bs describe the path state at the hit point; bs must be the bsdf
// sample for the outgoing bounce so the returned bsdfWeight matches the
// throughput the path carries past this vertex.
func sampleDirectLighting(sc *scene.Scene, mode tracer.NeeMode, throughput types.Vec3, b pbrBsdf, bs bsdfSample, hit, normal, rayDir types.Vec3, rng *sampler) directLightSample {
	var out directLightSample
	if len(sc.LightTable) == 0 {
		return out
	}

	lightIndex, lightArea, pickPdf := pickLight(sc.LightTable, rng.gen2())
	if pickPdf == 0 {
		return out
	}

	v0, v1, v2 := sc.TriangleVertices(lightIndex)
	lightPoint := pickTrianglePoint(v0, v1, v2, rng.gen2())

	toLight := lightPoint.Sub(hit)
	lightDist := toLight.Len()
	lightDir := toLight.Normalize()

	n0 := sc.NormalList[int(lightIndex)*3].Vec3()
	n1 := sc.NormalList[int(lightIndex)*3+1].Vec3()
	n2 := sc.NormalList[int(lightIndex)*3+2].Vec3()
	lightNormal := n0.Add(n1).Add(n2).Mul(1.0 / 3.0)

	out.lightIndex = lightIndex
	out.lightArea = lightArea
	out.lightNormal = lightNormal
	out.lightEmission = sc.TriangleMaterial(lightIndex).Emissive
	out.pickPdf = pickPdf
	out.bsdfWeight = throughput.MulVec(bs.spectrum.Mul(1 / bs.pdf))

	// Occlusion test towards the sampled point; the interval stops just
	// short of the light surface so the light itself does not occlude.
	shadowRay := ray{origin: hit.Add(lightDir.Mul(epsilon)), dir: lightDir}
	if res := traceAny(sc, shadowRay, lightDist-2*epsilon); res.hit {
		return out
	}

	lightPdf := calculateLightPdf(lightArea, lightDist, lightNormal, lightDir)
	if lightPdf <= 0 {
		return out
	}

	view := rayDir.Mul(-1)
	attenuation := b.evaluate(view, normal, lightDir, lobeDiffuse)
	bsdfPdf := b.pdf(view, normal, lightDir, lobeDiffuse)
	if bsdfPdf <= 0 {
		return out
	}

	weight := misWeight(mode, lightPdf, bsdfPdf)
	out.contribution = throughput.
		MulVec(attenuation).
		MulVec(out.lightEmission).
		Mul(weight / (lightPdf * pickPdf))
	return out
}

// Weighted emission for a bsdf-sampled ray that reached the light picked by
// the direct lighting sample of the previous path vertex.
func calculateBsdfMisContribution(res *traceResult, lastBsdf *bsdfSample, lastLight *directLightSample) types.Vec3 {
	if res.triangleIndex != lastLight.lightIndex {
		return types.Vec3{}
	}

	lightPdf := calculateLightPdf(lastLight.lightArea, res.t, lastLight.lightNormal, lastBsdf.direction)
	if lightPdf <= 0 || lastLight.pickPdf <= 0 {
		return types.Vec3{}
	}

	weight := powerHeuristic(lastBsdf.pdf, lightPdf)
	return lastLight.bsdfWeight.
		MulVec(lastLight.lightEmission).
		Mul(weight / lastLight.pickPdf)
}
