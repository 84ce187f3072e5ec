package cpu

import (
	"github.com/achilleasa/vega/asset/scene"
	"github.com/achilleasa/vega/asset/texure"
	"github.com/achilleasa/vega/types"
	"github.com/chewxy/math32"
)

type lobeType uint8

const (
	lobeDiffuse lobeType = iota
	lobeSpecular
)

// The outcome of importance sampling a material at a hit point.
type bsdfSample struct {
	pdf       float32
	lobe      lobeType
	spectrum  types.Vec3
	direction types.Vec3
}

// A metallic/roughness material resolved at a specific hit point; texture
// channels have already been sampled into their scalar values.
type pbrBsdf struct {
	albedo    types.Vec3
	roughness float32
	metallic  float32
}

// Resolve the material shading parameters at the given UV coordinates.
func makePbrBsdf(mat *scene.Material, texList []*texture.Texture, uv types.Vec2) pbrBsdf {
	b := pbrBsdf{
		albedo:    mat.Albedo,
		roughness: mat.Roughness,
		metallic:  mat.Metallic,
	}
	if mat.AlbedoTex >= 0 {
		b.albedo = texList[mat.AlbedoTex].Sample(uv).Vec3()
	}
	if mat.RoughnessTex >= 0 {
		b.roughness = texList[mat.RoughnessTex].Sample(uv)[0]
	}
	if mat.MetallicTex >= 0 {
		b.metallic = texList[mat.MetallicTex].Sample(uv)[0]
	}
	return b
}

// The probability of picking the specular lobe over the diffuse lobe; fully
// metallic surfaces never scatter diffusely.
func (b pbrBsdf) specularRatio() float32 {
	return 0.5 + 0.5*b.metallic
}

func (b pbrBsdf) fresnel(view, halfway types.Vec3) types.Vec3 {
	f0 := types.LerpVec3(types.XYZ(0.04, 0.04, 0.04), b.albedo, b.metallic)
	return fresnelSchlick(math32.Max(halfway.Dot(view), 0), f0)
}

func (b pbrBsdf) evaluateDiffuse(cosTheta, ratio float32, ks types.Vec3) types.Vec3 {
	kd := types.XYZ(1, 1, 1).Sub(ks).Mul(1 - b.metallic)
	diffuse := kd.MulVec(b.albedo).Mul(1 / math32.Pi)
	return diffuse.Mul(cosTheta / (1 - ratio))
}

func (b pbrBsdf) evaluateSpecular(view, normal, sampleDir types.Vec3, cosTheta, dTerm, ratio float32, ks types.Vec3) types.Vec3 {
	roughness := math32.Max(b.roughness, epsilon)
	gTerm := geometrySmith(normal, view, sampleDir, roughness)
	numerator := ks.Mul(dTerm * gTerm)
	denominator := 4 * math32.Max(normal.Dot(view), 0) * cosTheta
	specular := numerator.Mul(1 / math32.Max(denominator, epsilon))
	return specular.Mul(cosTheta / ratio)
}

func (b pbrBsdf) pdfDiffuse(cosTheta float32) float32 {
	return cosTheta / math32.Pi
}

func (b pbrBsdf) pdfSpecular(view, normal, halfway types.Vec3, dTerm float32) float32 {
	return (dTerm * normal.Dot(halfway)) / (4 * view.Dot(halfway))
}

// Importance sample an outgoing direction for a surface viewed from the given
// direction. One lobe is picked per call; the returned spectrum and pdf are
// already divided by the lobe pick probability.
func (b pbrBsdf) sample(view, normal types.Vec3, rng *sampler) bsdfSample {
	rngSample := rng.gen3()
	ratio := b.specularRatio()
	roughness := math32.Max(b.roughness, epsilon)

	var direction types.Vec3
	var lobe lobeType
	if rngSample[2] > ratio {
		up, nt, nb := createCartesian(normal)
		s := cosineSampleHemisphere(rngSample[0], rngSample[1])
		direction = nb.Mul(s[0]).Add(up.Mul(s[1])).Add(nt.Mul(s[2])).Normalize()
		lobe = lobeDiffuse
	} else {
		reflection := reflect(view.Mul(-1), normal)
		direction = sampleGgx(rngSample[0], rngSample[1], reflection, roughness)
		lobe = lobeSpecular
	}

	cosTheta := math32.Max(normal.Dot(direction), 0)
	halfway := view.Add(direction).Normalize()
	ks := b.fresnel(view, halfway)

	out := bsdfSample{lobe: lobe, direction: direction}
	if lobe == lobeDiffuse {
		out.pdf = b.pdfDiffuse(cosTheta)
		out.spectrum = b.evaluateDiffuse(cosTheta, ratio, ks)
	} else {
		dTerm := ggxDistribution(normal, halfway, roughness)
		out.pdf = b.pdfSpecular(view, normal, halfway, dTerm)
		out.spectrum = b.evaluateSpecular(view, normal, direction, cosTheta, dTerm, ratio, ks)
	}
	return out
}

// Evaluate the material spectrum for a known outgoing direction, e.g. a
// direction sampled on a light source.
func (b pbrBsdf) evaluate(view, normal, sampleDir types.Vec3, lobe lobeType) types.Vec3 {
	ratio := b.specularRatio()
	cosTheta := math32.Max(normal.Dot(sampleDir), 0)
	halfway := view.Add(sampleDir).Normalize()
	ks := b.fresnel(view, halfway)

	if lobe == lobeDiffuse {
		return b.evaluateDiffuse(cosTheta, ratio, ks)
	}

	roughness := math32.Max(b.roughness, epsilon)
	dTerm := ggxDistribution(normal, halfway, roughness)
	return b.evaluateSpecular(view, normal, sampleDir, cosTheta, dTerm, ratio, ks)
}

// The probability density of the given outgoing direction for one lobe.
func (b pbrBsdf) pdf(view, normal, sampleDir types.Vec3, lobe lobeType) float32 {
	if lobe == lobeDiffuse {
		cosTheta := math32.Max(normal.Dot(sampleDir), 0)
		return b.pdfDiffuse(cosTheta)
	}

	halfway := view.Add(sampleDir).Normalize()
	roughness := math32.Max(b.roughness, epsilon)
	dTerm := ggxDistribution(normal, halfway, roughness)
	return b.pdfSpecular(view, normal, halfway, dTerm)
}

// Build an orthonormal basis around the up vector.
func createCartesian(up types.Vec3) (types.Vec3, types.Vec3, types.Vec3) {
	arbitrary := types.XYZ(0.1, 0.5, 0.9)
	tempVec := up.Cross(arbitrary).Normalize()
	right := tempVec.Cross(up).Normalize()
	forward := up.Cross(right).Normalize()
	return up, right, forward
}

// Sample a cosine weighted direction on the hemisphere around the Y axis.
func cosineSampleHemisphere(r1, r2 float32) types.Vec3 {
	theta := math32.Acos(math32.Sqrt(r1))
	phi := 2 * math32.Pi * r2
	sinTheta, cosTheta := math32.Sincos(theta)
	sinPhi, cosPhi := math32.Sincos(phi)
	return types.XYZ(sinTheta*cosPhi, cosTheta, sinTheta*sinPhi)
}

func reflect(i, normal types.Vec3) types.Vec3 {
	return i.Sub(normal.Mul(2 * i.Dot(normal)))
}

func fresnelSchlick(cosTheta float32, f0 types.Vec3) types.Vec3 {
	return f0.Add(types.XYZ(1, 1, 1).Sub(f0).Mul(math32.Pow(1-cosTheta, 5)))
}

// The GGX normal distribution for the given halfway vector.
func ggxDistribution(normal, halfway types.Vec3, roughness float32) float32 {
	numerator := roughness * roughness
	nDotH := math32.Max(normal.Dot(halfway), 0)
	denominator := nDotH*nDotH*(numerator-1) + 1
	denominator = math32.Max(math32.Pi*denominator*denominator, epsilon)
	return numerator / denominator
}

func geometrySchlickGgx(normal, view types.Vec3, roughness float32) float32 {
	numerator := math32.Max(normal.Dot(view), 0)
	r := (roughness * roughness) / 8
	denominator := numerator*(1-r) + r
	return numerator / denominator
}

func geometrySmith(normal, view, sampleDir types.Vec3, roughness float32) float32 {
	return geometrySchlickGgx(normal, view, roughness) * geometrySchlickGgx(normal, sampleDir, roughness)
}

// Importance sample the GGX distribution around a reflection direction.
func sampleGgx(r1, r2 float32, reflectionDir types.Vec3, roughness float32) types.Vec3 {
	a := roughness * roughness

	phi := 2 * math32.Pi * r1
	cosTheta := math32.Sqrt((1 - r2) / (r2*(a*a-1) + 1))
	sinTheta := math32.Sqrt(1 - cosTheta*cosTheta)
	sinPhi, cosPhi := math32.Sincos(phi)
	halfway := types.XYZ(cosPhi*sinTheta, sinPhi*sinTheta, cosTheta)

	up := types.XYZ(0, 0, 1)
	if math32.Abs(reflectionDir[2]) >= 0.999 {
		up = types.XYZ(1, 0, 0)
	}
	tangent := up.Cross(reflectionDir).Normalize()
	bitangent := reflectionDir.Cross(tangent)

	return tangent.Mul(halfway[0]).
		Add(bitangent.Mul(halfway[1])).
		Add(reflectionDir.Mul(halfway[2])).
		Normalize()
}

// Weigh one sampling strategy against another using the power heuristic.
func powerHeuristic(p1, p2 float32) float32 {
	p1Sq := p1 * p1
	return p1Sq / (p1Sq + p2*p2)
}
