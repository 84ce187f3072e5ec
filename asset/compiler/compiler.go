package compiler

import (
	"fmt"
	"sort"
	"time"

	"github.com/achilleasa/vega/asset"
	"github.com/achilleasa/vega/asset/compiler/bvh"
	"github.com/achilleasa/vega/asset/compiler/input"
	"github.com/achilleasa/vega/asset/scene"
	"github.com/achilleasa/vega/asset/texure"
	"github.com/achilleasa/vega/log"
	"github.com/achilleasa/vega/types"
	"github.com/chewxy/math32"
)

const (
	minPrimitivesPerLeaf = 4

	// Albedo textures and LDR environment maps are authored in display
	// space and are expanded to linear radiance values at compile time.
	displayGamma = 2.2

	minUvDeterminant = 1e-8
	minTangentLen    = 1e-6
)

type sceneCompiler struct {
	parsedScene    *input.Scene
	optimizedScene *scene.Scene
	logger         log.Logger

	// A map of a texture path to its index. This cache allows us to
	// re-use already loaded textures when referenced by multiple materials.
	texIndexCache map[string]int32
}

// Compile a scene representation parsed by a scene reader into the optimized
// flat-array format consumed by the trace kernels.
func Compile(parsedScene *input.Scene) (*scene.Scene, error) {
	compiler := &sceneCompiler{
		parsedScene:    parsedScene,
		optimizedScene: &scene.Scene{},
		logger:         log.New("scene compiler"),
	}

	start := time.Now()
	compiler.logger.Noticef("compiling scene")

	var err error
	err = compiler.bakeMaterials()
	if err != nil {
		return nil, err
	}

	err = compiler.partitionGeometry()
	if err != nil {
		return nil, err
	}

	err = compiler.buildLightTable()
	if err != nil {
		return nil, err
	}

	err = compiler.setupCamera()
	if err != nil {
		return nil, err
	}

	err = compiler.setupSkybox()
	if err != nil {
		return nil, err
	}

	compiler.logger.Noticef("compiled scene in %d ms", time.Since(start).Nanoseconds()/1e6)
	return compiler.optimizedScene, nil
}

// Convert parsed materials into their baked representation, loading any
// textures they reference. Baked material entries retain the ordering of the
// parsed material list so primitive material indices remain valid.
func (sc *sceneCompiler) bakeMaterials() error {
	start := time.Now()
	sc.logger.Noticef("processing %d materials", len(sc.parsedScene.Materials))

	sc.texIndexCache = make(map[string]int32, 0)
	sc.optimizedScene.MaterialList = make([]scene.Material, len(sc.parsedScene.Materials))
	sc.optimizedScene.TextureList = make([]*texture.Texture, 0)

	var err error
	for matIndex, mat := range sc.parsedScene.Materials {
		sc.logger.Infof(`processing material "%s"`, mat.Surface.Name)

		err = mat.Surface.Validate()
		if err != nil {
			return err
		}

		baked := &sc.optimizedScene.MaterialList[matIndex]
		baked.Albedo = mat.Surface.Albedo
		baked.Emissive = mat.Surface.Emissive
		baked.Metallic = mat.Surface.Metallic
		baked.Roughness = mat.Surface.Roughness

		// Albedo maps hold display-space colors; the data channels
		// (metallic, roughness, normals) are sampled as stored.
		baked.AlbedoTex, err = sc.bakeTexture(mat.Surface.Name, mat.AssetRelPath, mat.Surface.AlbedoTexture, true)
		if err != nil {
			return err
		}
		baked.MetallicTex, err = sc.bakeTexture(mat.Surface.Name, mat.AssetRelPath, mat.Surface.MetallicTexture, false)
		if err != nil {
			return err
		}
		baked.RoughnessTex, err = sc.bakeTexture(mat.Surface.Name, mat.AssetRelPath, mat.Surface.RoughnessTexture, false)
		if err != nil {
			return err
		}
		baked.NormalTex, err = sc.bakeTexture(mat.Surface.Name, mat.AssetRelPath, mat.Surface.NormalTexture, false)
		if err != nil {
			return err
		}
	}

	sc.logger.Noticef("processed %d materials in %d ms", len(sc.parsedScene.Materials), time.Since(start).Nanoseconds()/1e6)
	return nil
}

// Flatten all mesh primitives into the optimized scene triangle arrays and
// build a BVH tree over them. The BVH leaf callback copies primitives into
// the flat arrays in partition order so that each leaf references a
// contiguous triangle range.
func (sc *sceneCompiler) partitionGeometry() error {
	start := time.Now()
	sc.logger.Notice("partitioning geometry")

	totalPrimitives := 0
	for _, pm := range sc.parsedScene.Meshes {
		totalPrimitives += len(pm.Primitives)
	}

	volList := make([]bvh.BoundedVolume, 0, totalPrimitives)
	for _, pm := range sc.parsedScene.Meshes {
		sc.logger.Infof(`flattening primitives for "%s" (%d primitives)`, pm.Name, len(pm.Primitives))
		for _, prim := range pm.Primitives {
			volList = append(volList, prim)
		}
	}

	sc.optimizedScene.VertexList = make([]types.Vec4, totalPrimitives*3)
	sc.optimizedScene.NormalList = make([]types.Vec4, totalPrimitives*3)
	sc.optimizedScene.TangentList = make([]types.Vec4, totalPrimitives*3)
	sc.optimizedScene.UvList = make([]types.Vec2, totalPrimitives*3)
	sc.optimizedScene.MaterialIndex = make([]uint32, totalPrimitives)

	sc.logger.Infof("building BVH tree (%d primitives)", totalPrimitives)

	var vertexOffset uint32 = 0
	var primOffset uint32 = 0
	sc.optimizedScene.BvhNodeList = bvh.Build(volList, minPrimitivesPerLeaf, func(leaf *scene.BvhNode, workList []bvh.BoundedVolume) {
		leaf.SetPrimitives(primOffset, uint32(len(workList)))

		for _, workItem := range workList {
			prim := workItem.(*input.Primitive)

			// Vec3 attributes are padded to Vec4 so the flat arrays keep
			// the alignment a GPU kernel would expect.
			sc.optimizedScene.VertexList[vertexOffset+0] = prim.Vertices[0].Vec4(0)
			sc.optimizedScene.VertexList[vertexOffset+1] = prim.Vertices[1].Vec4(0)
			sc.optimizedScene.VertexList[vertexOffset+2] = prim.Vertices[2].Vec4(0)

			sc.optimizedScene.NormalList[vertexOffset+0] = prim.Normals[0].Vec4(0)
			sc.optimizedScene.NormalList[vertexOffset+1] = prim.Normals[1].Vec4(0)
			sc.optimizedScene.NormalList[vertexOffset+2] = prim.Normals[2].Vec4(0)

			tangent := primTangent(prim)
			sc.optimizedScene.TangentList[vertexOffset+0] = tangent
			sc.optimizedScene.TangentList[vertexOffset+1] = tangent
			sc.optimizedScene.TangentList[vertexOffset+2] = tangent

			sc.optimizedScene.UvList[vertexOffset+0] = prim.UVs[0]
			sc.optimizedScene.UvList[vertexOffset+1] = prim.UVs[1]
			sc.optimizedScene.UvList[vertexOffset+2] = prim.UVs[2]

			sc.optimizedScene.MaterialIndex[primOffset] = uint32(prim.MaterialIndex)

			vertexOffset += 3
			primOffset++
		}
	}, bvh.SurfaceAreaHeuristic)

	sc.logger.Noticef("partitioned geometry in %d ms", time.Since(start).Nanoseconds()/1e6)
	return nil
}

// Build the light pick table over the scene's emissive triangles. Each table
// entry packs up to two triangles; picking an entry uniformly and choosing
// between its slots with a second uniform number selects a triangle with
// probability proportional to its share of the total emitted power.
func (sc *sceneCompiler) buildLightTable() error {
	start := time.Now()
	sc.logger.Notice("building light table")

	triCount := len(sc.optimizedScene.MaterialIndex)
	areas := make([]float32, triCount)
	probabilities := make([]float32, triCount)

	var totalPower float32 = 0.0
	emissiveCount := 0
	for triIndex := 0; triIndex < triCount; triIndex++ {
		v0, v1, v2 := sc.optimizedScene.TriangleVertices(uint32(triIndex))
		areas[triIndex] = triangleArea(v0, v1, v2)

		mat := sc.optimizedScene.TriangleMaterial(uint32(triIndex))
		if !mat.IsEmissive() {
			continue
		}

		power := (mat.Emissive[0] + mat.Emissive[1] + mat.Emissive[2]) * areas[triIndex]
		probabilities[triIndex] = power
		totalPower += power
		emissiveCount++
	}

	if emissiveCount == 0 || totalPower == 0 {
		// Sentinel entry; the integrator skips direct light sampling.
		sc.optimizedScene.LightTable = []scene.LightTableEntry{{Ratio: -1}}
		sc.logger.Warning("the scene contains no emissive primitives; direct light sampling is disabled")
		sc.logger.Noticef("built light table in %d ms", time.Since(start).Nanoseconds()/1e6)
		return nil
	}

	for triIndex := range probabilities {
		probabilities[triIndex] /= totalPower
	}

	type bin struct {
		indexA uint32
		probA  float32
		indexB uint32
		probB  float32
	}

	bins := make([]bin, 0, emissiveCount)
	for triIndex, prob := range probabilities {
		if prob > 0 {
			bins = append(bins, bin{indexA: uint32(triIndex), probA: prob})
		}
	}
	sort.Slice(bins, func(i, j int) bool {
		return bins[i].probA < bins[j].probA
	})

	// Robin hood balancing: top up each bin that falls short of the average
	// probability from the richest remaining bin. After balancing, a uniform
	// entry pick plus a biased coin flip between the two slots reproduces
	// each triangle's pick probability.
	average := 1.0 / float32(emissiveCount)
	most := len(bins) - 1
	for i := 0; i < len(bins) && most >= 0; i++ {
		needed := average - bins[i].probA
		if needed <= 0 {
			break
		}

		bins[i].indexB = bins[most].indexA
		bins[i].probB = needed
		bins[most].probA -= needed
		if bins[most].probA <= average {
			most--
		}
	}

	table := make([]scene.LightTableEntry, len(bins))
	for i, b := range bins {
		var ratio float32 = 1.0
		if sum := b.probA + b.probB; sum > 0 {
			ratio = b.probA / sum
		}

		// The stored pdfs are the pre-balancing pick probabilities; the
		// balancing step only redistributes which entry yields a triangle,
		// never the probability of drawing it.
		table[i] = scene.LightTableEntry{
			TriangleA: b.indexA,
			TriangleB: b.indexB,
			PdfA:      probabilities[b.indexA],
			PdfB:      probabilities[b.indexB],
			AreaA:     areas[b.indexA],
			AreaB:     areas[b.indexB],
			Ratio:     ratio,
		}
	}
	sc.optimizedScene.LightTable = table

	sc.logger.Infof("found %d emissive primitives", emissiveCount)
	sc.logger.Noticef("built light table with %d entries in %d ms", len(table), time.Since(start).Nanoseconds()/1e6)
	return nil
}

// Initialize and position the camera for the scene.
func (sc *sceneCompiler) setupCamera() error {
	camera := scene.NewCamera(sc.parsedScene.Camera.Eye)
	camera.Pitch = sc.parsedScene.Camera.Pitch
	camera.Yaw = sc.parsedScene.Camera.Yaw
	camera.Update()

	sc.optimizedScene.Camera = camera
	return nil
}

// Set up sky illumination: the sun direction plus an optional equirectangular
// environment map.
func (sc *sceneCompiler) setupSkybox() error {
	parsed := sc.parsedScene.Skybox

	sunDir := parsed.SunDirection.Vec3()
	if sunDir.Len() > 0 {
		sunDir = sunDir.Normalize()
	}
	sc.optimizedScene.Skybox.SunDirection = sunDir.Vec4(parsed.SunDirection[3])

	sc.optimizedScene.Skybox.TextureIndex = -1
	if parsed.Texture == "" {
		return nil
	}

	texIndex, err := sc.bakeTexture("skybox", parsed.AssetRelPath, parsed.Texture, true)
	if err != nil {
		return err
	}
	sc.optimizedScene.Skybox.TextureIndex = texIndex
	return nil
}

// Load a texture resource and append it to the optimized scene texture list.
// Color textures are converted to linear space; missing texture resources
// emit a warning and yield the sentinel index -1 so the referencing channel
// falls back to its scalar value.
func (sc *sceneCompiler) bakeTexture(owner string, relPath *asset.Resource, texPath string, asColor bool) (int32, error) {
	if texPath == "" {
		return -1, nil
	}

	res, err := asset.NewResource(texPath, relPath)
	if err != nil {
		sc.logger.Warningf("%q: skipping missing texture %q", owner, texPath)
		return -1, nil
	}

	// Check if texture is already loaded. The same image baked both as
	// color and as data yields two entries.
	cacheKey := fmt.Sprintf("%s;color=%t", res.Path(), asColor)
	if texIndex, exists := sc.texIndexCache[cacheKey]; exists {
		sc.logger.Infof("%q: re-using already loaded texture %q", owner, texPath)
		return texIndex, nil
	}

	sc.logger.Infof("%q: processing texture %q", owner, texPath)

	tex, err := texture.New(res)
	if err != nil {
		return -1, fmt.Errorf("%q: %v", owner, err)
	}
	if asColor {
		tex = tex.Linear(displayGamma)
	}

	sc.optimizedScene.TextureList = append(sc.optimizedScene.TextureList, tex)
	texIndex := int32(len(sc.optimizedScene.TextureList) - 1)
	sc.texIndexCache[cacheKey] = texIndex
	return texIndex, nil
}

// Tangent vector for a primitive's UV parameterization; it seeds the basis
// used for normal mapping. Primitives with a degenerate UV area fall back to
// an arbitrary vector perpendicular to the geometric normal.
func primTangent(prim *input.Primitive) types.Vec4 {
	e1 := prim.Vertices[1].Sub(prim.Vertices[0])
	e2 := prim.Vertices[2].Sub(prim.Vertices[0])
	du1 := prim.UVs[1][0] - prim.UVs[0][0]
	dv1 := prim.UVs[1][1] - prim.UVs[0][1]
	du2 := prim.UVs[2][0] - prim.UVs[0][0]
	dv2 := prim.UVs[2][1] - prim.UVs[0][1]

	var tangent types.Vec3
	if det := du1*dv2 - du2*dv1; math32.Abs(det) > minUvDeterminant {
		tangent = e1.Mul(dv2).Sub(e2.Mul(dv1)).Mul(1 / det)
	} else {
		normal := e1.Cross(e2)
		tangent = types.XYZ(0, 1, 0).Cross(normal)
		if tangent.Len() < minTangentLen {
			tangent = types.XYZ(1, 0, 0).Cross(normal)
		}
	}

	if tangent.Len() < minTangentLen {
		return types.XYZW(1, 0, 0, 0)
	}
	return tangent.Normalize().Vec4(0)
}

// Heron's formula. Degenerate triangles evaluate to zero area instead of NaN.
func triangleArea(v0, v1, v2 types.Vec3) float32 {
	a := v1.Sub(v0).Len()
	b := v2.Sub(v1).Len()
	c := v0.Sub(v2).Len()
	s := (a + b + c) / 2
	return math32.Sqrt(math32.Max(0, s*(s-a)*(s-b)*(s-c)))
}
