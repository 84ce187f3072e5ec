package reader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/achilleasa/vega/asset"
	"github.com/achilleasa/vega/asset/compiler"
	"github.com/achilleasa/vega/asset/compiler/input"
	"github.com/achilleasa/vega/asset/material"
	"github.com/achilleasa/vega/asset/scene"
	"github.com/achilleasa/vega/log"
	"github.com/achilleasa/vega/types"
	"github.com/chewxy/math32"
	"github.com/g3n/engine/loader/obj"
)

// Material library statements that carry PBR parameters. The obj decoder
// only surfaces the classic illumination model so these statements are
// scanned separately and overlaid on top of the decoded materials.
type mtlExtension struct {
	// Emissive color.
	Ke *types.Vec3

	// Roughness and metalness scalars.
	Pr *float32
	Pm *float32

	// Textures for modulating roughness, metalness and shading normals.
	PrTex     string
	PmTex     string
	NormalTex string
}

type wavefrontSceneReader struct {
	logger log.Logger

	// The parsed scene.
	rawScene *input.Scene

	// A map of decoded material names to raw scene material indices.
	matNameToIndex map[string]int

	// PBR extension statements keyed by material name. The map also acts
	// as the set of materials the library actually defines; the decoder
	// fabricates empty entries for usemtl statements that reference
	// undefined materials.
	extensions map[string]*mtlExtension

	// Resource that relative texture paths are resolved against.
	texRelPath *asset.Resource
}

// Create a new wavefront scene reader.
func newWavefrontReader() *wavefrontSceneReader {
	return &wavefrontSceneReader{
		logger:         log.New("wavefront scene reader"),
		rawScene:       input.NewScene(),
		matNameToIndex: make(map[string]int, 0),
		extensions:     make(map[string]*mtlExtension, 0),
	}
}

// Read scene definition.
func (r *wavefrontSceneReader) Read(sceneRes *asset.Resource) (*scene.Scene, error) {
	r.logger.Noticef(`parsing scene from "%s"`, sceneRes.Path())
	start := time.Now()

	// Parse scene
	err := r.parse(sceneRes)
	if err != nil {
		return nil, err
	}

	r.logger.Noticef("parsed scene in %d ms", time.Since(start).Nanoseconds()/1e6)

	// Compile scene into an optimized, tracer-friendly format
	return compiler.Compile(r.rawScene)
}

// Decode the wavefront object file and its material library and map the
// decoder output onto the raw scene representation. The actual obj syntax
// is handled by the g3n obj loader; this method converts its output into
// meshes, triangle primitives and PBR materials.
func (r *wavefrontSceneReader) parse(sceneRes *asset.Resource) error {
	objPath, mtlPath, cleanup, err := r.fetchSceneFiles(sceneRes)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		return err
	}

	dec, err := obj.Decode(objPath, mtlPath)
	if err != nil {
		return fmt.Errorf(`wavefront reader: could not parse "%s": %s`, sceneRes.Path(), err.Error())
	}
	for _, warning := range dec.Warnings {
		r.logger.Warningf("%s: %s", sceneRes.Path(), warning)
	}

	if err = r.scanMaterialExtensions(mtlPath); err != nil {
		return err
	}

	for objIndex := range dec.Objects {
		object := &dec.Objects[objIndex]

		meshName := object.Name
		if meshName == "" {
			meshName = "default"
		}
		mesh := input.NewMesh(meshName)

		for faceIndex := range object.Faces {
			primitives, err := r.buildPrimitives(dec, &object.Faces[faceIndex])
			if err != nil {
				return err
			}
			mesh.Primitives = append(mesh.Primitives, primitives...)
		}

		if len(mesh.Primitives) == 0 {
			r.logger.Warningf(`dropping mesh "%s" as it contains no polygons`, mesh.Name)
			continue
		}

		mesh.MarkBBoxDirty()
		r.rawScene.Meshes = append(r.rawScene.Meshes, mesh)
	}

	// Report library materials not referenced by any face
	pruned := 0
	for matName := range dec.Materials {
		if _, used := r.matNameToIndex[matName]; !used {
			r.logger.Infof("skipping unused material %q", matName)
			pruned++
		}
	}
	if pruned > 0 {
		r.logger.Noticef("pruned %d unused materials", pruned)
	}

	return nil
}

// Materialize the scene and the material library it references as local
// files for the obj decoder. Local resources are decoded in place while
// remote resources are spooled into a temporary directory first. When no
// material library can be located an empty one is synthesized so decoding
// can proceed with default materials.
func (r *wavefrontSceneReader) fetchSceneFiles(sceneRes *asset.Resource) (objPath, mtlPath string, cleanup func(), err error) {
	tmpDir, err := os.MkdirTemp("", "vega-scene-")
	if err != nil {
		return "", "", nil, err
	}
	cleanup = func() { os.RemoveAll(tmpDir) }

	var matLibName string
	if sceneRes.IsRemote() {
		objPath = filepath.Join(tmpDir, "scene.obj")
		if err = spoolResource(sceneRes, objPath); err != nil {
			return "", "", cleanup, err
		}

		objFile, err := os.Open(objPath)
		if err != nil {
			return "", "", cleanup, err
		}
		matLibName = scanMatlib(objFile)
		objFile.Close()
	} else {
		objPath = sceneRes.Path()
		matLibName = scanMatlib(sceneRes)
	}

	// Scenes exported without a mtllib statement conventionally pair with
	// a material library of the same base name.
	if matLibName == "" && !sceneRes.IsRemote() {
		candidate := strings.TrimSuffix(objPath, filepath.Ext(objPath)) + ".mtl"
		if _, statErr := os.Stat(candidate); statErr == nil {
			matLibName = filepath.Base(candidate)
		}
	}

	r.texRelPath = sceneRes
	if matLibName != "" {
		mtlRes, resErr := asset.NewResource(matLibName, sceneRes)
		if resErr != nil {
			r.logger.Warningf(`could not open material library "%s": %s`, matLibName, resErr.Error())
		} else {
			if mtlRes.IsRemote() {
				mtlPath = filepath.Join(tmpDir, "materials.mtl")
				if err = spoolResource(mtlRes, mtlPath); err != nil {
					mtlRes.Close()
					return "", "", cleanup, err
				}
			} else {
				mtlPath = mtlRes.Path()
			}
			mtlRes.Close()

			// Texture paths are relative to the material library location
			r.texRelPath = mtlRes
		}
	}

	if mtlPath == "" {
		// The decoder expects a readable material library; hand it an
		// empty one and let faces fall back to the default material.
		mtlPath = filepath.Join(tmpDir, "empty.mtl")
		if err = os.WriteFile(mtlPath, nil, 0644); err != nil {
			return "", "", cleanup, err
		}
	}

	return objPath, mtlPath, cleanup, nil
}

// Convert a polygon face into triangle primitives using a fan triangulation
// anchored at the first face vertex. Missing normals are replaced with the
// geometric face normal and missing uv coords default to zero.
func (r *wavefrontSceneReader) buildPrimitives(dec *obj.Decoder, face *obj.Face) ([]*input.Primitive, error) {
	if len(face.Vertices) < 3 {
		return nil, fmt.Errorf("wavefront reader: face defines %d vertices; expected at least 3", len(face.Vertices))
	}

	matIndex := r.materialIndex(dec, face.Material)

	primitives := make([]*input.Primitive, 0, len(face.Vertices)-2)
	for fanIndex := 2; fanIndex < len(face.Vertices); fanIndex++ {
		indices := [3]int{0, fanIndex - 1, fanIndex}

		var triVerts, triNormals [3]types.Vec3
		var triUVs [3]types.Vec2
		hasNormals := true
		for triIndex, selectIndex := range indices {
			vIndex := face.Vertices[selectIndex]
			if vIndex < 0 || vIndex*3+2 >= len(dec.Vertices) {
				return nil, fmt.Errorf("wavefront reader: vertex index out of bounds for face argument %d", selectIndex)
			}
			triVerts[triIndex] = types.XYZ(dec.Vertices[vIndex*3], dec.Vertices[vIndex*3+1], dec.Vertices[vIndex*3+2])

			if uvIndex := attrIndex(face.Uvs, selectIndex); uvIndex >= 0 && uvIndex*2+1 < len(dec.Uvs) {
				triUVs[triIndex] = types.XY(dec.Uvs[uvIndex*2], dec.Uvs[uvIndex*2+1])
			}

			if nIndex := attrIndex(face.Normals, selectIndex); nIndex >= 0 && nIndex*3+2 < len(dec.Normals) {
				triNormals[triIndex] = types.XYZ(dec.Normals[nIndex*3], dec.Normals[nIndex*3+1], dec.Normals[nIndex*3+2])
			} else {
				hasNormals = false
			}
		}

		// If any vertex lacks a normal generate one from the face plane
		if !hasNormals {
			faceNormal := triVerts[1].Sub(triVerts[0]).Cross(triVerts[2].Sub(triVerts[0])).Normalize()
			triNormals[0] = faceNormal
			triNormals[1] = faceNormal
			triNormals[2] = faceNormal
		}

		prim := &input.Primitive{
			Vertices:      triVerts,
			Normals:       triNormals,
			UVs:           triUVs,
			MaterialIndex: matIndex,
		}
		prim.SetBBox(
			[2]types.Vec3{
				types.MinVec3(triVerts[0], types.MinVec3(triVerts[1], triVerts[2])),
				types.MaxVec3(triVerts[0], types.MaxVec3(triVerts[1], triVerts[2])),
			},
		)
		prim.SetCenter(triVerts[0].Add(triVerts[1]).Add(triVerts[2]).Mul(1.0 / 3.0))
		primitives = append(primitives, prim)
	}

	return primitives, nil
}

// Map a decoder material name to a raw scene material index, creating the
// material on first use. Library materials are converted to the PBR
// parameterization; unknown names (including faces without a usemtl
// statement) share a single default material.
func (r *wavefrontSceneReader) materialIndex(dec *obj.Decoder, matName string) int {
	if matIndex, exists := r.matNameToIndex[matName]; exists {
		return matIndex
	}

	var surf *material.Material
	decMat, inLib := dec.Materials[matName]
	ext, defined := r.extensions[matName]
	if inLib && defined {
		surf = r.buildMaterial(decMat, ext)
	} else {
		r.logger.Infof(`using default material for "%s"`, matName)
		surf = material.Default()
	}

	r.rawScene.Materials = append(
		r.rawScene.Materials,
		&input.Material{
			Surface:      surf,
			AssetRelPath: r.texRelPath,
			Used:         true,
		},
	)

	matIndex := len(r.rawScene.Materials) - 1
	r.matNameToIndex[matName] = matIndex
	return matIndex
}

// Convert a wavefront material to the metallic/roughness parameterization.
// The decoder surfaces the classic illumination model parameters; PBR
// extension statements take precedence when the library carries them.
func (r *wavefrontSceneReader) buildMaterial(decMat *obj.Material, ext *mtlExtension) *material.Material {
	surf := &material.Material{
		Name:          decMat.Name,
		Albedo:        clampVec3(types.XYZ(decMat.Diffuse.R, decMat.Diffuse.G, decMat.Diffuse.B)),
		Emissive:      types.XYZ(decMat.Emissive.R, decMat.Emissive.G, decMat.Emissive.B),
		Roughness:     1.0,
		AlbedoTexture: decMat.MapKd,
	}

	// The Blinn-Phong specular exponent approximates an equivalent
	// microfacet roughness.
	if decMat.Shininess > 0 {
		surf.Roughness = clamp01(math32.Sqrt(2.0 / (decMat.Shininess + 2.0)))
	}

	// Illumination models 3 and up enable specular reflection; treat the
	// specular color intensity as the surface metalness.
	if decMat.Illum >= 3 {
		surf.Metallic = clamp01(math32.Max(decMat.Specular.R, math32.Max(decMat.Specular.G, decMat.Specular.B)))
	}

	if ext.Ke != nil {
		surf.Emissive = *ext.Ke
	}
	if ext.Pr != nil {
		surf.Roughness = clamp01(*ext.Pr)
	}
	if ext.Pm != nil {
		surf.Metallic = clamp01(*ext.Pm)
	}
	surf.RoughnessTexture = ext.PrTex
	surf.MetallicTexture = ext.PmTex
	surf.NormalTexture = ext.NormalTex

	return surf
}

// Scan a material library for PBR statements (Ke, Pr, Pm, their texture
// maps and normal maps) which the obj decoder does not surface. The scan
// also records every declared material name so that entries the decoder
// fabricated for undefined usemtl statements can be told apart from real
// library definitions.
func (r *wavefrontSceneReader) scanMaterialExtensions(mtlPath string) error {
	f, err := os.Open(mtlPath)
	if err != nil {
		return err
	}
	defer f.Close()

	var lineNum int
	var curExt *mtlExtension

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		if lineTokens[0] == "newmtl" && len(lineTokens) >= 2 {
			curExt = &mtlExtension{}
			r.extensions[lineTokens[1]] = curExt
			continue
		}
		if curExt == nil {
			continue
		}

		var err error
		switch lineTokens[0] {
		case "Ke":
			var v types.Vec3
			if v, err = parseVec3(lineTokens); err == nil {
				curExt.Ke = &v
			}
		case "Pr":
			var v float32
			if v, err = parseFloat32(lineTokens); err == nil {
				curExt.Pr = &v
			}
		case "Pm":
			var v float32
			if v, err = parseFloat32(lineTokens); err == nil {
				curExt.Pm = &v
			}
		case "map_Pr":
			curExt.PrTex = lineTokens[len(lineTokens)-1]
		case "map_Pm":
			curExt.PmTex = lineTokens[len(lineTokens)-1]
		case "norm":
			// Statements may carry options (e.g. -bm); the file name is
			// always the last token.
			curExt.NormalTex = lineTokens[len(lineTokens)-1]
		case "map_bump", "map_Bump", "bump":
			// Bump statements double as normal maps but never override an
			// explicit norm statement.
			if curExt.NormalTex == "" {
				curExt.NormalTex = lineTokens[len(lineTokens)-1]
			}
		}

		if err != nil {
			r.logger.Warningf("%s:%d: %s", mtlPath, lineNum, err.Error())
		}
	}

	return scanner.Err()
}

// Locate the material library referenced by an obj stream.
func scanMatlib(stream io.Reader) string {
	scanner := bufio.NewScanner(stream)
	for scanner.Scan() {
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) >= 2 && lineTokens[0] == "mtllib" {
			return lineTokens[1]
		}
	}
	return ""
}

// Copy a resource stream into a local file.
func spoolResource(res *asset.Resource, dst string) error {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, res)
	return err
}

// Face attribute lists run parallel to the face vertex list; any index the
// decoder could not resolve is treated as absent.
func attrIndex(indices []int, pos int) int {
	if pos >= len(indices) {
		return -1
	}
	return indices[pos]
}

func clamp01(v float32) float32 {
	return math32.Min(1, math32.Max(0, v))
}

func clampVec3(v types.Vec3) types.Vec3 {
	return types.XYZ(clamp01(v[0]), clamp01(v[1]), clamp01(v[2]))
}

// Parse a float scalar value.
func parseFloat32(lineTokens []string) (float32, error) {
	if len(lineTokens) < 2 {
		return 0, fmt.Errorf(`unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	val, err := strconv.ParseFloat(lineTokens[1], 32)
	if err != nil {
		return 0, err
	}

	return float32(val), nil
}

// Parse a Vec3 row.
func parseVec3(lineTokens []string) (types.Vec3, error) {
	if len(lineTokens) < 4 {
		return types.Vec3{}, fmt.Errorf(`unsupported syntax for "%s"; expected 3 arguments; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec3{}
	for tokIdx := 1; tokIdx <= 3; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}
