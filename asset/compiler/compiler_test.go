package compiler

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"

	"github.com/achilleasa/vega/asset/compiler/input"
	"github.com/achilleasa/vega/asset/material"
	"github.com/achilleasa/vega/asset/scene"
	"github.com/achilleasa/vega/types"
	"github.com/chewxy/math32"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestCompileFlattensGeometry(t *testing.T) {
	parsed := makeTestScene(
		makeTestPrim(0, types.XYZ(0, 0, 0), types.XYZ(1, 0, 0), types.XYZ(0, 1, 0)),
		makeTestPrim(1, types.XYZ(5, 0, 0), types.XYZ(6, 0, 0), types.XYZ(5, 1, 0)),
	)
	parsed.Materials = append(parsed.Materials,
		&input.Material{Surface: &material.Material{Name: "white", Albedo: types.XYZ(0.9, 0.9, 0.9), Roughness: 1}},
		&input.Material{Surface: &material.Material{Name: "light", Emissive: types.XYZ(1, 1, 1)}},
	)

	sc, err := Compile(parsed)
	if err != nil {
		t.Fatal(err)
	}

	if exp, got := 6, len(sc.VertexList); exp != got {
		t.Fatalf("expected %d vertex entries; got %d", exp, got)
	}
	if exp, got := 6, len(sc.NormalList); exp != got {
		t.Fatalf("expected %d normal entries; got %d", exp, got)
	}
	if exp, got := 6, len(sc.TangentList); exp != got {
		t.Fatalf("expected %d tangent entries; got %d", exp, got)
	}
	if exp, got := 6, len(sc.UvList); exp != got {
		t.Fatalf("expected %d uv entries; got %d", exp, got)
	}
	if exp, got := 2, len(sc.MaterialIndex); exp != got {
		t.Fatalf("expected %d material index entries; got %d", exp, got)
	}
	if exp, got := 2, len(sc.MaterialList); exp != got {
		t.Fatalf("expected %d baked materials; got %d", exp, got)
	}
	if len(sc.BvhNodeList) == 0 {
		t.Fatal("expected BVH node list to not be empty")
	}

	// Each primitive lands in the flat arrays exactly once regardless of
	// the order the BVH partitioning visits them in.
	seen := make(map[uint32]int)
	for _, matIndex := range sc.MaterialIndex {
		seen[matIndex]++
	}
	if seen[0] != 1 || seen[1] != 1 {
		t.Fatalf("expected each material to be referenced exactly once; got %v", seen)
	}

	for i, tangent := range sc.TangentList {
		if math32.Abs(tangent.Vec3().Len()-1) > 1e-4 {
			t.Fatalf("expected tangent %d to be unit length; got %v", i, tangent)
		}
	}
}

func TestLightTableBalancing(t *testing.T) {
	parsed := makeTestScene(
		// area 0.5, diffuse
		makeTestPrim(0, types.XYZ(10, 0, 0), types.XYZ(11, 0, 0), types.XYZ(10, 1, 0)),
		// area 0.5, emissive
		makeTestPrim(1, types.XYZ(0, 0, 0), types.XYZ(1, 0, 0), types.XYZ(0, 1, 0)),
		// area 1.0, emissive
		makeTestPrim(1, types.XYZ(0, 0, 5), types.XYZ(2, 0, 5), types.XYZ(0, 1, 5)),
	)
	parsed.Materials = append(parsed.Materials,
		&input.Material{Surface: &material.Material{Name: "white", Albedo: types.XYZ(0.9, 0.9, 0.9), Roughness: 1}},
		&input.Material{Surface: &material.Material{Name: "light", Emissive: types.XYZ(1, 1, 1)}},
	)

	sc, err := Compile(parsed)
	if err != nil {
		t.Fatal(err)
	}

	// Powers are 1.5 and 3.0 so the pick probabilities come out as 1/3 and
	// 2/3. Balancing moves 1/6 of the large light into the small light's
	// entry to even both entries out at the 1/2 average.
	exp := []scene.LightTableEntry{
		{TriangleA: 1, TriangleB: 2, PdfA: 1.0 / 3, PdfB: 2.0 / 3, AreaA: 0.5, AreaB: 1, Ratio: 2.0 / 3},
		{TriangleA: 2, TriangleB: 0, PdfA: 2.0 / 3, PdfB: 0, AreaA: 1, AreaB: 0.5, Ratio: 1},
	}
	if !cmp.Equal(exp, sc.LightTable, cmpopts.EquateApprox(0, 1e-4)) {
		t.Fatalf("light table mismatch:\n%s", cmp.Diff(exp, sc.LightTable, cmpopts.EquateApprox(0, 1e-4)))
	}
}

func TestLightTableSentinel(t *testing.T) {
	parsed := makeTestScene(
		makeTestPrim(0, types.XYZ(0, 0, 0), types.XYZ(1, 0, 0), types.XYZ(0, 1, 0)),
	)
	parsed.Materials = append(parsed.Materials, &input.Material{Surface: material.Default()})

	sc, err := Compile(parsed)
	if err != nil {
		t.Fatal(err)
	}

	if exp, got := 1, len(sc.LightTable); exp != got {
		t.Fatalf("expected %d light table entries; got %d", exp, got)
	}
	if !sc.LightTable[0].IsSentinel() {
		t.Fatal("expected sentinel light table entry for a scene without emissive primitives")
	}
}

func TestCompileEmptyScene(t *testing.T) {
	parsed := makeTestScene()
	parsed.Camera.Eye = types.XYZ(1, 2, 3)
	parsed.Camera.Pitch = 0.25
	parsed.Camera.Yaw = -0.5
	parsed.Skybox.SunDirection = types.XYZW(0, 3, 0, 20)

	sc, err := Compile(parsed)
	if err != nil {
		t.Fatal(err)
	}

	if len(sc.BvhNodeList) != 1 || !sc.BvhNodeList[0].IsLeaf() {
		t.Fatalf("expected a single leaf BVH node; got %d nodes", len(sc.BvhNodeList))
	}
	if !sc.LightTable[0].IsSentinel() {
		t.Fatal("expected sentinel light table entry")
	}

	if got := sc.Camera.Position; !cmp.Equal(types.XYZ(1, 2, 3), got) {
		t.Fatalf("expected camera position to be (1, 2, 3); got %v", got)
	}
	if sc.Camera.Pitch != 0.25 || sc.Camera.Yaw != -0.5 {
		t.Fatalf("expected camera angles to carry over; got pitch %f, yaw %f", sc.Camera.Pitch, sc.Camera.Yaw)
	}

	// sun direction must be normalized with its intensity intact
	expSun := types.XYZW(0, 1, 0, 20)
	if got := sc.Skybox.SunDirection; !cmp.Equal(expSun, got, cmpopts.EquateApprox(0, 1e-4)) {
		t.Fatalf("expected sun direction %v; got %v", expSun, got)
	}
	if sc.Skybox.TextureIndex != -1 {
		t.Fatalf("expected no skybox texture; got index %d", sc.Skybox.TextureIndex)
	}
}

func TestBakeTextureCache(t *testing.T) {
	imgFile, err := mockTexture()
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(imgFile)

	parsed := makeTestScene(
		makeTestPrim(0, types.XYZ(0, 0, 0), types.XYZ(1, 0, 0), types.XYZ(0, 1, 0)),
		makeTestPrim(1, types.XYZ(5, 0, 0), types.XYZ(6, 0, 0), types.XYZ(5, 1, 0)),
	)
	parsed.Materials = append(parsed.Materials,
		&input.Material{Surface: &material.Material{Name: "a", AlbedoTexture: imgFile, Roughness: 1}},
		&input.Material{Surface: &material.Material{Name: "b", AlbedoTexture: imgFile, RoughnessTexture: imgFile}},
	)

	sc, err := Compile(parsed)
	if err != nil {
		t.Fatal(err)
	}

	// The two albedo references share a single linearized entry; the
	// roughness reference bakes the same image again as raw data.
	if exp, got := 2, len(sc.TextureList); exp != got {
		t.Fatalf("expected %d baked textures; got %d", exp, got)
	}
	if sc.MaterialList[0].AlbedoTex != sc.MaterialList[1].AlbedoTex {
		t.Fatalf(
			"expected both materials to share an albedo texture; got %d and %d",
			sc.MaterialList[0].AlbedoTex, sc.MaterialList[1].AlbedoTex,
		)
	}
	if sc.MaterialList[1].RoughnessTex == sc.MaterialList[1].AlbedoTex {
		t.Fatal("expected the data texture to not alias the color texture")
	}
	if sc.MaterialList[0].MetallicTex != -1 {
		t.Fatalf("expected unset texture channels to be -1; got %d", sc.MaterialList[0].MetallicTex)
	}
}

func TestMissingTextureSkipped(t *testing.T) {
	parsed := makeTestScene(
		makeTestPrim(0, types.XYZ(0, 0, 0), types.XYZ(1, 0, 0), types.XYZ(0, 1, 0)),
	)
	parsed.Materials = append(parsed.Materials,
		&input.Material{Surface: &material.Material{Name: "a", Albedo: types.XYZ(0.5, 0.5, 0.5), AlbedoTexture: "/missing/texture.png", Roughness: 1}},
	)

	sc, err := Compile(parsed)
	if err != nil {
		t.Fatal(err)
	}

	if sc.MaterialList[0].AlbedoTex != -1 {
		t.Fatalf("expected missing texture to fall back to the scalar channel; got index %d", sc.MaterialList[0].AlbedoTex)
	}
}

func TestCompileRejectsInvalidMaterial(t *testing.T) {
	parsed := makeTestScene(
		makeTestPrim(0, types.XYZ(0, 0, 0), types.XYZ(1, 0, 0), types.XYZ(0, 1, 0)),
	)
	parsed.Materials = append(parsed.Materials,
		&input.Material{Surface: &material.Material{Name: "bad", Albedo: types.XYZ(2, 0, 0)}},
	)

	if _, err := Compile(parsed); err == nil {
		t.Fatal("expected compile to fail for an out of range material")
	}
}

func TestPrimTangent(t *testing.T) {
	prim := makeTestPrim(0, types.XYZ(0, 0, 0), types.XYZ(1, 0, 0), types.XYZ(0, 1, 0))

	// the test primitive UVs follow the vertex positions so the tangent
	// tracks the +X axis
	exp := types.XYZW(1, 0, 0, 0)
	if got := primTangent(prim); !cmp.Equal(exp, got, cmpopts.EquateApprox(0, 1e-4)) {
		t.Fatalf("expected tangent %v; got %v", exp, got)
	}

	// degenerate UVs fall back to a unit vector perpendicular to the
	// geometric normal
	prim.UVs = [3]types.Vec2{}
	got := primTangent(prim)
	if math32.Abs(got.Vec3().Len()-1) > 1e-4 {
		t.Fatalf("expected unit length fallback tangent; got %v", got)
	}
	if dot := got.Vec3().Dot(types.XYZ(0, 0, 1)); math32.Abs(dot) > 1e-4 {
		t.Fatalf("expected fallback tangent to be perpendicular to the normal; got dot product %f", dot)
	}
}

func TestTriangleArea(t *testing.T) {
	specs := []struct {
		v0, v1, v2 types.Vec3
		exp        float32
	}{
		{types.XYZ(0, 0, 0), types.XYZ(1, 0, 0), types.XYZ(0, 1, 0), 0.5},
		{types.XYZ(0, 0, 0), types.XYZ(2, 0, 0), types.XYZ(0, 2, 0), 2.0},
		// degenerate triangles have zero area instead of NaN
		{types.XYZ(0, 0, 0), types.XYZ(1, 0, 0), types.XYZ(2, 0, 0), 0},
		{types.XYZ(1, 1, 1), types.XYZ(1, 1, 1), types.XYZ(1, 1, 1), 0},
	}

	for specIndex, spec := range specs {
		got := triangleArea(spec.v0, spec.v1, spec.v2)
		if math32.Abs(got-spec.exp) > 1e-4 {
			t.Fatalf("[spec %d] expected area %f; got %f", specIndex, spec.exp, got)
		}
	}
}

// Construct a triangle primitive with its bbox and center set the same way
// the scene readers do.
func makeTestPrim(matIndex int, v0, v1, v2 types.Vec3) *input.Primitive {
	prim := &input.Primitive{
		Vertices:      [3]types.Vec3{v0, v1, v2},
		Normals:       [3]types.Vec3{types.XYZ(0, 0, -1), types.XYZ(0, 0, -1), types.XYZ(0, 0, -1)},
		UVs:           [3]types.Vec2{types.XY(0, 0), types.XY(1, 0), types.XY(0, 1)},
		MaterialIndex: matIndex,
	}

	min := types.MinVec3(types.MinVec3(v0, v1), v2)
	max := types.MaxVec3(types.MaxVec3(v0, v1), v2)
	prim.SetBBox([2]types.Vec3{min, max})
	prim.SetCenter(min.Add(max).Mul(0.5))
	return prim
}

func makeTestScene(prims ...*input.Primitive) *input.Scene {
	parsed := input.NewScene()
	if len(prims) == 0 {
		return parsed
	}

	mesh := input.NewMesh("test mesh")
	mesh.Primitives = prims
	mesh.MarkBBoxDirty()
	parsed.Meshes = append(parsed.Meshes, mesh)
	return parsed
}

func mockTexture() (string, error) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.SetRGBA(0, 0, color.RGBA{R: 128, G: 64, B: 32, A: 255})

	imgFile := os.TempDir() + "/" + "compiler_test_texture.png"
	f, err := os.Create(imgFile)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err = png.Encode(f, img); err != nil {
		os.Remove(imgFile)
		return "", err
	}
	return imgFile, nil
}
