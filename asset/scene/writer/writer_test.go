package writer

import (
	"path/filepath"
	"testing"

	"github.com/achilleasa/vega/asset/scene"
	"github.com/achilleasa/vega/asset/scene/reader"
	"github.com/achilleasa/vega/asset/texure"
	"github.com/achilleasa/vega/types"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestCompiledSceneRoundtrip(t *testing.T) {
	var leaf scene.BvhNode
	leaf.SetBBox([2]types.Vec3{types.XYZ(-1, -1, -1), types.XYZ(1, 1, 1)})
	leaf.SetPrimitives(0, 1)

	sc := &scene.Scene{
		BvhNodeList: []scene.BvhNode{leaf},
		VertexList:  []types.Vec4{types.XYZW(0, 0, 0, 1), types.XYZW(1, 0, 0, 1), types.XYZW(0, 1, 0, 1)},
		NormalList:  []types.Vec4{types.XYZW(0, 0, 1, 0), types.XYZW(0, 0, 1, 0), types.XYZW(0, 0, 1, 0)},
		TangentList: []types.Vec4{types.XYZW(1, 0, 0, 0), types.XYZW(1, 0, 0, 0), types.XYZW(1, 0, 0, 0)},
		UvList:      []types.Vec2{types.XY(0, 0), types.XY(1, 0), types.XY(0, 1)},

		MaterialIndex: []uint32{0},
		MaterialList: []scene.Material{
			{
				Albedo:       types.XYZ(0.5, 0.5, 0.5),
				Emissive:     types.XYZ(2, 2, 2),
				Roughness:    1,
				AlbedoTex:    0,
				MetallicTex:  -1,
				RoughnessTex: -1,
				NormalTex:    -1,
			},
		},
		TextureList: []*texture.Texture{
			{Format: texture.Rgba8, Width: 1, Height: 1, Data: []byte{255, 128, 0, 255}},
		},
		LightTable: []scene.LightTableEntry{
			{TriangleA: 0, TriangleB: 0, PdfA: 1, AreaA: 0.5, Ratio: 1},
		},
		Skybox: scene.Skybox{SunDirection: types.XYZW(0, 1, 0, 20), TextureIndex: -1},
		Camera: scene.NewCamera(types.XYZ(1, 2, 3)),
	}
	sc.Camera.Pitch = 0.25
	sc.Camera.Yaw = -0.5
	sc.Camera.Update()

	sceneFile := filepath.Join(t.TempDir(), "compiled.zip")
	if err := WriteScene(sc, sceneFile); err != nil {
		t.Fatal(err)
	}

	loaded, err := reader.ReadScene(sceneFile)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(sc, loaded, cmpopts.IgnoreUnexported(scene.Camera{})); diff != "" {
		t.Fatalf("loaded scene mismatch (-want +got):\n%s", diff)
	}

	// The camera orientation basis is not serialized; the reader must
	// rebuild it so that loaded scenes generate the same rays.
	want := sc.Camera.RotateRay(types.XYZ(0, 0, 1))
	got := loaded.Camera.RotateRay(types.XYZ(0, 0, 1))
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-5)); diff != "" {
		t.Fatalf("camera basis mismatch after load (-want +got):\n%s", diff)
	}
}
