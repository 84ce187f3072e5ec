package cpu

import (
	"testing"

	"github.com/achilleasa/vega/asset/compiler/bvh"
	"github.com/achilleasa/vega/asset/compiler/input"
	"github.com/achilleasa/vega/asset/scene"
	"github.com/achilleasa/vega/types"
	"github.com/chewxy/math32"
)

func TestTraceNearest(t *testing.T) {
	sc := makeLeafScene(
		// Front-facing triangle at z=5
		[3]types.Vec3{types.XYZ(-1, -1, 5), types.XYZ(0, 1, 5), types.XYZ(1, -1, 5)},
	)

	res := traceNearest(sc, ray{origin: types.XYZ(0, 0, 0), dir: types.XYZ(0, 0, 1)})
	if !res.hit {
		t.Fatalf("expected ray to hit the triangle; got a miss")
	}
	if res.backface {
		t.Fatalf("expected a front face hit; got a backface hit")
	}
	if math32.Abs(res.t-5) > 1e-3 {
		t.Fatalf("expected hit distance 5; got %f", res.t)
	}
	if res.triangleIndex != 0 {
		t.Fatalf("expected hit on triangle 0; got %d", res.triangleIndex)
	}
}

func TestTraceNearestPicksClosestHit(t *testing.T) {
	sc := makeLeafScene(
		[3]types.Vec3{types.XYZ(-1, -1, 5), types.XYZ(0, 1, 5), types.XYZ(1, -1, 5)},
		[3]types.Vec3{types.XYZ(-1, -1, 3), types.XYZ(0, 1, 3), types.XYZ(1, -1, 3)},
	)

	res := traceNearest(sc, ray{origin: types.XYZ(0, 0, 0), dir: types.XYZ(0, 0, 1)})
	if !res.hit {
		t.Fatalf("expected ray to hit a triangle; got a miss")
	}
	if math32.Abs(res.t-3) > 1e-3 {
		t.Fatalf("expected hit distance 3; got %f", res.t)
	}
	if res.triangleIndex != 1 {
		t.Fatalf("expected hit on triangle 1; got %d", res.triangleIndex)
	}
}

func TestTraceNearestBackface(t *testing.T) {
	sc := makeLeafScene(
		// Reversed winding; the ray sees the back of the triangle
		[3]types.Vec3{types.XYZ(-1, -1, 5), types.XYZ(1, -1, 5), types.XYZ(0, 1, 5)},
	)

	res := traceNearest(sc, ray{origin: types.XYZ(0, 0, 0), dir: types.XYZ(0, 0, 1)})
	if !res.hit {
		t.Fatalf("expected ray to hit the triangle; got a miss")
	}
	if !res.backface {
		t.Fatalf("expected a backface hit; got a front face hit")
	}
}

func TestTraceNearestMiss(t *testing.T) {
	sc := makeLeafScene(
		// Triangle behind the ray origin
		[3]types.Vec3{types.XYZ(-1, -1, -5), types.XYZ(0, 1, -5), types.XYZ(1, -1, -5)},
	)

	res := traceNearest(sc, ray{origin: types.XYZ(0, 0, 0), dir: types.XYZ(0, 0, 1)})
	if res.hit {
		t.Fatalf("expected a miss; got a hit at t %f", res.t)
	}
	if res.t != missT {
		t.Fatalf("expected missed rays to report t %f; got %f", missT, res.t)
	}
}

func TestTraceNearestEmptyScene(t *testing.T) {
	res := traceNearest(&scene.Scene{}, ray{origin: types.XYZ(0, 0, 0), dir: types.XYZ(0, 0, 1)})
	if res.hit {
		t.Fatalf("expected empty scenes to report a miss; got a hit")
	}
}

func TestTraceAnyHonorsMaxDistance(t *testing.T) {
	sc := makeLeafScene(
		[3]types.Vec3{types.XYZ(-1, -1, 5), types.XYZ(0, 1, 5), types.XYZ(1, -1, 5)},
	)
	r := ray{origin: types.XYZ(0, 0, 0), dir: types.XYZ(0, 0, 1)}

	if res := traceAny(sc, r, 4); res.hit {
		t.Fatalf("expected occluder at t 5 to be ignored for maxT 4; got a hit at t %f", res.t)
	}

	if res := traceAny(sc, r, 5.5); !res.hit {
		t.Fatalf("expected occluder at t 5 to be reported for maxT 5.5; got a miss")
	}
}

func TestTraverseVisitsBothChildren(t *testing.T) {
	sc := makeLeafScene(
		[3]types.Vec3{types.XYZ(-1, -1, 5), types.XYZ(0, 1, 5), types.XYZ(1, -1, 5)},
		[3]types.Vec3{types.XYZ(-1, -1, 3), types.XYZ(0, 1, 3), types.XYZ(1, -1, 3)},
	)

	// Replace the single leaf with a root plus one leaf per triangle so the
	// traversal has to order and visit both children.
	var root, leftLeaf, rightLeaf scene.BvhNode
	root.SetBBox([2]types.Vec3{types.XYZ(-1, -1, 3), types.XYZ(1, 1, 5)})
	root.SetChildNodes(1, 2)
	leftLeaf.SetBBox([2]types.Vec3{types.XYZ(-1, -1, 5), types.XYZ(1, 1, 5)})
	leftLeaf.SetPrimitives(0, 1)
	rightLeaf.SetBBox([2]types.Vec3{types.XYZ(-1, -1, 3), types.XYZ(1, 1, 3)})
	rightLeaf.SetPrimitives(1, 1)
	sc.BvhNodeList = []scene.BvhNode{root, leftLeaf, rightLeaf}

	res := traceNearest(sc, ray{origin: types.XYZ(0.01, 0.02, 0), dir: types.XYZ(0, 0, 1)})
	if !res.hit {
		t.Fatalf("expected ray to hit a triangle; got a miss")
	}
	if res.triangleIndex != 1 {
		t.Fatalf("expected the closer triangle in the far child to win; got triangle %d at t %f", res.triangleIndex, res.t)
	}
}

func TestTraverseMatchesBruteForce(t *testing.T) {
	// Scatter triangles deterministically inside a cube around the origin
	var h uint32
	next := func() float32 {
		h++
		return float32(pcgHash(h))/4294967296.0*4 - 2
	}

	prims := make([]*input.Primitive, 64)
	for i := range prims {
		base := types.XYZ(next(), next(), next())
		v1 := base.Add(types.XYZ(next()*0.25, next()*0.25, next()*0.25))
		v2 := base.Add(types.XYZ(next()*0.25, next()*0.25, next()*0.25))

		prim := &input.Primitive{Vertices: [3]types.Vec3{base, v1, v2}}
		bbox := [2]types.Vec3{
			types.MinVec3(base, types.MinVec3(v1, v2)),
			types.MaxVec3(base, types.MaxVec3(v1, v2)),
		}
		prim.SetBBox(bbox)
		prim.SetCenter(bbox[0].Add(bbox[1]).Mul(0.5))
		prims[i] = prim
	}

	sc := &scene.Scene{
		VertexList:    make([]types.Vec4, len(prims)*3),
		MaterialIndex: make([]uint32, len(prims)),
	}

	volList := make([]bvh.BoundedVolume, len(prims))
	for i, prim := range prims {
		volList[i] = prim
	}

	var vertexOffset, primOffset uint32
	sc.BvhNodeList = bvh.Build(volList, 2, func(leaf *scene.BvhNode, workList []bvh.BoundedVolume) {
		leaf.SetPrimitives(primOffset, uint32(len(workList)))
		for _, workItem := range workList {
			prim := workItem.(*input.Primitive)
			sc.VertexList[vertexOffset+0] = prim.Vertices[0].Vec4(0)
			sc.VertexList[vertexOffset+1] = prim.Vertices[1].Vec4(0)
			sc.VertexList[vertexOffset+2] = prim.Vertices[2].Vec4(0)
			vertexOffset += 3
			primOffset++
		}
	}, bvh.SurfaceAreaHeuristic)

	triCount := uint32(len(prims))
	for rayIndex := 0; rayIndex < 256; rayIndex++ {
		origin := types.XYZ(next()*0.5, next()*0.5, -5.123)
		target := types.XYZ(next(), next(), next())
		r := ray{origin: origin, dir: target.Sub(origin).Normalize()}

		got := traceNearest(sc, r)

		want := traceResult{t: missT}
		for triIndex := uint32(0); triIndex < triCount; triIndex++ {
			v0, v1, v2 := sc.TriangleVertices(triIndex)
			intersectTriangle(r, v0, v1, v2, triIndex, missT, false, &want)
		}

		if got.hit != want.hit || got.t != want.t {
			t.Fatalf("[ray %d] expected traversal to match brute force (hit %t, t %f); got hit %t, t %f", rayIndex, want.hit, want.t, got.hit, got.t)
		}
	}
}

// Assemble a scene whose BVH is a single leaf containing all triangles.
func makeLeafScene(tris ...[3]types.Vec3) *scene.Scene {
	sc := &scene.Scene{}

	bboxMin := types.XYZ(math32.MaxFloat32, math32.MaxFloat32, math32.MaxFloat32)
	bboxMax := types.XYZ(-math32.MaxFloat32, -math32.MaxFloat32, -math32.MaxFloat32)
	for _, tri := range tris {
		for _, v := range tri {
			sc.VertexList = append(sc.VertexList, v.Vec4(0))
			bboxMin = types.MinVec3(bboxMin, v)
			bboxMax = types.MaxVec3(bboxMax, v)
		}
		sc.MaterialIndex = append(sc.MaterialIndex, 0)
	}

	var root scene.BvhNode
	root.SetBBox([2]types.Vec3{bboxMin, bboxMax})
	root.SetPrimitives(0, uint32(len(tris)))
	sc.BvhNodeList = []scene.BvhNode{root}
	return sc
}
