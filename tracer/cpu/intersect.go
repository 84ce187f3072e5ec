package cpu

import (
	"github.com/achilleasa/vega/asset/scene"
	"github.com/achilleasa/vega/types"
	"github.com/chewxy/math32"
)

const (
	// Shared kernel epsilon: hits closer than this are rejected so that
	// secondary rays do not re-intersect the surface they originate from,
	// and shading terms use it as a denominator floor.
	epsilon float32 = 0.001

	// The distance assigned to rays that miss the scene.
	missT float32 = 1000000.0
)

type ray struct {
	origin types.Vec3
	dir    types.Vec3
}

// The outcome of tracing a ray through the scene. baryU/baryV hold the
// barycentric coordinates of the hit point inside the triangle.
type traceResult struct {
	hit           bool
	backface      bool
	t             float32
	baryU         float32
	baryV         float32
	triangleIndex uint32
}

// Intersect a ray with a triangle using the Moeller-Trumbore algorithm and
// update res when the hit is closer than the current best. For shadow rays
// hits beyond maxT are rejected. Returns true if res was updated.
func intersectTriangle(r ray, v0, v1, v2 types.Vec3, triIndex uint32, maxT float32, anyHit bool, res *traceResult) bool {
	edge1 := v1.Sub(v0)
	edge2 := v2.Sub(v0)

	pv := r.dir.Cross(edge2)
	det := edge1.Dot(pv)
	backface := det < 0

	if math32.Abs(det) < 1e-6 {
		return false
	}

	invDet := 1.0 / det
	tv := r.origin.Sub(v0)
	u := tv.Dot(pv) * invDet
	if u < 0 || u > 1 {
		return false
	}

	qv := tv.Cross(edge1)
	v := r.dir.Dot(qv) * invDet
	if v < 0 || u+v > 1 {
		return false
	}

	t := edge2.Dot(qv) * invDet
	if t > epsilon && t < res.t && (!anyHit || t <= maxT) {
		res.hit = true
		res.backface = backface
		res.t = t
		res.baryU = u
		res.baryV = v
		res.triangleIndex = triIndex
		return true
	}

	return false
}

// Intersect a ray with an axis aligned bounding box using the slab test.
// Returns the entry distance or +Inf when the ray misses the box or the box
// lies beyond prevMinT.
func intersectAabb(r ray, boxMin, boxMax types.Vec3, prevMinT float32) float32 {
	t0 := types.XYZ(
		(boxMin[0]-r.origin[0])/r.dir[0],
		(boxMin[1]-r.origin[1])/r.dir[1],
		(boxMin[2]-r.origin[2])/r.dir[2],
	)
	t1 := types.XYZ(
		(boxMax[0]-r.origin[0])/r.dir[0],
		(boxMax[1]-r.origin[1])/r.dir[1],
		(boxMax[2]-r.origin[2])/r.dir[2],
	)

	far := types.MaxVec3(t0, t1)
	tmin := types.MinVec3(t0, t1).MaxComponent()
	tmax := math32.Min(far[0], math32.Min(far[1], far[2]))

	if tmax >= tmin && tmax > 0 && tmin < prevMinT {
		return tmin
	}

	return math32.Inf(1)
}

// Trace a ray through the scene BVH and return the nearest hit.
func traceNearest(sc *scene.Scene, r ray) traceResult {
	return traverse(sc, r, missT, false)
}

// Trace a ray through the scene BVH and return the first hit with a distance
// not exceeding maxT. Used for shadow rays where any occluder suffices.
func traceAny(sc *scene.Scene, r ray, maxT float32) traceResult {
	return traverse(sc, r, maxT, true)
}

func traverse(sc *scene.Scene, r ray, maxT float32, anyHit bool) traceResult {
	res := traceResult{t: missT}
	if len(sc.BvhNodeList) == 0 {
		return res
	}

	// The builder guarantees a tree depth that fits the fixed stack.
	var stack [64]uint32
	stackTop := 1

	for stackTop > 0 {
		stackTop--
		node := &sc.BvhNodeList[stack[stackTop]]

		if node.IsLeaf() {
			firstTriIndex, count := node.GetPrimitives()
			for triIndex := firstTriIndex; triIndex < firstTriIndex+count; triIndex++ {
				v0, v1, v2 := sc.TriangleVertices(triIndex)
				if intersectTriangle(r, v0, v1, v2, triIndex, maxT, anyHit, &res) && anyHit {
					return res
				}
			}
			continue
		}

		// Visit the nearest child first and defer the other one unless
		// its bbox is missed entirely.
		leftIndex, rightIndex := node.GetChildNodes()
		leftNode := &sc.BvhNodeList[leftIndex]
		rightNode := &sc.BvhNodeList[rightIndex]

		nearIndex, farIndex := leftIndex, rightIndex
		distNear := intersectAabb(r, leftNode.Min, leftNode.Max, res.t)
		distFar := intersectAabb(r, rightNode.Min, rightNode.Max, res.t)
		if distFar < distNear {
			nearIndex, farIndex = rightIndex, leftIndex
			distNear, distFar = distFar, distNear
		}

		if math32.IsInf(distNear, 1) {
			continue
		}
		if !math32.IsInf(distFar, 1) {
			stack[stackTop] = farIndex
			stackTop++
		}
		stack[stackTop] = nearIndex
		stackTop++
	}

	return res
}
