package bvh

import (
	"math"
	"time"

	"github.com/achilleasa/vega/asset/scene"
	"github.com/achilleasa/vega/log"
	"github.com/achilleasa/vega/types"
)

type Axis uint8

const (
	XAxis Axis = iota
	YAxis
	ZAxis

	// The number of uniform bins the centroid extent is carved into when
	// searching for a split plane. Candidate planes are placed at the
	// bin boundaries.
	numBins = 16

	// The BVH builder will not attempt to calculate split candidates
	// if the node bbox along an axis is less than this threshold.
	minSideLength float32 = 1e-3

	// If the primitive centroids along an axis are spread over an
	// interval shorter than this threshold the axis cannot be split.
	minCentroidSpread float32 = 1e-5

	// Nodes at this depth are always turned into leafs. The intersector
	// walks the tree with a fixed-size stack; as it pushes at most one
	// deferred child per level the stack can hold the worst-case path.
	maxDepth = 64
)

var (
	// A split scoring strategy that uses the binned surface area heuristic (SAH).
	SurfaceAreaHeuristic = surfaceAreaHeuristic{}
)

// The BoundedVolume interface is implemented by all primitives that can
// be partitioned by the bvh builder.
type BoundedVolume interface {
	BBox() [2]types.Vec3
	Center() types.Vec3
}

// A callback that is called whenever the BVH builder creates a new leaf.
type LeafCallback func(leaf *scene.BvhNode, itemList []BoundedVolume)

// A split scoring strategy.
type ScoreStrategy interface {
	// Calculate the best split candidate for workList along splitAxis.
	// Strategies that cannot produce a candidate which partitions the
	// items into two non-empty sets return a MaxFloat32 score.
	ScoreSplit(workList []BoundedVolume, splitAxis Axis) (splitPoint float32, leftCount, rightCount int, score float32)

	// Calculate a score for all items in workList.
	ScorePartition(workList []BoundedVolume) (score float32)
}

type splitScore struct {
	axis       Axis
	splitPoint float32

	leftCount, rightCount int
	score                 float32
}

type stats struct {
	partitionedItems int
	totalItems       int
	nodes            int
	leafs            int
	maxDepth         int
}

type builder struct {
	logger log.Logger

	// Bvh nodes stored as a contiguous list
	nodes []scene.BvhNode

	// A callback invoked to set up BVH leafs depending on the type of
	// partitioned bounding volume
	leafCb LeafCallback

	// The minimum number of items that are required for creating a leaf.
	minLeafItems int

	// A channel for receiving per-axis score results.
	scoreChan chan splitScore

	// The split scoring strategy to use.
	scoreStrategy ScoreStrategy

	// Stats
	stats stats
}

// Construct a BVH from a set of bounded volumes.
//
// The builder uses a binned SAH approach for scoring splits:
// score = left count * left bbox area + right count * right bbox area.
//
// The minLeafItems param should be used to specified the minimum number of
// items that can form a leaf. The BVH builder will automatically generate leafs
// if the incoming work length is <= minLeafItems.
func Build(workList []BoundedVolume, minLeafItems int, leafCb LeafCallback, scoreStrategy ScoreStrategy) []scene.BvhNode {
	b := &builder{
		logger:        log.New("builder"),
		nodes:         make([]scene.BvhNode, 0),
		leafCb:        leafCb,
		minLeafItems:  minLeafItems,
		scoreChan:     make(chan splitScore, 0),
		scoreStrategy: scoreStrategy,
		stats: stats{
			totalItems: len(workList),
		},
	}

	start := time.Now()
	b.partition(workList, 0)
	b.logger.Debugf(
		"BVH tree build time: %d ms, maxDepth: %d, nodes: %d, leafs: %d\n",
		time.Since(start).Nanoseconds()/1e6,
		b.stats.maxDepth, b.stats.nodes, b.stats.leafs,
	)
	return b.nodes
}

// Partition worklist and return node index.
func (b *builder) partition(workList []BoundedVolume, depth int) uint32 {
	if depth > b.stats.maxDepth {
		b.stats.maxDepth = depth
	}

	node := scene.BvhNode{
		Min: types.Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
		Max: types.Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
	}

	// Calculate bounding box for node
	for _, item := range workList {
		itemBBox := item.BBox()
		node.Min = types.MinVec3(node.Min, itemBBox[0])
		node.Max = types.MaxVec3(node.Max, itemBBox[1])
	}
	if len(workList) == 0 {
		node.Min = types.Vec3{}
		node.Max = types.Vec3{}
	}

	// Do we have enough items for partitioning? If not create a leaf
	if len(workList) <= b.minLeafItems || depth >= maxDepth {
		return b.createLeaf(&node, workList)
	}

	// Calc current node score
	var bestScore float32 = b.scoreStrategy.ScorePartition(workList)
	var bestSplit *splitScore = nil

	// Run axis split tests in parallel
	pendingScores := 0
	side := node.Max.Sub(node.Min)
	for axis := XAxis; axis <= ZAxis; axis++ {
		// Skip axis if bbox dimension is too small
		if side[axis] < minSideLength {
			continue
		}

		pendingScores++
		go func(axis Axis) {
			splitPoint, lCount, rCount, score := b.scoreStrategy.ScoreSplit(workList, axis)
			b.scoreChan <- splitScore{
				axis:       axis,
				splitPoint: splitPoint,

				leftCount:  lCount,
				rightCount: rCount,
				score:      score,
			}
		}(axis)
	}

	// Process all scores and pick the best split
	for ; pendingScores > 0; pendingScores-- {
		candidate := <-b.scoreChan
		if candidate.score < bestScore {
			bestScore = candidate.score
			bestSplit = &candidate
		}
	}

	// If we can't find a split that improves the current node score create a leaf
	if bestSplit == nil {
		return b.createLeaf(&node, workList)
	}

	// split work list into two sets
	leftWorkList := make([]BoundedVolume, 0, bestSplit.leftCount)
	rightWorkList := make([]BoundedVolume, 0, bestSplit.rightCount)
	for _, item := range workList {
		center := item.Center()
		if center[bestSplit.axis] < bestSplit.splitPoint {
			leftWorkList = append(leftWorkList, item)
		} else {
			rightWorkList = append(rightWorkList, item)
		}
	}

	// Guard against degenerate splits caused by centroids that sit exactly
	// on the split plane.
	if len(leftWorkList) == 0 || len(rightWorkList) == 0 {
		return b.createLeaf(&node, workList)
	}

	// Add node to list
	nodeIndex := len(b.nodes)
	b.nodes = append(b.nodes, node)
	b.stats.nodes++

	// Partition children and update node indices
	leftNodeIndex := b.partition(leftWorkList, depth+1)
	rightNodeIndex := b.partition(rightWorkList, depth+1)
	b.nodes[nodeIndex].SetChildNodes(leftNodeIndex, rightNodeIndex)

	return uint32(nodeIndex)
}

// Setup the given node item as a leaf node containing all items in the work list.
// Returns the index to the node in the bvh node array.
func (b *builder) createLeaf(node *scene.BvhNode, workList []BoundedVolume) uint32 {
	b.leafCb(node, workList)

	// append node to list
	nodeIndex := len(b.nodes)
	b.nodes = append(b.nodes, *node)

	// update stats
	b.stats.leafs++
	b.stats.partitionedItems += len(workList)

	return uint32(nodeIndex)
}

// A score implementation that uses the binned surface area heuristic for
// selecting split candidates.
type surfaceAreaHeuristic struct{}

type centroidBin struct {
	min   types.Vec3
	max   types.Vec3
	count int
}

// Score a BVH split using the binned surface area heuristic. The primitive
// centroids are binned into numBins uniform slabs along the split axis and
// each of the numBins-1 bin boundaries is evaluated as a candidate plane
// with the formula (lower score is better):
//
// left count * left BBOX area + right count * right BBOX area.
//
// SAH avoids splits that generate empty partitions by assigning the worst
// possible score (MaxFloat32) when it encounters such cases.
func (h surfaceAreaHeuristic) ScoreSplit(workList []BoundedVolume, splitAxis Axis) (splitPoint float32, leftCount, rightCount int, score float32) {
	score = math.MaxFloat32

	centroidMin := float32(math.MaxFloat32)
	centroidMax := float32(-math.MaxFloat32)
	for _, item := range workList {
		center := item.Center()[splitAxis]
		if center < centroidMin {
			centroidMin = center
		}
		if center > centroidMax {
			centroidMax = center
		}
	}
	if centroidMax-centroidMin < minCentroidSpread {
		return 0, 0, 0, score
	}

	// Bin primitives by centroid.
	var bins [numBins]centroidBin
	for binIndex := range bins {
		bins[binIndex].min = types.Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
		bins[binIndex].max = types.Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32}
	}

	scale := float32(numBins) / (centroidMax - centroidMin)
	for _, item := range workList {
		binIndex := int((item.Center()[splitAxis] - centroidMin) * scale)
		if binIndex > numBins-1 {
			binIndex = numBins - 1
		}

		itemBBox := item.BBox()
		bins[binIndex].count++
		bins[binIndex].min = types.MinVec3(bins[binIndex].min, itemBBox[0])
		bins[binIndex].max = types.MaxVec3(bins[binIndex].max, itemBBox[1])
	}

	// Sweep the bins from both ends accumulating the counts and bbox areas
	// either side of each candidate plane.
	var leftCounts, rightCounts [numBins - 1]int
	var leftAreas, rightAreas [numBins - 1]float32

	accMin := types.Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
	accMax := types.Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32}
	accCount := 0
	for binIndex := 0; binIndex < numBins-1; binIndex++ {
		accCount += bins[binIndex].count
		accMin = types.MinVec3(accMin, bins[binIndex].min)
		accMax = types.MaxVec3(accMax, bins[binIndex].max)
		leftCounts[binIndex] = accCount
		leftAreas[binIndex] = halfArea(accMin, accMax)
	}

	accMin = types.Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
	accMax = types.Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32}
	accCount = 0
	for binIndex := numBins - 1; binIndex > 0; binIndex-- {
		accCount += bins[binIndex].count
		accMin = types.MinVec3(accMin, bins[binIndex].min)
		accMax = types.MaxVec3(accMax, bins[binIndex].max)
		rightCounts[binIndex-1] = accCount
		rightAreas[binIndex-1] = halfArea(accMin, accMax)
	}

	for binIndex := 0; binIndex < numBins-1; binIndex++ {
		// Make sure that we don't generate empty partitions
		if leftCounts[binIndex] == 0 || rightCounts[binIndex] == 0 {
			continue
		}

		candidateScore := float32(leftCounts[binIndex])*leftAreas[binIndex] + float32(rightCounts[binIndex])*rightAreas[binIndex]
		if candidateScore < score {
			score = candidateScore
			leftCount = leftCounts[binIndex]
			rightCount = rightCounts[binIndex]
			splitPoint = centroidMin + float32(binIndex+1)/scale
		}
	}

	return splitPoint, leftCount, rightCount, score
}

// Calculate score for a partitioned workList using formula:
// count * BBOX area
//
// If the workList is empty, then this method returns the worst possible
// score (MaxFloat32).
func (h surfaceAreaHeuristic) ScorePartition(workList []BoundedVolume) (score float32) {
	if len(workList) == 0 {
		return math.MaxFloat32
	}

	min := types.Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
	max := types.Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32}

	for _, item := range workList {
		itemBBox := item.BBox()
		min = types.MinVec3(min, itemBBox[0])
		max = types.MaxVec3(max, itemBBox[1])
	}

	return float32(len(workList)) * halfArea(min, max)
}

// Half the surface area of the axis-aligned box described by min/max.
func halfArea(min, max types.Vec3) float32 {
	side := max.Sub(min)
	return side[0]*side[1] + side[1]*side[2] + side[0]*side[2]
}
