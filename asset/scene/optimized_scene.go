package scene

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"

	"github.com/achilleasa/vega/asset/texure"
	"github.com/achilleasa/vega/types"
	"github.com/olekukonko/tablewriter"
)

// Bvh nodes are comprised of two Vec3 and two multipurpose int32 parameters
// whose value depends on the node type:
//
// - For non-leaf nodes they are both >0 and point to the L/R child nodes
// - For leaf nodes:
//   - left W is <= 0 and points to the first triangle index
//   - right W is >0 and contains the count of leaf triangles
type BvhNode struct {
	Min   types.Vec3
	LData int32

	Max   types.Vec3
	RData int32
}

// Set bounding box.
func (n *BvhNode) SetBBox(bbox [2]types.Vec3) {
	n.Min = bbox[0]
	n.Max = bbox[1]
}

// Set left and right child node indices.
func (n *BvhNode) SetChildNodes(left, right uint32) {
	n.LData = int32(left)
	n.RData = int32(right)
}

// Get left and right child node indices.
func (n *BvhNode) GetChildNodes() (left, right uint32) {
	return uint32(n.LData), uint32(n.RData)
}

// Set triangle index and count.
func (n *BvhNode) SetPrimitives(firstPrimIndex, count uint32) {
	n.LData = -int32(firstPrimIndex)
	n.RData = int32(count)
}

// Get triangle index and count.
func (n *BvhNode) GetPrimitives() (firstPrimIndex, count uint32) {
	return uint32(-n.LData), uint32(n.RData)
}

// True if this node stores triangles instead of child node indices.
func (n *BvhNode) IsLeaf() bool {
	return n.LData <= 0
}

// Baked material parameters using the metallic/roughness workflow. The
// texture indices point into the scene texture list; a negative index
// indicates that the parameter is sourced from the scalar fields instead.
type Material struct {
	Albedo   types.Vec3
	Emissive types.Vec3

	Metallic  float32
	Roughness float32

	AlbedoTex    int32
	MetallicTex  int32
	RoughnessTex int32
	NormalTex    int32
}

// True if the material emits light.
func (m *Material) IsEmissive() bool {
	return m.Emissive[0] != 0 || m.Emissive[1] != 0 || m.Emissive[2] != 0
}

// Light table entries pack a pair of emissive triangles so that the
// integrator can pick a light source with two uniform numbers: one to
// select a table entry and one that is tested against Ratio to select
// between the A and B slots. PdfA/PdfB hold the true pick probability
// for each triangle which weighs the sampled contribution.
type LightTableEntry struct {
	TriangleA uint32
	TriangleB uint32

	PdfA float32
	PdfB float32

	AreaA float32
	AreaB float32

	// Chance of selecting slot A over slot B. Scenes without emissive
	// geometry store a single entry with a negative ratio.
	Ratio float32
}

// True if this entry marks an empty light table.
func (e *LightTableEntry) IsSentinel() bool {
	return e.Ratio < 0
}

// Sky illumination parameters. TextureIndex selects an equirectangular
// environment map from the scene texture list; when negative, a procedural
// atmosphere is evaluated instead. The xyz components of SunDirection drive
// the procedural sun (or the yaw of the environment map) and the w component
// holds the sun intensity.
type Skybox struct {
	SunDirection types.Vec4
	TextureIndex int32
}

type Scene struct {
	BvhNodeList []BvhNode

	// Triangles are stored as a structure of arrays; triangle i uses
	// entries 3i to 3i+2 of the vertex attribute lists and entry i of
	// the material index list.
	VertexList    []types.Vec4
	NormalList    []types.Vec4
	TangentList   []types.Vec4
	UvList        []types.Vec2
	MaterialIndex []uint32

	MaterialList []Material

	// Textures referenced by materials and the skybox.
	TextureList []*texture.Texture

	// Emissive triangle pick table.
	LightTable []LightTableEntry

	Skybox Skybox

	// The scene camera.
	Camera *Camera
}

// Fetch the vertices of a triangle.
func (sc *Scene) TriangleVertices(triIndex uint32) (v0, v1, v2 types.Vec3) {
	offset := triIndex * 3
	return sc.VertexList[offset].Vec3(), sc.VertexList[offset+1].Vec3(), sc.VertexList[offset+2].Vec3()
}

// Fetch the material assigned to a triangle.
func (sc *Scene) TriangleMaterial(triIndex uint32) *Material {
	return &sc.MaterialList[sc.MaterialIndex[triIndex]]
}

// Build a tabular representation of scene statistics.
func (sc *Scene) Stats() string {
	var texBytes int
	for _, tex := range sc.TextureList {
		texBytes += len(tex.Data)
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Asset Type", "Asset", "Size"})
	table.Append([]string{"Geometry", "---", fmtSize(sc.VertexList, sc.NormalList, sc.TangentList, sc.UvList, sc.BvhNodeList)})
	table.Append([]string{"", "Vertices", fmtSize(sc.VertexList)})
	table.Append([]string{"", "Normals", fmtSize(sc.NormalList)})
	table.Append([]string{"", "Tangents", fmtSize(sc.TangentList)})
	table.Append([]string{"", "UVs", fmtSize(sc.UvList)})
	table.Append([]string{"", "BVH", fmtSize(sc.BvhNodeList)})
	table.Append([]string{" ", " ", " "})
	table.Append([]string{"Materials", "---", fmtSize(sc.MaterialIndex, sc.MaterialList)})
	table.Append([]string{"", "Mat. indices", fmtSize(sc.MaterialIndex)})
	table.Append([]string{"", "Materials", fmtSize(sc.MaterialList)})
	table.Append([]string{" ", " ", " "})
	table.Append([]string{"Lights", "---", fmtSize(sc.LightTable)})
	table.Append([]string{"", "Light table", fmtSize(sc.LightTable)})
	table.Append([]string{" ", " ", " "})
	table.Append([]string{"Textures", "---", fmtBytes(float32(texBytes))})
	total := float32(texBytes) + sizeOf(sc.VertexList, sc.NormalList, sc.TangentList, sc.UvList, sc.BvhNodeList, sc.MaterialIndex, sc.MaterialList, sc.LightTable)
	table.SetFooter([]string{"Total", " ", strings.TrimLeft(fmtBytes(total), " ")})

	table.Render()
	return buf.String()
}

// Sum the total space used by a set of slices and return back a formatted
// value with the appropriate byte/kb/mb unit.
func fmtSize(items ...interface{}) string {
	return fmtBytes(sizeOf(items...))
}

func sizeOf(items ...interface{}) float32 {
	var totalBytes float32 = 0.0
	for _, item := range items {
		t := reflect.TypeOf(item)
		v := reflect.ValueOf(item)
		if v.Len() == 0 {
			continue
		}

		totalBytes += float32(int(t.Elem().Size()) * v.Len())
	}
	return totalBytes
}

func fmtBytes(totalBytes float32) string {
	if totalBytes < 1e3 {
		return fmt.Sprintf("%3d bytes", int(totalBytes))
	} else if totalBytes < 1e6 {
		return fmt.Sprintf("%3.1f kb", totalBytes/1e3)
	}
	return fmt.Sprintf("%5.1f mb", totalBytes/1e6)
}
