package scene

import (
	"github.com/achilleasa/vega/types"
)

// The camera type controls the scene camera. Rays pass through a virtual
// image plane at unit distance along the +Z axis and are rotated into world
// space by the orientation basis derived from the yaw/pitch angles.
type Camera struct {
	Position types.Vec3

	// Rotation around the X axis (pitch) and the Y axis (yaw) in radians.
	Pitch float32
	Yaw   float32

	basis types.Mat3
}

func NewCamera(position types.Vec3) *Camera {
	c := &Camera{
		Position: position,
	}
	c.Update()
	return c
}

// Recalculate the orientation basis. Update must be called after mutating
// the pitch or yaw angles for the change to affect generated rays.
func (c *Camera) Update() {
	yawQuat := types.QuatFromAxisAngle(types.XYZ(0, 1, 0), c.Yaw)
	pitchQuat := types.QuatFromAxisAngle(types.XYZ(1, 0, 0), c.Pitch)
	orientQuat := yawQuat.Mul(pitchQuat).Normalize()

	c.basis = types.Mat3FromCols(
		orientQuat.Rotate(types.XYZ(1, 0, 0)),
		orientQuat.Rotate(types.XYZ(0, 1, 0)),
		orientQuat.Rotate(types.XYZ(0, 0, 1)),
	)
}

// Rotate a camera space direction into world space.
func (c *Camera) RotateRay(dir types.Vec3) types.Vec3 {
	return c.basis.Mul3x1(dir)
}

// The world space direction the camera is facing.
func (c *Camera) Forward() types.Vec3 {
	return c.basis.Mul3x1(types.XYZ(0, 0, 1))
}

// The world space direction to the right of the camera.
func (c *Camera) Right() types.Vec3 {
	return c.basis.Mul3x1(types.XYZ(1, 0, 0))
}
