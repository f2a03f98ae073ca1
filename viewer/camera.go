package viewer

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type Camera struct {
	Position    mgl32.Vec3
	Yaw         float32
	Pitch       float32
	Speed       float32
	Sensitivity float32
	FovDeg      float32
	Near        float32
	Far         float32
}

func NewCamera() *Camera {
	return &Camera{
		Position:    mgl32.Vec3{0, 4, 12},
		Yaw:         0,
		Pitch:       0,
		Speed:       8.0,
		Sensitivity: 0.003,
		FovDeg:      60,
		Near:        0.1,
		Far:         1000.0,
	}
}

func (c *Camera) Forward() mgl32.Vec3 {
	// Y-up: yaw rotates in XZ, pitch tilts toward Y
	return mgl32.Vec3{
		float32(math.Cos(float64(c.Pitch)) * math.Sin(float64(c.Yaw))),
		float32(math.Sin(float64(c.Pitch))),
		float32(-math.Cos(float64(c.Pitch)) * math.Cos(float64(c.Yaw))),
	}
}

func (c *Camera) Right() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(math.Cos(float64(c.Yaw))),
		0,
		float32(math.Sin(float64(c.Yaw))),
	}
}

func (c *Camera) ClampPitch() {
	limit := float32(math.Pi/2 - 0.01)
	if c.Pitch > limit {
		c.Pitch = limit
	}
	if c.Pitch < -limit {
		c.Pitch = -limit
	}
}

func (c *Camera) ViewMatrix() mgl32.Mat4 {
	eye := c.Position
	target := eye.Add(c.Forward())
	up := mgl32.Vec3{0, 1, 0}
	return mgl32.LookAtV(eye, target, up)
}

func (c *Camera) ProjMatrix(aspect float32) mgl32.Mat4 {
	if aspect == 0 {
		aspect = 1.0
	}
	return mgl32.Perspective(mgl32.DegToRad(c.FovDeg), aspect, c.Near, c.Far)
}

// InvViewProj is the matrix the ray-march kernel uses to reconstruct a
// world-space ray from a clip-space pixel position.
func (c *Camera) InvViewProj(aspect float32) mgl32.Mat4 {
	return c.ProjMatrix(aspect).Mul4(c.ViewMatrix()).Inv()
}
