package voxel

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

// naiveFirstSolid is the brute-force reference: sample QueryPoint along the
// ray at a fraction of the voxel size and report the first solid voxel. The
// DDA marcher must agree with it on every scene that has no surfaces tangent
// to the ray.
func naiveFirstSolid(g *Grid, origin, dir mgl64.Vec3, tMax float64) (bool, [3]int) {
	dt := g.Resolution / 16
	inv := 1.0 / g.Resolution
	for t := 0.0; t < tMax; t += dt {
		p := origin.Add(dir.Mul(t))
		if g.QueryPoint(p.X(), p.Y(), p.Z()) {
			return true, [3]int{
				int(math.Floor((p.X() - g.GridMin.X()) * inv)),
				int(math.Floor((p.Y() - g.GridMin.Y()) * inv)),
				int(math.Floor((p.Z() - g.GridMin.Z()) * inv)),
			}
		}
	}
	return false, [3]int{}
}

func TestRayMarchHitsSingleVoxel(t *testing.T) {
	g := buildSingleVoxelGrid(t)

	hit := g.RayMarch(mgl64.Vec3{0.5, 3, 0.5}, mgl64.Vec3{0, -1, 0}, 100)
	if !hit.Hit {
		t.Fatal("downward ray over the voxel must hit")
	}
	if hit.Voxel != [3]int{0, 0, 0} {
		t.Errorf("hit voxel %v, want (0,0,0)", hit.Voxel)
	}
	if hit.Normal.Y() != 1 {
		t.Errorf("entry through the top face, normal %v", hit.Normal)
	}
	if math.Abs(hit.T-2.0) > 0.05 {
		t.Errorf("hit distance %v, want ~2.0", hit.T)
	}
}

func TestRayMarchMiss(t *testing.T) {
	g := buildSingleVoxelGrid(t)

	hit := g.RayMarch(mgl64.Vec3{0.5, 3, 0.5}, mgl64.Vec3{0, 1, 0}, 100)
	if hit.Hit {
		t.Error("ray pointing away from the grid must miss")
	}

	hit = g.RayMarch(mgl64.Vec3{2.5, 3, 2.5}, mgl64.Vec3{0, -1, 0}, 100)
	if hit.Hit {
		t.Error("ray through empty voxels must miss")
	}
}

func TestRayMarchEmptyGrid(t *testing.T) {
	var g Grid
	hit := g.RayMarch(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 0, 0}, 10)
	if hit.Hit || hit.Steps != 0 {
		t.Errorf("unloaded grid must not march: %+v", hit)
	}
}

func TestRayMarchMatchesPointQuery(t *testing.T) {
	// Deterministic scenes covering all three node kinds.
	scenes := map[string]func(t *testing.T) *Grid{
		"floor":       buildFloorGrid,
		"singleVoxel": buildSingleVoxelGrid,
		"solidRegion": func(t *testing.T) *Grid {
			b, err := NewBuilder(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{16, 16, 16}, 1.0)
			if err != nil {
				t.Fatal(err)
			}
			for z := 0; z < 8; z++ {
				for y := 0; y < 8; y++ {
					for x := 0; x < 8; x++ {
						b.SetSolid(x, y, z)
					}
				}
			}
			b.SetSolid(12, 12, 12)
			return b.Build()
		},
	}

	// Origins and directions chosen off-axis so no face is tangent.
	rays := []struct {
		origin, dir mgl64.Vec3
	}{
		{mgl64.Vec3{-3.1, 4.3, 4.7}, mgl64.Vec3{1, -0.37, -0.21}},
		{mgl64.Vec3{4.3, 12.7, 3.9}, mgl64.Vec3{0.11, -1, 0.17}},
		{mgl64.Vec3{9.5, 9.1, 9.3}, mgl64.Vec3{-0.71, -0.62, -0.53}},
		{mgl64.Vec3{0.4, 6.3, -2.2}, mgl64.Vec3{0.23, -0.55, 1}},
	}

	for name, build := range scenes {
		g := build(t)
		for i, r := range rays {
			dir := r.dir.Normalize()
			got := g.RayMarch(r.origin, dir, 100)
			wantHit, wantVoxel := naiveFirstSolid(g, r.origin, dir, 100)

			if got.Hit != wantHit {
				t.Errorf("%s ray %d: march hit=%v, point sampling hit=%v", name, i, got.Hit, wantHit)
				continue
			}
			if got.Hit {
				if !g.IsVoxelSolid(got.Voxel[0], got.Voxel[1], got.Voxel[2]) {
					t.Errorf("%s ray %d: reported hit voxel %v is not solid", name, i, got.Voxel)
				}
				if got.Voxel != wantVoxel {
					t.Errorf("%s ray %d: hit voxel %v, sampling found %v", name, i, got.Voxel, wantVoxel)
				}
			}
		}
	}
}

func TestRayMarchCoarseSkip(t *testing.T) {
	// 64 voxels (16 blocks) of mostly empty space, solid at the far end.
	// The empty-octant fast-forward must cross the gap in a handful of
	// steps rather than block by block.
	b, err := NewBuilder(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{64, 64, 64}, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < 4; y++ {
		for z := 0; z < 4; z++ {
			for x := 60; x < 64; x++ {
				b.SetSolid(x, y, z)
			}
		}
	}
	g := b.Build()

	hit := g.RayMarch(mgl64.Vec3{-1, 2.5, 2.5}, mgl64.Vec3{1, 0, 0}, 200)
	if !hit.Hit {
		t.Fatal("ray must reach the far block")
	}
	if hit.Voxel[0] != 60 {
		t.Errorf("hit voxel %v, want x=60", hit.Voxel)
	}
	if hit.Steps > 24 {
		t.Errorf("coarse skip ineffective: %d steps to cross 15 empty blocks", hit.Steps)
	}
}

func TestRayMarchStepCaps(t *testing.T) {
	// Worst case for the marcher: an alternating checkerboard.
	b, err := NewBuilder(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{32, 32, 32}, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	for z := 0; z < 32; z++ {
		for y := 0; y < 32; y++ {
			for x := 0; x < 32; x++ {
				if (x+y+z)%2 == 0 {
					b.SetSolid(x, y, z)
				}
			}
		}
	}
	g := b.Build()

	hit := g.RayMarch(mgl64.Vec3{-5, 15.3, 15.7}, mgl64.Vec3{1, 0.013, 0.007}.Normalize(), 500)
	if hit.Steps > MaxMarchSteps {
		t.Errorf("step count %d exceeds cap %d", hit.Steps, MaxMarchSteps)
	}
	if !hit.Hit {
		t.Error("checkerboard directly ahead should be hit almost immediately")
	}
}
