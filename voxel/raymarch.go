package voxel

import (
	"math"
	"math/bits"

	"github.com/go-gl/mathgl/mgl64"
)

// Step caps for the ray-march traversal. Empirically chosen, not derived;
// the WGSL kernel uses the same values.
const (
	MaxMarchSteps = 512 // total DDA iterations per ray
	MaxSkipSteps  = 128 // coarse empty-cell skips per ray
	MaxVoxelSteps = 12  // voxel steps inside a single block
)

// RayHit is the result of a scalar ray march. Steps is the number of DDA
// iterations spent, which the viewer's heatmap mode visualizes directly.
type RayHit struct {
	Hit    bool
	T      float64
	Voxel  [3]int
	Normal mgl64.Vec3
	Steps  int
}

// RayMarch walks a ray through the octree with the same two-level stepping
// the GPU kernel uses: block-granularity DDA with empty octants skipped a
// whole 2^level cell at a time, and voxel-granularity stepping inside
// non-empty blocks. It exists as the scalar reference implementation of
// raymarch.wgsl; the two are kept textually parallel and the tests
// cross-validate both against IsVoxelSolid.
func (g *Grid) RayMarch(origin, dir mgl64.Vec3, tMax float64) RayHit {
	var hit RayHit
	if len(g.Nodes) == 0 || g.Resolution <= 0 {
		return hit
	}

	// Guard against degenerate direction components before inverting.
	for i := 0; i < 3; i++ {
		if math.Abs(dir[i]) < 1e-9 {
			if dir[i] >= 0 {
				dir[i] = 1e-9
			} else {
				dir[i] = -1e-9
			}
		}
	}
	invDir := mgl64.Vec3{1 / dir.X(), 1 / dir.Y(), 1 / dir.Z()}

	worldMin, worldMax := g.WorldBounds()
	tEnter, tExit := intersectAABB(origin, invDir, worldMin, worldMax)
	if tExit < tEnter || tExit < 0 {
		return hit
	}
	t := math.Max(tEnter, 0)
	tEnd := math.Min(tExit, tMax)

	bias := 1e-4 * g.Resolution
	skipSteps := 0
	voxelSteps := 0
	lastBlock := [3]int{-1, -1, -1}

	for hit.Steps < MaxMarchSteps && t < tEnd {
		hit.Steps++

		p := origin.Add(dir.Mul(t + bias))
		local := p.Sub(g.GridMin)
		inv := 1.0 / g.Resolution
		ix := int(math.Floor(local.X() * inv))
		iy := int(math.Floor(local.Y() * inv))
		iz := int(math.Floor(local.Z() * inv))
		if ix < 0 || iy < 0 || iz < 0 ||
			uint32(ix) >= g.NumVoxels[0] || uint32(iy) >= g.NumVoxels[1] || uint32(iz) >= g.NumVoxels[2] {
			// Bias pushed the sample outside the grid; the ray is leaving.
			break
		}

		block := [3]int{ix / LeafSize, iy / LeafSize, iz / LeafSize}
		if block != lastBlock {
			lastBlock = block
			voxelSteps = 0
		}

		kind, leafOff, emptyLevel := g.blockLookup(uint32(block[0]), uint32(block[1]), uint32(block[2]))
		switch kind {
		case nodeSolid:
			return g.finishHit(origin, dir, t, ix, iy, iz, hit.Steps)

		case nodeMixedLeaf:
			if g.leafBit(leafOff, ix, iy, iz) {
				return g.finishHit(origin, dir, t, ix, iy, iz, hit.Steps)
			}
			voxelSteps++
			if voxelSteps > MaxVoxelSteps {
				// Runaway inner loop on corrupt data; fall back to a block step.
				t += g.stepOut(local, dir, invDir, float64(LeafSize)*g.Resolution)
				continue
			}
			t += g.stepOut(local, dir, invDir, g.Resolution)

		default:
			// Empty octant of size 2^emptyLevel blocks: fast-forward the DDA
			// across the whole aligned cell instead of one block at a time.
			skipSteps++
			if skipSteps > MaxSkipSteps {
				return hit
			}
			cellSize := float64(uint32(LeafSize)<<uint(emptyLevel)) * g.Resolution
			t += g.stepOut(local, dir, invDir, cellSize)
		}
	}

	return hit
}

// blockLookup classifies one leaf block by walking the octree on block
// coordinates. For an empty result, emptyLevel is the tree level at which
// the absent octant was found, i.e. the whole aligned cell of 2^emptyLevel
// blocks is empty.
func (g *Grid) blockLookup(bx, by, bz uint32) (kind nodeKind, leafOff uint32, emptyLevel int) {
	nodeIdx := uint32(0)
	for level := int(g.TreeDepth) - 1; level >= 0; level-- {
		k, mask, offset := classifyNode(g.Nodes[nodeIdx])
		if k != nodeInterior {
			return k, offset, 0
		}
		octant := ((bz>>level)&1)<<2 | ((by>>level)&1)<<1 | ((bx>>level)&1)
		if mask&(1<<octant) == 0 {
			return nodeInterior, 0, level
		}
		nodeIdx = offset + uint32(bits.OnesCount32(mask&((1<<octant)-1)))
		if nodeIdx >= uint32(len(g.Nodes)) {
			return nodeInterior, 0, 0
		}
	}
	k, _, offset := classifyNode(g.Nodes[nodeIdx])
	if k == nodeInterior {
		// Malformed leaf-level word; treat the block as empty.
		return nodeInterior, 0, 0
	}
	return k, offset, 0
}

// stepOut returns the ray distance to the next boundary of the axis-aligned
// cells of the given size, measured in grid-local coordinates, padded so the
// next sample lands past the boundary.
func (g *Grid) stepOut(local, dir, invDir mgl64.Vec3, size float64) float64 {
	best := math.Inf(1)
	for i := 0; i < 3; i++ {
		var dist float64
		if dir[i] > 0 {
			dist = (math.Floor(local[i]/size+1e-6)+1)*size - local[i]
		} else {
			dist = math.Floor(local[i]/size-1e-6)*size - local[i]
		}
		if tv := dist * invDir[i]; tv > 1e-9 && tv < best {
			best = tv
		}
	}
	if math.IsInf(best, 1) {
		return g.Resolution
	}
	return best + 1e-4*g.Resolution
}

func (g *Grid) finishHit(origin, dir mgl64.Vec3, t float64, ix, iy, iz, steps int) RayHit {
	voxMin, voxMax := g.VoxelAABB(ix, iy, iz)
	center := voxMin.Add(voxMax).Mul(0.5)
	p := origin.Add(dir.Mul(t))
	localP := p.Sub(center)
	abs := mgl64.Vec3{math.Abs(localP.X()), math.Abs(localP.Y()), math.Abs(localP.Z())}
	maxC := math.Max(abs.X(), math.Max(abs.Y(), abs.Z()))

	var normal mgl64.Vec3
	switch {
	case abs.X() >= maxC-1e-9:
		if localP.X() > 0 {
			normal[0] = 1
		} else {
			normal[0] = -1
		}
	case abs.Y() >= maxC-1e-9:
		if localP.Y() > 0 {
			normal[1] = 1
		} else {
			normal[1] = -1
		}
	default:
		if localP.Z() > 0 {
			normal[2] = 1
		} else {
			normal[2] = -1
		}
	}

	return RayHit{Hit: true, T: t, Voxel: [3]int{ix, iy, iz}, Normal: normal, Steps: steps}
}

func intersectAABB(origin, invDir, boxMin, boxMax mgl64.Vec3) (tEnter, tExit float64) {
	tEnter = math.Inf(-1)
	tExit = math.Inf(1)
	for i := 0; i < 3; i++ {
		t0 := (boxMin[i] - origin[i]) * invDir[i]
		t1 := (boxMax[i] - origin[i]) * invDir[i]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		tEnter = math.Max(tEnter, t0)
		tExit = math.Min(tExit, t1)
	}
	return tEnter, tExit
}
