package voxel

import (
	"math"
	"math/bits"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	// LeafSize is the voxel edge length of one leaf block. The 64 voxels of
	// a 4x4x4 block fit exactly into the two u32 words of a leaf mask pair.
	LeafSize = 4

	// SolidSentinel marks a fully solid block or subtree. Breadth-first
	// layout guarantees every real child index is > 0, so a genuine node can
	// never encode offset 0 together with a full child mask; the value is
	// structurally unambiguous.
	SolidSentinel uint32 = 0xFF000000
)

// Grid is a sparse voxel octree over a world-aligned voxel lattice.
//
// The node and leaf arrays are immutable after construction; all queries are
// pure reads and safe to call from any number of goroutines without
// coordination.
type Grid struct {
	GridMin    mgl64.Vec3 // world position of voxel index (0,0,0)
	Resolution float64    // world edge length of one voxel
	NumVoxels  [3]uint32
	TreeDepth  uint32 // octree levels above the leaf/block level

	// Nodes is the flat breadth-first node array. Top 8 bits of a word are
	// the child mask, low 24 bits the base offset. LeafData holds (lo, hi)
	// pairs forming 64-bit occupancy masks for mixed leaf blocks.
	Nodes    []uint32
	LeafData []uint32
}

type nodeKind uint8

const (
	nodeInterior nodeKind = iota
	nodeMixedLeaf
	nodeSolid
)

// classifyNode decodes a node word into its tagged form. This is the single
// place the interior/mixed-leaf/sentinel rule lives on the CPU side; the
// classify_node function in raymarch.wgsl mirrors it bit for bit.
func classifyNode(word uint32) (kind nodeKind, childMask uint32, baseOffset uint32) {
	if word == SolidSentinel {
		return nodeSolid, 0, 0
	}
	childMask = word >> 24
	baseOffset = word & 0x00FFFFFF
	if childMask == 0 {
		return nodeMixedLeaf, 0, baseOffset
	}
	return nodeInterior, childMask, baseOffset
}

// leafBit resolves one voxel of a mixed leaf block. bitIndex = z*16 + y*4 + x
// over the local 0..3 coordinates.
func (g *Grid) leafBit(leafIndex uint32, ix, iy, iz int) bool {
	if leafIndex+1 >= uint32(len(g.LeafData)) {
		return false
	}
	bit := uint32(iz&3)*16 + uint32(iy&3)*4 + uint32(ix&3)
	if bit < 32 {
		return g.LeafData[leafIndex]&(1<<bit) != 0
	}
	return g.LeafData[leafIndex+1]&(1<<(bit-32)) != 0
}

// IsVoxelSolid walks the octree for the voxel at the given index triple.
// Indices outside [0, NumVoxels) and queries on an unloaded grid report
// not solid.
func (g *Grid) IsVoxelSolid(ix, iy, iz int) bool {
	if len(g.Nodes) == 0 {
		return false
	}
	if ix < 0 || iy < 0 || iz < 0 {
		return false
	}
	if uint32(ix) >= g.NumVoxels[0] || uint32(iy) >= g.NumVoxels[1] || uint32(iz) >= g.NumVoxels[2] {
		return false
	}

	bx := uint32(ix) / LeafSize
	by := uint32(iy) / LeafSize
	bz := uint32(iz) / LeafSize

	nodeIdx := uint32(0)
	for level := int(g.TreeDepth) - 1; level >= 0; level-- {
		kind, mask, offset := classifyNode(g.Nodes[nodeIdx])
		switch kind {
		case nodeSolid:
			// Entire subtree solid; skip the remaining descent.
			return true
		case nodeMixedLeaf:
			return g.leafBit(offset, ix, iy, iz)
		}
		octant := ((bz>>level)&1)<<2 | ((by>>level)&1)<<1 | ((bx>>level)&1)
		if mask&(1<<octant) == 0 {
			return false
		}
		nodeIdx = offset + uint32(bits.OnesCount32(mask&((1<<octant)-1)))
		if nodeIdx >= uint32(len(g.Nodes)) {
			// Corrupt offset; refuse to walk out of the array.
			return false
		}
	}

	// The depth loop landed on the leaf level.
	kind, _, offset := classifyNode(g.Nodes[nodeIdx])
	switch kind {
	case nodeSolid:
		return true
	case nodeMixedLeaf:
		return g.leafBit(offset, ix, iy, iz)
	}
	return false
}

// QueryPoint reports whether the voxel containing the world-space point is
// solid.
func (g *Grid) QueryPoint(x, y, z float64) bool {
	if g.Resolution <= 0 {
		return false
	}
	inv := 1.0 / g.Resolution
	ix := int(math.Floor((x - g.GridMin.X()) * inv))
	iy := int(math.Floor((y - g.GridMin.Y()) * inv))
	iz := int(math.Floor((z - g.GridMin.Z()) * inv))
	return g.IsVoxelSolid(ix, iy, iz)
}

// VoxelAABB returns the world-space bounds of the voxel at the given index.
func (g *Grid) VoxelAABB(ix, iy, iz int) (mgl64.Vec3, mgl64.Vec3) {
	min := mgl64.Vec3{
		g.GridMin.X() + float64(ix)*g.Resolution,
		g.GridMin.Y() + float64(iy)*g.Resolution,
		g.GridMin.Z() + float64(iz)*g.Resolution,
	}
	return min, min.Add(mgl64.Vec3{g.Resolution, g.Resolution, g.Resolution})
}

// WorldBounds returns the world-space AABB of the whole grid.
func (g *Grid) WorldBounds() (mgl64.Vec3, mgl64.Vec3) {
	max := g.GridMin.Add(mgl64.Vec3{
		float64(g.NumVoxels[0]) * g.Resolution,
		float64(g.NumVoxels[1]) * g.Resolution,
		float64(g.NumVoxels[2]) * g.Resolution,
	})
	return g.GridMin, max
}

// NumBlocks returns the grid extents in leaf blocks, rounded up.
func (g *Grid) NumBlocks() [3]uint32 {
	return [3]uint32{
		(g.NumVoxels[0] + LeafSize - 1) / LeafSize,
		(g.NumVoxels[1] + LeafSize - 1) / LeafSize,
		(g.NumVoxels[2] + LeafSize - 1) / LeafSize,
	}
}
