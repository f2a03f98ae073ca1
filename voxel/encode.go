package voxel

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"

	"github.com/go-gl/mathgl/mgl64"
)

// FormatVersion is written into the metadata of encoded assets.
const FormatVersion = "1.0"

// Builder accumulates a dense occupancy description and packs it into the
// breadth-first octree encoding a Grid consumes. It is the writer side of the
// asset format; NewGrid is the reader.
type Builder struct {
	gridMin    mgl64.Vec3
	gridMax    mgl64.Vec3
	resolution float64
	numVoxels  [3]uint32
	numBlocks  [3]uint32
	blocks     map[[3]uint32]uint64
}

// NewBuilder creates a builder over the given world bounds and voxel
// resolution.
func NewBuilder(gridMin, gridMax mgl64.Vec3, resolution float64) (*Builder, error) {
	if resolution <= 0 {
		return nil, fmt.Errorf("voxel: builder resolution must be > 0, got %v", resolution)
	}
	b := &Builder{
		gridMin:    gridMin,
		gridMax:    gridMax,
		resolution: resolution,
		blocks:     make(map[[3]uint32]uint64),
	}
	for axis := 0; axis < 3; axis++ {
		extent := gridMax[axis] - gridMin[axis]
		n := uint32(math.Round(extent / resolution))
		if n == 0 {
			n = 1
		}
		b.numVoxels[axis] = n
		b.numBlocks[axis] = (n + LeafSize - 1) / LeafSize
	}
	return b, nil
}

// SetSolid marks one voxel solid. Out-of-range indices are ignored.
func (b *Builder) SetSolid(ix, iy, iz int) {
	if ix < 0 || iy < 0 || iz < 0 {
		return
	}
	if uint32(ix) >= b.numVoxels[0] || uint32(iy) >= b.numVoxels[1] || uint32(iz) >= b.numVoxels[2] {
		return
	}
	key := [3]uint32{uint32(ix) / LeafSize, uint32(iy) / LeafSize, uint32(iz) / LeafSize}
	bit := uint32(iz&3)*16 + uint32(iy&3)*4 + uint32(ix&3)
	b.blocks[key] |= 1 << bit
}

// SetSolidWorld marks the voxel containing a world-space point solid.
func (b *Builder) SetSolidWorld(x, y, z float64) {
	inv := 1.0 / b.resolution
	b.SetSolid(
		int(math.Floor((x-b.gridMin.X())*inv)),
		int(math.Floor((y-b.gridMin.Y())*inv)),
		int(math.Floor((z-b.gridMin.Z())*inv)),
	)
}

type cellState uint8

const (
	cellEmpty cellState = iota
	cellSolid
	cellMixed
)

type buildCell struct {
	state    cellState
	mask     uint64        // valid for leaf-level mixed cells
	children [8]*buildCell // valid for interior mixed cells
	leaf     bool
}

// Build packs the accumulated occupancy into a Grid. The resulting node
// array is breadth-first with the root at index 0, so no real child can sit
// at offset 0 and the solid sentinel stays unambiguous.
func (b *Builder) Build() *Grid {
	maxBlocks := max(b.numBlocks[0], max(b.numBlocks[1], b.numBlocks[2]))
	treeDepth := uint32(bits.Len32(maxBlocks - 1))
	if treeDepth == 0 {
		treeDepth = 1
	}

	g := &Grid{
		GridMin:    b.gridMin,
		Resolution: b.resolution,
		NumVoxels:  b.numVoxels,
		TreeDepth:  treeDepth,
	}

	root := b.classify(int(treeDepth), 0, 0, 0)
	switch root.state {
	case cellEmpty:
		// A zero word is a mixed leaf pointing at an all-empty mask pair.
		g.Nodes = []uint32{0}
		g.LeafData = []uint32{0, 0}
		return g
	case cellSolid:
		g.Nodes = []uint32{SolidSentinel}
		return g
	}

	nodes := []uint32{0}
	var leafData []uint32

	type pending struct {
		cell    *buildCell
		nodeIdx int
	}
	queue := []pending{{root, 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		base := uint32(len(nodes))
		mask := uint32(0)
		for i := 0; i < 8; i++ {
			child := cur.cell.children[i]
			if child != nil && child.state != cellEmpty {
				mask |= 1 << i
			}
		}
		nodes[cur.nodeIdx] = mask<<24 | base

		for i := 0; i < 8; i++ {
			child := cur.cell.children[i]
			if child == nil || child.state == cellEmpty {
				continue
			}
			idx := len(nodes)
			nodes = append(nodes, 0)
			switch {
			case child.state == cellSolid:
				nodes[idx] = SolidSentinel
			case child.leaf:
				off := uint32(len(leafData))
				nodes[idx] = off // childMask 0: mixed leaf
				leafData = append(leafData, uint32(child.mask), uint32(child.mask>>32))
			default:
				queue = append(queue, pending{child, idx})
			}
		}
	}

	g.Nodes = nodes
	g.LeafData = leafData
	return g
}

// classify evaluates the cell at the given tree level (root level ==
// treeDepth, leaf blocks level 0) whose block-space origin is
// (bx,by,bz) * 2^level.
func (b *Builder) classify(level int, bx, by, bz uint32) *buildCell {
	size := uint32(1) << level
	if bx*size >= b.numBlocks[0] || by*size >= b.numBlocks[1] || bz*size >= b.numBlocks[2] {
		return &buildCell{state: cellEmpty}
	}

	if level == 0 {
		mask := b.blocks[[3]uint32{bx, by, bz}]
		c := &buildCell{leaf: true, mask: mask}
		switch mask {
		case 0:
			c.state = cellEmpty
		case ^uint64(0):
			c.state = cellSolid
		default:
			c.state = cellMixed
		}
		return c
	}

	c := &buildCell{}
	allSolid := true
	allEmpty := true
	for i := 0; i < 8; i++ {
		cx := bx*2 + uint32(i&1)
		cy := by*2 + uint32((i>>1)&1)
		cz := bz*2 + uint32((i>>2)&1)
		child := b.classify(level-1, cx, cy, cz)
		c.children[i] = child
		if child.state != cellSolid {
			allSolid = false
		}
		if child.state != cellEmpty {
			allEmpty = false
		}
	}
	switch {
	case allEmpty:
		c.state = cellEmpty
	case allSolid:
		c.state = cellSolid
	default:
		c.state = cellMixed
	}
	return c
}

// Encode serializes the grid into its two-part asset form: the metadata
// record and the little-endian u32 buffer (nodes first, then leaf masks).
func (g *Grid) Encode() (*Metadata, []byte) {
	meta := &Metadata{
		Version:         FormatVersion,
		VoxelResolution: g.Resolution,
		LeafSize:        LeafSize,
		TreeDepth:       g.TreeDepth,
		NodeCount:       uint32(len(g.Nodes)),
		LeafDataCount:   uint32(len(g.LeafData)),
	}
	_, worldMax := g.WorldBounds()
	for axis := 0; axis < 3; axis++ {
		meta.GridBounds.Min[axis] = g.GridMin[axis]
		meta.GridBounds.Max[axis] = worldMax[axis]
	}

	buf := make([]byte, 4*(len(g.Nodes)+len(g.LeafData)))
	for i, w := range g.Nodes {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	base := len(g.Nodes) * 4
	for i, w := range g.LeafData {
		binary.LittleEndian.PutUint32(buf[base+i*4:], w)
	}
	return meta, buf
}
