package voxel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/segmentio/encoding/json"
)

var (
	ErrTruncated  = errors.New("voxel: binary buffer shorter than declared counts")
	ErrBadHeader  = errors.New("voxel: invalid metadata")
	ErrUnsupported = errors.New("voxel: unsupported leaf size")
)

// GridBounds is the world-space AABB recorded in the metadata file.
type GridBounds struct {
	Min [3]float64 `json:"min"`
	Max [3]float64 `json:"max"`
}

// Metadata mirrors the <name>.voxel.json companion record.
type Metadata struct {
	Version         string     `json:"version"`
	GridBounds      GridBounds `json:"gridBounds"`
	VoxelResolution float64    `json:"voxelResolution"`
	LeafSize        uint32     `json:"leafSize"`
	TreeDepth       uint32     `json:"treeDepth"`
	NodeCount       uint32     `json:"nodeCount"`
	LeafDataCount   uint32     `json:"leafDataCount"`
}

// ParseMetadata decodes a .voxel.json document.
func ParseMetadata(data []byte) (*Metadata, error) {
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("voxel: parse metadata: %w", err)
	}
	return &meta, nil
}

// NewGrid constructs an immutable Grid from a metadata record and the raw
// little-endian buffer of the .voxel.bin companion. The first NodeCount u32
// words become the node array, the next LeafDataCount words the leaf masks;
// any shortfall is a fatal format error and no partial grid is produced.
func NewGrid(meta *Metadata, buf []byte) (*Grid, error) {
	if meta.VoxelResolution <= 0 {
		return nil, fmt.Errorf("%w: voxelResolution %v", ErrBadHeader, meta.VoxelResolution)
	}
	if meta.LeafSize != LeafSize {
		return nil, fmt.Errorf("%w: leafSize %d (want %d)", ErrUnsupported, meta.LeafSize, LeafSize)
	}
	need := 4 * (int(meta.NodeCount) + int(meta.LeafDataCount))
	if len(buf) < need {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrTruncated, len(buf), need)
	}

	g := &Grid{
		GridMin:    mgl64.Vec3{meta.GridBounds.Min[0], meta.GridBounds.Min[1], meta.GridBounds.Min[2]},
		Resolution: meta.VoxelResolution,
		TreeDepth:  meta.TreeDepth,
		Nodes:      make([]uint32, meta.NodeCount),
		LeafData:   make([]uint32, meta.LeafDataCount),
	}
	for axis := 0; axis < 3; axis++ {
		extent := meta.GridBounds.Max[axis] - meta.GridBounds.Min[axis]
		g.NumVoxels[axis] = uint32(math.Round(extent / meta.VoxelResolution))
	}

	for i := range g.Nodes {
		g.Nodes[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	base := int(meta.NodeCount) * 4
	for i := range g.LeafData {
		g.LeafData[i] = binary.LittleEndian.Uint32(buf[base+i*4:])
	}
	return g, nil
}
