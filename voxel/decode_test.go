package voxel

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMetadata = `{
	"version": "1.0",
	"gridBounds": {"min": [-1.0, 0.0, -1.0], "max": [3.0, 4.0, 3.0]},
	"voxelResolution": 0.5,
	"leafSize": 4,
	"treeDepth": 1,
	"nodeCount": 2,
	"leafDataCount": 2
}`

func TestParseMetadata(t *testing.T) {
	meta, err := ParseMetadata([]byte(sampleMetadata))
	require.NoError(t, err)

	assert.Equal(t, "1.0", meta.Version)
	assert.Equal(t, [3]float64{-1, 0, -1}, meta.GridBounds.Min)
	assert.Equal(t, [3]float64{3, 4, 3}, meta.GridBounds.Max)
	assert.Equal(t, 0.5, meta.VoxelResolution)
	assert.Equal(t, uint32(4), meta.LeafSize)
	assert.Equal(t, uint32(1), meta.TreeDepth)
	assert.Equal(t, uint32(2), meta.NodeCount)
	assert.Equal(t, uint32(2), meta.LeafDataCount)
}

func TestParseMetadataBadJSON(t *testing.T) {
	_, err := ParseMetadata([]byte("{not json"))
	require.Error(t, err)
}

func TestNewGridValidation(t *testing.T) {
	meta, err := ParseMetadata([]byte(sampleMetadata))
	require.NoError(t, err)

	t.Run("truncated buffer", func(t *testing.T) {
		_, err := NewGrid(meta, make([]byte, 8)) // needs 16
		require.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("bad resolution", func(t *testing.T) {
		bad := *meta
		bad.VoxelResolution = 0
		_, err := NewGrid(&bad, make([]byte, 16))
		require.ErrorIs(t, err, ErrBadHeader)
	})

	t.Run("bad leaf size", func(t *testing.T) {
		bad := *meta
		bad.LeafSize = 8
		_, err := NewGrid(&bad, make([]byte, 16))
		require.ErrorIs(t, err, ErrUnsupported)
	})

	t.Run("valid", func(t *testing.T) {
		g, err := NewGrid(meta, make([]byte, 16))
		require.NoError(t, err)
		assert.Equal(t, [3]uint32{8, 8, 8}, g.NumVoxels)
		assert.Equal(t, mgl64.Vec3{-1, 0, -1}, g.GridMin)
	})
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	// Random occupancy plus a guaranteed fully solid region, so the round
	// trip exercises interior nodes, mixed leaves and the solid sentinel.
	rng := rand.New(rand.NewSource(42))

	b, err := NewBuilder(mgl64.Vec3{-2, -2, -2}, mgl64.Vec3{14, 14, 14}, 1.0)
	require.NoError(t, err)

	occupancy := make(map[[3]int]bool)
	for z := 0; z < 16; z++ {
		for y := 0; y < 16; y++ {
			for x := 0; x < 16; x++ {
				solid := rng.Float64() < 0.3 || (x < 8 && y < 8 && z < 8)
				if solid {
					b.SetSolid(x, y, z)
					occupancy[[3]int{x, y, z}] = true
				}
			}
		}
	}

	src := b.Build()
	meta, buf := src.Encode()

	// Through the JSON layer too, as the asset pair on disk would go.
	metaJSON, err := json.Marshal(meta)
	require.NoError(t, err)
	parsed, err := ParseMetadata(metaJSON)
	require.NoError(t, err)

	g, err := NewGrid(parsed, buf)
	require.NoError(t, err)

	require.Equal(t, src.NumVoxels, g.NumVoxels)
	require.Equal(t, src.TreeDepth, g.TreeDepth)

	for z := -1; z <= 16; z++ {
		for y := -1; y <= 16; y++ {
			for x := -1; x <= 16; x++ {
				want := occupancy[[3]int{x, y, z}]
				if got := g.IsVoxelSolid(x, y, z); got != want {
					t.Fatalf("voxel (%d,%d,%d): decoded %v, source %v", x, y, z, got, want)
				}
			}
		}
	}
}

func TestLoadGridFromFiles(t *testing.T) {
	b, err := NewBuilder(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{8, 8, 8}, 1.0)
	require.NoError(t, err)
	b.SetSolid(1, 2, 3)
	src := b.Build()
	meta, buf := src.Encode()

	dir := t.TempDir()
	metaJSON, err := json.Marshal(meta)
	require.NoError(t, err)
	jsonPath := filepath.Join(dir, "scene.voxel.json")
	require.NoError(t, os.WriteFile(jsonPath, metaJSON, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scene.voxel.bin"), buf, 0o644))

	g, err := LoadGrid(context.Background(), jsonPath)
	require.NoError(t, err)
	assert.True(t, g.IsVoxelSolid(1, 2, 3))
	assert.False(t, g.IsVoxelSolid(1, 2, 4))
}

func TestLoadGridMissingCompanion(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "scene.voxel.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(sampleMetadata), 0o644))

	// Metadata present but the .bin is missing: construction must abort.
	_, err := LoadGrid(context.Background(), jsonPath)
	require.Error(t, err)
}
