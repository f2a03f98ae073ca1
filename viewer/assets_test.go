package viewer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaneholloman/supersplat-viewer/voxel"
)

func smallGrid(t *testing.T) *voxel.Grid {
	t.Helper()
	b, err := voxel.NewBuilder(mgl64.Vec3{}, mgl64.Vec3{4, 4, 4}, 1.0)
	require.NoError(t, err)
	b.SetSolid(0, 0, 0)
	return b.Build()
}

func TestAssetServerRegisterAndCycle(t *testing.T) {
	s := NewAssetServer()
	a := s.Register("a", smallGrid(t))
	b := s.Register("b", smallGrid(t))

	assert.Equal(t, 2, s.Len())

	got, ok := s.Get(a)
	require.True(t, ok)
	assert.Equal(t, "a", got.Name)

	next, asset, ok := s.Next(a)
	require.True(t, ok)
	assert.Equal(t, b, next)
	assert.Equal(t, "b", asset.Name)

	// Wraps around.
	next, _, ok = s.Next(b)
	require.True(t, ok)
	assert.Equal(t, a, next)
}

func TestAssetServerNextEmpty(t *testing.T) {
	s := NewAssetServer()
	_, _, ok := s.Next("")
	assert.False(t, ok)
}

func TestAssetServerLoadGrid(t *testing.T) {
	g := smallGrid(t)
	meta, buf := g.Encode()

	dir := t.TempDir()
	metaJSON, err := json.Marshal(meta)
	require.NoError(t, err)
	ref := filepath.Join(dir, "probe.voxel.json")
	require.NoError(t, os.WriteFile(ref, metaJSON, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "probe.voxel.bin"), buf, 0o644))

	s := NewAssetServer()
	id, err := s.LoadGrid(context.Background(), ref)
	require.NoError(t, err)

	asset, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, "probe", asset.Name)
	assert.True(t, asset.Grid.IsVoxelSolid(0, 0, 0))
}

func TestAssetServerLoadGridMissing(t *testing.T) {
	s := NewAssetServer()
	_, err := s.LoadGrid(context.Background(), filepath.Join(t.TempDir(), "nope.voxel.json"))
	require.Error(t, err)
}
