package viewer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/shaneholloman/supersplat-viewer/voxel"
)

type AssetId string

type GridAsset struct {
	Name string
	Grid *voxel.Grid
}

// AssetServer tracks the grids loaded into the viewer so the window can
// cycle between several collider assets.
type AssetServer struct {
	grids map[AssetId]GridAsset
	order []AssetId
}

func NewAssetServer() *AssetServer {
	return &AssetServer{grids: make(map[AssetId]GridAsset)}
}

// LoadGrid fetches a .voxel.json/.voxel.bin pair and registers the decoded
// grid under a fresh id.
func (s *AssetServer) LoadGrid(ctx context.Context, ref string) (AssetId, error) {
	g, err := voxel.LoadGrid(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("load grid asset %q: %w", ref, err)
	}

	name := strings.TrimSuffix(filepath.Base(ref), ".voxel.json")
	id := makeAssetId()
	s.grids[id] = GridAsset{Name: name, Grid: g}
	s.order = append(s.order, id)
	return id, nil
}

// Register adds an already constructed grid, for callers that build grids
// in memory instead of fetching them.
func (s *AssetServer) Register(name string, g *voxel.Grid) AssetId {
	id := makeAssetId()
	s.grids[id] = GridAsset{Name: name, Grid: g}
	s.order = append(s.order, id)
	return id
}

func (s *AssetServer) Get(id AssetId) (GridAsset, bool) {
	a, ok := s.grids[id]
	return a, ok
}

func (s *AssetServer) Len() int { return len(s.order) }

// Next returns the asset following the given id in load order, wrapping
// around. With a single asset it returns that asset.
func (s *AssetServer) Next(id AssetId) (AssetId, GridAsset, bool) {
	if len(s.order) == 0 {
		return "", GridAsset{}, false
	}
	idx := 0
	for i, candidate := range s.order {
		if candidate == id {
			idx = (i + 1) % len(s.order)
			break
		}
	}
	next := s.order[idx]
	return next, s.grids[next], true
}

func makeAssetId() AssetId {
	return AssetId(uuid.NewString())
}
