package voxel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// LoadGrid fetches the <name>.voxel.json / <name>.voxel.bin pair and
// constructs a Grid. jsonRef is the path or URL of the metadata file; the
// binary companion is derived by swapping the ".json" suffix for ".bin".
// Either resource failing aborts construction; there is no partial grid.
func LoadGrid(ctx context.Context, jsonRef string) (*Grid, error) {
	binRef := strings.TrimSuffix(jsonRef, ".json") + ".bin"

	metaData, err := fetch(ctx, jsonRef)
	if err != nil {
		return nil, fmt.Errorf("voxel: fetch metadata: %w", err)
	}
	meta, err := ParseMetadata(metaData)
	if err != nil {
		return nil, err
	}

	binData, err := fetch(ctx, binRef)
	if err != nil {
		return nil, fmt.Errorf("voxel: fetch buffer: %w", err)
	}
	return NewGrid(meta, binData)
}

func fetch(ctx context.Context, ref string) ([]byte, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%s: %s", ref, resp.Status)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(ref)
}
