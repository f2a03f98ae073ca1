// voxpack converts a MagicaVoxel .vox model into the paired
// <name>.voxel.json / <name>.voxel.bin collider asset.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/segmentio/encoding/json"

	"github.com/shaneholloman/supersplat-viewer/vox"
	"github.com/shaneholloman/supersplat-viewer/voxel"
)

func main() {
	in := flag.String("in", "", "input .vox file")
	out := flag.String("out", "", "output path prefix (writes <out>.voxel.json and <out>.voxel.bin)")
	res := flag.Float64("res", 1.0, "voxel resolution in world units")
	model := flag.Int("model", 0, "model index inside the .vox file")
	flag.Parse()

	if *in == "" || *out == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*in, *out, *res, *model); err != nil {
		fmt.Fprintf(os.Stderr, "voxpack: %v\n", err)
		os.Exit(1)
	}
}

func run(in, out string, res float64, modelIdx int) error {
	vf, err := vox.LoadFile(in)
	if err != nil {
		return fmt.Errorf("read %s: %w", in, err)
	}
	if modelIdx < 0 || modelIdx >= len(vf.Models) {
		return fmt.Errorf("model index %d out of range (file has %d)", modelIdx, len(vf.Models))
	}
	model := vf.Models[modelIdx]

	// MagicaVoxel is Z-up; the collider grid is Y-up. Swap Y and Z on the
	// way in so models stand upright in the viewer.
	gridMax := mgl64.Vec3{
		float64(model.SizeX) * res,
		float64(model.SizeZ) * res,
		float64(model.SizeY) * res,
	}
	b, err := voxel.NewBuilder(mgl64.Vec3{}, gridMax, res)
	if err != nil {
		return err
	}
	for _, v := range model.Voxels {
		b.SetSolid(int(v.X), int(v.Z), int(v.Y))
	}

	meta, buf := b.Build().Encode()

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(out+".voxel.json", metaJSON, 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(out+".voxel.bin", buf, 0o644); err != nil {
		return err
	}

	fmt.Printf("wrote %s.voxel.json + %s.voxel.bin: %d voxels, %d nodes, %d leaf words, depth %d\n",
		out, out, len(model.Voxels), meta.NodeCount, meta.LeafDataCount, meta.TreeDepth)
	return nil
}
