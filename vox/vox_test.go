package vox

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunk(id string, content []byte, childrenSize int) []byte {
	var buf bytes.Buffer
	buf.WriteString(id)
	binary.Write(&buf, binary.LittleEndian, int32(len(content)))
	binary.Write(&buf, binary.LittleEndian, int32(childrenSize))
	buf.Write(content)
	return buf.Bytes()
}

func sizeChunk(x, y, z uint32) []byte {
	content := make([]byte, 12)
	binary.LittleEndian.PutUint32(content[0:], x)
	binary.LittleEndian.PutUint32(content[4:], y)
	binary.LittleEndian.PutUint32(content[8:], z)
	return chunk("SIZE", content, 0)
}

func xyziChunk(voxels []Voxel) []byte {
	content := make([]byte, 4+4*len(voxels))
	binary.LittleEndian.PutUint32(content[0:], uint32(len(voxels)))
	for i, v := range voxels {
		content[4+i*4] = v.X
		content[5+i*4] = v.Y
		content[6+i*4] = v.Z
		content[7+i*4] = v.ColorIndex
	}
	return chunk("XYZI", content, 0)
}

func buildVox(body ...[]byte) []byte {
	var children bytes.Buffer
	for _, b := range body {
		children.Write(b)
	}

	var buf bytes.Buffer
	buf.WriteString("VOX ")
	binary.Write(&buf, binary.LittleEndian, int32(150))
	buf.Write(chunk("MAIN", nil, children.Len()))
	buf.Write(children.Bytes())
	return buf.Bytes()
}

func TestParseSingleModel(t *testing.T) {
	voxels := []Voxel{
		{X: 0, Y: 0, Z: 0, ColorIndex: 1},
		{X: 3, Y: 2, Z: 1, ColorIndex: 7},
	}
	data := buildVox(sizeChunk(4, 3, 2), xyziChunk(voxels))

	vf, err := Parse(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, 150, vf.Version)
	require.Len(t, vf.Models, 1)
	m := vf.Models[0]
	assert.Equal(t, uint32(4), m.SizeX)
	assert.Equal(t, uint32(3), m.SizeY)
	assert.Equal(t, uint32(2), m.SizeZ)
	assert.Equal(t, voxels, m.Voxels)
}

func TestParseMultipleModels(t *testing.T) {
	pack := make([]byte, 4)
	binary.LittleEndian.PutUint32(pack, 2)
	data := buildVox(
		chunk("PACK", pack, 0),
		sizeChunk(2, 2, 2), xyziChunk([]Voxel{{X: 1, Y: 1, Z: 1, ColorIndex: 3}}),
		sizeChunk(8, 8, 8), xyziChunk([]Voxel{{X: 7, Y: 0, Z: 4, ColorIndex: 9}}),
	)

	vf, err := Parse(bytes.NewReader(data))
	require.NoError(t, err)

	require.Len(t, vf.Models, 2)
	assert.Equal(t, uint32(2), vf.Models[0].SizeX)
	assert.Equal(t, uint32(8), vf.Models[1].SizeX)
	require.Len(t, vf.Models[1].Voxels, 1)
	assert.Equal(t, byte(7), vf.Models[1].Voxels[0].X)
}

func TestParsePalette(t *testing.T) {
	rgba := make([]byte, 256*4)
	rgba[0] = 10 // palette index 1, red channel
	rgba[1] = 20
	rgba[2] = 30
	rgba[3] = 255
	data := buildVox(sizeChunk(1, 1, 1), xyziChunk(nil), chunk("RGBA", rgba, 0))

	vf, err := Parse(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, [4]byte{10, 20, 30, 255}, vf.Palette[1])
	// Index 0 is never remapped and keeps the default.
	assert.Equal(t, [4]byte{255, 255, 255, 255}, vf.Palette[0])
}

func TestParseRejectsBadMagic(t *testing.T) {
	data := append([]byte("NOPE"), make([]byte, 8)...)
	_, err := Parse(bytes.NewReader(data))
	require.Error(t, err)
}

func TestParseTruncatedXYZI(t *testing.T) {
	content := make([]byte, 6) // claims 1 voxel, has only 2 payload bytes
	binary.LittleEndian.PutUint32(content[0:], 1)
	data := buildVox(sizeChunk(1, 1, 1), chunk("XYZI", content, 0))

	_, err := Parse(bytes.NewReader(data))
	require.Error(t, err)
}
