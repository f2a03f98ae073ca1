// Package vox reads MagicaVoxel .vox files. Only the chunks the packer
// needs are interpreted: SIZE/XYZI model geometry, PACK model counts, RGBA
// palettes and MATL materials.
package vox

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const magicNumber = "VOX "

type Voxel struct {
	X, Y, Z, ColorIndex byte
}

type Model struct {
	SizeX, SizeY, SizeZ uint32
	Voxels              []Voxel
}

type Palette [256][4]byte // RGBA

type File struct {
	Version   int
	Models    []Model
	Palette   Palette
	Materials []Material
}

type Material struct {
	ID       int
	Type     int
	Weight   float32
	Property map[string]string
}

func LoadFile(filename string) (*File, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads the chunked .vox container from r.
func Parse(r io.Reader) (*File, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, err
	}
	if string(magic[:]) != magicNumber {
		return nil, errors.New("vox: not a VOX file")
	}

	var version int32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, err
	}

	vf := &File{
		Version: int(version),
		Palette: defaultPalette(),
	}

	for {
		var chunkID [4]byte
		if _, err := io.ReadFull(r, chunkID[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}

		var chunkSize, childrenSize int32
		if err := binary.Read(r, binary.LittleEndian, &chunkSize); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &childrenSize); err != nil {
			return nil, err
		}
		if chunkSize < 0 {
			return nil, errors.New("vox: negative chunk size")
		}

		chunkData := make([]byte, chunkSize)
		if _, err := io.ReadFull(r, chunkData); err != nil {
			return nil, err
		}

		switch string(chunkID[:]) {
		case "MAIN":
			// Container chunk; its children follow in the stream.
			continue
		case "SIZE":
			if len(chunkData) < 12 {
				return nil, errors.New("vox: SIZE chunk too small")
			}
			// Each SIZE chunk starts a new model; the matching XYZI follows.
			vf.Models = append(vf.Models, Model{
				SizeX: binary.LittleEndian.Uint32(chunkData[0:4]),
				SizeY: binary.LittleEndian.Uint32(chunkData[4:8]),
				SizeZ: binary.LittleEndian.Uint32(chunkData[8:12]),
			})
		case "XYZI":
			if len(vf.Models) == 0 {
				return nil, errors.New("vox: XYZI before SIZE")
			}
			if len(chunkData) < 4 {
				return nil, errors.New("vox: XYZI chunk too small")
			}
			model := &vf.Models[len(vf.Models)-1]
			numVoxels := binary.LittleEndian.Uint32(chunkData[:4])
			model.Voxels = make([]Voxel, numVoxels)
			for i := 0; i < int(numVoxels); i++ {
				offset := 4 + i*4
				if offset+3 >= len(chunkData) {
					return nil, errors.New("vox: XYZI chunk data overflow")
				}
				model.Voxels[i] = Voxel{
					X:          chunkData[offset],
					Y:          chunkData[offset+1],
					Z:          chunkData[offset+2],
					ColorIndex: chunkData[offset+3],
				}
			}
		case "RGBA":
			for i := 0; i < 255; i++ {
				offset := i * 4
				if offset+3 >= len(chunkData) {
					break
				}
				vf.Palette[i+1][0] = chunkData[offset]
				vf.Palette[i+1][1] = chunkData[offset+1]
				vf.Palette[i+1][2] = chunkData[offset+2]
				vf.Palette[i+1][3] = chunkData[offset+3]
			}
		case "MATL":
			mat, err := parseMaterial(chunkData)
			if err != nil {
				return nil, err
			}
			vf.Materials = append(vf.Materials, mat)
		case "PACK":
			if len(chunkData) < 4 {
				return nil, errors.New("vox: PACK chunk too small")
			}
			numModels := binary.LittleEndian.Uint32(chunkData[:4])
			if numModels > 0 && vf.Models == nil {
				vf.Models = make([]Model, 0, numModels)
			}
		}
	}

	return vf, nil
}

func parseMaterial(data []byte) (Material, error) {
	mat := Material{Property: make(map[string]string)}

	if len(data) < 8 {
		return mat, errors.New("vox: MATL chunk too small")
	}
	mat.ID = int(binary.LittleEndian.Uint32(data[:4]))
	data = data[4:]
	mat.Type = int(binary.LittleEndian.Uint32(data[:4]))
	data = data[4:]

	for len(data) > 0 {
		if len(data) < 4 {
			return mat, errors.New("vox: truncated MATL key")
		}
		keyLen := int(binary.LittleEndian.Uint32(data[:4]))
		data = data[4:]
		if keyLen < 0 || keyLen > len(data) {
			return mat, errors.New("vox: truncated MATL key")
		}
		key := string(data[:keyLen])
		data = data[keyLen:]

		if len(data) < 4 {
			return mat, errors.New("vox: truncated MATL value")
		}
		valueLen := int(binary.LittleEndian.Uint32(data[:4]))
		data = data[4:]
		if valueLen < 0 || valueLen > len(data) {
			return mat, errors.New("vox: truncated MATL value")
		}
		value := string(data[:valueLen])
		data = data[valueLen:]

		switch key {
		case "_weight":
			var weight float32
			if _, err := fmt.Sscanf(value, "%f", &weight); err != nil {
				return mat, err
			}
			mat.Weight = weight
		default:
			mat.Property[key] = value
		}
	}

	return mat, nil
}

func defaultPalette() Palette {
	var palette Palette
	for i := range palette {
		palette[i] = [4]uint8{255, 255, 255, 255}
	}
	return palette
}
