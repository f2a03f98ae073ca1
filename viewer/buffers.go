package viewer

import (
	"encoding/binary"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/shaneholloman/supersplat-viewer/voxel"
)

// BufferManager owns the GPU-side copy of a grid plus the per-frame camera
// uniform. Node and leaf buffers are written once per grid; only the camera
// uniform changes per frame.
type BufferManager struct {
	Device *wgpu.Device

	CameraBuf   *wgpu.Buffer
	NodesBuf    *wgpu.Buffer
	LeafDataBuf *wgpu.Buffer

	BindGroup0 *wgpu.BindGroup

	grid *voxel.Grid
}

const cameraUniformSize = 128

func NewBufferManager(device *wgpu.Device) *BufferManager {
	return &BufferManager{Device: device}
}

func (m *BufferManager) ensureBuffer(name string, buf **wgpu.Buffer, data []byte, usage wgpu.BufferUsage) bool {
	neededSize := uint64(len(data))
	if neededSize%4 != 0 {
		neededSize += 4 - (neededSize % 4)
	}

	current := *buf
	if current == nil || current.GetSize() < neededSize {
		if current != nil {
			current.Release()
		}

		desc := &wgpu.BufferDescriptor{
			Label:            name,
			Size:             neededSize,
			Usage:            usage | wgpu.BufferUsageCopyDst,
			MappedAtCreation: false,
		}
		newBuf, err := m.Device.CreateBuffer(desc)
		if err != nil {
			panic(err)
		}
		*buf = newBuf

		if len(data) > 0 {
			m.Device.GetQueue().WriteBuffer(*buf, 0, data)
		}
		return true
	}
	if len(data) > 0 {
		m.Device.GetQueue().WriteBuffer(*buf, 0, data)
	}
	return false
}

// UploadGrid pushes the node and leaf arrays to the GPU. Returns true when a
// buffer was (re)created and bind groups must be rebuilt.
func (m *BufferManager) UploadGrid(g *voxel.Grid) bool {
	m.grid = g

	nodes := u32SliceToBytes(g.Nodes)
	if len(nodes) == 0 {
		nodes = make([]byte, 4)
	}
	leaves := u32SliceToBytes(g.LeafData)
	if len(leaves) == 0 {
		// WebGPU rejects zero-sized bindings; a fully solid grid has no
		// leaf words, so bind a dummy.
		leaves = make([]byte, 8)
	}

	recreated := false
	if m.ensureBuffer("NodesBuf", &m.NodesBuf, nodes, wgpu.BufferUsageStorage) {
		recreated = true
	}
	if m.ensureBuffer("LeafDataBuf", &m.LeafDataBuf, leaves, wgpu.BufferUsageStorage) {
		recreated = true
	}
	return recreated
}

// UpdateCamera packs the per-frame uniform consumed by raymarch.wgsl.
//
//	inv_view_proj: mat4x4<f32>  -- 64
//	cam_pos:       vec4<f32>    -- 80
//	grid_min:      vec4<f32>    -- 96  (w = voxel resolution)
//	num_voxels:    vec3<u32>    -- 108
//	tree_depth:    u32          -- 112
//	display_mode:  u32          -- 116
//	max_march:     u32          -- 120
//	max_skip:      u32          -- 124
//	max_voxel:     u32          -- 128
func (m *BufferManager) UpdateCamera(invViewProj mgl32.Mat4, camPos mgl32.Vec3, mode DisplayMode) {
	buf := make([]byte, cameraUniformSize)

	for i := 0; i < 16; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(invViewProj[i]))
	}

	binary.LittleEndian.PutUint32(buf[64:], math.Float32bits(camPos[0]))
	binary.LittleEndian.PutUint32(buf[68:], math.Float32bits(camPos[1]))
	binary.LittleEndian.PutUint32(buf[72:], math.Float32bits(camPos[2]))
	binary.LittleEndian.PutUint32(buf[76:], 0)

	var gridMin mgl32.Vec3
	var numVoxels [3]uint32
	var treeDepth uint32
	res := float32(1)
	if m.grid != nil {
		g := m.grid
		gridMin = mgl32.Vec3{float32(g.GridMin.X()), float32(g.GridMin.Y()), float32(g.GridMin.Z())}
		numVoxels = g.NumVoxels
		treeDepth = g.TreeDepth
		res = float32(g.Resolution)
	}
	binary.LittleEndian.PutUint32(buf[80:], math.Float32bits(gridMin[0]))
	binary.LittleEndian.PutUint32(buf[84:], math.Float32bits(gridMin[1]))
	binary.LittleEndian.PutUint32(buf[88:], math.Float32bits(gridMin[2]))
	binary.LittleEndian.PutUint32(buf[92:], math.Float32bits(res))

	binary.LittleEndian.PutUint32(buf[96:], numVoxels[0])
	binary.LittleEndian.PutUint32(buf[100:], numVoxels[1])
	binary.LittleEndian.PutUint32(buf[104:], numVoxels[2])
	binary.LittleEndian.PutUint32(buf[108:], treeDepth)

	binary.LittleEndian.PutUint32(buf[112:], uint32(mode))
	binary.LittleEndian.PutUint32(buf[116:], voxel.MaxMarchSteps)
	binary.LittleEndian.PutUint32(buf[120:], voxel.MaxSkipSteps)
	binary.LittleEndian.PutUint32(buf[124:], voxel.MaxVoxelSteps)

	if m.CameraBuf == nil {
		desc := &wgpu.BufferDescriptor{
			Label: "CameraUB",
			Size:  cameraUniformSize,
			Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		}
		var err error
		m.CameraBuf, err = m.Device.CreateBuffer(desc)
		if err != nil {
			panic(err)
		}
	}
	m.Device.GetQueue().WriteBuffer(m.CameraBuf, 0, buf)
}

// CreateBindGroups builds group 0 (camera + grid arrays) for the ray-march
// pipeline. Call again whenever UploadGrid reports recreation.
func (m *BufferManager) CreateBindGroups(pipeline *wgpu.ComputePipeline) {
	if m.CameraBuf == nil {
		m.UpdateCamera(mgl32.Ident4(), mgl32.Vec3{}, ModeWireframe)
	}
	if m.NodesBuf == nil || m.LeafDataBuf == nil {
		m.UploadGrid(&voxel.Grid{Nodes: []uint32{0}, LeafData: []uint32{0, 0}, TreeDepth: 1, Resolution: 1})
	}

	entries := []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: m.CameraBuf, Size: wgpu.WholeSize},
		{Binding: 1, Buffer: m.NodesBuf, Size: wgpu.WholeSize},
		{Binding: 2, Buffer: m.LeafDataBuf, Size: wgpu.WholeSize},
	}
	desc := &wgpu.BindGroupDescriptor{
		Layout:  pipeline.GetBindGroupLayout(0),
		Entries: entries,
	}
	var err error
	m.BindGroup0, err = m.Device.CreateBindGroup(desc)
	if err != nil {
		panic(err)
	}
}

func u32SliceToBytes(words []uint32) []byte {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return buf
}
