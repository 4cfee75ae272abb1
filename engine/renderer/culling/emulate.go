package culling

import (
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/prism/engine/renderer/instance_table"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/Carmen-Shannon/prism/engine/rhi/recorder"
	"github.com/go-gl/mathgl/mgl32"
)

// Emulate installs a CPU implementation of the culling shader on a recorder device, so headless runs
// produce the same culled buffers a GPU would. Other dispatches are passed to the previously installed
// handler.
//
// Parameters:
//   - dev: the recorder device
func Emulate(dev *recorder.Device) {
	next := dev.OnDispatch
	dev.OnDispatch = func(p *recorder.Pipeline, sets []rhi.DescriptorSet, x, y, z uint32) {
		if p.Compute == nil || p.Label() != PipelineLabel || len(sets) == 0 {
			if next != nil {
				next(p, sets, x, y, z)
			}
			return
		}
		set, ok := sets[0].(*recorder.DescriptorSet)
		if !ok {
			return
		}
		emulateCull(set)
	}
}

func boundData(set *recorder.DescriptorSet, binding uint32) []byte {
	b, ok := set.Bound(binding, 0)
	if !ok {
		return nil
	}
	buf, ok := b.Buffer.(*recorder.Buffer)
	if !ok {
		return nil
	}
	return buf.Data()
}

func emulateCull(set *recorder.DescriptorSet) {
	uniform := boundData(set, BindingUniform)
	commands := boundData(set, BindingCommands)
	instances := boundData(set, BindingInstances)
	meshInstances := boundData(set, BindingMeshInstances)
	culled := boundData(set, BindingCulled)
	count := boundData(set, BindingCount)
	if len(uniform) < UniformSize || len(count) < 4 {
		return
	}

	var planes Planes
	for i := range planes {
		for j := range 4 {
			planes[i][j] = math.Float32frombits(binary.LittleEndian.Uint32(uniform[i*16+j*4:]))
		}
	}
	n := binary.LittleEndian.Uint32(uniform[96:])
	n = min(n, uint32(len(commands)/instance_table.DrawCommandSize))
	cmds := instance_table.UnmarshalDrawCommands(commands[:n*instance_table.DrawCommandSize])

	visible := binary.LittleEndian.Uint32(count)
	for _, c := range cmds {
		rec := uint64(c.InstanceIndex) * instance_table.InstanceDataSize
		if rec+instance_table.InstanceDataSize > uint64(len(instances)) {
			continue
		}
		mi := uint64(binary.LittleEndian.Uint32(instances[rec:])) * instance_table.GPUMeshInstanceSize
		if mi+instance_table.GPUMeshInstanceSize > uint64(len(meshInstances)) {
			continue
		}
		var center mgl32.Vec3
		for k := range 3 {
			center[k] = math.Float32frombits(binary.LittleEndian.Uint32(meshInstances[mi+64+uint64(k)*4:]))
		}
		radius := math.Float32frombits(binary.LittleEndian.Uint32(meshInstances[mi+76:]))
		if !SphereVisible(planes, center, radius) {
			continue
		}
		c.FirstInstance = c.InstanceIndex
		off := int(visible) * instance_table.DrawCommandSize
		if off+instance_table.DrawCommandSize > len(culled) {
			break
		}
		copy(culled[off:], instance_table.MarshalDrawCommands([]instance_table.DrawCommand{c}))
		visible++
	}
	binary.LittleEndian.PutUint32(count, visible)
}
