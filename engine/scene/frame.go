package scene

import (
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/prism/common"
	"github.com/Carmen-Shannon/prism/engine/camera"
	"github.com/Carmen-Shannon/prism/engine/config"
	"github.com/Carmen-Shannon/prism/engine/light"
	"github.com/Carmen-Shannon/prism/engine/renderer/arena"
	"github.com/Carmen-Shannon/prism/engine/renderer/culling"
	"github.com/Carmen-Shannon/prism/engine/renderer/instance_table"
	"github.com/Carmen-Shannon/prism/engine/renderer/material"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/cockroachdb/errors"
)

// initialLightCapacity is the number of lights the light buffer holds before its first growth.
const initialLightCapacity = 16

// trackedBuffer is a buffer whose resource state is followed across uploads.
type trackedBuffer struct {
	buf   rhi.Buffer
	state rhi.ResourceState
}

func (t *trackedBuffer) upload(cmd rhi.CommandList, offset uint64, data []byte) {
	if t.state != rhi.StateCopyDst {
		cmd.Barrier(rhi.BufferBarrier(t.buf, t.state, rhi.StateCopyDst))
	}
	cmd.Upload(t.buf, offset, data)
	cmd.Barrier(rhi.BufferBarrier(t.buf, rhi.StateCopyDst, rhi.StateShaderRead))
	t.state = rhi.StateShaderRead
}

// frameState is the part of the scene duplicated per frame in flight.
type frameState struct {
	uniform       trackedBuffer
	set           rhi.DescriptorSet
	bound         [BindingMeshInstances + 1]rhi.Buffer
	shadowVersion uint64
}

func (s *scene) Update(cmd rhi.CommandList, cam camera.Camera, frame uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := &s.frames[frame%uint64(len(s.frames))]

	// 1. deferred light removals
	for i := range s.lights {
		slot := &s.lights[i]
		if !slot.live || !slot.removing {
			continue
		}
		if slot.shadow != nil {
			s.freeShadow(slot.shadow)
		}
		*slot = lightSlot{generation: slot.generation}
		s.freeLights = append(s.freeLights, uint32(i))
		s.liveLights--
	}

	// 2. shadow renderers follow the lights' casting flags
	for i := range s.lights {
		slot := &s.lights[i]
		if !slot.live {
			continue
		}
		cast := slot.light.CastsShadows()
		switch {
		case cast && slot.shadow == nil:
			st, err := s.allocateShadow(slot.light)
			if err != nil {
				return err
			}
			slot.shadow = st
		case !cast && slot.shadow != nil:
			s.freeShadow(slot.shadow)
			slot.shadow = nil
		}
	}

	// 3. shadow map bindings, only when the set of shadow maps changed
	if f.shadowVersion != s.shadowVersion {
		for i, img := range s.slots {
			f.set.BindImageElement(BindingShadowMaps, uint32(i), img)
		}
		f.shadowVersion = s.shadowVersion
	}

	// 4. scene uniform; one snapshot so the uniform and the cascades agree on the camera
	view := cam.Snapshot()
	s.cullViewProj, s.cullViewSet = view.ViewProj, true
	shadows := s.activeShadows()
	u := GPUSceneUniform{
		Camera:      view.GPU(),
		InvView:     view.View.Inv(),
		Ambient:     s.ambient,
		LightCount:  uint32(s.liveLights),
		ShadowCount: uint32(shadows),
		Exposure:    s.cfg.Exposure,
		Time:        float32(time.Since(s.start).Seconds()),
	}
	if shadows > 0 {
		u.Flags |= FlagShadows
	}
	if s.cfg.SSAO.Enabled {
		u.Flags |= FlagSSAO
	}
	f.uniform.upload(cmd, 0, u.Marshal())

	// 5. dirty mesh-instance records
	s.meshInstances.Flush(cmd)
	s.meshInstances.PostBarrier(cmd)

	// 6. tables: CPU preparation fans out over the workers, uploads stay on this thread
	entries := s.allEntries()
	if err := s.prepareTables(entries); err != nil {
		return err
	}
	for _, e := range entries {
		if err := e.table.UpdateData(cmd, s.bin); err != nil {
			return errors.Wrapf(err, "scene %s: updating table", s.label())
		}
	}

	// 7. lights and shadow data; the header carries the ambient term so it is written even without lights
	if err := s.uploadLights(cmd, view.Params()); err != nil {
		return err
	}

	s.bindBuffers(f)
	if err := f.set.Update(); err != nil {
		return errors.Wrapf(err, "scene %s: updating descriptor set", s.label())
	}
	return nil
}

func (s *scene) Compute(cmd rhi.CommandList, cam camera.Camera) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	viewProj := s.cullViewProj
	if !s.cullViewSet {
		viewProj = cam.Snapshot().ViewProj
	}
	meshInstances := s.meshInstances.Buffer()
	for _, e := range s.allEntries() {
		if _, err := s.stage.Dispatch(cmd, e.table, e.target, meshInstances, viewProj); err != nil {
			return errors.Wrapf(err, "scene %s: culling", s.label())
		}
	}

	casters := s.casters()
	for i := range s.lights {
		st := s.lights[i].shadow
		if !s.lights[i].live || st == nil {
			continue
		}
		if err := st.renderer.Compute(cmd, casters, meshInstances); err != nil {
			return errors.Wrapf(err, "scene %s: shadow culling for map %d", s.label(), st.index)
		}
	}
	return nil
}

func (s *scene) DrawOpaques(cmd rhi.CommandList, bind DrawFunc) int {
	return s.draw(cmd, instance_table.CategoryOpaque, bind)
}

func (s *scene) DrawTransparent(cmd rhi.CommandList, bind DrawFunc) int {
	return s.draw(cmd, instance_table.CategoryTransparent, bind)
}

func (s *scene) DrawShaderMaterial(cmd rhi.CommandList, bind DrawFunc) int {
	return s.draw(cmd, instance_table.CategoryShaderMaterial, bind)
}

func (s *scene) RenderShadows(cmd rhi.CommandList) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	casters := s.casters()
	meshInstances := s.meshInstances.Buffer()
	for i := range s.lights {
		st := s.lights[i].shadow
		if !s.lights[i].live || st == nil {
			continue
		}
		if err := st.renderer.Render(cmd, casters, meshInstances); err != nil {
			return errors.Wrapf(err, "scene %s: rendering shadow map %d", s.label(), st.index)
		}
	}
	return nil
}

// draw issues the indirect draws of one category. The count buffer written by the culling pass bounds
// the number of draws the GPU executes; maxCount is the uncompacted command count.
func (s *scene) draw(cmd rhi.CommandList, c instance_table.Category, bind DrawFunc) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	drawn := 0
	bound := false
	for _, e := range s.entriesOf(c) {
		if e.table.DrawCommandsCount() == 0 || e.target.Culled() == nil {
			continue
		}
		if !bind(cmd, e.table) {
			continue
		}
		if !bound {
			s.meshes.Bind(cmd)
			bound = true
		}
		cmd.BindDescriptors(1, e.table.DescriptorSet())
		culling.Draw(cmd, e.table, e.target)
		drawn++
	}
	return drawn
}

// casters returns the tables rendered into shadow maps. Transparent surfaces do not cast.
func (s *scene) casters() []*instance_table.Table {
	return append(s.tablesOf(instance_table.CategoryOpaque), s.tablesOf(instance_table.CategoryShaderMaterial)...)
}

func (s *scene) allEntries() []*tableEntry {
	var out []*tableEntry
	for _, c := range []instance_table.Category{
		instance_table.CategoryOpaque,
		instance_table.CategoryTransparent,
		instance_table.CategoryShaderMaterial,
	} {
		out = append(out, s.entriesOf(c)...)
	}
	return out
}

// prepareTables runs every table's Prepare on the compute pool and waits for all of them. A WaitGroup
// gives the per-frame barrier; pool.Wait is not used since it waits for the workers to go idle.
func (s *scene) prepareTables(entries []*tableEntry) error {
	if len(entries) < 2 || s.computePool == nil {
		var errs error
		for _, e := range entries {
			errs = errors.CombineErrors(errs, e.table.Prepare())
		}
		return errs
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for i, e := range entries {
		wg.Add(1)
		s.computePool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				err := e.table.Prepare()
				if err != nil {
					mu.Lock()
					errs = errors.CombineErrors(errs, err)
					mu.Unlock()
				}
				return nil, err
			},
		})
	}
	wg.Wait()
	return errs
}

// uploadLights packs every live light in slot order, growing the light buffer when needed, and writes
// the shadow data of every light with an active renderer.
func (s *scene) uploadLights(cmd rhi.CommandList, view light.ViewParams) error {
	n := uint32(s.liveLights)
	if n > s.lightCapacity {
		grown := common.NextPowerOfTwo(n)
		if limit := s.cfg.Limits.MaxLights; limit > 0 {
			grown = min(grown, max(limit, n))
		}
		buf, err := s.device.CreateBuffer(rhi.BufferDesc{
			Label: s.label() + "/lights",
			Size:  lightBufferSize(grown),
			Usage: rhi.BufferUsageStorage | rhi.BufferUsageCopyDst,
		})
		if err != nil {
			return errors.Wrapf(err, "scene %s: growing light buffer", s.label())
		}
		s.log.Debug("growing light buffer", "scene", s.id, "from", s.lightCapacity, "to", grown)
		s.retire(s.lightBuffer.buf)
		s.lightBuffer = trackedBuffer{buf: buf}
		s.lightCapacity = grown
	}

	packed := make([]light.GPULight, 0, n)
	shadowData := make([]byte, s.shadowData.buf.Size())
	for i := range s.lights {
		slot := &s.lights[i]
		if !slot.live {
			continue
		}
		index := light.NoShadow
		if st := slot.shadow; st != nil {
			index = int32(st.index)
			st.proj = st.renderer.Update(view)
			gpu := st.proj.GPU(s.shadowSettings)
			copy(shadowData[uint64(st.index)*light.GPUShadowDataSize:], gpu.Marshal())
		}
		packed = append(packed, light.ToGPULight(slot.light, index))
	}

	s.lightBuffer.upload(cmd, 0, light.MarshalLightBuffer(s.ambient, packed))
	if s.activeShadows() > 0 {
		s.shadowData.upload(cmd, 0, shadowData)
	}
	return nil
}

func (s *scene) bindBuffers(f *frameState) {
	want := [...]struct {
		binding uint32
		buf     rhi.Buffer
	}{
		{BindingLights, s.lightBuffer.buf},
		{BindingMaterials, s.materials.Buffer()},
		{BindingMeshInstances, s.meshInstances.Buffer()},
	}
	for _, w := range want {
		if w.buf == nil || f.bound[w.binding] == w.buf {
			continue
		}
		f.set.BindBuffer(w.binding, w.buf, 0, w.buf.Size())
		f.bound[w.binding] = w.buf
	}
}

func (s *scene) createResources() error {
	var err error
	label := s.label()
	maps := max(s.cfg.Shadows.MaxShadowMaps, 1)
	layers := maps * config.SlotsPerShadowMap

	s.layout, err = s.device.CreateDescriptorLayout(rhi.DescriptorLayoutDesc{
		Label: label + "/scene",
		Bindings: []rhi.DescriptorBinding{
			{Binding: BindingUniform, Type: rhi.DescriptorUniformBuffer, Stages: rhi.StageVertex | rhi.StageFragment | rhi.StageCompute},
			{Binding: BindingLights, Type: rhi.DescriptorStorageBuffer, Stages: rhi.StageFragment},
			{Binding: BindingShadows, Type: rhi.DescriptorStorageBuffer, Stages: rhi.StageFragment},
			{Binding: BindingShadowMaps, Type: rhi.DescriptorDepthImage, Stages: rhi.StageFragment, Count: layers},
			{Binding: BindingShadowSampler, Type: rhi.DescriptorComparisonSampler, Stages: rhi.StageFragment},
			{Binding: BindingMaterials, Type: rhi.DescriptorStorageBuffer, Stages: rhi.StageVertex | rhi.StageFragment},
			{Binding: BindingMeshInstances, Type: rhi.DescriptorStorageBuffer, Stages: rhi.StageVertex | rhi.StageCompute},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "scene %s: creating scene layout", label)
	}
	s.tableLayout, err = s.device.CreateDescriptorLayout(rhi.DescriptorLayoutDesc{
		Label: label + "/table",
		Bindings: []rhi.DescriptorBinding{
			{Binding: 0, Type: rhi.DescriptorStorageBuffer, Stages: rhi.StageVertex | rhi.StageFragment},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "scene %s: creating table layout", label)
	}

	maxInstances := common.Coalesce(s.cfg.Limits.MaxInstances, 1<<16)
	s.meshInstances, err = arena.New(s.device, label+"/mesh-instances", instance_table.GPUMeshInstanceSize,
		arena.WithCapacity(min(256, maxInstances)),
		arena.WithMaxCapacity(maxInstances),
		arena.WithUsage(rhi.BufferUsageStorage),
		arena.WithRecycleBin(s.bin),
		arena.WithLogger(s.log),
	)
	if err != nil {
		return errors.Wrapf(err, "scene %s: creating mesh-instance arena", label)
	}

	res := common.Coalesce(s.cfg.Shadows.Resolution, 1024)
	s.shadowMaps, err = s.device.CreateRenderTarget(rhi.ImageDesc{
		Label:   label + "/shadow-maps",
		Width:   res,
		Height:  res,
		Layers:  layers,
		Format:  ShadowFormat,
		Usage:   rhi.ImageUsageSampled | rhi.ImageUsageRenderTarget,
		Samples: 1,
	})
	if err != nil {
		return errors.Wrapf(err, "scene %s: creating shadow maps", label)
	}
	s.blank, err = s.device.CreateImage(rhi.ImageDesc{
		Label:   label + "/blank-shadow-map",
		Width:   1,
		Height:  1,
		Layers:  1,
		Format:  ShadowFormat,
		Usage:   rhi.ImageUsageSampled,
		Samples: 1,
	})
	if err != nil {
		return errors.Wrapf(err, "scene %s: creating blank shadow map", label)
	}
	s.slots = make([]rhi.Image, layers)
	for i := range s.slots {
		s.slots[i] = s.blank
	}
	s.shadowVersion = 1

	s.shadowSampler, err = s.device.CreateSampler(rhi.SamplerDesc{
		Label:     label + "/shadow-sampler",
		MinFilter: rhi.FilterLinear,
		MagFilter: rhi.FilterLinear,
		Address:   rhi.AddressClampToEdge,
		Compare:   rhi.CompareLessEqual,
	})
	if err != nil {
		return errors.Wrapf(err, "scene %s: creating shadow sampler", label)
	}

	shadowData, err := s.device.CreateBuffer(rhi.BufferDesc{
		Label: label + "/shadow-data",
		Size:  uint64(maps) * light.GPUShadowDataSize,
		Usage: rhi.BufferUsageStorage | rhi.BufferUsageCopyDst,
	})
	if err != nil {
		return errors.Wrapf(err, "scene %s: creating shadow data buffer", label)
	}
	s.shadowData = trackedBuffer{buf: shadowData}

	s.lightCapacity = initialLightCapacity
	if limit := s.cfg.Limits.MaxLights; limit > 0 {
		s.lightCapacity = min(s.lightCapacity, limit)
	}
	lights, err := s.device.CreateBuffer(rhi.BufferDesc{
		Label: label + "/lights",
		Size:  lightBufferSize(s.lightCapacity),
		Usage: rhi.BufferUsageStorage | rhi.BufferUsageCopyDst,
	})
	if err != nil {
		return errors.Wrapf(err, "scene %s: creating light buffer", label)
	}
	s.lightBuffer = trackedBuffer{buf: lights}

	s.frames = make([]frameState, s.cfg.FramesInFlight)
	for i := range s.frames {
		f := &s.frames[i]
		uniform, err := s.device.CreateBuffer(rhi.BufferDesc{
			Label: label + "/uniform-" + strconv.Itoa(i),
			Size:  GPUSceneUniformSize,
			Usage: rhi.BufferUsageUniform | rhi.BufferUsageCopyDst,
		})
		if err != nil {
			return errors.Wrapf(err, "scene %s: creating uniform buffer", label)
		}
		f.uniform = trackedBuffer{buf: uniform}
		if f.set, err = s.device.CreateDescriptorSet(s.layout, label+"/set-"+strconv.Itoa(i)); err != nil {
			return errors.Wrapf(err, "scene %s: creating descriptor set", label)
		}
		f.set.BindBuffer(BindingUniform, uniform, 0, GPUSceneUniformSize)
		f.set.BindBuffer(BindingShadows, shadowData, 0, shadowData.Size())
		f.set.BindSampler(BindingShadowSampler, s.shadowSampler)
		f.bound[BindingUniform] = uniform
		f.bound[BindingShadows] = shadowData
	}
	return nil
}

func (s *scene) destroyResources() {
	for i := range s.frames {
		s.retire(s.frames[i].uniform.buf, s.frames[i].set)
	}
	s.frames = nil
	if s.meshInstances != nil {
		s.meshInstances.Destroy()
		s.meshInstances = nil
	}
	s.retire(s.lightBuffer.buf, s.shadowData.buf, s.shadowSampler, s.shadowMaps, s.blank, s.tableLayout, s.layout)
	s.lightBuffer, s.shadowData = trackedBuffer{}, trackedBuffer{}
	s.shadowSampler, s.shadowMaps, s.blank, s.tableLayout, s.layout = nil, nil, nil, nil, nil
	s.slots = nil
}

// retire hands resources to the recycle bin, or destroys them when the scene has none.
func (s *scene) retire(resources ...rhi.Resource) {
	for _, r := range resources {
		if r == nil {
			continue
		}
		if s.bin != nil {
			s.bin.Retire(r)
			continue
		}
		s.device.Destroy(r)
	}
}

func lightBufferSize(capacity uint32) uint64 {
	return light.GPULightHeaderSize + uint64(capacity)*light.GPULightSize
}

func pipelineLabel(id material.PipelineID) string {
	return strconv.FormatUint(uint64(id), 10)
}

func (s *scene) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.meshInstances.Validate(); err != nil {
		return err
	}
	for _, e := range s.allEntries() {
		if err := e.table.Validate(); err != nil {
			return err
		}
	}
	if slices.ContainsFunc(s.slots, func(img rhi.Image) bool { return img == nil }) {
		return errors.Newf("scene %s: empty shadow slot", s.label())
	}
	return nil
}
