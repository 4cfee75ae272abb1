package pass

import (
	"fmt"
	"strconv"

	"github.com/Carmen-Shannon/prism/engine/light"
	"github.com/Carmen-Shannon/prism/engine/mesh"
	"github.com/Carmen-Shannon/prism/engine/renderer/culling"
	"github.com/Carmen-Shannon/prism/engine/renderer/instance_table"
	"github.com/Carmen-Shannon/prism/engine/renderer/material"
	"github.com/Carmen-Shannon/prism/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/Carmen-Shannon/prism/engine/scene"
	"github.com/cockroachdb/errors"
)

// Shadow group 0 bindings.
const (
	ShadowBindingView uint32 = iota
	ShadowBindingMeshInstances
)

// shadowViewSize is the size of the per-face uniform: one view-projection matrix.
const shadowViewSize = 64

// Rasterizer depth bias applied while rendering shadow maps.
const (
	shadowDepthBias      int32   = 2
	shadowSlopeDepthBias float32 = 2
)

// MeshBinder binds the shared vertex and index buffers.
type MeshBinder interface {
	Bind(cmd rhi.CommandList)
}

// Shadow renders the shadow map faces of every shadow-casting light. The scene creates one renderer per
// casting light through Factory; the pass holds what the renderers share.
type Shadow struct {
	base
	meshes    MeshBinder
	materials material.Pipelines
	stage     *culling.Stage
	settings  light.ShadowSettings
	layout    rhi.DescriptorLayout
	pipelines *pipeline.Cache
	template  *pipeline.Template
	renderers map[*shadowRenderer]struct{}
}

// NewShadow creates the shadow pass. Attach must be called with the scene's table layout before the
// first shadow-casting light is added.
//
// Parameters:
//   - ctx: the pass context
//   - meshes: binds the mesh buffers before drawing
//   - materials: resolves the cull mode of every pipeline id
//   - stage: the culling stage used for light-space culling
//
// Returns:
//   - *Shadow: the pass
//   - error: a descriptor creation error
func NewShadow(ctx Context, meshes MeshBinder, materials material.Pipelines, stage *culling.Stage) (*Shadow, error) {
	s := &Shadow{
		base:      newBase(ctx, "shadow"),
		meshes:    meshes,
		materials: materials,
		stage:     stage,
		settings:  scene.ShadowSettings(ctx.Config),
		renderers: make(map[*shadowRenderer]struct{}),
	}
	var err error
	s.layout, err = ctx.Device.CreateDescriptorLayout(rhi.DescriptorLayoutDesc{
		Label: s.label("view"),
		Bindings: []rhi.DescriptorBinding{
			{Binding: ShadowBindingView, Type: rhi.DescriptorUniformBuffer, Stages: rhi.StageVertex},
			{Binding: ShadowBindingMeshInstances, Type: rhi.DescriptorStorageBuffer, Stages: rhi.StageVertex},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "shadow: creating layout")
	}
	s.template = pipeline.NewTemplate("shadow",
		pipeline.WithEntryPoints("vs_main", ""),
		pipeline.WithVertexLayouts(mesh.VertexLayout()),
		pipeline.WithDepthFormat(scene.ShadowFormat),
		pipeline.WithDepthCompare(rhi.CompareLess),
		pipeline.WithDepthBias(shadowDepthBias, shadowSlopeDepthBias),
	)
	s.extent = Extent{Width: s.settings.Resolution, Height: s.settings.Resolution}
	return s, nil
}

// Attach builds the pipeline cache against the scene's table layout.
//
// Parameters:
//   - tableLayout: the layout of the per-table descriptor set bound at group 1
func (s *Shadow) Attach(tableLayout rhi.DescriptorLayout) {
	if s.pipelines != nil {
		s.pipelines.Destroy()
	}
	s.pipelines = pipeline.NewCache(s.device, s.shaders, s.template, []rhi.DescriptorLayout{s.layout, tableLayout},
		pipeline.WithRecycleBin(s.bin), pipeline.WithLogger(s.log))
}

// Factory returns the scene's shadow renderer factory.
func (s *Shadow) Factory() scene.ShadowRendererFactory {
	return s.newRenderer
}

// Resize is a no-op: shadow maps are sized by the shadow resolution, not the output extent.
func (s *Shadow) Resize(rhi.CommandList, Extent) error { return nil }

// UpdatePipelines rebuilds the cached pipelines after a shader reload. Pipelines of new ids are built by
// the renderers when a caster table first appears.
func (s *Shadow) UpdatePipelines() error {
	if s.pipelines == nil {
		return nil
	}
	return s.pipelines.Rebuild()
}

// Renderers returns the number of live shadow renderers.
func (s *Shadow) Renderers() int { return len(s.renderers) }

func (s *Shadow) pipelineFor(t *instance_table.Table) (rhi.Pipeline, error) {
	if s.pipelines == nil {
		return nil, errors.New("shadow: pass not attached to a scene")
	}
	info, err := pipelineInfo(s.materials, t.PipelineID())
	if err != nil {
		return nil, errors.Wrap(err, "shadow")
	}
	return s.pipelines.Ensure(t.PipelineID(), "shadow", info.CullMode)
}

// Destroy releases the layout and pipelines. Renderers are destroyed by the scene.
func (s *Shadow) Destroy() {
	if s.pipelines != nil {
		s.pipelines.Destroy()
		s.pipelines = nil
	}
	if s.layout != nil {
		s.retire(s.layout)
		s.layout = nil
	}
}

// shadowFace is the per-face state of a renderer.
type shadowFace struct {
	target  *Attachment
	uniform rhi.Buffer
	set     rhi.DescriptorSet
	bound   rhi.Buffer
	culling map[*instance_table.Table]*culling.Target
}

// shadowRenderer renders the faces of one light.
type shadowRenderer struct {
	pass         *Shadow
	light        light.Light
	index        uint32
	faces        []shadowFace
	proj         light.Projection
	bootstrapped bool
}

func (s *Shadow) newRenderer(l light.Light, shadowIndex uint32, faces []rhi.Image) (scene.ShadowRenderer, error) {
	r := &shadowRenderer{pass: s, light: l, index: shadowIndex}
	for i, img := range faces {
		label := s.label(strconv.Itoa(int(shadowIndex)), strconv.Itoa(i))
		uniform, err := s.device.CreateBuffer(rhi.BufferDesc{
			Label: label + "/view",
			Size:  shadowViewSize,
			Usage: rhi.BufferUsageUniform | rhi.BufferUsageCopyDst,
		})
		if err != nil {
			r.Destroy()
			return nil, errors.Wrapf(err, "shadow: creating view uniform for face %d", i)
		}
		set, err := s.device.CreateDescriptorSet(s.layout, label+"/set")
		if err != nil {
			s.retire(uniform)
			r.Destroy()
			return nil, errors.Wrapf(err, "shadow: creating descriptor set for face %d", i)
		}
		set.BindBuffer(ShadowBindingView, uniform, 0, shadowViewSize)
		r.faces = append(r.faces, shadowFace{
			target:  &Attachment{Image: img},
			uniform: uniform,
			set:     set,
			culling: make(map[*instance_table.Table]*culling.Target),
		})
	}
	s.renderers[r] = struct{}{}
	s.log.Debug("shadow renderer created", "light", l.Type(), "index", shadowIndex)
	return r, nil
}

func (r *shadowRenderer) Update(view light.ViewParams) light.Projection {
	r.proj = light.Project(r.light, view, r.pass.settings)
	return r.proj
}

// active returns the faces rendered this frame.
func (r *shadowRenderer) active() []shadowFace {
	return r.faces[:min(r.proj.Faces, len(r.faces))]
}

func (r *shadowRenderer) Compute(cmd rhi.CommandList, casters []*instance_table.Table, meshInstances rhi.Buffer) error {
	live := make(map[*instance_table.Table]bool, len(casters))
	for _, t := range casters {
		live[t] = true
	}
	for i := range r.faces {
		r.prune(&r.faces[i], live)
	}

	for i := range r.active() {
		f := &r.faces[i]
		viewProj := r.proj.ViewProj[i]
		cmd.Upload(f.uniform, 0, marshalMat4(viewProj))
		if f.bound != meshInstances {
			f.set.BindBuffer(ShadowBindingMeshInstances, meshInstances, 0, meshInstances.Size())
			f.bound = meshInstances
		}
		if err := f.set.Update(); err != nil {
			return errors.Wrapf(err, "shadow %d: updating face %d", r.index, i)
		}
		for _, t := range casters {
			target, ok := f.culling[t]
			if !ok {
				var err error
				target, err = r.pass.stage.NewTarget(fmt.Sprintf("shadow-%d-%d", r.index, i), true)
				if err != nil {
					return errors.Wrapf(err, "shadow %d: creating culling target", r.index)
				}
				f.culling[t] = target
			}
			if _, err := r.pass.stage.Dispatch(cmd, t, target, meshInstances, viewProj); err != nil {
				return errors.Wrapf(err, "shadow %d: culling face %d", r.index, i)
			}
		}
	}
	return nil
}

// prune destroys the culling targets of tables that no longer cast.
func (r *shadowRenderer) prune(f *shadowFace, live map[*instance_table.Table]bool) {
	for t, target := range f.culling {
		if !live[t] {
			target.Destroy()
			delete(f.culling, t)
		}
	}
}

func (r *shadowRenderer) Render(cmd rhi.CommandList, casters []*instance_table.Table, _ rhi.Buffer) error {
	if !r.bootstrapped {
		for i := range r.faces {
			r.faces[i].target.Transition(cmd, rhi.StateShaderRead)
		}
		r.bootstrapped = true
	}

	res := r.pass.settings.Resolution
	for i := range r.active() {
		f := &r.faces[i]
		f.target.Transition(cmd, rhi.StateDepthStencilWrite)
		cmd.BeginRendering(rhi.RenderingInfo{
			Label:  fmt.Sprintf("shadow-%d-%d", r.index, i),
			Width:  res,
			Height: res,
			Depth: &rhi.DepthAttachment{
				Image:        f.target.Image,
				DepthLoad:    rhi.LoadOpClear,
				DepthStore:   rhi.StoreOpStore,
				ClearDepth:   1,
				StencilLoad:  rhi.LoadOpClear,
				StencilStore: rhi.StoreOpDiscard,
			},
		})
		cmd.SetViewport(rhi.Viewport{Width: float32(res), Height: float32(res), MaxDepth: 1})
		cmd.SetScissors(rhi.Rect{Width: res, Height: res})

		bound := false
		for _, t := range casters {
			target, ok := f.culling[t]
			if !ok || t.DrawCommandsCount() == 0 || target.Culled() == nil {
				continue
			}
			p, err := r.pass.pipelineFor(t)
			if err != nil {
				cmd.EndRendering()
				return err
			}
			if !bound {
				r.pass.meshes.Bind(cmd)
				bound = true
			}
			cmd.BindPipeline(p)
			cmd.BindDescriptors(0, f.set, t.DescriptorSet())
			culling.Draw(cmd, t, target)
		}
		cmd.EndRendering()
		f.target.Transition(cmd, rhi.StateShaderRead)
	}
	return nil
}

func (r *shadowRenderer) Destroy() {
	for i := range r.faces {
		f := &r.faces[i]
		for t, target := range f.culling {
			target.Destroy()
			delete(f.culling, t)
		}
		r.pass.retire(f.uniform, f.set)
	}
	r.faces = nil
	delete(r.pass.renderers, r)
}
