package pass

import (
	"github.com/Carmen-Shannon/prism/engine/mesh"
	"github.com/Carmen-Shannon/prism/engine/renderer/instance_table"
	"github.com/Carmen-Shannon/prism/engine/renderer/material"
	"github.com/Carmen-Shannon/prism/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/Carmen-Shannon/prism/engine/scene"
)

// ShaderMaterial draws the surfaces of custom-shader materials on top of the color output. Each
// pipeline runs the shader its material names.
type ShaderMaterial struct {
	geometry
}

// NewShaderMaterial creates the shader-material pass.
//
// Parameters:
//   - ctx: the pass context
//   - sc: the scene whose shader-material tables are drawn
//   - materials: resolves the shader name and cull mode of every pipeline id
//
// Returns:
//   - *ShaderMaterial: the pass
func NewShaderMaterial(ctx Context, sc scene.Scene, materials material.Pipelines) *ShaderMaterial {
	tmpl := pipeline.NewTemplate("shader-material",
		pipeline.WithVertexLayouts(mesh.VertexLayout()),
		pipeline.WithColorTarget(ctx.Config.ColorFormat, rhi.BlendState{}),
		pipeline.WithDepthFormat(ctx.Config.DepthStencilFormat),
		pipeline.WithDepthCompare(rhi.CompareLessEqual),
	)
	return &ShaderMaterial{geometry: newGeometry(ctx, "shader-material", sc, materials, "", tmpl, nil, instance_table.CategoryShaderMaterial)}
}

// Resize only records the extent; the pass renders into attachments it does not own.
func (s *ShaderMaterial) Resize(_ rhi.CommandList, extent Extent) error {
	_, err := s.resized(extent)
	return err
}

// Render draws every shader-material table. Nothing is recorded when no table has draw commands.
//
// Parameters:
//   - cmd: the command list
//   - frame: the frame counter
//   - color: the color output, loaded and stored
//   - depth: the depth/stencil attachment, tested and written
//
// Returns:
//   - error: ErrNotResized before the first Resize
func (s *ShaderMaterial) Render(cmd rhi.CommandList, frame uint64, color, depth *Attachment) error {
	if !s.extent.Valid() {
		return ErrNotResized
	}
	if !s.hasDraws(instance_table.CategoryShaderMaterial) {
		return nil
	}
	color.Transition(cmd, rhi.StateRenderTarget)
	depth.Transition(cmd, rhi.StateDepthStencilWrite)
	cmd.BeginRendering(rhi.RenderingInfo{
		Label:  s.label("render"),
		Width:  s.extent.Width,
		Height: s.extent.Height,
		Colors: []rhi.ColorAttachment{{Image: color.Image, Load: rhi.LoadOpLoad, Store: rhi.StoreOpStore}},
		Depth: &rhi.DepthAttachment{
			Image:        depth.Image,
			DepthLoad:    rhi.LoadOpLoad,
			DepthStore:   rhi.StoreOpStore,
			StencilLoad:  rhi.LoadOpLoad,
			StencilStore: rhi.StoreOpStore,
		},
	})
	s.setViewport(cmd)
	s.scene.DrawShaderMaterial(cmd, s.bind(frame))
	cmd.EndRendering()
	color.Transition(cmd, rhi.StateShaderRead)
	depth.Transition(cmd, rhi.StateDepthStencilRead)
	return nil
}

// Destroy releases the pipelines.
func (s *ShaderMaterial) Destroy() {
	s.destroyPipelines()
}
