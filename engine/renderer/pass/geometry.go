package pass

import (
	"github.com/Carmen-Shannon/prism/engine/renderer/instance_table"
	"github.com/Carmen-Shannon/prism/engine/renderer/material"
	"github.com/Carmen-Shannon/prism/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/Carmen-Shannon/prism/engine/scene"
	"github.com/cockroachdb/errors"
)

// geometry draws the scene tables of some categories with one pipeline per pipeline id. The scene set
// is bound at group 0 and the table set at group 1; extra sets follow from group 2.
type geometry struct {
	base
	scene      scene.Scene
	materials  material.Pipelines
	pipelines  *pipeline.Cache
	categories []instance_table.Category

	// shaderName is the shader every pipeline runs; empty means the material's own shader.
	shaderName string
}

func newGeometry(ctx Context, name string, sc scene.Scene, materials material.Pipelines, shaderName string, tmpl *pipeline.Template, extra []rhi.DescriptorLayout, categories ...instance_table.Category) geometry {
	g := geometry{
		base:       newBase(ctx, name),
		scene:      sc,
		materials:  materials,
		categories: categories,
		shaderName: shaderName,
	}
	layouts := append([]rhi.DescriptorLayout{sc.Layout(), sc.TableLayout()}, extra...)
	g.pipelines = pipeline.NewCache(ctx.Device, ctx.Shaders, tmpl, layouts,
		pipeline.WithRecycleBin(ctx.Bin),
		pipeline.WithLogger(g.log),
	)
	return g
}

// UpdatePipelines builds the pipeline of every table the pass draws.
func (g *geometry) UpdatePipelines() error {
	for _, c := range g.categories {
		for _, t := range g.scene.Tables(c) {
			if err := g.ensure(t.PipelineID()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *geometry) ensure(id material.PipelineID) error {
	info, err := pipelineInfo(g.materials, id)
	if err != nil {
		return errors.Wrapf(err, "%s", g.name)
	}
	name := g.shaderName
	if name == "" {
		name = info.ShaderName
	}
	if _, err := g.pipelines.Ensure(id, name, info.CullMode); err != nil {
		return errors.Wrapf(err, "%s", g.name)
	}
	return nil
}

// bind returns the draw callback binding a table's pipeline and the pass's descriptor sets. Tables
// whose pipeline was never built are skipped.
func (g *geometry) bind(frame uint64, extra ...rhi.DescriptorSet) scene.DrawFunc {
	sceneSet := g.scene.DescriptorSet(frame)
	return func(cmd rhi.CommandList, t *instance_table.Table) bool {
		p, ok := g.pipelines.Get(t.PipelineID())
		if !ok {
			g.log.Warn("table skipped, pipeline not built", "pipeline", t.PipelineID(), "category", t.Category())
			return false
		}
		cmd.BindPipeline(p)
		cmd.BindDescriptors(0, sceneSet)
		if len(extra) > 0 {
			cmd.BindDescriptors(2, extra...)
		}
		return true
	}
}

// hasDraws reports whether any table of category c has draw commands.
func (g *geometry) hasDraws(c instance_table.Category) bool {
	for _, t := range g.scene.Tables(c) {
		if t.DrawCommandsCount() > 0 {
			return true
		}
	}
	return false
}

// Pipelines returns the pass's pipeline cache.
func (g *geometry) Pipelines() *pipeline.Cache { return g.pipelines }

func (g *geometry) destroyPipelines() {
	g.pipelines.Destroy()
}
