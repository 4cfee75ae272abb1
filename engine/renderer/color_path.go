package renderer

import (
	"github.com/Carmen-Shannon/prism/engine/config"
	"github.com/Carmen-Shannon/prism/engine/renderer/material"
	"github.com/Carmen-Shannon/prism/engine/renderer/pass"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/Carmen-Shannon/prism/engine/scene"
	"github.com/cockroachdb/errors"
)

// colorPath produces the lit opaque color of a frame from the depth pre-pass and optional occlusion.
type colorPath interface {
	pass.Pass
	Render(cmd rhi.CommandList, frame uint64, depth, ao *pass.Attachment) error
	Output(frame uint64) *pass.Attachment
}

// newColorPath creates the forward or deferred path the configuration selects.
func newColorPath(ctx pass.Context, sc scene.Scene, materials material.Pipelines) (colorPath, error) {
	switch ctx.Config.RendererType {
	case config.RendererForward:
		forward, err := pass.NewForward(ctx, sc, materials)
		if err != nil {
			return nil, err
		}
		return forward, nil
	case config.RendererDeferred:
		lighting, err := pass.NewLighting(ctx, sc)
		if err != nil {
			return nil, err
		}
		return &deferred{gbuffer: pass.NewGBuffer(ctx, sc, materials), lighting: lighting}, nil
	}
	return nil, errors.Wrapf(ErrUnknownRendererType, "%d", ctx.Config.RendererType)
}

// deferred chains the G-buffer pass and the lighting resolve.
type deferred struct {
	gbuffer  *pass.GBuffer
	lighting *pass.Lighting
}

func (d *deferred) Name() string { return "deferred" }

func (d *deferred) Resize(cmd rhi.CommandList, extent pass.Extent) error {
	if err := d.gbuffer.Resize(cmd, extent); err != nil {
		return err
	}
	return d.lighting.Resize(cmd, extent)
}

func (d *deferred) UpdatePipelines() error {
	return errors.CombineErrors(d.gbuffer.UpdatePipelines(), d.lighting.UpdatePipelines())
}

func (d *deferred) Render(cmd rhi.CommandList, frame uint64, depth, ao *pass.Attachment) error {
	if err := d.gbuffer.Render(cmd, frame, depth); err != nil {
		return err
	}
	return d.lighting.Render(cmd, frame, d.gbuffer.Targets(frame), depth, ao)
}

func (d *deferred) Output(frame uint64) *pass.Attachment {
	return d.lighting.Output(frame)
}

func (d *deferred) Destroy() {
	d.gbuffer.Destroy()
	d.lighting.Destroy()
}
