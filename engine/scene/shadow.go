package scene

import (
	"github.com/Carmen-Shannon/prism/engine/config"
	"github.com/Carmen-Shannon/prism/engine/light"
	"github.com/Carmen-Shannon/prism/engine/renderer/instance_table"
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/cockroachdb/errors"
)

// ShadowRenderer renders the shadow map faces of one shadow-casting light. The scene creates one per
// casting light through a ShadowRendererFactory and drives it every frame.
type ShadowRenderer interface {
	// Update recomputes the light-space projection for the current camera. Called by Scene.Update.
	//
	// Parameters:
	//   - view: the main camera frustum, used by directional cascades
	//
	// Returns:
	//   - light.Projection: the per-face view-projections and cascade splits
	Update(view light.ViewParams) light.Projection

	// Compute records the light-space culling of every caster table. Called by Scene.Compute.
	//
	// Parameters:
	//   - cmd: the command list, outside any rendering scope
	//   - casters: the tables whose surfaces cast shadows
	//   - meshInstances: the scene's mesh-instance buffer
	//
	// Returns:
	//   - error: a culling error
	Compute(cmd rhi.CommandList, casters []*instance_table.Table, meshInstances rhi.Buffer) error

	// Render records the depth rendering of every face. Called by Scene.RenderShadows.
	//
	// Parameters:
	//   - cmd: the command list, outside any rendering scope
	//   - casters: the tables whose surfaces cast shadows
	//   - meshInstances: the scene's mesh-instance buffer
	//
	// Returns:
	//   - error: a descriptor error
	Render(cmd rhi.CommandList, casters []*instance_table.Table, meshInstances rhi.Buffer) error

	// Destroy releases the renderer's resources.
	Destroy()
}

// ShadowRendererFactory creates the shadow renderer of a light.
//
// Parameters:
//   - l: the shadow-casting light
//   - shadowIndex: the light's shadow map index; its faces are array layers shadowIndex*6 onward
//   - faces: one single-layer view of the shadow map array per slot of the light, owned by the scene
//
// Returns:
//   - ShadowRenderer: the renderer
//   - error: a resource creation error
type ShadowRendererFactory func(l light.Light, shadowIndex uint32, faces []rhi.Image) (ShadowRenderer, error)

// ProjectionOnly returns a factory whose renderers compute projections but record nothing. Scenes use it
// when no factory is configured, which keeps shadow bookkeeping testable without a shadow pass.
//
// Parameters:
//   - settings: the shadow settings the projections are computed with
//
// Returns:
//   - ShadowRendererFactory: the factory
func ProjectionOnly(settings light.ShadowSettings) ShadowRendererFactory {
	return func(l light.Light, _ uint32, _ []rhi.Image) (ShadowRenderer, error) {
		return &projector{light: l, settings: settings}, nil
	}
}

type projector struct {
	light    light.Light
	settings light.ShadowSettings
}

func (p *projector) Update(view light.ViewParams) light.Projection {
	return light.Project(p.light, view, p.settings)
}

func (p *projector) Compute(rhi.CommandList, []*instance_table.Table, rhi.Buffer) error { return nil }

func (p *projector) Render(rhi.CommandList, []*instance_table.Table, rhi.Buffer) error { return nil }

func (p *projector) Destroy() {}

type shadowState struct {
	index    uint32
	faces    []rhi.Image
	renderer ShadowRenderer
	proj     light.Projection
}

// allocateShadow takes the first shadow map whose slots all hold the blank sentinel, creates its face
// views and the light's renderer.
func (s *scene) allocateShadow(l light.Light) (*shadowState, error) {
	index := -1
	for i := range int(s.cfg.Shadows.MaxShadowMaps) {
		if s.slots[i*config.SlotsPerShadowMap] == s.blank {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, errors.Wrapf(ErrOutOfShadowMaps, "scene %s: %d shadow maps in use", s.label(), s.cfg.Shadows.MaxShadowMaps)
	}

	base := uint32(index * config.SlotsPerShadowMap)
	faces := make([]rhi.Image, 0, config.SlotsPerShadowMap)
	for f := range uint32(config.SlotsPerShadowMap) {
		view, err := s.device.CreateImageView(s.shadowMaps, base+f, 1)
		if err != nil {
			s.device.Destroy(imagesAsResources(faces)...)
			return nil, errors.Wrapf(err, "scene %s: creating shadow map view %d", s.label(), base+f)
		}
		faces = append(faces, view)
	}
	r, err := s.shadowFactory(l, uint32(index), faces)
	if err != nil {
		s.device.Destroy(imagesAsResources(faces)...)
		return nil, errors.Wrapf(err, "scene %s: creating shadow renderer", s.label())
	}

	copy(s.slots[base:], faces)
	s.shadowVersion++
	s.log.Debug("shadow map allocated", "scene", s.id, "index", index, "light", l.Type())
	return &shadowState{index: uint32(index), faces: faces, renderer: r}, nil
}

// freeShadow destroys the renderer and returns the light's slots to the blank sentinel.
func (s *scene) freeShadow(st *shadowState) {
	st.renderer.Destroy()
	base := st.index * config.SlotsPerShadowMap
	for f := range uint32(config.SlotsPerShadowMap) {
		s.slots[base+f] = s.blank
	}
	s.retire(imagesAsResources(st.faces)...)
	st.faces = nil
	s.shadowVersion++
	s.log.Debug("shadow map freed", "scene", s.id, "index", st.index)
}

func (s *scene) activeShadows() int {
	n := 0
	for i := range s.lights {
		if s.lights[i].live && s.lights[i].shadow != nil {
			n++
		}
	}
	return n
}

func imagesAsResources(images []rhi.Image) []rhi.Resource {
	out := make([]rhi.Resource, len(images))
	for i, img := range images {
		out[i] = img
	}
	return out
}
