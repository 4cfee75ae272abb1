package pass

import (
	"github.com/Carmen-Shannon/prism/engine/config"
	"github.com/Carmen-Shannon/prism/engine/rhi"
)

// Gamma applies exposure, tone mapping and gamma correction. Its output has the swapchain format.
type Gamma struct {
	*PostProcess
}

// NewGamma creates the gamma correction effect.
//
// Parameters:
//   - ctx: the pass context
//
// Returns:
//   - *Gamma: the effect
//   - error: a resource creation error
func NewGamma(ctx Context) (*Gamma, error) {
	p, err := NewPostProcess(ctx, "gamma", "gamma", ctx.Config.SwapchainFormat, GPUSmallParamsSize, rhi.BlendState{})
	if err != nil {
		return nil, err
	}
	g := &Gamma{PostProcess: p}
	g.Configure(ctx.Config.Exposure, ctx.Config.Gamma, ctx.Config.ToneMapping)
	return g, nil
}

// Configure replaces the exposure, gamma and tone mapping operator.
func (g *Gamma) Configure(exposure, gamma float32, tm config.ToneMapping) {
	params := GPUGammaParams{Exposure: exposure, Gamma: gamma, ToneMapping: uint32(tm)}
	g.SetParams(params.Marshal())
}

// Apply renders the corrected color into the effect's own output.
func (g *Gamma) Apply(cmd rhi.CommandList, frame uint64, color, depth *Attachment) (*Attachment, error) {
	return g.Render(cmd, frame, PostInputs{Color: color, Depth: depth})
}

// ApplyTo renders the corrected color into an external target such as a swapchain image.
func (g *Gamma) ApplyTo(cmd rhi.CommandList, frame uint64, color *Attachment, target *Attachment) error {
	return g.RenderTo(cmd, frame, PostInputs{Color: color}, target)
}
