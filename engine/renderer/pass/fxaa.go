package pass

import "github.com/Carmen-Shannon/prism/engine/rhi"

// FXAA is fast approximate anti-aliasing.
type FXAA struct {
	*PostProcess
}

// NewFXAA creates the FXAA effect with the configured span and reduce thresholds.
//
// Parameters:
//   - ctx: the pass context
//
// Returns:
//   - *FXAA: the effect
//   - error: a resource creation error
func NewFXAA(ctx Context) (*FXAA, error) {
	p, err := NewPostProcess(ctx, "fxaa", "fxaa", ctx.Config.ColorFormat, GPUSmallParamsSize, rhi.BlendState{})
	if err != nil {
		return nil, err
	}
	params := GPUFxaaParams{
		SpanMax:   ctx.Config.FXAA.SpanMax,
		ReduceMul: ctx.Config.FXAA.ReduceMul,
		ReduceMin: ctx.Config.FXAA.ReduceMin,
	}
	p.SetParams(params.Marshal())
	return &FXAA{PostProcess: p}, nil
}

// Apply renders the anti-aliased color.
func (f *FXAA) Apply(cmd rhi.CommandList, frame uint64, color, depth *Attachment) (*Attachment, error) {
	return f.Render(cmd, frame, PostInputs{Color: color, Depth: depth})
}
