package pass

import "github.com/Carmen-Shannon/prism/engine/rhi"

// Bloom adds a blurred copy of the bright parts of the image back onto it.
type Bloom struct {
	*PostProcess
}

// NewBloom creates the bloom effect from the bloom section of the configuration.
//
// Parameters:
//   - ctx: the pass context
//
// Returns:
//   - *Bloom: the effect
//   - error: a resource creation error
func NewBloom(ctx Context) (*Bloom, error) {
	p, err := NewPostProcess(ctx, "bloom", "bloom", ctx.Config.ColorFormat, GPUSmallParamsSize, rhi.BlendState{})
	if err != nil {
		return nil, err
	}
	params := GPUBloomParams{
		Threshold:  ctx.Config.Bloom.Threshold,
		Strength:   ctx.Config.Bloom.Strength,
		KernelSize: ctx.Config.Bloom.KernelSize,
	}
	p.SetParams(params.Marshal())
	return &Bloom{PostProcess: p}, nil
}

// Apply renders the bloomed color.
func (b *Bloom) Apply(cmd rhi.CommandList, frame uint64, color, depth *Attachment) (*Attachment, error) {
	return b.Render(cmd, frame, PostInputs{Color: color, Depth: depth})
}
