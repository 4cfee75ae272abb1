package pass

import (
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/cockroachdb/errors"
)

// SMAA intermediate formats.
const (
	SMAAEdgeFormat   = rhi.FormatRGBA8Unorm
	SMAAWeightFormat = rhi.FormatRGBA8Unorm
)

// SMAA is subpixel morphological anti-aliasing in three subpasses: edge detection, blend weight
// calculation and neighborhood blending. Each subpass writes its own target.
type SMAA struct {
	edge   *PostProcess
	weight *PostProcess
	blend  *PostProcess
}

// NewSMAA creates the three SMAA subpasses with the configured thresholds.
//
// Parameters:
//   - ctx: the pass context
//
// Returns:
//   - *SMAA: the effect
//   - error: a resource creation error
func NewSMAA(ctx Context) (*SMAA, error) {
	cfg := ctx.Config.SMAA
	params := GPUSmaaParams{
		EdgeThreshold:      cfg.EdgeThreshold,
		MaxSearchSteps:     cfg.MaxSearchSteps,
		MaxSearchStepsDiag: cfg.MaxSearchStepsDiag,
		CornerRounding:     cfg.CornerRounding,
	}
	s := &SMAA{}
	var err error
	if s.edge, err = NewPostProcess(ctx, "smaa-edge", "smaa_edge", SMAAEdgeFormat, GPUSmallParamsSize, rhi.BlendState{}); err != nil {
		return nil, err
	}
	if s.weight, err = NewPostProcess(ctx, "smaa-weight", "smaa_weight", SMAAWeightFormat, GPUSmallParamsSize, rhi.BlendState{}); err != nil {
		s.Destroy()
		return nil, err
	}
	if s.blend, err = NewPostProcess(ctx, "smaa-blend", "smaa_blend", ctx.Config.ColorFormat, GPUSmallParamsSize, rhi.BlendState{}); err != nil {
		s.Destroy()
		return nil, err
	}
	for _, p := range s.subpasses() {
		p.SetParams(params.Marshal())
	}
	return s, nil
}

func (s *SMAA) subpasses() []*PostProcess {
	out := make([]*PostProcess, 0, 3)
	for _, p := range []*PostProcess{s.edge, s.weight, s.blend} {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Name returns "smaa".
func (s *SMAA) Name() string { return "smaa" }

// Resize resizes every subpass.
func (s *SMAA) Resize(cmd rhi.CommandList, extent Extent) error {
	for _, p := range s.subpasses() {
		if err := p.Resize(cmd, extent); err != nil {
			return err
		}
	}
	return nil
}

// UpdatePipelines builds the pipeline of every subpass.
func (s *SMAA) UpdatePipelines() error {
	var errs error
	for _, p := range s.subpasses() {
		errs = errors.CombineErrors(errs, p.UpdatePipelines())
	}
	return errs
}

// Apply runs the three subpasses and returns the blended color.
//
// Parameters:
//   - cmd: the command list
//   - frame: the frame counter
//   - color: the color to anti-alias
//   - depth: the frame's depth attachment
//
// Returns:
//   - *Attachment: the anti-aliased color
//   - error: ErrNotResized before the first Resize, or a recording error
func (s *SMAA) Apply(cmd rhi.CommandList, frame uint64, color, depth *Attachment) (*Attachment, error) {
	edges, err := s.edge.Render(cmd, frame, PostInputs{Color: color, Depth: depth})
	if err != nil {
		return nil, errors.Wrap(err, "smaa: edge detection")
	}
	weights, err := s.weight.Render(cmd, frame, PostInputs{Color: edges, Depth: depth})
	if err != nil {
		return nil, errors.Wrap(err, "smaa: blend weights")
	}
	out, err := s.blend.Render(cmd, frame, PostInputs{Color: color, Depth: depth, Extra: weights})
	if err != nil {
		return nil, errors.Wrap(err, "smaa: neighborhood blending")
	}
	return out, nil
}

// Destroy releases every subpass.
func (s *SMAA) Destroy() {
	for _, p := range s.subpasses() {
		p.Destroy()
	}
}
