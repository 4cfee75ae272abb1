package pass

import (
	"math/rand/v2"

	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/go-gl/mathgl/mgl32"
)

// AOFormat is the format of the ambient occlusion output.
const AOFormat = rhi.FormatR16Float

// ssaoSeed fixes the sample kernel so every run occludes identically.
const ssaoSeed = 0x5a0

// SSAO estimates screen-space ambient occlusion from the depth buffer and blurs the result.
type SSAO struct {
	occlusion *PostProcess
	blur      *PostProcess
	params    GPUSsaoParams
}

// NewSSAO creates the occlusion and blur effects from the SSAO section of the configuration.
//
// Parameters:
//   - ctx: the pass context
//
// Returns:
//   - *SSAO: the pass
//   - error: a resource creation error
func NewSSAO(ctx Context) (*SSAO, error) {
	cfg := ctx.Config.SSAO
	occlusion, err := NewPostProcess(ctx, "ssao", "ssao", AOFormat, GPUSsaoParamsSize, rhi.BlendState{})
	if err != nil {
		return nil, err
	}
	blur, err := NewPostProcess(ctx, "ssao-blur", "blur", AOFormat, GPUSmallParamsSize, rhi.BlendState{})
	if err != nil {
		occlusion.Destroy()
		return nil, err
	}
	blurParams := GPUBlurParams{KernelSize: cfg.KernelSize}
	blur.SetParams(blurParams.Marshal())

	s := &SSAO{occlusion: occlusion, blur: blur}
	s.params = GPUSsaoParams{
		Samples:     SampleKernel(int(cfg.SampleCount), ssaoSeed),
		Radius:      cfg.Radius,
		Bias:        cfg.Bias,
		Strength:    cfg.Strength,
		SampleCount: min(cfg.SampleCount, MaxSsaoSamples),
	}
	return s, nil
}

// SampleKernel builds a hemisphere sample kernel oriented along +Z. Samples are scaled so that they
// cluster near the origin; entries past n are zero.
//
// Parameters:
//   - n: the number of samples, clamped to MaxSsaoSamples
//   - seed: the random seed
//
// Returns:
//   - [MaxSsaoSamples]mgl32.Vec4: the kernel, w unused
func SampleKernel(n int, seed uint64) [MaxSsaoSamples]mgl32.Vec4 {
	var kernel [MaxSsaoSamples]mgl32.Vec4
	n = min(n, MaxSsaoSamples)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for i := range n {
		v := mgl32.Vec3{
			rng.Float32()*2 - 1,
			rng.Float32()*2 - 1,
			rng.Float32(),
		}
		if v.Len() == 0 {
			v = mgl32.Vec3{0, 0, 1}
		}
		v = v.Normalize().Mul(rng.Float32())
		scale := float32(i) / float32(n)
		scale = 0.1 + scale*scale*0.9
		kernel[i] = v.Mul(scale).Vec4(0)
	}
	return kernel
}

// Name returns "ssao".
func (s *SSAO) Name() string { return "ssao" }

// Resize resizes both effects.
func (s *SSAO) Resize(cmd rhi.CommandList, extent Extent) error {
	if err := s.occlusion.Resize(cmd, extent); err != nil {
		return err
	}
	return s.blur.Resize(cmd, extent)
}

// UpdatePipelines builds both pipelines.
func (s *SSAO) UpdatePipelines() error {
	if err := s.occlusion.UpdatePipelines(); err != nil {
		return err
	}
	return s.blur.UpdatePipelines()
}

// Render computes and blurs the occlusion of a frame.
//
// Parameters:
//   - cmd: the command list
//   - frame: the frame counter
//   - depth: the frame's depth attachment
//   - proj: the camera projection the depth was rendered with
//
// Returns:
//   - *Attachment: the blurred occlusion, in the shader-read state
//   - error: ErrNotResized before the first Resize, or a recording error
func (s *SSAO) Render(cmd rhi.CommandList, frame uint64, depth *Attachment, proj mgl32.Mat4) (*Attachment, error) {
	s.params.Proj = proj
	s.params.InvProj = proj.Inv()
	s.occlusion.SetParams(s.params.Marshal())
	ao, err := s.occlusion.Render(cmd, frame, PostInputs{Depth: depth})
	if err != nil {
		return nil, err
	}
	return s.blur.Render(cmd, frame, PostInputs{Color: ao, Depth: depth})
}

// Output returns the blurred occlusion of a frame.
func (s *SSAO) Output(frame uint64) *Attachment {
	return s.blur.Output(frame)
}

// Destroy releases both effects.
func (s *SSAO) Destroy() {
	s.occlusion.Destroy()
	s.blur.Destroy()
}
