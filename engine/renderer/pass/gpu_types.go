package pass

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Sizes of the post-process uniform payloads.
const (
	GPUSsaoParamsSize  = 1168
	GPUSmallParamsSize = 16

	// MaxSsaoSamples is the length of the SSAO sample kernel array.
	MaxSsaoSamples = 64
)

// GPUSsaoParams matches the WGSL SsaoParams struct (1168 bytes).
type GPUSsaoParams struct {
	Proj        mgl32.Mat4                 // offset    0
	InvProj     mgl32.Mat4                 // offset   64
	Samples     [MaxSsaoSamples]mgl32.Vec4 // offset  128
	Radius      float32                    // offset 1152
	Bias        float32                    // offset 1156
	Strength    float32                    // offset 1160
	SampleCount uint32                     // offset 1164
}

// Marshal serializes the params for upload.
//
// Returns:
//   - []byte: a GPUSsaoParamsSize-byte buffer
func (p *GPUSsaoParams) Marshal() []byte {
	buf := make([]byte, GPUSsaoParamsSize)
	putFloats(buf[0:], p.Proj[:])
	putFloats(buf[64:], p.InvProj[:])
	for i, s := range p.Samples {
		putFloats(buf[128+i*16:], s[:])
	}
	binary.LittleEndian.PutUint32(buf[1152:], math.Float32bits(p.Radius))
	binary.LittleEndian.PutUint32(buf[1156:], math.Float32bits(p.Bias))
	binary.LittleEndian.PutUint32(buf[1160:], math.Float32bits(p.Strength))
	binary.LittleEndian.PutUint32(buf[1164:], p.SampleCount)
	return buf
}

// GPUBlurParams matches the WGSL BlurParams struct (16 bytes).
type GPUBlurParams struct {
	KernelSize uint32
}

// Marshal serializes the params for upload.
func (p *GPUBlurParams) Marshal() []byte {
	buf := make([]byte, GPUSmallParamsSize)
	binary.LittleEndian.PutUint32(buf[0:], p.KernelSize)
	return buf
}

// GPUBloomParams matches the WGSL BloomParams struct (16 bytes).
type GPUBloomParams struct {
	Threshold  float32
	Strength   float32
	KernelSize uint32
}

// Marshal serializes the params for upload.
func (p *GPUBloomParams) Marshal() []byte {
	buf := make([]byte, GPUSmallParamsSize)
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(p.Threshold))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(p.Strength))
	binary.LittleEndian.PutUint32(buf[8:], p.KernelSize)
	return buf
}

// GPUFxaaParams matches the WGSL FxaaParams struct (16 bytes).
type GPUFxaaParams struct {
	SpanMax   float32
	ReduceMul float32
	ReduceMin float32
}

// Marshal serializes the params for upload.
func (p *GPUFxaaParams) Marshal() []byte {
	buf := make([]byte, GPUSmallParamsSize)
	putFloats(buf, []float32{p.SpanMax, p.ReduceMul, p.ReduceMin})
	return buf
}

// GPUGammaParams matches the WGSL GammaParams struct (16 bytes).
type GPUGammaParams struct {
	Exposure    float32
	Gamma       float32
	ToneMapping uint32 // 0 none, 1 reinhard, 2 aces
}

// Marshal serializes the params for upload.
func (p *GPUGammaParams) Marshal() []byte {
	buf := make([]byte, GPUSmallParamsSize)
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(p.Exposure))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(p.Gamma))
	binary.LittleEndian.PutUint32(buf[8:], p.ToneMapping)
	return buf
}

// GPUSmaaParams matches the WGSL SmaaParams struct (16 bytes).
type GPUSmaaParams struct {
	EdgeThreshold      float32
	MaxSearchSteps     uint32
	MaxSearchStepsDiag uint32
	CornerRounding     uint32
}

// Marshal serializes the params for upload.
func (p *GPUSmaaParams) Marshal() []byte {
	buf := make([]byte, GPUSmallParamsSize)
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(p.EdgeThreshold))
	binary.LittleEndian.PutUint32(buf[4:], p.MaxSearchSteps)
	binary.LittleEndian.PutUint32(buf[8:], p.MaxSearchStepsDiag)
	binary.LittleEndian.PutUint32(buf[12:], p.CornerRounding)
	return buf
}

func putFloats(buf []byte, values []float32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
}

func marshalMat4(m mgl32.Mat4) []byte {
	buf := make([]byte, 64)
	putFloats(buf, m[:])
	return buf
}
