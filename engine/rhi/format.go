package rhi

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Format identifies the texel layout of an Image.
type Format uint32

const (
	FormatUndefined Format = iota
	FormatR8Unorm
	FormatR16Float
	FormatR32Float
	FormatRG16Float
	FormatRGBA8Unorm
	FormatRGBA8UnormSrgb
	FormatBGRA8Unorm
	FormatBGRA8UnormSrgb
	FormatRGBA16Float
	FormatRGBA32Float
	FormatDepth32Float
	FormatDepth24PlusStencil8
	FormatDepth32FloatStencil8
)

var formatNames = map[Format]string{
	FormatUndefined:            "undefined",
	FormatR8Unorm:              "r8unorm",
	FormatR16Float:             "r16float",
	FormatR32Float:             "r32float",
	FormatRG16Float:            "rg16float",
	FormatRGBA8Unorm:           "rgba8unorm",
	FormatRGBA8UnormSrgb:       "rgba8unorm-srgb",
	FormatBGRA8Unorm:           "bgra8unorm",
	FormatBGRA8UnormSrgb:       "bgra8unorm-srgb",
	FormatRGBA16Float:          "rgba16float",
	FormatRGBA32Float:          "rgba32float",
	FormatDepth32Float:         "depth32float",
	FormatDepth24PlusStencil8:  "depth24plus-stencil8",
	FormatDepth32FloatStencil8: "depth32float-stencil8",
}

// String returns the lowercase WebGPU-style name of the format.
func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return "unknown"
}

// IsDepth reports whether the format carries a depth aspect.
func (f Format) IsDepth() bool {
	switch f {
	case FormatDepth32Float, FormatDepth24PlusStencil8, FormatDepth32FloatStencil8:
		return true
	}
	return false
}

// HasStencil reports whether the format carries a stencil aspect.
func (f Format) HasStencil() bool {
	return f == FormatDepth24PlusStencil8 || f == FormatDepth32FloatStencil8
}

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Format) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for k, v := range formatNames {
		if v == s {
			*f = k
			return nil
		}
	}
	return errors.Newf("rhi: unknown format %q", s)
}
