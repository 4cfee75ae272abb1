package config

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// RendererType selects the rendering path.
type RendererType uint8

const (
	RendererForward RendererType = iota
	RendererDeferred
)

// ToneMapping selects the operator applied by the gamma correction pass.
type ToneMapping uint8

const (
	ToneMappingNone ToneMapping = iota
	ToneMappingReinhard
	ToneMappingACES
)

// AntiAliasing selects the post-process anti-aliasing pass.
type AntiAliasing uint8

const (
	AntiAliasingNone AntiAliasing = iota
	AntiAliasingFXAA
	AntiAliasingSMAA
)

var (
	rendererNames     = []string{"forward", "deferred"}
	toneMappingNames  = []string{"none", "reinhard", "aces"}
	antiAliasingNames = []string{"none", "fxaa", "smaa"}
)

func (r RendererType) String() string { return enumName(rendererNames, int(r)) }
func (t ToneMapping) String() string  { return enumName(toneMappingNames, int(t)) }
func (a AntiAliasing) String() string { return enumName(antiAliasingNames, int(a)) }

func (r RendererType) MarshalText() ([]byte, error) { return []byte(r.String()), nil }
func (t ToneMapping) MarshalText() ([]byte, error)  { return []byte(t.String()), nil }
func (a AntiAliasing) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (r *RendererType) UnmarshalText(text []byte) error {
	i, err := enumIndex("renderer type", rendererNames, text)
	*r = RendererType(i)
	return err
}

func (t *ToneMapping) UnmarshalText(text []byte) error {
	i, err := enumIndex("tone mapping", toneMappingNames, text)
	*t = ToneMapping(i)
	return err
}

func (a *AntiAliasing) UnmarshalText(text []byte) error {
	i, err := enumIndex("anti-aliasing", antiAliasingNames, text)
	*a = AntiAliasing(i)
	return err
}

func enumName(names []string, i int) string {
	if i >= 0 && i < len(names) {
		return names[i]
	}
	return "unknown"
}

func enumIndex(kind string, names []string, text []byte) (int, error) {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for i, n := range names {
		if n == s {
			return i, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidConfig, "unknown %s %q", kind, s)
}
