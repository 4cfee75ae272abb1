// pre_processor.go implements the WGSL pre-processor. It replaces @prism: annotations with the registered
// struct sources and generated binding declarations, and collects the binding declarations so callers
// can check them against the descriptor layouts they create.
package shader

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/prism/engine/camera"
	"github.com/Carmen-Shannon/prism/engine/light"
	"github.com/Carmen-Shannon/prism/engine/mesh"
	"github.com/Carmen-Shannon/prism/engine/renderer/instance_table"
	"github.com/Carmen-Shannon/prism/engine/renderer/material"
	"github.com/cockroachdb/errors"
)

// ErrUnknownInclude is returned when an annotation references a name nothing registered.
var ErrUnknownInclude = errors.New("shader: unknown include")

// registryEntry pairs a WGSL source (a struct definition or a snippet) with the WGSL type name group
// annotations emit for it. Snippets have no type.
type registryEntry struct {
	Source string
	Type   string
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	mu       sync.RWMutex
	registry map[string]registryEntry
}

// PreProcessor expands @prism: annotations in WGSL source.
type PreProcessor interface {
	// Register makes source available to include annotations under name. typeName is the WGSL type
	// group annotations emit for name, empty for snippets that cannot be a binding type.
	//
	// Parameters:
	//   - name: the include name
	//   - source: the WGSL source injected by //@prism:include name
	//   - typeName: the WGSL type name, or ""
	Register(name, source, typeName string)

	// Process replaces every annotation of source. Included sources are processed too, so snippets may
	// include the structs they use.
	//
	// Parameters:
	//   - source: the raw WGSL shader source code
	//
	// Returns:
	//   - string: the expanded WGSL source
	//   - []Annotation: the group annotations in source order
	//   - error: an error for malformed annotations or unknown names
	Process(source string) (string, []Annotation, error)
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor with the GPU struct sources of the engine packages registered.
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor
func NewPreProcessor() PreProcessor {
	return &preProcessor{
		registry: map[string]registryEntry{
			"camera":         {Source: camera.GPUCameraUniformSource, Type: "CameraUniform"},
			"light":          {Source: light.GPULightSource, Type: "Light"},
			"light_header":   {Source: light.GPULightSource, Type: "LightHeader"},
			"shadow_data":    {Source: light.GPUShadowDataSource, Type: "ShadowData"},
			"material":       {Source: material.GPUMaterialSource, Type: "Material"},
			"vertex":         {Source: mesh.GPUVertexSource, Type: "VertexInput"},
			"instance_data":  {Source: instance_table.GPUInstanceSource, Type: "InstanceData"},
			"draw_command":   {Source: instance_table.GPUInstanceSource, Type: "DrawCommand"},
			"mesh_instance":  {Source: instance_table.GPUInstanceSource, Type: "MeshInstance"},
			"fullscreen":     {Source: fullscreenSource},
			"scene_bindings": {Source: sceneBindingsSource},
			"geometry":       {Source: geometrySource},
			"lighting":       {Source: lightingSource},
			"smaa":           {Source: smaaSource},
		},
	}
}

func (p *preProcessor) Register(name, source, typeName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registry[name] = registryEntry{Source: source, Type: typeName}
}

func (p *preProcessor) Process(source string) (string, []Annotation, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out strings.Builder
	var decls []Annotation
	if err := p.expand(&out, &decls, source, make(map[string]bool), 0); err != nil {
		return "", nil, err
	}
	return out.String(), decls, nil
}

func (p *preProcessor) expand(out *strings.Builder, decls *[]Annotation, source string, injected map[string]bool, depth int) error {
	if depth > 8 {
		return errors.New("shader: include nesting too deep")
	}
	for i, line := range strings.Split(source, "\n") {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return err
		}
		if a == nil {
			out.WriteString(line)
			out.WriteByte('\n')
			continue
		}

		switch a.Type {
		case AnnotationTypeInclude:
			entry, ok := p.registry[a.Name]
			if !ok {
				return errors.Wrapf(ErrUnknownInclude, "line %d: %q", a.Line, a.Name)
			}
			if injected[entry.Source] {
				continue
			}
			injected[entry.Source] = true
			if err := p.expand(out, decls, entry.Source, injected, depth+1); err != nil {
				return errors.Wrapf(err, "in include %q", a.Name)
			}
		case AnnotationTypeBindingGroup:
			name, isArray := a.ElementName()
			entry, ok := p.registry[name]
			if !ok || entry.Type == "" {
				return errors.Wrapf(ErrUnknownInclude, "line %d: binding type %q", a.Line, name)
			}
			wgslType := entry.Type
			if isArray {
				wgslType = "array<" + wgslType + ">"
			}
			fmt.Fprintf(out, "@group(%d) @binding(%d) %s %s: %s;\n", a.Group, a.Binding, addressSpaces[a.AddressSpace], a.Var, wgslType)
			*decls = append(*decls, *a)
		}
	}
	return nil
}
