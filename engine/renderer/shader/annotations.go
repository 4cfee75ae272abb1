// annotations.go defines the annotation types and the parser for the WGSL pre-processor. Annotations are
// single-line WGSL comments prefixed with @prism: that inject shared struct sources and generate binding
// declarations, so the Go GPU types and the WGSL that reads them stay defined in one place.
package shader

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// annotationPrefix is the marker that identifies an annotation within a WGSL comment line.
const annotationPrefix = "@prism:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// AnnotationTypeInclude injects the WGSL source registered under a name at the annotation site. Each
	// source is injected at most once per shader, so two includes sharing a source are safe.
	//
	// Syntax: //@prism:include <name>
	//
	// Example: //@prism:include camera
	AnnotationTypeInclude AnnotationType = "include"

	// AnnotationTypeBindingGroup generates a @group/@binding variable declaration whose type is the WGSL
	// type registered under the given name, or an array of it.
	//
	// Syntax: //@prism:group <group> <binding> <address_space> <var_name> <type>
	//
	// Examples:
	//   //@prism:group 0 0 uniform scene scene
	//   //@prism:group 0 6 read mesh_instances array<mesh_instance>
	AnnotationTypeBindingGroup AnnotationType = "group"
)

// Address spaces accepted by group annotations.
const (
	addressSpaceUniform   = "uniform"
	addressSpaceRead      = "read"
	addressSpaceReadWrite = "read_write"
)

var addressSpaces = map[string]string{
	addressSpaceUniform:   "var<uniform>",
	addressSpaceRead:      "var<storage, read>",
	addressSpaceReadWrite: "var<storage, read_write>",
}

// Annotation is one parsed @prism: annotation.
type Annotation struct {
	// Type identifies which annotation was parsed.
	Type AnnotationType

	// Name is the registered include name (include) or the type argument (group, possibly array<name>).
	Name string

	// Line is the 1-based source line of the annotation.
	Line int

	// Group, Binding, AddressSpace and Var are set for group annotations.
	Group        int
	Binding      int
	AddressSpace string
	Var          string
}

// ElementName returns the registered name of a group annotation's type with any array<> wrapper removed.
func (a Annotation) ElementName() (string, bool) {
	inner, ok := strings.CutPrefix(a.Name, "array<")
	if !ok {
		return a.Name, false
	}
	return strings.TrimSuffix(inner, ">"), true
}

// parseAnnotation attempts to parse a single line of WGSL source as an annotation. Lines without the prefix
// return nil and no error. Whether the referenced names are registered is checked by the pre-processor.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, errors.Newf("line %d: empty @prism annotation", lineNum)
	}

	switch AnnotationType(args[0]) {
	case AnnotationTypeInclude:
		if len(args) != 2 {
			return nil, errors.Newf("line %d: include annotation requires exactly one argument", lineNum)
		}
		return &Annotation{Type: AnnotationTypeInclude, Name: args[1], Line: lineNum}, nil
	case AnnotationTypeBindingGroup:
		if len(args) != 6 {
			return nil, errors.Newf("line %d: group annotation requires group, binding, address space, name and type", lineNum)
		}
		group, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: invalid group number %q", lineNum, args[1])
		}
		binding, err := strconv.Atoi(args[2])
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: invalid binding number %q", lineNum, args[2])
		}
		if _, ok := addressSpaces[args[3]]; !ok {
			return nil, errors.Newf("line %d: unknown address space %q", lineNum, args[3])
		}
		return &Annotation{
			Type:         AnnotationTypeBindingGroup,
			Name:         args[5],
			Line:         lineNum,
			Group:        group,
			Binding:      binding,
			AddressSpace: args[3],
			Var:          args[4],
		}, nil
	default:
		return nil, errors.Newf("line %d: unknown @prism annotation type %q", lineNum, args[0])
	}
}
