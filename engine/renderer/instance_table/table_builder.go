package instance_table

import (
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/charmbracelet/log"
)

// TableBuilderOption configures a Table during New.
type TableBuilderOption func(*Table)

// WithMaxSurfaces sets the maximum number of live surfaces, which bounds both the instance arena and the
// draw command buffers (default 65536).
//
// Parameters:
//   - n: the surface limit
//
// Returns:
//   - TableBuilderOption: a function that applies the limit to a table
func WithMaxSurfaces(n uint32) TableBuilderOption {
	return func(t *Table) {
		t.maxSurfaces = n
	}
}

// WithInitialCapacity sets how many surfaces the buffers hold before the first growth (default 64).
func WithInitialCapacity(n uint32) TableBuilderOption {
	return func(t *Table) {
		t.capacity = n
	}
}

// WithRecycleBin routes replaced and destroyed buffers through bin.
func WithRecycleBin(bin *rhi.RecycleBin) TableBuilderOption {
	return func(t *Table) {
		t.bin = bin
	}
}

// WithDescriptorLayout makes the table own a descriptor set of layout whose binding 0 is kept pointing at
// the instance record buffer. Geometry passes bind it per table.
//
// Parameters:
//   - layout: the per-table descriptor layout
//
// Returns:
//   - TableBuilderOption: a function that applies the layout to a table
func WithDescriptorLayout(layout rhi.DescriptorLayout) TableBuilderOption {
	return func(t *Table) {
		t.layout = layout
	}
}

// WithLogger sets the logger used for growth events.
func WithLogger(l *log.Logger) TableBuilderOption {
	return func(t *Table) {
		t.log = l
	}
}
