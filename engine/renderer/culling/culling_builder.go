package culling

import (
	"github.com/Carmen-Shannon/prism/engine/rhi"
	"github.com/charmbracelet/log"
)

// StageBuilderOption configures a Stage during New.
type StageBuilderOption func(*Stage)

// WithRecycleBin defers destruction of replaced pipelines and buffers until in-flight frames complete.
func WithRecycleBin(bin *rhi.RecycleBin) StageBuilderOption {
	return func(s *Stage) {
		s.bin = bin
	}
}

// WithLogger sets the stage logger.
func WithLogger(l *log.Logger) StageBuilderOption {
	return func(s *Stage) {
		s.log = l
	}
}
