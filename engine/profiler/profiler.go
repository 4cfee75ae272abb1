// Package profiler reports frame rate, per-phase frame timings and Go heap statistics at a fixed
// interval.
package profiler

import (
	"runtime"
	"sort"
	"time"

	"github.com/Carmen-Shannon/prism/engine/logger"
	"github.com/charmbracelet/log"
)

// Stats is one reporting interval.
type Stats struct {
	FPS float64

	// Phases is the mean duration of every phase recorded with Record, keyed by phase name.
	Phases map[string]time.Duration

	HeapMB      float64
	AllocRateMB float64
	SysMB       float64
	GCCount     uint32
	LastPauseUs uint64
	MaxPauseUs  uint64
}

type phase struct {
	total time.Duration
	count int
}

// Profiler tracks frame statistics. It is not safe for concurrent use: the render loop owns it.
type Profiler struct {
	log            *log.Logger
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	phases         map[string]*phase
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	now            func() time.Time
}

// ProfilerBuilderOption is a functional option applied by NewProfiler.
type ProfilerBuilderOption func(*Profiler)

// WithInterval sets how often statistics are reported. The default is one second.
func WithInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}

// WithLogger sets the parent logger. Reports are logged under the "profiler" prefix.
func WithLogger(l *log.Logger) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.log = l
	}
}

// NewProfiler creates a Profiler.
//
// Parameters:
//   - options: variadic list of ProfilerBuilderOption functions
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		updateInterval: time.Second,
		phases:         make(map[string]*phase),
		now:            time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	p.log = logger.Sub(p.log, "profiler")
	p.lastTime = p.now()
	return p
}

// Record adds the time elapsed since start to the named phase of the current interval.
//
// Parameters:
//   - name: the phase name, such as "prepare" or "render"
//   - start: when the phase began
func (p *Profiler) Record(name string, start time.Time) {
	ph, ok := p.phases[name]
	if !ok {
		ph = &phase{}
		p.phases[name] = ph
	}
	ph.total += p.now().Sub(start)
	ph.count++
}

// Tick should be called once per frame. When the update interval has elapsed it logs and returns the
// statistics of the interval and starts a new one.
//
// Returns:
//   - Stats: the interval's statistics, valid when ok is true
//   - bool: true if an interval was completed this tick
func (p *Profiler) Tick() (Stats, bool) {
	p.frameCount++
	current := p.now()
	elapsed := current.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return Stats{}, false
	}

	runtime.ReadMemStats(&p.memStats)
	s := Stats{
		FPS:         float64(p.frameCount) / elapsed.Seconds(),
		Phases:      make(map[string]time.Duration, len(p.phases)),
		HeapMB:      float64(p.memStats.Alloc) / 1024 / 1024,
		SysMB:       float64(p.memStats.Sys) / 1024 / 1024,
		AllocRateMB: float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds(),
		GCCount:     p.memStats.NumGC,
	}
	if s.GCCount > 0 {
		// PauseNs is a circular buffer of the last 256 pauses
		s.LastPauseUs = p.memStats.PauseNs[(s.GCCount-1)%256] / 1000
		start := p.lastGCCount
		if s.GCCount-start > 256 {
			start = s.GCCount - 256
		}
		for i := start; i < s.GCCount; i++ {
			s.MaxPauseUs = max(s.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}
	for name, ph := range p.phases {
		if ph.count > 0 {
			s.Phases[name] = ph.total / time.Duration(ph.count)
		}
	}

	p.report(s)

	p.frameCount = 0
	p.lastTime = current
	p.lastGCCount = s.GCCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	clear(p.phases)
	return s, true
}

func (p *Profiler) report(s Stats) {
	kv := []any{
		"fps", s.FPS,
		"heap_mb", s.HeapMB,
		"alloc_mb_s", s.AllocRateMB,
		"gc", s.GCCount,
		"gc_last_us", s.LastPauseUs,
		"gc_max_us", s.MaxPauseUs,
		"sys_mb", s.SysMB,
	}
	names := make([]string, 0, len(s.Phases))
	for name := range s.Phases {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		kv = append(kv, name, s.Phases[name])
	}
	p.log.Info("frame stats", kv...)
}
