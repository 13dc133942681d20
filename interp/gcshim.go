package interp

// GCMode mirrors original_source/include/interpreter.h's GCMode enum:
// this port has no real garbage collector of its own (Go's does the
// work), so GCShim exists purely to give collectgarbage() something
// truthful to report and toggle, per SPEC_FULL's supplemented feature 3.
type GCMode int

const (
	GCModeIncremental GCMode = iota
	GCModeGenerational
)

// GCShim is a field-for-field port of the C original's GCShim struct: a
// placeholder collector whose knobs are all no-ops over Go's own
// collector, but whose state collectgarbage("count")/("incremental")/
// ("generational") can still read and mutate meaningfully for scripts
// that probe it.
type GCShim struct {
	running     bool
	mode        GCMode
	pause       int // percent, matches the C default of 200
	stepmul     int // percent, matches the C default of 200
	stepsizeKB  int
	minormul    int
	majormul    int
	tick        uint
}

func newGCShim() *GCShim {
	return &GCShim{
		running:    true,
		mode:       GCModeIncremental,
		pause:      200,
		stepmul:    200,
		stepsizeKB: 64,
		minormul:   200,
		majormul:   200,
	}
}

// Collect implements collectgarbage("collect"): a no-op handed off to
// Go's own collector (which already runs independently of this call).
func (g *GCShim) Collect() {}

// Stop/Restart implement collectgarbage("stop")/("restart").
func (g *GCShim) Stop()    { g.running = false }
func (g *GCShim) Restart() { g.running = true }

// IsRunning implements collectgarbage("isrunning").
func (g *GCShim) IsRunning() bool { return g.running }

// Step implements collectgarbage("step"): the C original fakes
// "sometimes returns true" progress via a ticking counter; kept here so
// scripts polling step() in a loop still terminate.
func (g *GCShim) Step() bool {
	g.tick++
	return g.tick%4 == 0
}

// SetIncremental/SetGenerational implement collectgarbage("incremental",
// pause, stepmul)/("generational", minormul, majormul).
func (g *GCShim) SetIncremental(pause, stepmul int) {
	g.mode = GCModeIncremental
	if pause > 0 {
		g.pause = pause
	}
	if stepmul > 0 {
		g.stepmul = stepmul
	}
}

func (g *GCShim) SetGenerational(minormul, majormul int) {
	g.mode = GCModeGenerational
	if minormul > 0 {
		g.minormul = minormul
	}
	if majormul > 0 {
		g.majormul = majormul
	}
}

// TotalBytes implements collectgarbage("count"): original_source's
// vm_gc_total_bytes weak symbol always returns 0, so this port reports 0
// too rather than fabricating a number from Go's runtime stats that the
// spec never asked for.
func (g *GCShim) TotalBytes() int64 { return 0 }
