package frame

import "time"

// Port is an endpoint on a node: exactly one Data field (a Frame or nil)
// and one Meta field. Persistent ports survive Clear(), used by
// nodes that pre-load static data once and re-expose it every cycle.
type Port struct {
	Data       *Frame
	Meta       map[string]interface{}
	Persistent bool
}

// NewPort returns an empty, non-persistent port.
func NewPort() *Port {
	p := &Port{}
	p.Clear()
	return p
}

// Clear resets Data and Meta, unless the port is persistent.
func (p *Port) Clear() {
	if p.Persistent {
		return
	}
	p.Data = nil
	p.Meta = map[string]interface{}{}
}

// Ready reports whether the port holds a non-empty frame.
func (p *Port) Ready() bool {
	return p.Data != nil && p.Data.Len() > 0
}

// SetOptions configures an optional Set call; zero value means "generate
// defaults".
type SetOptions struct {
	Timestamps []time.Time
	Columns    []string
	Meta       map[string]interface{}
}

// Set builds a Signal frame from rows and assigns it (plus meta) to the
// port. If Timestamps is omitted, a sequence of len(rows) equally spaced
// timestamps is generated, ending at the scheduler's current cycle start
// and spread evenly over one cycle period (the inverse of the global tick
// rate).
func (p *Port) Set(rows [][]interface{}, opts SetOptions) {
	timestamps := opts.Timestamps
	if timestamps == nil {
		timestamps = defaultTimestamps(len(rows))
	}
	p.Data = NewSignal(rows, timestamps, opts.Columns)
	if opts.Meta != nil {
		p.Meta = opts.Meta
	} else if p.Meta == nil {
		p.Meta = map[string]interface{}{}
	}
}

// defaultTimestamps returns n strictly increasing timestamps ending at the
// current cycle start, spaced by (1/rate)/n so that together they span one
// cycle period (rate=0 is treated as 1Hz, the fallback for "as fast as
// possible" graphs).
func defaultTimestamps(n int) []time.Time {
	if n == 0 {
		return []time.Time{}
	}
	rate := Rate()
	if rate <= 0 {
		rate = 1
	}
	stop := CycleStart()
	interval := time.Duration(float64(time.Second) / rate)
	start := stop.Add(-interval)
	step := time.Duration(int64(interval) / int64(n))
	out := make([]time.Time, n)
	for i := 0; i < n; i++ {
		if i == n-1 {
			out[i] = stop
			continue
		}
		out[i] = start.Add(time.Duration(i+1) * step)
	}
	return out
}

// Clone returns a port holding a deep copy of Data and Meta, used for
// every cloning consumer of a fanned-out source port.
func (p *Port) Clone() *Port {
	return &Port{
		Data:       p.Data.Clone(),
		Meta:       cloneMeta(p.Meta),
		Persistent: p.Persistent,
	}
}
