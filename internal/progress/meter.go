package progress

import "time"

// meterWindow approximates smoothing over the last ~5 samples.
const meterWindow = 5

// Meter smooths bursty byte counters into a stable transfer rate using an
// exponential moving average. It is not safe for concurrent use; each task
// attempt owns its own Meter.
type Meter struct {
	alpha     float64
	rate      float64
	lastBytes int64
	lastAt    time.Time
	primed    bool
}

// NewMeter returns a Meter smoothing over roughly the last five samples.
func NewMeter() *Meter {
	return &Meter{alpha: 2.0 / (meterWindow + 1)}
}

// Reset clears accumulated state, e.g. at the start of a new attempt.
func (m *Meter) Reset() {
	m.rate = 0
	m.lastBytes = 0
	m.lastAt = time.Time{}
	m.primed = false
}

// Observe records a cumulative byte count at the given instant and returns
// the smoothed rate in bytes per second.
func (m *Meter) Observe(bytes int64, at time.Time) float64 {
	if !m.primed {
		m.lastBytes = bytes
		m.lastAt = at
		m.primed = true
		return 0
	}

	elapsed := at.Sub(m.lastAt).Seconds()
	if elapsed <= 0 {
		return m.rate
	}
	delta := bytes - m.lastBytes
	if delta < 0 {
		delta = 0
	}
	instant := float64(delta) / elapsed

	if m.rate == 0 {
		m.rate = instant
	} else {
		m.rate = m.alpha*instant + (1-m.alpha)*m.rate
	}
	m.lastBytes = bytes
	m.lastAt = at
	return m.rate
}

// Rate returns the current smoothed rate in bytes per second.
func (m *Meter) Rate() float64 {
	return m.rate
}

// ETA estimates remaining seconds for a transfer of total bytes when bytes
// have completed. It returns -1 when the total is unknown or the rate is zero.
func (m *Meter) ETA(bytes, total int64) int64 {
	if total == UnknownTotal || total <= 0 || m.rate <= 0 {
		return -1
	}
	remaining := total - bytes
	if remaining <= 0 {
		return 0
	}
	return int64(float64(remaining) / m.rate)
}
