package metrics

import (
	"sort"
	"sync"
	"time"
)

// EndpointStats summarizes the requests made to one upstream endpoint
type EndpointStats struct {
	Endpoint      string    `json:"endpoint"`
	Requests      int       `json:"requests"`
	Failures      int       `json:"failures"`
	MeanLatencyMs float64   `json:"mean_latency_ms"`
	StdDevMs      float64   `json:"stddev_latency_ms"`
	LastError     string    `json:"last_error,omitempty"`
	LastErrorAt   time.Time `json:"last_error_at,omitempty"`
}

type endpointState struct {
	latency   WelfordState
	failures  int
	lastErr   string
	lastErrAt time.Time
}

// Recorder keeps latency and failure statistics per upstream endpoint.
// Only successful requests contribute to latency.
type Recorder struct {
	mu        sync.Mutex
	endpoints map[string]*endpointState
	now       func() time.Time
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{
		endpoints: make(map[string]*endpointState),
		now:       time.Now,
	}
}

// Observe records the outcome of one request
func (r *Recorder) Observe(endpoint string, elapsed time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.endpoints[endpoint]
	if !ok {
		st = &endpointState{}
		r.endpoints[endpoint] = st
	}

	if err != nil {
		st.failures++
		st.lastErr = err.Error()
		st.lastErrAt = r.now()
		return
	}
	st.latency.Update(float64(elapsed) / float64(time.Millisecond))
}

// Snapshot returns the statistics of every endpoint seen so far, sorted by name
func (r *Recorder) Snapshot() []EndpointStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]EndpointStats, 0, len(r.endpoints))
	for name, st := range r.endpoints {
		out = append(out, EndpointStats{
			Endpoint:      name,
			Requests:      st.latency.Count + st.failures,
			Failures:      st.failures,
			MeanLatencyMs: st.latency.Mean,
			StdDevMs:      st.latency.StdDev(),
			LastError:     st.lastErr,
			LastErrorAt:   st.lastErrAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}
