package runner

import (
	"sync"

	"inferload/internal/report"
)

const (
	// maxSamples is how many early successful replies are kept verbatim.
	maxSamples = 50
	// sampleWidth caps each kept reply excerpt.
	sampleWidth = 500
)

// Collector owns the append-only run collections. Sessions and the probe
// append concurrently; the coordinator snapshots once after the drain.
type Collector struct {
	mu       sync.Mutex
	outcomes []report.Outcome
	health   []report.HealthCheck
	samples  []report.ResponseSample
}

func NewCollector() *Collector {
	return &Collector{}
}

// AddOutcome appends one finished request record and captures a response
// sample while the sample budget lasts.
func (c *Collector) AddOutcome(o report.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, o)
	if o.Success() && len(c.samples) < maxSamples {
		c.samples = append(c.samples, report.ResponseSample{
			UserID:    o.UserID,
			Scenario:  o.Scenario,
			Timestamp: o.Timestamp,
			Response:  truncate(o.ResponseExcerpt, sampleWidth),
		})
	}
}

// AddHealth appends one probe observation.
func (c *Collector) AddHealth(h report.HealthCheck) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.health = append(c.health, h)
}

// Snapshot copies the collections out.
func (c *Collector) Snapshot() ([]report.Outcome, []report.HealthCheck, []report.ResponseSample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	outcomes := make([]report.Outcome, len(c.outcomes))
	copy(outcomes, c.outcomes)
	health := make([]report.HealthCheck, len(c.health))
	copy(health, c.health)
	samples := make([]report.ResponseSample, len(c.samples))
	copy(samples, c.samples)
	return outcomes, health, samples
}

// Counts reports collection sizes without copying.
func (c *Collector) Counts() (outcomes, health, samples int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outcomes), len(c.health), len(c.samples)
}
