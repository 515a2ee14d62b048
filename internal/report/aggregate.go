package report

import (
	"fmt"
	"math"
	"sort"
	"time"

	"inferload/internal/config"
)

// bucketBounds are the fixed context-size boundaries, in tokens.
var bucketBounds = []int{1000, 2000, 4000, 8000, 16000}

// Aggregate computes the full report from the finished collections. It is a
// pure function: the inputs are snapshots, the output is immutable.
func Aggregate(cfg config.TestConfig, runID string, started time.Time, elapsed time.Duration, outcomes []Outcome, health []HealthCheck, samples []ResponseSample) *Report {
	s := Summary{
		RunID:          runID,
		StartedAt:      started,
		TestDuration:   elapsed.Seconds(),
		TotalRequests:  len(outcomes),
		StatusCounts:   map[string]int{},
		Scenarios:      []ScenarioStats{},
		ContextBuckets: contextBuckets(outcomes),
		EndpointHealth: healthSummary(health),
	}

	var latencies []float64
	errorCounts := map[string]int{}
	type scenarioAcc struct {
		requests   int
		successful int
		totalTime  float64
	}
	perScenario := map[string]*scenarioAcc{}

	for _, o := range outcomes {
		s.StatusCounts[o.Status]++

		acc := perScenario[o.Scenario]
		if acc == nil {
			acc = &scenarioAcc{}
			perScenario[o.Scenario] = acc
		}
		acc.requests++

		switch {
		case o.Success():
			s.Successful++
			acc.successful++
			acc.totalTime += o.ElapsedSeconds
			latencies = append(latencies, o.ElapsedSeconds)
			s.Tokens.TotalSent += int64(o.TokensSent)
			s.Tokens.TotalReceived += int64(o.TokensReceived)
		case o.Status == StatusTimeout:
			s.Timeouts++
		default:
			s.Failed++
		}
		if !o.Success() {
			msg := o.Error
			if msg == "" {
				msg = "Unknown"
			}
			errorCounts[truncateMsg(msg, 100)]++
		}
		if o.Retries > 0 {
			s.Retried++
		}
	}

	if n := float64(len(outcomes)); n > 0 {
		s.SuccessRate = 100 * float64(s.Successful) / n
		s.FailureRate = 100 * float64(s.Failed) / n
		s.TimeoutRate = 100 * float64(s.Timeouts) / n
	}
	if s.Successful > 0 {
		s.Tokens.AvgSent = float64(s.Tokens.TotalSent) / float64(s.Successful)
		s.Tokens.AvgReceived = float64(s.Tokens.TotalReceived) / float64(s.Successful)
	}
	if secs := elapsed.Seconds(); secs > 0 {
		s.Throughput.RequestsPerSecond = float64(len(outcomes)) / secs
		s.Throughput.SuccessfulPerSecond = float64(s.Successful) / secs
	}

	if len(latencies) > 0 {
		sort.Float64s(latencies)
		var sum float64
		for _, v := range latencies {
			sum += v
		}
		s.Latency = &LatencyStats{
			Min:    latencies[0],
			Max:    latencies[len(latencies)-1],
			Mean:   sum / float64(len(latencies)),
			Median: median(latencies),
			P95:    percentile(latencies, 95),
			P99:    percentile(latencies, 99),
		}
	}

	names := make([]string, 0, len(perScenario))
	for name := range perScenario {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		acc := perScenario[name]
		st := ScenarioStats{
			Scenario:   name,
			Requests:   acc.requests,
			Successful: acc.successful,
		}
		if acc.successful > 0 {
			st.AvgResponseTime = acc.totalTime / float64(acc.successful)
		}
		s.Scenarios = append(s.Scenarios, st)
	}

	for msg, count := range errorCounts {
		s.Errors = append(s.Errors, ErrorCount{Error: msg, Count: count})
	}
	sort.Slice(s.Errors, func(i, j int) bool {
		if s.Errors[i].Count != s.Errors[j].Count {
			return s.Errors[i].Count > s.Errors[j].Count
		}
		return s.Errors[i].Error < s.Errors[j].Error
	})

	return &Report{
		Config:          cfg.Redacted(),
		Summary:         s,
		HealthChecks:    health,
		ResponseSamples: samples,
		Results:         outcomes,
	}
}

// percentile is nearest-rank over an ascending sample: the smallest value
// with at least p percent of the sample at or below it,
// index ceil(p/100*n)-1.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// median averages the two middle values for even-sized samples.
func median(sorted []float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return 0
	case n%2 == 1:
		return sorted[n/2]
	default:
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
}

func contextBuckets(outcomes []Outcome) []BucketStats {
	buckets := make([]BucketStats, len(bucketBounds)+1)
	prev := 0
	for i, bound := range bucketBounds {
		buckets[i].Range = fmt.Sprintf("%s-%s", kTokens(prev), kTokens(bound))
		prev = bound
	}
	buckets[len(bucketBounds)].Range = kTokens(bucketBounds[len(bucketBounds)-1]) + "+"

	for _, o := range outcomes {
		placed := false
		for i, bound := range bucketBounds {
			if o.ContextTokens <= bound {
				buckets[i].Count++
				placed = true
				break
			}
		}
		if !placed {
			buckets[len(bucketBounds)].Count++
		}
	}
	return buckets
}

func kTokens(n int) string {
	if n == 0 {
		return "0"
	}
	return fmt.Sprintf("%dk", n/1000)
}

func healthSummary(health []HealthCheck) HealthSummary {
	hs := HealthSummary{TotalChecks: len(health), FinalStatus: "unknown"}
	for _, h := range health {
		if h.Healthy {
			hs.HealthyChecks++
		} else {
			hs.UnhealthyChecks++
		}
	}
	if hs.TotalChecks > 0 {
		hs.HealthyRatio = float64(hs.HealthyChecks) / float64(hs.TotalChecks)
		hs.FinalStatus = health[len(health)-1].Status
	}
	return hs
}

func truncateMsg(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
