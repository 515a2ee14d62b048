package sink

import (
	"fmt"
	"io"
	"strings"
	"time"

	"inferload/internal/config"
	"inferload/internal/report"
)

// timelineRows caps how much of the health timeline the console shows.
const timelineRows = 20

// sampleRows and sampleClip bound the response preview section.
const (
	sampleRows = 5
	sampleClip = 300
)

// Console renders a finished run as a styled terminal report.
type Console struct {
	out io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{out: w}
}

// Header prints the run banner box before any traffic starts.
func (c *Console) Header(cfg config.TestConfig) {
	var b strings.Builder
	b.WriteString(Title.Render("🚀 Starting Load Test"))
	b.WriteString("\n")
	b.WriteString(Box.Render(fmt.Sprintf(
		"Endpoint   : %s\nModel      : %s\nUsers      : %d\nDuration   : %ds\nMax Context: %d tokens\nTimeout    : %ds\nRetries    : %d\nEngine     : %s",
		cfg.Endpoint, cfg.ModelName, cfg.ConcurrentUsers, cfg.TestDurationSeconds,
		cfg.MaxContextTokens, cfg.RequestTimeoutSeconds, cfg.MaxRetries, cfg.HTTPEngine,
	)))
	b.WriteString("\n")
	fmt.Fprintln(c.out, b.String())
}

// Summary prints the full post-run report.
func (c *Console) Summary(rep *report.Report) {
	s := rep.Summary
	var b strings.Builder

	b.WriteString(Title.Render("📊 Load Test Complete"))
	b.WriteString("\n\n")

	b.WriteString(Section.Render("Requests"))
	b.WriteString("\n")
	b.WriteString(Box.Render(fmt.Sprintf(
		"Total Requests: %d\nSuccessful:     %d (%.1f%%)\nFailed:         %d (%.1f%%)\nTimeouts:       %d (%.1f%%)\nRetried:        %d",
		s.TotalRequests, s.Successful, s.SuccessRate, s.Failed, s.FailureRate,
		s.Timeouts, s.TimeoutRate, s.Retried,
	)))
	b.WriteString("\n\n")

	if s.Latency != nil {
		b.WriteString(Section.Render("Response Times (successful requests)"))
		b.WriteString("\n")
		b.WriteString(Box.Render(fmt.Sprintf(
			"Min:    %6.2fs\nMean:   %6.2fs\nMedian: %6.2fs\nP95:    %6.2fs\nP99:    %6.2fs\nMax:    %6.2fs",
			s.Latency.Min, s.Latency.Mean, s.Latency.Median,
			s.Latency.P95, s.Latency.P99, s.Latency.Max,
		)))
		b.WriteString("\n\n")
	}

	b.WriteString(Section.Render("Tokens & Throughput"))
	b.WriteString("\n")
	b.WriteString(Box.Render(fmt.Sprintf(
		"Tokens Sent:     %d (avg %.0f)\nTokens Received: %d (avg %.0f)\nRequests/s:      %.2f\nSuccessful/s:    %.2f\nTest Duration:   %.1fs",
		s.Tokens.TotalSent, s.Tokens.AvgSent,
		s.Tokens.TotalReceived, s.Tokens.AvgReceived,
		s.Throughput.RequestsPerSecond, s.Throughput.SuccessfulPerSecond,
		s.TestDuration,
	)))
	b.WriteString("\n\n")

	if len(s.Scenarios) > 0 {
		b.WriteString(Section.Render("Scenarios"))
		b.WriteString("\n")
		var rows []string
		for _, sc := range s.Scenarios {
			rows = append(rows, fmt.Sprintf("%-28s %5d reqs  %5d ok  avg %.2fs",
				sc.Scenario, sc.Requests, sc.Successful, sc.AvgResponseTime))
		}
		b.WriteString(Box.Render(strings.Join(rows, "\n")))
		b.WriteString("\n\n")
	}

	if len(s.ContextBuckets) > 0 {
		b.WriteString(Section.Render("Context Sizes"))
		b.WriteString("\n")
		var rows []string
		for _, bk := range s.ContextBuckets {
			rows = append(rows, fmt.Sprintf("%-8s %5d", bk.Range, bk.Count))
		}
		b.WriteString(Box.Render(strings.Join(rows, "\n")))
		b.WriteString("\n\n")
	}

	if len(s.Errors) > 0 {
		b.WriteString(Section.Render("Errors"))
		b.WriteString("\n")
		var rows []string
		top := s.Errors
		if len(top) > 10 {
			top = top[:10]
		}
		for _, e := range top {
			rows = append(rows, Bad.Render(fmt.Sprintf("%4dx %s", e.Count, e.Error)))
		}
		b.WriteString(Box.Render(strings.Join(rows, "\n")))
		b.WriteString("\n\n")
	}

	b.WriteString(Section.Render("Endpoint Health"))
	b.WriteString("\n")
	b.WriteString(c.renderHealth(rep))
	b.WriteString("\n")

	if len(rep.ResponseSamples) > 0 {
		b.WriteString("\n")
		b.WriteString(Section.Render("Response Samples"))
		b.WriteString("\n")
		var rows []string
		n := len(rep.ResponseSamples)
		if n > sampleRows {
			n = sampleRows
		}
		for _, sample := range rep.ResponseSamples[:n] {
			rows = append(rows, fmt.Sprintf("user %-3d %-28s %s",
				sample.UserID, sample.Scenario, Subtle.Render(clip(sample.Response, sampleClip))))
		}
		b.WriteString(Box.Render(strings.Join(rows, "\n")))
		b.WriteString("\n")
	}

	fmt.Fprintln(c.out, b.String())
}

func (c *Console) renderHealth(rep *report.Report) string {
	h := rep.Summary.EndpointHealth

	final := h.FinalStatus
	switch final {
	case report.HealthHealthy:
		final = Good.Render(final)
	case report.HealthUnhealthy:
		final = Warn.Render(final)
	case report.HealthError:
		final = Bad.Render(final)
	default:
		final = Subtle.Render(final)
	}

	rows := []string{fmt.Sprintf("Checks: %d healthy / %d total (%.0f%%)   Final: %s",
		h.HealthyChecks, h.TotalChecks, h.HealthyRatio*100, final)}

	timeline := rep.HealthChecks
	if len(timeline) > timelineRows {
		rows = append(rows, Subtle.Render(fmt.Sprintf("(last %d of %d checks)", timelineRows, len(timeline))))
		timeline = timeline[len(timeline)-timelineRows:]
	}
	for _, hc := range timeline {
		mark := Good.Render("ok")
		detail := ""
		if !hc.Healthy {
			mark = Bad.Render("fail")
			if hc.Error != "" {
				detail = " " + clip(hc.Error, 60)
			} else if hc.HTTPStatus != 0 {
				detail = fmt.Sprintf(" HTTP %d", hc.HTTPStatus)
			}
		}
		rows = append(rows, fmt.Sprintf("+%4ds  %-4s  active %2d%s",
			hc.ElapsedSeconds, mark, hc.ActiveRequests, detail))
	}
	return Box.Render(strings.Join(rows, "\n"))
}

func clip(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// FormatElapsed renders a duration for progress lines, mm:ss past a minute.
func FormatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
