package scenario

import (
	"fmt"
	"math/rand"
	"strings"
)

// Category partitions templates into the two simulated workload families.
type Category string

const (
	CategoryMCP     Category = "mcp"
	CategoryAgentic Category = "agentic"
)

// Template is one named prompt shape. SizeFraction scales the configured
// context window: a 0.3 template targets ~30% of max_context_tokens per
// request (before the per-request 0.7-1.0 variation).
type Template struct {
	Name         string            `yaml:"name"`
	Category     Category          `yaml:"category"`
	SizeFraction float64           `yaml:"size_fraction"`
	Prompt       string            `yaml:"prompt"`
	Filler       map[string]string `yaml:"filler,omitempty"`
}

// QualifiedName is the label used in reports and progress lines,
// e.g. "MCP_file_search" or "Agentic_research_task".
func (t Template) QualifiedName() string {
	switch t.Category {
	case CategoryMCP:
		return "MCP_" + t.Name
	case CategoryAgentic:
		return "Agentic_" + t.Name
	}
	return t.Name
}

func (t Template) validate() error {
	if t.Name == "" {
		return fmt.Errorf("scenario with empty name")
	}
	if t.Category != CategoryMCP && t.Category != CategoryAgentic {
		return fmt.Errorf("scenario %q: unknown category %q", t.Name, t.Category)
	}
	if t.SizeFraction <= 0 || t.SizeFraction > 1 {
		return fmt.Errorf("scenario %q: size_fraction must be in (0,1], got %v", t.Name, t.SizeFraction)
	}
	if strings.TrimSpace(t.Prompt) == "" {
		return fmt.Errorf("scenario %q: empty prompt", t.Name)
	}
	return nil
}

// EstimateTokens approximates token count at ~4 characters per token. Both
// sides of the report (tokens sent, context buckets) use this estimate.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// TargetTokens draws the per-request context size: the template's share of
// the window scaled by a uniform 0.7-1.0 factor.
func TargetTokens(frac float64, maxContextTokens int, rng *rand.Rand) int {
	base := float64(maxContextTokens) * frac
	variation := 0.7 + rng.Float64()*0.3
	return int(base * variation)
}

// PadToTokens appends filler until the prompt reaches approximately target
// tokens. Prompts already at or above target are returned unchanged.
func PadToTokens(prompt string, target int) string {
	current := EstimateTokens(prompt)
	if current >= target {
		return prompt
	}
	padChars := (target - current) * 4
	padding := "Additional context: " + strings.Repeat("detail ", padChars/7)
	return prompt + "\n\n" + padding
}
