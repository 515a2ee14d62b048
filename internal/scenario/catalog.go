package scenario

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Catalog holds the loaded templates split by category, with prompts parsed
// once up front. Read-only after construction.
type Catalog struct {
	mcp     []Template
	agentic []Template
	engine  *TemplateEngine
	parsed  map[string]*template.Template
}

// NewCatalog validates the templates and pre-parses every prompt with its
// static filler already substituted.
func NewCatalog(templates []Template) (*Catalog, error) {
	if len(templates) == 0 {
		return nil, fmt.Errorf("scenario catalogue is empty")
	}
	c := &Catalog{
		engine: NewTemplateEngine(),
		parsed: make(map[string]*template.Template, len(templates)),
	}
	seen := make(map[string]bool, len(templates))
	for _, t := range templates {
		if err := t.validate(); err != nil {
			return nil, err
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("scenario %q: duplicate name", t.Name)
		}
		seen[t.Name] = true

		body := t.Prompt
		for key, value := range t.Filler {
			body = fillPlaceholder(body, key, value)
		}
		parsed, err := c.engine.Parse(t.Name, body)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", t.Name, err)
		}
		c.parsed[t.Name] = parsed

		switch t.Category {
		case CategoryMCP:
			c.mcp = append(c.mcp, t)
		case CategoryAgentic:
			c.agentic = append(c.agentic, t)
		}
	}
	return c, nil
}

// Builtin returns a catalogue of the stock templates.
func Builtin() *Catalog {
	c, err := NewCatalog(Builtins())
	if err != nil {
		panic(err) // stock templates are constants
	}
	return c
}

// LoadFile reads a YAML catalogue and replaces the built-ins entirely.
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	var doc struct {
		Scenarios []Template `yaml:"scenarios"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse scenario file %s: %w", path, err)
	}
	c, err := NewCatalog(doc.Scenarios)
	if err != nil {
		return nil, fmt.Errorf("scenario file %s: %w", path, err)
	}
	return c, nil
}

// All returns every template in catalogue order (MCP first).
func (c *Catalog) All() []Template {
	out := make([]Template, 0, len(c.mcp)+len(c.agentic))
	out = append(out, c.mcp...)
	out = append(out, c.agentic...)
	return out
}

// Sample picks a category by mcpRatio, then a template uniformly within it.
// A catalogue missing one category falls through to the other.
func (c *Catalog) Sample(rng *rand.Rand, mcpRatio float64) Template {
	pool := c.agentic
	if rng.Float64() < mcpRatio {
		pool = c.mcp
	}
	if len(pool) == 0 {
		if len(c.mcp) > 0 {
			pool = c.mcp
		} else {
			pool = c.agentic
		}
	}
	return pool[rng.Intn(len(pool))]
}

// RenderPrompt renders the template for one request and pads it to the
// drawn token target.
func (c *Catalog) RenderPrompt(t Template, data TemplateData, targetTokens int) (string, error) {
	parsed, ok := c.parsed[t.Name]
	if !ok {
		return "", fmt.Errorf("scenario %q: not in catalogue", t.Name)
	}
	prompt, err := c.engine.Execute(parsed, data)
	if err != nil {
		return "", fmt.Errorf("scenario %q: %w", t.Name, err)
	}
	return PadToTokens(prompt, targetTokens), nil
}

func fillPlaceholder(body, key, value string) string {
	return strings.ReplaceAll(body, "{"+key+"}", value)
}
