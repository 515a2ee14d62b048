package scenario

import (
	"bufio"
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"text/template"

	"github.com/google/uuid"
)

// TemplateData is the per-request execution context for prompt templates.
type TemplateData struct {
	UserID int
	UUID   string
}

// aliasReplacer rewrites the shorthand variables custom catalogues use into
// field references before parsing.
var aliasReplacer = strings.NewReplacer(
	"{{userID}}", "{{.UserID}}",
	"{{uuid}}", "{{.UUID}}",
	"{{requestID}}", "{{.UUID}}",
)

// TemplateEngine parses and executes prompt templates. Custom catalogues can
// use {{userID}}, {{uuid}} and the random* functions to vary prompts per
// request; the stock templates are plain text.
type TemplateEngine struct {
	mu    sync.Mutex
	lines map[string][]string
}

func NewTemplateEngine() *TemplateEngine {
	return &TemplateEngine{lines: make(map[string][]string)}
}

// Preprocess expands shorthand variables into template field syntax.
func (e *TemplateEngine) Preprocess(input string) string {
	return aliasReplacer.Replace(input)
}

// Parse compiles one prompt body with the engine's function set.
func (e *TemplateEngine) Parse(name, text string) (*template.Template, error) {
	funcs := template.FuncMap{
		"randomInt":    randomInt,
		"randomUUID":   randomUUID,
		"uuid":         randomUUID,
		"randomChoice": randomChoice,
		"randomLine":   e.randomLine,
	}
	return template.New(name).Funcs(funcs).Parse(e.Preprocess(text))
}

// Execute renders a parsed template for one request.
func (e *TemplateEngine) Execute(t *template.Template, data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func randomInt(min, max int) int {
	if max <= min {
		return min
	}
	return min + rand.Intn(max-min)
}

func randomUUID() string {
	return uuid.New().String()
}

func randomChoice(choices ...string) string {
	if len(choices) == 0 {
		return ""
	}
	return choices[rand.Intn(len(choices))]
}

// randomLine picks a non-empty line from a file, loading and caching the
// file on first use.
func (e *TemplateEngine) randomLine(filename string) (string, error) {
	lines, err := e.cachedLines(filename)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", nil
	}
	return lines[rand.Intn(len(lines))], nil
}

func (e *TemplateEngine) cachedLines(filename string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if lines, ok := e.lines[filename]; ok {
		return lines, nil
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read line file %q: %w", filename, err)
	}
	var loaded []string
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			loaded = append(loaded, line)
		}
	}
	e.lines[filename] = loaded
	return loaded, nil
}
