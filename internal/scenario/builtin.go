package scenario

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Builtins returns the stock catalogue: three tool-calling (MCP) shapes and
// three multi-step agentic shapes, each with a fixed share of the context
// window and enough canned filler to look like real session state.
func Builtins() []Template {
	return []Template{
		{
			Name:         "file_search",
			Category:     CategoryMCP,
			SizeFraction: 0.3,
			Prompt: `You are an AI assistant with access to a file system.
The user has asked you to search for files matching a pattern.
Available tools:
- search_files(pattern: str, path: str) -> List[str]
- read_file(path: str) -> str
- list_directory(path: str) -> List[str]

Context: You have access to a large codebase with the following structure:
{file_tree}

User request: Find all Python files that contain database connection logic and summarize their contents.
`,
			Filler: map[string]string{"file_tree": fileTreeFiller()},
		},
		{
			Name:         "data_analysis",
			Category:     CategoryMCP,
			SizeFraction: 0.5,
			Prompt: `You are a data analysis AI with access to query tools.
Available tools:
- execute_query(sql: str) -> DataFrame
- calculate_statistics(data: List) -> Dict
- create_visualization(data: List, chart_type: str) -> Image

Context: Database schema and sample data:
{schema_data}

User request: Analyze the sales trends over the last quarter and identify the top performing products.
`,
			Filler: map[string]string{"schema_data": schemaFiller()},
		},
		{
			Name:         "code_review",
			Category:     CategoryMCP,
			SizeFraction: 0.4,
			Prompt: `You are a code review AI assistant.
Available tools:
- analyze_code(file_path: str) -> CodeAnalysis
- check_security(code: str) -> SecurityReport
- suggest_improvements(code: str) -> List[Suggestion]

Context: Review the following code files:
{code_files}

User request: Review these files for security vulnerabilities and performance issues.
`,
			Filler: map[string]string{"code_files": codeFilesFiller()},
		},
		{
			Name:         "research_task",
			Category:     CategoryAgentic,
			SizeFraction: 0.6,
			Prompt: `You are an autonomous research agent. Your task involves:
1. Gathering information from multiple sources
2. Synthesizing the information
3. Drawing conclusions
4. Providing recommendations

Previous research context:
{research_context}

Current task: Research the impact of AI on software development practices and provide a comprehensive analysis.
Please break this down into subtasks and execute them systematically.
`,
			Filler: map[string]string{"research_context": researchFiller()},
		},
		{
			Name:         "planning_task",
			Category:     CategoryAgentic,
			SizeFraction: 0.7,
			Prompt: `You are a planning agent responsible for breaking down complex tasks.
You have access to previous planning sessions and outcomes.

Historical planning data:
{planning_history}

Current objective: Design and implement a scalable microservices architecture for an e-commerce platform.
Create a detailed implementation plan with:
- Architecture decisions
- Technology choices
- Implementation steps
- Risk assessment
- Timeline estimates
`,
			Filler: map[string]string{"planning_history": planningFiller()},
		},
		{
			Name:         "problem_solving",
			Category:     CategoryAgentic,
			SizeFraction: 0.8,
			Prompt: `You are a problem-solving agent with reasoning capabilities.
You need to analyze complex scenarios and provide solutions.

Problem context and constraints:
{problem_context}

Problem: A distributed system is experiencing intermittent failures. Analyze the logs, identify root causes, and propose solutions.
Use chain-of-thought reasoning to work through this systematically.
`,
			Filler: map[string]string{"problem_context": problemFiller()},
		},
	}
}

func fileTreeFiller() string {
	var b strings.Builder
	for i := 0; i < 10; i++ {
		for j := 0; j < 5; j++ {
			fmt.Fprintf(&b, "src/module_%d/file_%d.py\n", i, j)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func schemaFiller() string {
	repeat := func(cols []string, n int) []string {
		out := make([]string, 0, len(cols)*n)
		for i := 0; i < n; i++ {
			out = append(out, cols...)
		}
		return out
	}
	type record struct {
		Record int    `json:"record"`
		Data   string `json:"data"`
	}
	samples := make([]record, 20)
	for i := range samples {
		samples[i] = record{Record: i, Data: strings.Repeat("sample", 10)}
	}
	doc := map[string]any{
		"tables": map[string]any{
			"sales":     map[string]any{"columns": repeat([]string{"id", "product_id", "amount", "date", "customer_id"}, 10)},
			"products":  map[string]any{"columns": repeat([]string{"id", "name", "category", "price"}, 10)},
			"customers": map[string]any{"columns": repeat([]string{"id", "name", "email", "region"}, 10)},
		},
		"sample_data": samples,
	}
	out, _ := json.MarshalIndent(doc, "", "  ")
	return string(out)
}

func codeFilesFiller() string {
	files := make([]string, 5)
	for i := range files {
		files[i] = fmt.Sprintf("# File: module_%d.py\n%s", i, strings.Repeat("def function():\n    pass\n", 20))
	}
	return strings.Join(files, "\n\n")
}

func researchFiller() string {
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = fmt.Sprintf("Study %d: %s", i, strings.Repeat("Finding ", 30))
	}
	return strings.Join(lines, "\n")
}

func planningFiller() string {
	type session struct {
		Session  int      `json:"session"`
		Tasks    []string `json:"tasks"`
		Outcomes string   `json:"outcomes"`
	}
	sessions := make([]session, 5)
	for i := range sessions {
		tasks := make([]string, 5)
		for j := range tasks {
			tasks[j] = strings.Repeat("task", 10)
		}
		sessions[i] = session{Session: i, Tasks: tasks, Outcomes: strings.Repeat("success", 20)}
	}
	out, _ := json.MarshalIndent(sessions, "", "  ")
	return string(out)
}

func problemFiller() string {
	type entry struct {
		Timestamp int    `json:"timestamp"`
		Level     string `json:"level"`
		Message   string `json:"message"`
		Stack     string `json:"stack"`
	}
	lines := make([]string, 15)
	for i := range lines {
		payload, _ := json.Marshal(entry{
			Timestamp: i,
			Level:     "ERROR",
			Message:   strings.Repeat("error", 10),
			Stack:     strings.Repeat("trace", 10),
		})
		lines[i] = fmt.Sprintf("Log entry %d: %s", i, payload)
	}
	return strings.Join(lines, "\n")
}
