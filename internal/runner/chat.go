package runner

import "encoding/json"

// OpenAI chat-completions wire types, the only shape the generator speaks.

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

func buildChatBody(model, prompt string, maxTokens int, temperature float64) []byte {
	body, _ := json.Marshal(chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	return body
}

// parseChatResponse extracts the completion text and token count. ok is
// false when the body is not a chat completion; callers degrade to the raw
// body and zero tokens.
func parseChatResponse(body []byte) (content string, completionTokens int, ok bool) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", 0, false
	}
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	return content, resp.Usage.CompletionTokens, true
}

// truncate caps s at max bytes. JSON encoding tolerates a split rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
