package mockllm

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

// Options tune the mock endpoint's behavior. Rates are fractions in [0,1]
// rolled per request.
type Options struct {
	Port          int
	BaseLatency   time.Duration
	Jitter        time.Duration
	FailureRate   float64 // 500s
	RateLimitRate float64 // 429s with Retry-After
	ReplyTokens   int     // cap on generated completion tokens
}

// Server mimics an OpenAI-compatible chat completions endpoint for local
// rehearsal runs: real wire shapes, fake model.
type Server struct {
	opts Options
}

func New(opts Options) *Server {
	if opts.ReplyTokens <= 0 {
		opts.ReplyTokens = 60
	}
	return &Server{opts: opts}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type wireChoice struct {
	Index        int         `json:"index"`
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type wireResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   wireUsage    `json:"usage"`
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", s.handleChat)
	mux.HandleFunc("/v1/models", s.handleModels)
	return mux
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":{"message":"method not allowed"}}`, http.StatusMethodNotAllowed)
		return
	}

	var req wireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request body"}}`, http.StatusBadRequest)
		return
	}

	roll := rand.Float64()
	if roll < s.opts.FailureRate {
		http.Error(w, `{"error":{"message":"model backend overloaded"}}`, http.StatusInternalServerError)
		return
	}
	if roll < s.opts.FailureRate+s.opts.RateLimitRate {
		w.Header().Set("Retry-After", "1")
		http.Error(w, `{"error":{"message":"rate limit exceeded"}}`, http.StatusTooManyRequests)
		return
	}

	if s.opts.BaseLatency > 0 || s.opts.Jitter > 0 {
		delay := s.opts.BaseLatency
		if s.opts.Jitter > 0 {
			delay += time.Duration(rand.Int63n(int64(s.opts.Jitter)))
		}
		time.Sleep(delay)
	}

	prompt := ""
	if len(req.Messages) > 0 {
		prompt = req.Messages[len(req.Messages)-1].Content
	}
	content := s.reply(prompt, req.MaxTokens)

	resp := wireResponse{
		ID:      fmt.Sprintf("chatcmpl-mock-%d", rand.Int63()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []wireChoice{{
			Message:      wireMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: wireUsage{
			PromptTokens:     len(prompt) / 4,
			CompletionTokens: len(content) / 4,
			TotalTokens:      len(prompt)/4 + len(content)/4,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

var replyWords = []string{
	"analysis", "complete", "the", "requested", "review", "covers", "each",
	"item", "with", "findings", "summarized", "below", "and", "follow",
	"up", "actions", "listed", "in", "priority", "order",
}

// reply answers health probes with a literal OK and everything else with
// filler prose sized to the smaller of max_tokens and the reply cap.
func (s *Server) reply(prompt string, maxTokens int) string {
	if strings.Contains(prompt, "Reply with OK") {
		return "OK"
	}
	n := s.opts.ReplyTokens
	if maxTokens > 0 && maxTokens < n {
		n = maxTokens
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(replyWords[i%len(replyWords)])
	}
	return b.String()
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"object":"list","data":[{"id":"mock-llm","object":"model","owned_by":"inferload"}]}`)
}

// Start runs the server in the background for local rehearsals:
// inferload mockllm --port 8080, then point --endpoint at it.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	fmt.Printf("🤖 Mock LLM running on http://localhost%s\n", addr)
	fmt.Println("   POST /v1/chat/completions, GET /v1/models")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Mock LLM failed: %v\n", err)
		}
	}()
	return srv
}
