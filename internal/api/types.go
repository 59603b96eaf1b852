package api

import "github.com/tsuki-kuma/tsuki/internal/inference"

// InferRequest is the body of POST /llm_infer.
type InferRequest struct {
	Prompt string `json:"prompt"`
}

type InferResponse struct {
	Reply string `json:"reply"`
}

// MessageResponse is the failure body of /llm_infer.
type MessageResponse struct {
	Message string `json:"message"`
}

// CompletionRequest is an OpenAI-style text completion request.
type CompletionRequest struct {
	Model         string   `json:"model,omitempty"`
	Prompt        string   `json:"prompt"`
	MaxTokens     *int     `json:"max_tokens,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	TopP          *float64 `json:"top_p,omitempty"`
	TopK          *int     `json:"top_k,omitempty"`
	MinP          *float64 `json:"min_p,omitempty"`
	RepeatPenalty *float64 `json:"repeat_penalty,omitempty"`
	RepeatWindow  *int     `json:"repeat_window,omitempty"`
	Seed          *int64   `json:"seed,omitempty"`
	Stop          *string  `json:"stop,omitempty"`
	ChatWrap      *bool    `json:"chat_wrap,omitempty"`
	Stream        bool     `json:"stream,omitempty"`
}

func (r CompletionRequest) config() inference.GenerationConfig {
	return inference.GenerationConfig{
		MaxTokens:     r.MaxTokens,
		Temperature:   r.Temperature,
		TopP:          r.TopP,
		TopK:          r.TopK,
		MinP:          r.MinP,
		RepeatPenalty: r.RepeatPenalty,
		RepeatWindow:  r.RepeatWindow,
		Seed:          r.Seed,
		Stop:          r.Stop,
		ChatWrap:      r.ChatWrap,
	}
}

type CompletionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   *CompletionUsage   `json:"usage,omitempty"`
}

// CompletionChoice carries text in non-streaming responses and a delta in
// streamed chunks. Replace counts trailing bytes of earlier text to drop
// before appending Text; it is only set when decoding rewrote them.
type CompletionChoice struct {
	Index            int     `json:"index"`
	Text             string  `json:"text"`
	Replace          int     `json:"replace,omitempty"`
	Reasoning        string  `json:"reasoning,omitempty"`
	ReasoningReplace int     `json:"reasoning_replace,omitempty"`
	FinishReason     *string `json:"finish_reason"`
	Seed             *int64  `json:"seed,omitempty"`
}

type CompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

type ModelObject struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type ModelList struct {
	Object string        `json:"object"`
	Data   []ModelObject `json:"data"`
}

type HealthResponse struct {
	Status string `json:"status"`
	LLM    bool   `json:"llm"`
	TTS    bool   `json:"tts"`
}
