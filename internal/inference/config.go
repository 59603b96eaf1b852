package inference

import (
	"math"
	"math/rand/v2"
	"os"

	json "github.com/goccy/go-json"
)

const (
	DefaultMaxTokens   = 1024
	DefaultTemperature = 1.0

	// EndOfTurn is appended to the prompt when chat wrapping is on.
	EndOfTurn = "<|im_end|>"
)

// GenerationConfig holds the per-request knobs. A nil field means "use the
// model or library default", never zero.
type GenerationConfig struct {
	MaxTokens     *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP          *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	TopK          *int     `json:"top_k,omitempty" yaml:"top_k,omitempty"`
	MinP          *float64 `json:"min_p,omitempty" yaml:"min_p,omitempty"`
	RepeatPenalty *float64 `json:"repeat_penalty,omitempty" yaml:"repeat_penalty,omitempty"`
	RepeatWindow  *int     `json:"repeat_window,omitempty" yaml:"repeat_window,omitempty"`
	Seed          *int64   `json:"seed,omitempty" yaml:"seed,omitempty"`
	Stop          *string  `json:"stop,omitempty" yaml:"stop,omitempty"`
	ChatWrap      *bool    `json:"chat_wrap,omitempty" yaml:"chat_wrap,omitempty"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// Validate rejects out-of-range knobs. It runs before any model work.
func (c GenerationConfig) Validate() error {
	if c.MaxTokens != nil && *c.MaxTokens < 0 {
		return invalidConfig("max_tokens must be >= 0, got %d", *c.MaxTokens)
	}
	if c.Temperature != nil {
		t := *c.Temperature
		if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
			return invalidConfig("temperature must be a finite value >= 0, got %v", t)
		}
	}
	if c.TopP != nil {
		p := *c.TopP
		if math.IsNaN(p) || p <= 0 || p > 1 {
			return invalidConfig("top_p must be in (0,1], got %v", p)
		}
	}
	if c.TopK != nil && *c.TopK < 0 {
		return invalidConfig("top_k must be >= 0, got %d", *c.TopK)
	}
	if c.MinP != nil {
		p := *c.MinP
		if math.IsNaN(p) || p < 0 || p > 1 {
			return invalidConfig("min_p must be in [0,1], got %v", p)
		}
	}
	if c.RepeatPenalty != nil {
		r := *c.RepeatPenalty
		if math.IsNaN(r) || math.IsInf(r, 0) || r < 1 {
			return invalidConfig("repeat_penalty must be >= 1, got %v", r)
		}
	}
	if c.RepeatWindow != nil && *c.RepeatWindow < 0 {
		return invalidConfig("repeat_window must be >= 0, got %d", *c.RepeatWindow)
	}
	return nil
}

// Merge returns c with every unset field taken from base.
func (c GenerationConfig) Merge(base GenerationConfig) GenerationConfig {
	out := c
	if out.MaxTokens == nil {
		out.MaxTokens = base.MaxTokens
	}
	if out.Temperature == nil {
		out.Temperature = base.Temperature
	}
	if out.TopP == nil {
		out.TopP = base.TopP
	}
	if out.TopK == nil {
		out.TopK = base.TopK
	}
	if out.MinP == nil {
		out.MinP = base.MinP
	}
	if out.RepeatPenalty == nil {
		out.RepeatPenalty = base.RepeatPenalty
	}
	if out.RepeatWindow == nil {
		out.RepeatWindow = base.RepeatWindow
	}
	if out.Seed == nil {
		out.Seed = base.Seed
	}
	if out.Stop == nil {
		out.Stop = base.Stop
	}
	if out.ChatWrap == nil {
		out.ChatWrap = base.ChatWrap
	}
	return out
}

// GenDefaults are the sampling defaults shipped with a model in
// generation_config.json.
type GenDefaults struct {
	Temperature       *float64
	TopK              *int
	TopP              *float64
	MinP              *float64
	RepetitionPenalty *float64
	MaxNewTokens      *int
}

func (d GenDefaults) config() GenerationConfig {
	cfg := GenerationConfig{
		Temperature:   d.Temperature,
		TopK:          d.TopK,
		MinP:          d.MinP,
		RepeatPenalty: d.RepetitionPenalty,
		MaxTokens:     d.MaxNewTokens,
	}
	// Shipped defaults are advisory: drop values that would fail validation.
	if d.TopP != nil && *d.TopP > 0 && *d.TopP <= 1 {
		cfg.TopP = d.TopP
	}
	if cfg.RepeatPenalty != nil && *cfg.RepeatPenalty < 1 {
		cfg.RepeatPenalty = nil
	}
	if cfg.Temperature != nil && *cfg.Temperature < 0 {
		cfg.Temperature = nil
	}
	if cfg.MaxTokens != nil && *cfg.MaxTokens < 0 {
		cfg.MaxTokens = nil
	}
	if cfg.TopK != nil && *cfg.TopK < 0 {
		cfg.TopK = nil
	}
	if cfg.MinP != nil && (*cfg.MinP < 0 || *cfg.MinP > 1) {
		cfg.MinP = nil
	}
	return cfg
}

// ParseGenDefaults reads generation_config.json contents. Malformed input
// yields empty defaults.
func ParseGenDefaults(genBytes []byte) GenDefaults {
	type hfGenerationConfig struct {
		DoSample          *bool    `json:"do_sample"`
		Temperature       *float64 `json:"temperature"`
		TopK              *int     `json:"top_k"`
		TopP              *float64 `json:"top_p"`
		MinP              *float64 `json:"min_p"`
		RepetitionPenalty *float64 `json:"repetition_penalty"`
		MaxNewTokens      *int     `json:"max_new_tokens"`
	}
	if len(genBytes) == 0 {
		return GenDefaults{}
	}
	var cfg hfGenerationConfig
	if err := json.Unmarshal(genBytes, &cfg); err != nil {
		return GenDefaults{}
	}
	d := GenDefaults{
		Temperature:       cfg.Temperature,
		TopK:              cfg.TopK,
		TopP:              cfg.TopP,
		MinP:              cfg.MinP,
		RepetitionPenalty: cfg.RepetitionPenalty,
		MaxNewTokens:      cfg.MaxNewTokens,
	}
	if cfg.DoSample != nil && !*cfg.DoSample {
		d.Temperature = Ptr(0.0)
	}
	return d
}

func LoadGenDefaults(path string) GenDefaults {
	b, err := os.ReadFile(path)
	if err != nil {
		return GenDefaults{}
	}
	return ParseGenDefaults(b)
}

// params is a GenerationConfig with every default applied.
type params struct {
	maxTokens     int
	temperature   float64
	topP          float64
	topK          int
	minP          float64
	repeatPenalty float64
	repeatWindow  int
	seed          int64
	stop          string
}

// resolve fills defaults. promptLen and contextLen bound the default
// max_tokens when the backend reports a context length.
func resolve(c GenerationConfig, promptLen, contextLen int) params {
	p := params{
		maxTokens:     DefaultMaxTokens,
		temperature:   DefaultTemperature,
		topP:          1,
		repeatPenalty: 1,
	}
	if contextLen > 0 {
		p.maxTokens = max(contextLen-promptLen, 0)
	}
	if c.MaxTokens != nil {
		p.maxTokens = *c.MaxTokens
	}
	if c.Temperature != nil {
		p.temperature = *c.Temperature
	}
	if c.TopP != nil {
		p.topP = *c.TopP
	}
	if c.TopK != nil {
		p.topK = *c.TopK
	}
	if c.MinP != nil {
		p.minP = *c.MinP
	}
	if c.RepeatPenalty != nil {
		p.repeatPenalty = *c.RepeatPenalty
	}
	if c.RepeatWindow != nil {
		p.repeatWindow = *c.RepeatWindow
	}
	if c.Seed != nil {
		p.seed = *c.Seed
	} else {
		p.seed = rand.Int64()
	}
	if c.Stop != nil {
		p.stop = *c.Stop
	}
	return p
}

func (c GenerationConfig) chatWrap() bool {
	return c.ChatWrap == nil || *c.ChatWrap
}
