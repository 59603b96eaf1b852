package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/tsuki-kuma/tsuki/internal/inference"
)

// Config represents the tsuki configuration file (~/.config/tsuki/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	ResourcesDir string `yaml:"resources_dir"`
	ModelDir     string `yaml:"model_dir"`

	// Sampling defaults
	MaxTokens     *int64   `yaml:"max_tokens"`
	Temperature   *float64 `yaml:"temperature"`
	TopK          *int64   `yaml:"top_k"`
	TopP          *float64 `yaml:"top_p"`
	MinP          *float64 `yaml:"min_p"`
	RepeatPenalty *float64 `yaml:"repeat_penalty"`
	RepeatWindow  *int64   `yaml:"repeat_window"`
	Seed          *int64   `yaml:"seed"`
	ChatWrap      *bool    `yaml:"chat_wrap"`
	KeepReasoning *bool    `yaml:"keep_reasoning"`

	// Backend
	Backend       string `yaml:"backend"`
	ONNXLibrary   string `yaml:"onnx_library"`
	Threads       *int64 `yaml:"threads"`
	MaxContext    *int64 `yaml:"max_context"`
	MaxConcurrent *int64 `yaml:"max_concurrent"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "tsuki", "config.yaml")
}

// LoadConfig reads the config file. A missing file yields a zero Config.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// applyCommonConfig applies config file defaults to the shared flags that
// were not set explicitly.
func applyCommonConfig(c *cli.Command, cfg Config) {
	if cfg.ResourcesDir != "" && !c.IsSet("resources") {
		resourcesDir = cfg.ResourcesDir
	}
	if cfg.ModelDir != "" && !c.IsSet("model") {
		modelDir = cfg.ModelDir
	}
	if cfg.Backend != "" && !c.IsSet("backend") {
		backend = cfg.Backend
	}
	if cfg.ONNXLibrary != "" && !c.IsSet("onnx-library") {
		onnxLibrary = cfg.ONNXLibrary
	}
	if cfg.Threads != nil && !c.IsSet("threads") {
		threads = *cfg.Threads
	}
	if cfg.MaxContext != nil && !c.IsSet("max-context") {
		maxContext = *cfg.MaxContext
	}
	if cfg.MaxConcurrent != nil && !c.IsSet("max-concurrent") {
		maxConcurrent = *cfg.MaxConcurrent
	}
	if cfg.KeepReasoning != nil && !c.IsSet("keep-reasoning") {
		keepReasoning = *cfg.KeepReasoning
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applySamplingConfig fills sampling flags that were not set explicitly.
// Filled names count as set when the request config is built.
func applySamplingConfig(c *cli.Command, cfg Config, o *samplingOpts) {
	if o.fromConfig == nil {
		o.fromConfig = make(map[string]bool)
	}
	set := func(name string, ok bool, apply func()) {
		if ok && !c.IsSet(name) {
			apply()
			o.fromConfig[name] = true
		}
	}
	set("max-tokens", cfg.MaxTokens != nil, func() { o.maxTokens = *cfg.MaxTokens })
	set("temperature", cfg.Temperature != nil, func() { o.temperature = *cfg.Temperature })
	set("top-k", cfg.TopK != nil, func() { o.topK = *cfg.TopK })
	set("top-p", cfg.TopP != nil, func() { o.topP = *cfg.TopP })
	set("min-p", cfg.MinP != nil, func() { o.minP = *cfg.MinP })
	set("repeat-penalty", cfg.RepeatPenalty != nil, func() { o.repeatPenalty = *cfg.RepeatPenalty })
	set("repeat-window", cfg.RepeatWindow != nil, func() { o.repeatWindow = *cfg.RepeatWindow })
	set("seed", cfg.Seed != nil, func() { o.seed = *cfg.Seed })
	set("no-chat-wrap", cfg.ChatWrap != nil, func() { o.noChatWrap = !*cfg.ChatWrap })
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// defaultsFromConfig is the request default set for the server, where no
// sampling flags exist.
func defaultsFromConfig(cfg Config) inference.GenerationConfig {
	var out inference.GenerationConfig
	if cfg.MaxTokens != nil {
		out.MaxTokens = inference.Ptr(int(*cfg.MaxTokens))
	}
	out.Temperature = cfg.Temperature
	if cfg.TopK != nil {
		out.TopK = inference.Ptr(int(*cfg.TopK))
	}
	out.TopP = cfg.TopP
	out.MinP = cfg.MinP
	out.RepeatPenalty = cfg.RepeatPenalty
	if cfg.RepeatWindow != nil {
		out.RepeatWindow = inference.Ptr(int(*cfg.RepeatWindow))
	}
	out.Seed = cfg.Seed
	out.ChatWrap = cfg.ChatWrap
	return out
}
