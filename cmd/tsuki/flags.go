package main

import (
	"github.com/urfave/cli/v3"

	"github.com/tsuki-kuma/tsuki/internal/api"
	"github.com/tsuki-kuma/tsuki/internal/inference"
)

var (
	resourcesDir  string
	modelDir      string
	backend       string
	onnxLibrary   string
	threads       int64
	maxContext    int64
	maxConcurrent int64
	keepReasoning bool
	logLevel      string
	logFormat     string
	debug         bool
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "resources",
			Aliases:     []string{"r"},
			Usage:       "resources directory holding ai_models/",
			Sources:     cli.EnvVars("TSUKI_RESOURCES_DIR"),
			Destination: &resourcesDir,
		},
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "LLM model directory (overrides the resources layout)",
			Destination: &modelDir,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "execution backend (auto, onnx, toy)",
			Value:       inference.BackendAuto,
			Destination: &backend,
		},
		&cli.StringFlag{
			Name:        "onnx-library",
			Usage:       "path to the onnxruntime shared library",
			Sources:     cli.EnvVars("ONNXRUNTIME_LIB"),
			Destination: &onnxLibrary,
		},
		&cli.Int64Flag{
			Name:        "threads",
			Usage:       "intra-op threads for the onnx backend (0 = runtime default)",
			Destination: &threads,
		},
		&cli.Int64Flag{
			Name:        "max-context",
			Aliases:     []string{"ctx", "c"},
			Usage:       "cap on the model context length (0 = model default)",
			Destination: &maxContext,
		},
		&cli.Int64Flag{
			Name:        "max-concurrent",
			Usage:       "generations allowed to run at once",
			Value:       api.DefaultMaxConcurrent,
			Destination: &maxConcurrent,
		},
		&cli.BoolFlag{
			Name:        "keep-reasoning",
			Usage:       "keep <think> blocks in replies",
			Destination: &keepReasoning,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (auto, pretty, json, text)",
			Value:       "auto",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// samplingOpts collects the per-request knobs. Only knobs set by a flag or
// the config file reach the request config.
type samplingOpts struct {
	maxTokens     int64
	temperature   float64
	topP          float64
	topK          int64
	minP          float64
	repeatPenalty float64
	repeatWindow  int64
	seed          int64
	stop          string
	noChatWrap    bool

	fromConfig map[string]bool
}

func samplingFlags(o *samplingOpts) []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "max-tokens",
			Aliases:     []string{"n"},
			Usage:       "maximum tokens to generate",
			Destination: &o.maxTokens,
		},
		&cli.Float64Flag{
			Name:        "temperature",
			Aliases:     []string{"temp", "t"},
			Usage:       "sampling temperature (0 = greedy)",
			Destination: &o.temperature,
		},
		&cli.Float64Flag{
			Name:        "top-p",
			Usage:       "nucleus sampling cutoff in (0,1]",
			Destination: &o.topP,
		},
		&cli.Int64Flag{
			Name:        "top-k",
			Usage:       "keep the k most likely tokens (0 = off)",
			Destination: &o.topK,
		},
		&cli.Float64Flag{
			Name:        "min-p",
			Usage:       "drop tokens below min-p times the top probability",
			Destination: &o.minP,
		},
		&cli.Float64Flag{
			Name:        "repeat-penalty",
			Usage:       "penalty for tokens already in the sequence (>= 1)",
			Destination: &o.repeatPenalty,
		},
		&cli.Int64Flag{
			Name:        "repeat-window",
			Usage:       "trailing tokens the penalty looks at (0 = all)",
			Destination: &o.repeatWindow,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "random seed (random when unset)",
			Destination: &o.seed,
		},
		&cli.StringFlag{
			Name:        "stop",
			Usage:       "stop string; output is cut before it",
			Destination: &o.stop,
		},
		&cli.BoolFlag{
			Name:        "no-chat-wrap",
			Usage:       "send the prompt without the end-of-turn marker",
			Destination: &o.noChatWrap,
		},
	}
}

// config turns the flags set on the command line or filled from the
// config file into a GenerationConfig.
func (o *samplingOpts) config(c *cli.Command) inference.GenerationConfig {
	isSet := func(name string) bool { return c.IsSet(name) || o.fromConfig[name] }
	var cfg inference.GenerationConfig
	if isSet("max-tokens") {
		cfg.MaxTokens = inference.Ptr(int(o.maxTokens))
	}
	if isSet("temperature") {
		cfg.Temperature = inference.Ptr(o.temperature)
	}
	if isSet("top-p") {
		cfg.TopP = inference.Ptr(o.topP)
	}
	if isSet("top-k") {
		cfg.TopK = inference.Ptr(int(o.topK))
	}
	if isSet("min-p") {
		cfg.MinP = inference.Ptr(o.minP)
	}
	if isSet("repeat-penalty") {
		cfg.RepeatPenalty = inference.Ptr(o.repeatPenalty)
	}
	if isSet("repeat-window") {
		cfg.RepeatWindow = inference.Ptr(int(o.repeatWindow))
	}
	if isSet("seed") {
		cfg.Seed = inference.Ptr(o.seed)
	}
	if isSet("stop") {
		cfg.Stop = inference.Ptr(o.stop)
	}
	if isSet("no-chat-wrap") {
		cfg.ChatWrap = inference.Ptr(!o.noChatWrap)
	}
	return cfg
}
