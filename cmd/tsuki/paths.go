package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/tsuki-kuma/tsuki/internal/api"
	"github.com/tsuki-kuma/tsuki/internal/inference"
	"github.com/tsuki-kuma/tsuki/internal/logger"
	"github.com/tsuki-kuma/tsuki/internal/resources"
)

// Small seams for tests.
var (
	stdinIsTTY  = func() bool { return isTerminal(os.Stdin) }
	stderrIsTTY = func() bool { return isTerminal(os.Stderr) }
	loadConfig  = func() (Config, error) { return LoadConfig(configPath()) }
)

// setup reads the config file, applies it under the explicit flags and
// installs the logger on ctx.
func setup(ctx context.Context, c *cli.Command) (context.Context, Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return ctx, cfg, cli.Exit(fmt.Sprintf("error: config: %v", err), 1)
	}
	applyCommonConfig(c, cfg)

	level := logger.ParseLevel(logLevel)
	if debug {
		level = logger.ParseLevel("debug")
	}
	log := logger.ForFormat(logFormat, os.Stderr, level, stderrIsTTY())
	return logger.WithContext(ctx, log), cfg, nil
}

// resolvePaths locates the model directories. A resolution failure is
// logged and the partial result returned; the facade then reports the
// missing model on every call.
func resolvePaths(log logger.Logger, root, model string) resources.Paths {
	root = strings.TrimSpace(root)
	if root == "" {
		root = resources.DefaultRoot()
	}
	paths, err := resources.Resolve(root)
	if model = strings.TrimSpace(model); model != "" {
		paths.LLM = filepath.Clean(model)
		err = nil
	}
	if err != nil {
		log.Error("resolve resources", "root", root, "error", err)
	} else {
		log.Debug("resources resolved", "root", paths.Root, "llm", paths.LLM, "tts", paths.TTS)
	}
	return paths
}

// app bundles what the commands share.
type app struct {
	facade   *api.Facade
	service  *api.InferenceService
	provider *api.CachedEngineProvider
}

func newApp(ctx context.Context) *app {
	log := logger.FromContext(ctx)
	provider := api.NewCachedEngineProvider(inference.Loader{
		Backend:     backend,
		ONNXLibrary: onnxLibrary,
		Threads:     int(threads),
		MaxContext:  int(maxContext),
		Logger:      log,
	})
	service := api.NewInferenceService(provider, int(maxConcurrent))
	facade := api.NewFacade(service, resolvePaths(log, resourcesDir, modelDir))
	facade.KeepReasoning = keepReasoning
	facade.Logger = log
	return &app{facade: facade, service: service, provider: provider}
}

func (a *app) Close() error {
	return a.provider.Close()
}
