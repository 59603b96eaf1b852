package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/tsuki-kuma/tsuki/internal/inference"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := "resources_dir: /srv/res\nbackend: toy\ntemperature: 0.2\nmax_tokens: 64\nchat_wrap: false\nserver_address: 0.0.0.0:9000\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.ResourcesDir != "/srv/res" || cfg.Backend != "toy" || cfg.ServerAddress != "0.0.0.0:9000" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0.2 {
		t.Fatalf("temperature = %v", cfg.Temperature)
	}
	if cfg.ChatWrap == nil || *cfg.ChatWrap {
		t.Fatalf("chat_wrap = %v", cfg.ChatWrap)
	}
	if cfg.TopP != nil {
		t.Fatalf("unset top_p must stay nil, got %v", *cfg.TopP)
	}
}

func TestLoadConfigMissingAndInvalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg, err := LoadConfig(filepath.Join(dir, "absent.yaml"))
	if err != nil || cfg.Backend != "" {
		t.Fatalf("missing file: cfg=%+v err=%v", cfg, err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("temperature: [oops"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(bad); err == nil {
		t.Fatal("expected parse error")
	}
}

// runWithSampling parses args against the sampling flags and returns the
// request config built after the file config is applied.
func runWithSampling(t *testing.T, cfg Config, args ...string) inference.GenerationConfig {
	t.Helper()
	var o samplingOpts
	var got inference.GenerationConfig
	cmd := &cli.Command{
		Name:  "test",
		Flags: samplingFlags(&o),
		Action: func(ctx context.Context, c *cli.Command) error {
			applySamplingConfig(c, cfg, &o)
			got = o.config(c)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), append([]string{"test"}, args...)); err != nil {
		t.Fatalf("run: %v", err)
	}
	return got
}

func TestSamplingPrecedence(t *testing.T) {
	temp, seed, chatWrap := 0.9, int64(5), false
	file := Config{Temperature: &temp, Seed: &seed, ChatWrap: &chatWrap}

	got := runWithSampling(t, file, "--temperature", "0.1", "--top-k", "3")
	if got.Temperature == nil || *got.Temperature != 0.1 {
		t.Fatalf("explicit flag must win, got %v", got.Temperature)
	}
	if got.Seed == nil || *got.Seed != 5 {
		t.Fatalf("seed not taken from file: %v", got.Seed)
	}
	if got.TopK == nil || *got.TopK != 3 {
		t.Fatalf("top_k = %v", got.TopK)
	}
	if got.ChatWrap == nil || *got.ChatWrap {
		t.Fatalf("chat_wrap from file = %v", got.ChatWrap)
	}
	if got.TopP != nil || got.MaxTokens != nil || got.Stop != nil {
		t.Fatalf("unset knobs must stay nil: %+v", got)
	}
}

func TestSamplingZeroValuesAreSet(t *testing.T) {
	got := runWithSampling(t, Config{}, "--temperature", "0", "--max-tokens", "0")
	if got.Temperature == nil || *got.Temperature != 0 {
		t.Fatalf("explicit zero temperature lost: %v", got.Temperature)
	}
	if got.MaxTokens == nil || *got.MaxTokens != 0 {
		t.Fatalf("explicit zero max_tokens lost: %v", got.MaxTokens)
	}
}

func TestDefaultsFromConfig(t *testing.T) {
	t.Parallel()

	maxTokens, topK := int64(32), int64(4)
	temp := 0.0
	got := defaultsFromConfig(Config{MaxTokens: &maxTokens, TopK: &topK, Temperature: &temp})
	if got.MaxTokens == nil || *got.MaxTokens != 32 || got.TopK == nil || *got.TopK != 4 {
		t.Fatalf("unexpected defaults: %+v", got)
	}
	if got.Temperature == nil || *got.Temperature != 0 {
		t.Fatalf("temperature = %v", got.Temperature)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}
