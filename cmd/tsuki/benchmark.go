package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/tsuki-kuma/tsuki/internal/api"
	"github.com/tsuki-kuma/tsuki/internal/inference"
	"github.com/tsuki-kuma/tsuki/internal/logger"
)

const defaultBenchSeed = 42

func benchCmd() *cli.Command {
	var (
		prompt      string
		runs        int64
		concurrency int64
		sampling    samplingOpts
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "prompt",
			Aliases:     []string{"p"},
			Usage:       "prompt text for benchmarking",
			Value:       "Explain the theory of relativity in simple terms.",
			Destination: &prompt,
		},
		&cli.Int64Flag{
			Name:        "runs",
			Usage:       "number of generations",
			Value:       4,
			Destination: &runs,
		},
		&cli.Int64Flag{
			Name:        "concurrency",
			Usage:       "generations submitted at once",
			Value:       2,
			Destination: &concurrency,
		},
	}
	flags = append(flags, samplingFlags(&sampling)...)

	return &cli.Command{
		Name:  "bench",
		Usage: "Run seeded generations concurrently and check they agree",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, cfg, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			applySamplingConfig(cmd, cfg, &sampling)
			if runs < 1 {
				return cli.Exit("error: --runs must be >= 1", 1)
			}

			a := newApp(ctx)
			defer func() { _ = a.Close() }()

			gen := sampling.config(cmd)
			if gen.Seed == nil {
				gen.Seed = inference.Ptr(int64(defaultBenchSeed))
			}
			if gen.MaxTokens == nil {
				gen.MaxTokens = inference.Ptr(128)
			}

			loadStart := time.Now()
			if _, err := a.facade.Generate(ctx, inference.GenerationConfig{MaxTokens: inference.Ptr(0)}, prompt, nil); err != nil {
				return cli.Exit("error: load model: "+api.FlattenError(err), 1)
			}
			loadDuration := time.Since(loadStart)

			fmt.Println("=== tsuki bench ===")
			fmt.Printf("Model:       %s\n", a.facade.Paths().LLM)
			fmt.Printf("Backend:     %s\n", backend)
			fmt.Printf("CPUs:        %d\n", runtime.NumCPU())
			fmt.Printf("Load:        %s\n", loadDuration.Round(time.Millisecond))
			fmt.Printf("Max tokens:  %d\n", *gen.MaxTokens)
			fmt.Printf("Seed:        %d\n", *gen.Seed)
			fmt.Printf("Runs:        %d (concurrency %d, slots %d)\n", runs, concurrency, a.service.MaxConcurrent())
			fmt.Println()

			bar := progressbar.NewOptions(int(runs),
				progressbar.OptionSetDescription("Generating"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "=",
					SaucerHead:    ">",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
			)

			results, err := runBench(ctx, a.facade, prompt, gen, int(runs), int(concurrency), func() { _ = bar.Add(1) })
			_ = bar.Finish()
			_, _ = fmt.Fprintln(os.Stderr)
			if err != nil {
				return cli.Exit("error: "+api.FlattenError(err), 1)
			}

			report(os.Stdout, results)
			if !deterministic(results) {
				logger.FromContext(ctx).Error("runs with the same seed diverged", "seed", *gen.Seed)
				return cli.Exit("error: nondeterministic output", 1)
			}
			return nil
		},
	}
}

// runBench submits runs generations with at most concurrency in flight.
// Results keep submission order.
func runBench(ctx context.Context, f *api.Facade, prompt string, cfg inference.GenerationConfig, runs, concurrency int, done func()) ([]*inference.Result, error) {
	results := make([]*inference.Result, runs)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	var mu sync.Mutex
	for i := range runs {
		g.Go(func() error {
			res, err := f.Generate(ctx, cfg, prompt, nil)
			if err != nil {
				return fmt.Errorf("run %d: %w", i+1, err)
			}
			results[i] = res
			if done != nil {
				mu.Lock()
				done()
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func deterministic(results []*inference.Result) bool {
	for _, r := range results[1:] {
		if !slices.Equal(r.Tokens, results[0].Tokens) {
			return false
		}
	}
	return true
}

func report(w io.Writer, results []*inference.Result) {
	_, _ = fmt.Fprintf(w, "%-6s %10s %10s %8s %8s\n", "Run", "tok/s", "Duration", "Tokens", "Finish")
	var sumTPS float64
	var total int
	for i, r := range results {
		_, _ = fmt.Fprintf(w, "%-6d %10.2f %10s %8d %8s\n",
			i+1, r.Stats.TPS, r.Stats.Duration.Round(time.Millisecond), r.Stats.TokensGenerated, r.FinishReason)
		sumTPS += r.Stats.TPS
		total += r.Stats.TokensGenerated
	}
	n := float64(len(results))
	_, _ = fmt.Fprintf(w, "\n%-6s %10.2f %10s %8d\n", "Avg", sumTPS/n, "", total/len(results))
	_, _ = fmt.Fprintf(w, "Deterministic: %t\n", deterministic(results))

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	_, _ = fmt.Fprintf(w, "Memory: %.1f MB alloc, %.1f MB sys\n",
		float64(mem.Alloc)/(1024*1024),
		float64(mem.Sys)/(1024*1024))
}
