package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tsuki-kuma/tsuki/internal/api"
	"github.com/tsuki-kuma/tsuki/internal/inference"
)

func inferCmd() *cli.Command {
	var (
		prompt     string
		streamMode string
		rawOutput  bool
		showStats  bool
		sampling   samplingOpts
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "prompt",
			Aliases:     []string{"p"},
			Usage:       "prompt text (\"-\" reads stdin)",
			Destination: &prompt,
		},
		&cli.StringFlag{
			Name:        "stream-mode",
			Usage:       "output mode (auto, instant, quiet)",
			Value:       string(StreamAuto),
			Destination: &streamMode,
		},
		&cli.BoolFlag{
			Name:        "raw",
			Usage:       "escape control characters in the output",
			Destination: &rawOutput,
		},
		&cli.BoolFlag{
			Name:        "stats",
			Usage:       "print token counts and speed to stderr",
			Destination: &showStats,
		},
	}
	flags = append(flags, samplingFlags(&sampling)...)

	return &cli.Command{
		Name:  "infer",
		Usage: "Run a single prompt and stream the reply",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, cfg, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			applySamplingConfig(cmd, cfg, &sampling)

			text, err := readPrompt(prompt, os.Stdin)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			mode, err := parseStreamMode(streamMode, isTerminal(os.Stdout))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			a := newApp(ctx)
			defer func() { _ = a.Close() }()

			sw := NewStreamWriter(os.Stdout, mode, a.facade.KeepReasoning, rawOutput)
			res, err := a.facade.Generate(ctx, sampling.config(cmd), text, sw.Write)
			sw.Flush()
			if err != nil {
				return cli.Exit("error: "+api.FlattenError(err), 1)
			}
			if showStats {
				printStats(os.Stderr, res)
			}
			return nil
		},
	}
}

// readPrompt returns the prompt flag, or stdin when the flag is "-".
func readPrompt(flag string, stdin io.Reader) (string, error) {
	if flag != "-" {
		if strings.TrimSpace(flag) == "" {
			return "", fmt.Errorf("--prompt is required")
		}
		return flag, nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	if strings.TrimSpace(string(b)) == "" {
		return "", fmt.Errorf("empty prompt on stdin")
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

func printStats(w io.Writer, res *inference.Result) {
	_, _ = fmt.Fprintf(w, "prompt: %d tokens, generated: %d tokens, %.2f tok/s, prefill %s, finish %s, seed %d\n",
		res.Stats.PromptTokens,
		res.Stats.TokensGenerated,
		res.Stats.TPS,
		res.Stats.PrefillDuration.Round(time.Microsecond),
		res.FinishReason,
		res.Seed,
	)
}
