package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/tsuki-kuma/tsuki/internal/api"
	"github.com/tsuki-kuma/tsuki/internal/inference"
	"github.com/tsuki-kuma/tsuki/internal/logger"
)

func chatCmd() *cli.Command {
	var (
		showStats bool
		sampling  samplingOpts
	)
	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "stats",
			Usage:       "print token counts and speed after each reply",
			Destination: &showStats,
		},
	}
	flags = append(flags, samplingFlags(&sampling)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive prompt loop; each line is answered on its own",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, cfg, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			applySamplingConfig(cmd, cfg, &sampling)

			a := newApp(ctx)
			defer func() { _ = a.Close() }()

			mode := StreamQuiet
			if isTerminal(os.Stdout) {
				mode = StreamInstant
			}
			return chatLoop(ctx, newLineEditor(), a.facade, sampling.config(cmd), chatOutput{
				out:   os.Stdout,
				errw:  os.Stderr,
				mode:  mode,
				stats: showStats,
			})
		},
	}
}

type chatOutput struct {
	out   io.Writer
	errw  io.Writer
	mode  StreamMode
	stats bool
}

type lineReader interface {
	ReadLine(prompt string) (string, error)
}

// chatLoop answers lines until EOF or /exit. A failed turn is reported and
// the loop goes on.
func chatLoop(ctx context.Context, in lineReader, f *api.Facade, cfg inference.GenerationConfig, o chatOutput) error {
	log := logger.FromContext(ctx)
	for {
		line, err := in.ReadLine("> ")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		}

		sw := NewStreamWriter(o.out, o.mode, f.KeepReasoning, false)
		res, err := f.Generate(ctx, cfg, line, sw.Write)
		sw.Flush()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Debug("chat turn failed", "error", err)
			_, _ = fmt.Fprintln(o.errw, "error: "+api.FlattenError(err))
			continue
		}
		if o.stats {
			printStats(o.errw, res)
		}
	}
}
