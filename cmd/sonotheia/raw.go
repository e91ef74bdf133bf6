//nolint:staticcheck,wrapcheck // too dumb
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/sonotheia/internal/config"
	"github.com/farcloser/sonotheia/internal/pipeline"
	"github.com/farcloser/sonotheia/internal/preprocess"
)

var errRawArgCount = errors.New("expected exactly one argument: file path or \"-\" for stdin")

func rawCommand() *cli.Command {
	return &cli.Command{
		Name:      "raw",
		Usage:     "Run detection directly on raw little-endian signed PCM audio",
		ArgsUsage: "<file | ->",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:     "sample-rate",
				Aliases:  []string{"s"},
				Usage:    "Sample rate in Hz (e.g., 16000, 44100, 48000)",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "bit-depth",
				Aliases: []string{"b"},
				Usage:   "Bit depth (16, 24, or 32)",
				Value:   16,
			},
			&cli.IntFlag{
				Name:    "channels",
				Aliases: []string{"c"},
				Usage:   "Number of channels (1 = mono, 2 = stereo)",
				Value:   1,
			},
			&cli.BoolFlag{
				Name:  "quick",
				Usage: "Run quick mode: acoustic stages only, skips the physics panel and neural branch",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to a pipeline config YAML file",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: console, json, markdown",
				Value:   "console",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return fmt.Errorf("%w: got %d", errRawArgCount, cmd.NArg())
			}

			raw, err := readInput(cmd.Args().First())
			if err != nil {
				return err
			}

			format := preprocess.PCMFormat{
				SampleRate: cmd.Int("sample-rate"),
				BitDepth:   cmd.Int("bit-depth"),
				Channels:   cmd.Int("channels"),
			}

			wf, err := preprocess.FromPCM(raw, format, preprocess.DefaultOptions())
			if err != nil {
				return fmt.Errorf("decoding PCM: %w", err)
			}

			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return err
			}

			pl := pipeline.New(*cfg)

			detection, err := pl.Detect(ctx, wf, cmd.Bool("quick"))
			if err != nil {
				return fmt.Errorf("detection failed: %w", err)
			}

			return outputResult(cmd.Args().First(), detection, cmd.String("format"))
		},
	}
}

// readInput reads the full contents of source, which is either a file path
// or "-" for stdin.
func readInput(source string) ([]byte, error) {
	if source == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}

		return data, nil
	}

	file, err := os.Open(source) //nolint:gosec // CLI tool opens user-specified audio files
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", source, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		return nil, fmt.Errorf("reading %s: %w", source, err)
	}

	return buf.Bytes(), nil
}
