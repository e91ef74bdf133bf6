//nolint:wrapcheck
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/sonotheia/internal/config"
	"github.com/farcloser/sonotheia/internal/pipeline"
	"github.com/farcloser/sonotheia/internal/preprocess"
	"github.com/farcloser/sonotheia/internal/types"
)

var errDetectArgs = errors.New("expected exactly one argument: audio file path")

const asyncPollInterval = 100 * time.Millisecond

func detectCommand() *cli.Command {
	return &cli.Command{
		Name:      "detect",
		Usage:     "Decode an audio file and run it through the detection pipeline",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "stream",
				Usage: "Audio stream index (0-based)",
				Value: 0,
			},
			&cli.BoolFlag{
				Name:  "quick",
				Usage: "Run quick mode: acoustic stages only, skips the physics panel and neural branch",
			},
			&cli.BoolFlag{
				Name:  "async",
				Usage: "Submit the run through the async job API and poll status until it completes",
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
				return fmt.Errorf("%w: got %d", errDetectArgs, cmd.NArg())
			}

			filePath := cmd.Args().First()

			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return err
			}

			wf, err := preprocess.LoadContainer(ctx, filePath, cmd.Int("stream"), preprocess.DefaultOptions())
			if err != nil {
				return fmt.Errorf("loading %s: %w", filePath, err)
			}

			pl := pipeline.New(*cfg)
			quick := cmd.Bool("quick")

			if cmd.Bool("async") {
				jobID, submitErr := pl.Submit(wf, quick)
				if submitErr != nil {
					return submitErr
				}

				for {
					status, statusErr := pl.Status(jobID)
					if statusErr != nil {
						return statusErr
					}

					fmt.Fprintf(os.Stdout, "job %s: %s (%s, %.0f%%)\n",
						jobID, status.Status, status.CurrentStage, status.Progress*100)

					if status.Status == types.JobCompleted || status.Status == types.JobFailed {
						break
					}

					time.Sleep(asyncPollInterval)
				}

				detection, resultErr := pl.Result(jobID)
				if resultErr != nil {
					return resultErr
				}

				return outputResult(filePath, detection, cmd.String("format"))
			}

			detection, err := pl.Detect(ctx, wf, quick)
			if err != nil {
				return fmt.Errorf("detection failed: %w", err)
			}

			return outputResult(filePath, detection, cmd.String("format"))
		},
	}
}
