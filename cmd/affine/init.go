package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/affine/internal/affine"
	"github.com/samcharles93/affine/pkg/ckpt"
)

func initCmd() *cli.Command {
	var (
		units      int64
		inputDim   int64
		activation string
		noBias     bool
		kernelInit string
		biasInit   string
		mode       string
		loraRank   int64
		loraAlpha  float64
		seed       int64
		output     string
	)

	return &cli.Command{
		Name:  "init",
		Usage: "Create a freshly initialised layer checkpoint",
		Flags: append(loggingFlags(),
			&cli.Int64Flag{
				Name:        "units",
				Aliases:     []string{"u"},
				Usage:       "output dimension",
				Required:    true,
				Destination: &units,
			},
			&cli.Int64Flag{
				Name:        "input-dim",
				Aliases:     []string{"i"},
				Usage:       "input feature count",
				Required:    true,
				Destination: &inputDim,
			},
			&cli.StringFlag{
				Name:        "activation",
				Usage:       "activation name (linear, relu, sigmoid, tanh, gelu, silu)",
				Destination: &activation,
			},
			&cli.BoolFlag{
				Name:        "no-bias",
				Usage:       "disable the bias vector",
				Destination: &noBias,
			},
			&cli.StringFlag{
				Name:        "kernel-init",
				Usage:       "kernel initializer",
				Value:       "glorot_uniform",
				Destination: &kernelInit,
			},
			&cli.StringFlag{
				Name:        "bias-init",
				Usage:       "bias initializer",
				Value:       "zeros",
				Destination: &biasInit,
			},
			&cli.StringFlag{
				Name:        "mode",
				Usage:       "quantization mode (none, int8, int4, float8)",
				Value:       "none",
				Destination: &mode,
			},
			&cli.Int64Flag{
				Name:        "lora-rank",
				Usage:       "enable low-rank adaptation with this rank",
				Destination: &loraRank,
			},
			&cli.Float64Flag{
				Name:        "lora-alpha",
				Usage:       "adaptation scaling numerator (defaults to the rank)",
				Destination: &loraAlpha,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "initializer seed",
				Destination: &seed,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "checkpoint path to write",
				Value:       "layer.ack",
				Destination: &output,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyInitConfig(cmd, LoadConfig(), &mode, &seed)
			log := buildLogger()

			targetMode, err := affine.ParseMode(mode)
			if err != nil {
				return err
			}

			layer, err := affine.New(int(units), affine.Options{
				Activation:        activation,
				NoBias:            noBias,
				KernelInitializer: kernelInit,
				BiasInitializer:   biasInit,
				LoraRank:          int(loraRank),
				LoraAlpha:         loraAlpha,
				Seed:              seed,
				Logger:            log,
			})
			if err != nil {
				return err
			}
			if err := layer.Build(int(inputDim)); err != nil {
				return err
			}
			if targetMode != affine.ModeNone {
				if err := layer.Quantize(targetMode); err != nil {
					return err
				}
			}

			store := affine.NewMemStore()
			if err := layer.SaveVariables(store); err != nil {
				return err
			}
			man := ckpt.NewManifest(layer.Config())
			if err := ckpt.Save(output, man, store); err != nil {
				return err
			}
			log.Info("checkpoint written", "path", output, "id", man.ID, "mode", targetMode.String())
			fmt.Printf("wrote %s (%d variables)\n", output, store.Len())
			return nil
		},
	}
}
