package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/affine/internal/affine"
	"github.com/samcharles93/affine/pkg/ckpt"
)

func quantizeCmd() *cli.Command {
	var (
		input  string
		mode   string
		output string
	)

	return &cli.Command{
		Name:  "quantize",
		Usage: "Quantize a full-precision checkpoint",
		Flags: append(loggingFlags(),
			&cli.StringFlag{
				Name:        "checkpoint",
				Aliases:     []string{"c"},
				Usage:       "path to .ack file",
				Destination: &input,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "mode",
				Usage:       "target mode (int8, int4, float8)",
				Required:    true,
				Destination: &mode,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "output path (defaults to <checkpoint>.<mode>)",
				Destination: &output,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyCommonConfig(cmd, LoadConfig())
			log := buildLogger()

			if output == "" {
				output = input + "." + mode
			}

			targetMode, err := affine.ParseMode(mode)
			if err != nil {
				return err
			}
			if targetMode == affine.ModeNone {
				return fmt.Errorf("quantize: %q is not a quantization target", mode)
			}

			f, err := ckpt.Open(input)
			if err != nil {
				return fmt.Errorf("opening %s: %w", input, err)
			}
			defer func() { _ = f.Close() }()

			cfg := f.Manifest().Layer
			layer, err := affine.FromConfig(cfg)
			if err != nil {
				return err
			}
			if err := layer.LoadVariables(f.Variables()); err != nil {
				return err
			}
			if err := layer.Quantize(targetMode); err != nil {
				return err
			}

			store := affine.NewMemStore()
			if err := layer.SaveVariables(store); err != nil {
				return err
			}
			man := ckpt.NewManifest(layer.Config())
			if err := ckpt.Save(output, man, store); err != nil {
				return err
			}
			log.Info("checkpoint quantized",
				"input", input, "output", output, "mode", targetMode.String())
			fmt.Printf("wrote %s\n", output)
			return nil
		},
	}
}
