package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/affine/pkg/ckpt"
)

func inspectCmd() *cli.Command {
	var path string

	return &cli.Command{
		Name:  "inspect",
		Usage: "Print the manifest and variable layout of a checkpoint",
		Flags: append(loggingFlags(),
			&cli.StringFlag{
				Name:        "checkpoint",
				Aliases:     []string{"c"},
				Usage:       "path to .ack file",
				Destination: &path,
				Required:    true,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			f, err := ckpt.Open(path)
			if err != nil {
				return fmt.Errorf("opening %s: %w", path, err)
			}
			defer func() { _ = f.Close() }()

			man := f.Manifest()
			fmt.Printf("checkpoint: %s\n", path)
			fmt.Printf("id:         %s\n", man.ID)
			fmt.Printf("created:    %s\n", man.CreatedAt.Format("2006-01-02 15:04:05 MST"))
			fmt.Printf("format:     v%d.%d\n", f.Header.Major, f.Header.Minor)
			fmt.Println()

			cfg := man.Layer
			fmt.Printf("layer: %d -> %d", cfg.InputDim, cfg.Units)
			if cfg.Activation != "" {
				fmt.Printf(", %s", cfg.Activation)
			}
			if !cfg.UseBias {
				fmt.Printf(", no bias")
			}
			if cfg.Mode != "" {
				fmt.Printf(", %s", cfg.Mode)
			}
			if cfg.LoraRank > 0 {
				fmt.Printf(", lora rank %d", cfg.LoraRank)
			}
			fmt.Println()
			fmt.Println()

			vars := f.Variables()
			fmt.Printf("%-4s %-5s %-14s %s\n", "key", "dtype", "shape", "elems")
			for i := 0; i < vars.Len(); i++ {
				k := strconv.Itoa(i)
				v, ok := vars.Get(k)
				if !ok {
					return fmt.Errorf("inspect: variable %q missing from index", k)
				}
				fmt.Printf("%-4s %-5s %-14s %d\n", k, v.DType.String(), shapeString(v.Shape), v.Elems())
			}
			return nil
		},
	}
}

func shapeString(shape []int) string {
	if len(shape) == 0 {
		return "scalar"
	}
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return "(" + strings.Join(parts, ",") + ")"
}
