package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/convseq/convseq/internal/store"
	"github.com/convseq/convseq/pkg/ckpt"
)

func inspectCmd() *cli.Command {
	var (
		showTensors bool
		showConfig  bool
		showDicts   bool
	)

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show checkpoint metadata",
		ArgsUsage: "<checkpoint>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "tensors",
				Usage:       "list every tensor with its shape",
				Destination: &showTensors,
			},
			&cli.BoolFlag{
				Name:        "config",
				Usage:       "print the stored architecture as JSON",
				Destination: &showConfig,
			},
			&cli.BoolFlag{
				Name:        "dicts",
				Usage:       "print dictionary sizes and reserved symbols",
				Destination: &showDicts,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("inspect takes exactly one checkpoint path")
			}
			path := cmd.Args().First()

			f, err := ckpt.ReadFile(path)
			if err != nil {
				return err
			}
			var meta store.Metadata
			if err := json.Unmarshal(f.Meta, &meta); err != nil {
				return fmt.Errorf("parse metadata: %w", err)
			}

			fmt.Printf("file:          %s\n", path)
			fmt.Printf("format:        v%d.%d\n", f.Header.Major, f.Header.Minor)
			fmt.Printf("model version: %d\n", meta.ModelVersion)
			fmt.Printf("tensors:       %d\n", len(f.Index))
			fmt.Printf("src vocab:     %d\n", len(meta.SrcDict))
			fmt.Printf("tgt vocab:     %d\n", len(meta.TgtDict))
			fmt.Printf("encoder:       embed=%d layers=%d\n",
				meta.Config.EncoderEmbedDim, len(meta.Config.EncoderLayers))
			fmt.Printf("decoder:       embed=%d layers=%d out=%d\n",
				meta.Config.DecoderEmbedDim, len(meta.Config.DecoderLayers), meta.Config.DecoderOutEmbedDim)

			if showConfig {
				raw, err := json.MarshalIndent(meta.Config, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(raw))
			}
			if showDicts {
				fmt.Printf("src reserved:  %s\n", strings.Join(reservedPrefix(meta.SrcDict), " "))
				fmt.Printf("tgt reserved:  %s\n", strings.Join(reservedPrefix(meta.TgtDict), " "))
			}
			if showTensors {
				for _, info := range f.Index {
					fmt.Printf("%-48s %v\n", info.Name, info.Shape)
				}
			}
			return nil
		},
	}
}

func reservedPrefix(symbols []string) []string {
	if len(symbols) < 3 {
		return symbols
	}
	return symbols[:3]
}
