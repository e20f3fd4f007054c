package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/convseq/convseq/internal/dict"
	"github.com/convseq/convseq/internal/model"
	"github.com/convseq/convseq/internal/store"
)

func initCmd() *cli.Command {
	var (
		arch     string
		archFile string
		srcDict  string
		tgtDict  string
		output   string
		seed     int64
		noAttn   bool
	)

	return &cli.Command{
		Name:  "init",
		Usage: "Create a freshly initialised model checkpoint",
		Flags: append(loggingFlags(),
			&cli.StringFlag{
				Name:        "arch",
				Usage:       "architecture preset name",
				Value:       "base",
				Destination: &arch,
			},
			&cli.StringFlag{
				Name:        "arch-file",
				Usage:       "YAML architecture description (mutually exclusive with --arch)",
				Destination: &archFile,
			},
			&cli.StringFlag{
				Name:        "src-dict",
				Usage:       "source dictionary file",
				Required:    true,
				Destination: &srcDict,
			},
			&cli.StringFlag{
				Name:        "tgt-dict",
				Usage:       "target dictionary file",
				Required:    true,
				Destination: &tgtDict,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "checkpoint path to write",
				Required:    true,
				Destination: &output,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "weight initialisation seed",
				Value:       1,
				Destination: &seed,
			},
			&cli.BoolFlag{
				Name:        "no-attention",
				Usage:       "disable encoder attention in every decoder layer",
				Destination: &noAttn,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			userCfg, err := loadUserConfig()
			if err != nil {
				return err
			}
			log := newLogger(userCfg)

			var cfg model.Config
			switch {
			case archFile != "" && cmd.IsSet("arch"):
				return fmt.Errorf("--arch %q cannot be combined with --arch-file", arch)
			case archFile != "":
				cfg, err = model.LoadConfig(archFile)
			default:
				cfg, err = model.Preset(arch)
			}
			if err != nil {
				return err
			}
			if noAttn {
				cfg.DecoderAttention = model.BroadcastAttention(false, len(cfg.DecoderLayers))
			}

			src, err := loadDict(srcDict)
			if err != nil {
				return err
			}
			tgt, err := loadDict(tgtDict)
			if err != nil {
				return err
			}

			m, err := model.New(cfg, src, tgt, seed)
			if err != nil {
				return err
			}
			if err := store.Save(output, m); err != nil {
				return err
			}
			log.Info("checkpoint written", "path", output,
				"src_vocab", src.Len(), "tgt_vocab", tgt.Len(),
				"encoder_layers", len(cfg.EncoderLayers), "decoder_layers", len(cfg.DecoderLayers))
			return nil
		},
	}
}

func loadDict(path string) (*dict.Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary %s: %w", path, err)
	}
	defer f.Close()
	return dict.Load(f)
}
