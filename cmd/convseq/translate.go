package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/convseq/convseq/internal/generate"
	"github.com/convseq/convseq/internal/store"
)

func translateCmd() *cli.Command {
	var (
		inputFile   string
		interactive bool
		temperature float64
		topK        int64
		maxLen      int64
		seed        int64
	)

	return &cli.Command{
		Name:      "translate",
		Usage:     "Translate text with a trained checkpoint",
		ArgsUsage: "[text]",
		Flags: append(append(commonModelFlags(), loggingFlags()...),
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "translate each line of this file (- for stdin)",
				Destination: &inputFile,
			},
			&cli.BoolFlag{
				Name:        "interactive",
				Aliases:     []string{"i"},
				Usage:       "read source sentences interactively",
				Destination: &interactive,
			},
			&cli.Float64Flag{
				Name:        "temperature",
				Usage:       "sampling temperature (0 selects greedy decoding)",
				Destination: &temperature,
			},
			&cli.Int64Flag{
				Name:        "top-k",
				Usage:       "sample from the k most likely tokens",
				Value:       10,
				Destination: &topK,
			},
			&cli.Int64Flag{
				Name:        "max-len",
				Usage:       "maximum generated length (0 uses the model limit)",
				Destination: &maxLen,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "sampling seed",
				Destination: &seed,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			userCfg, err := loadUserConfig()
			if err != nil {
				return err
			}
			log := newLogger(userCfg)

			path := modelPath
			if path == "" {
				path = userCfg.ModelPath
			}
			if path == "" {
				return fmt.Errorf("no checkpoint given; pass --model or set model_path in %s", configPath())
			}

			opts := generate.Options{
				MaxLen: int(maxLen),
				Sampler: generate.SamplerConfig{
					Seed:        seed,
					Temperature: float32(temperature),
					TopK:        int(topK),
				},
			}
			if !cmd.IsSet("temperature") && userCfg.Temperature != nil {
				opts.Sampler.Temperature = float32(*userCfg.Temperature)
			}
			if !cmd.IsSet("top-k") && userCfg.TopK != nil {
				opts.Sampler.TopK = int(*userCfg.TopK)
			}
			if !cmd.IsSet("max-len") && userCfg.MaxLen != nil {
				opts.MaxLen = int(*userCfg.MaxLen)
			}
			if !cmd.IsSet("seed") && userCfg.Seed != nil {
				opts.Sampler.Seed = *userCfg.Seed
			}

			m, err := store.Load(path)
			if err != nil {
				return err
			}
			gen := generate.New(m, opts, log)
			log.Info("model loaded", "path", path,
				"src_vocab", m.SrcDict.Len(), "tgt_vocab", m.TgtDict.Len())

			switch {
			case interactive:
				return translateInteractive(ctx, gen)
			case inputFile != "":
				return translateFile(ctx, gen, inputFile)
			case cmd.Args().Len() > 0:
				out, err := gen.Translate(ctx, strings.Join(cmd.Args().Slice(), " "))
				if err != nil {
					return err
				}
				fmt.Println(out)
				return nil
			default:
				return fmt.Errorf("nothing to translate; pass text, --file or --interactive")
			}
		},
	}
}

func translateFile(ctx context.Context, gen *generate.Generator, path string) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			fmt.Println()
			continue
		}
		out, err := gen.Translate(ctx, line)
		if err != nil {
			return err
		}
		fmt.Println(out)
	}
	return sc.Err()
}

func trimTrailingNewline(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '\r' {
		s = s[:len(s)-1]
	}
	return s
}

func translateInteractive(ctx context.Context, gen *generate.Generator) error {
	fmt.Println("Enter source sentences, one per line. Ctrl+D exits.")
	for {
		line, err := readInteractiveLine("> ")
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out, err := gen.Translate(ctx, line)
		if err != nil {
			return err
		}
		fmt.Println(out)
	}
}
