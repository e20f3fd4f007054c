package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/convseq/convseq/internal/api"
	"github.com/convseq/convseq/internal/generate"
	"github.com/convseq/convseq/internal/store"
	"github.com/convseq/convseq/internal/webui"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		maxLen      int64
		readTimeout time.Duration
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the translation REST API",
		Flags: append(append(commonModelFlags(), loggingFlags()...),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.Int64Flag{
				Name:        "max-len",
				Usage:       "maximum generated length (0 uses the model limit)",
				Destination: &maxLen,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
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
			if !cmd.IsSet("addr") && userCfg.ServerAddress != "" {
				addr = userCfg.ServerAddress
			}

			m, err := store.Load(path)
			if err != nil {
				return err
			}
			gen := generate.New(m, generate.Options{MaxLen: int(maxLen)}, log)

			server := api.NewServer(gen, log)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			static := http.FileServer(webui.StaticFS())
			e.GET("/", func(c *echo.Context) error {
				static.ServeHTTP(c.Response(), c.Request())
				return nil
			})

			log.Info("starting server", "address", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
