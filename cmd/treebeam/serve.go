package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"

	"github.com/samcharles93/treebeam/internal/api"
	"github.com/samcharles93/treebeam/internal/lm"
	"github.com/samcharles93/treebeam/internal/vocab"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		rps         float64
		burst       int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve ranking and completion over HTTP",
		Flags: append(append(commonModelFlags(), logFlags()...),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.Float64Flag{
				Name:        "rate-limit",
				Usage:       "requests per second per client, 0 disables",
				Value:       20,
				Destination: &rps,
			},
			&cli.Int64Flag{
				Name:        "rate-burst",
				Usage:       "burst size for the rate limiter",
				Value:       40,
				Destination: &burst,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := loadConfig()
			applyConfig(cmd, cfg)
			if cfg.ServerAddress != "" && !cmd.IsSet("addr") {
				addr = cfg.ServerAddress
			}
			log := newLogger()

			var (
				model *lm.Bigram
				v     *vocab.Vocabulary
				err   error
			)
			if modelPath != "" || vocabPath != "" {
				if modelPath == "" || vocabPath == "" {
					return fmt.Errorf("--model and --vocab must be given together")
				}
				if v, err = vocab.Load(vocabPath); err != nil {
					return err
				}
				if model, err = lm.Load(modelPath); err != nil {
					return err
				}
				if model.VocabSize() != v.Size() {
					return fmt.Errorf("model vocab size %d does not match vocabulary size %d",
						model.VocabSize(), v.Size())
				}
			} else {
				log.Warn("no model or vocabulary loaded; only /v1/rank will be available")
			}

			server := api.NewServer(api.ServerConfig{
				Model:    model,
				Vocab:    v,
				Log:      log,
				BeamSize: int(beamSize),
				MaxLen:   int(maxLen),
			})

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			if rps > 0 {
				e.Use(api.RateLimit(rate.Limit(rps), int(burst)))
			}
			server.Register(e)

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
