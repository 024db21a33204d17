package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/treebeam/internal/beam"
	"github.com/samcharles93/treebeam/internal/eval"
)

func evaluateCmd() *cli.Command {
	var (
		predPaths   []string
		topKs       []int64
		lenNormBase float64
		lenNormPow  float64
	)

	return &cli.Command{
		Name:  "evaluate",
		Usage: "Score persisted prediction files by edit similarity at top-k",
		Flags: append(logFlags(),
			&cli.StringSliceFlag{
				Name:        "pred-paths",
				Aliases:     []string{"p"},
				Usage:       "prediction JSONL files",
				Required:    true,
				Destination: &predPaths,
			},
			&cli.Int64SliceFlag{
				Name:        "top-ks",
				Aliases:     []string{"k"},
				Usage:       "hypothesis cutoffs to evaluate",
				Value:       []int64{1, 5, 10},
				Destination: &topKs,
			},
			&cli.Float64Flag{
				Name:        "len-norm-base",
				Value:       beam.EvalScoreNorm.Base,
				Destination: &lenNormBase,
			},
			&cli.Float64Flag{
				Name:        "len-norm-pow",
				Value:       beam.EvalScoreNorm.Pow,
				Destination: &lenNormPow,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := loadConfig()
			applyConfig(cmd, cfg)
			if cfg.LenNormBase != nil && !cmd.IsSet("len-norm-base") {
				lenNormBase = *cfg.LenNormBase
			}
			if cfg.LenNormPow != nil && !cmd.IsSet("len-norm-pow") {
				lenNormPow = *cfg.LenNormPow
			}
			log := newLogger()

			ks := make([]int, len(topKs))
			for i, k := range topKs {
				if k <= 0 {
					return fmt.Errorf("top-k values must be positive, got %d", k)
				}
				ks[i] = int(k)
			}
			ranker := eval.Ranker{Norm: beam.ScoreNorm{Base: lenNormBase, Pow: lenNormPow}}

			for _, path := range predPaths {
				preds, err := eval.LoadPredictions(path)
				if err != nil {
					return err
				}
				log.Info("evaluating predictions",
					"path", path,
					"examples", len(preds),
					"len_norm_base", lenNormBase,
					"len_norm_pow", lenNormPow)

				for _, report := range eval.Evaluate(preds, ks, ranker) {
					fmt.Printf("%s  edit similarity @%d: %.2f +-%.2f (n=%d)\n",
						path, report.K, report.Mean, report.Stddev, report.Count)
				}
			}
			return nil
		},
	}
}
