package main

import (
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/treebeam/internal/logger"
)

var (
	modelPath string
	vocabPath string
	beamSize  int64
	maxLen    int64
	logLevel  string
	logFormat string
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "path to bigram model JSON",
			Destination: &modelPath,
		},
		&cli.StringFlag{
			Name:        "vocab",
			Usage:       "path to vocabulary JSON",
			Destination: &vocabPath,
		},
		&cli.Int64Flag{
			Name:        "beam-size",
			Aliases:     []string{"b"},
			Usage:       "beam width",
			Value:       6,
			Destination: &beamSize,
		},
		&cli.Int64Flag{
			Name:        "max-len",
			Usage:       "maximum generated tokens per completion",
			Value:       48,
			Destination: &maxLen,
		},
	}
}

func logFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "debug, info, warn or error",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "pretty or json",
			Value:       "pretty",
			Destination: &logFormat,
		},
	}
}

func newLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	if logFormat == "json" {
		return logger.JSON(os.Stderr, level)
	}
	return logger.Pretty(os.Stderr, level)
}
