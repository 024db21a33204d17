package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/treebeam/internal/beam"
	"github.com/samcharles93/treebeam/internal/inference"
	"github.com/samcharles93/treebeam/internal/lm"
	"github.com/samcharles93/treebeam/internal/syntax"
	"github.com/samcharles93/treebeam/internal/vocab"
)

func completeCmd() *cli.Command {
	var (
		grammarPath string
		topK        int64
	)

	return &cli.Command{
		Name:      "complete",
		Usage:     "Beam-search completions for a token prefix",
		ArgsUsage: "[prefix tokens...]",
		Flags: append(append(commonModelFlags(), logFlags()...),
			&cli.StringFlag{
				Name:        "grammar",
				Usage:       "JSONL file of legal token sequences; builds a trie constraint",
				Destination: &grammarPath,
			},
			&cli.Int64Flag{
				Name:        "top-k",
				Aliases:     []string{"k"},
				Usage:       "completions to print",
				Value:       5,
				Destination: &topK,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyConfig(cmd, loadConfig())
			log := newLogger()

			if modelPath == "" || vocabPath == "" {
				return fmt.Errorf("both --model and --vocab are required")
			}
			v, err := vocab.Load(vocabPath)
			if err != nil {
				return err
			}
			model, err := lm.Load(modelPath)
			if err != nil {
				return err
			}
			if model.VocabSize() != v.Size() {
				return fmt.Errorf("model vocab size %d does not match vocabulary size %d",
					model.VocabSize(), v.Size())
			}

			var initial beam.Constraint
			if grammarPath != "" {
				trie, err := loadGrammar(grammarPath, v)
				if err != nil {
					return err
				}
				initial = trie.Start()
			} else {
				initial = syntax.NewFree(v.Size(), v.Terminals)
			}

			prefix, err := v.Encode(cmd.Args().Slice())
			if err != nil {
				return err
			}

			res, err := inference.Run(ctx, inference.WithPrefix(model, prefix), initial, inference.Config{
				VocabSize: v.Size(),
				BeamSize:  int(beamSize),
				MaxLen:    int(maxLen),
				Log:       log,
			})
			if err != nil {
				return err
			}

			log.Info("decoding finished",
				"steps", res.Stats.Steps,
				"terminated", res.Stats.Terminated,
				"duration", res.Stats.Duration)

			norm := beam.DefaultScoreNorm
			for i, h := range res.Hypotheses {
				if int64(i) == topK {
					break
				}
				fmt.Printf("%2d. %-40q  score=%.4f  norm=%.4f\n",
					i+1, v.Render(h.Tokens), h.Score, h.NormalizedScore(norm))
			}
			if len(res.Hypotheses) == 0 {
				fmt.Println("no completions terminated; try a larger --max-len")
			}
			return nil
		},
	}
}

// loadGrammar builds a trie from a JSONL file where every line is an array of
// token strings.
func loadGrammar(path string, v *vocab.Vocabulary) (*syntax.Trie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	trie := syntax.NewTrie(v.Terminals)
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var tokens []string
		if err := json.Unmarshal(scanner.Bytes(), &tokens); err != nil {
			return nil, fmt.Errorf("grammar %s line %d: %w", path, line, err)
		}
		ids, err := v.Encode(tokens)
		if err != nil {
			return nil, fmt.Errorf("grammar %s line %d: %w", path, line, err)
		}
		if err := trie.Insert(ids); err != nil {
			return nil, fmt.Errorf("grammar %s line %d: %w", path, line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return trie, nil
}
