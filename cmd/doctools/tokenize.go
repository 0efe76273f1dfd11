package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/go-document-tools/internal/config"
	"github.com/example/go-document-tools/internal/pipeline"
)

func newTokenizeCmd() *cobra.Command {
	var savePath string
	var saveToDisk bool

	cmd := &cobra.Command{
		Use:   "tokenize <dataset>",
		Short: "Encode a labeled document dataset for a target model",
		Long: `Encode a labeled document dataset for --target-model.

<dataset> is an image folder (<label>/<file> or <split>/<label>/<file>),
a JSON Lines manifest ({"image": ..., "label": ..., "split": ...}) or a
directory written by a previous save.

Manifest lines may carry OCR output as "words" and "boxes" (one
[x0, y0, x1, y1] box per word in 0..1000 page coordinates). The words are
then tokenized with the processor assets under --assets-dir, which
"processor download" fetches.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			src, err := loadSource(cmd.Context(), args[0], cfg)
			if err != nil {
				return err
			}

			out, err := pipeline.TokenizeDict(cmd.Context(), src, cfg.Tokenize.TargetModel,
				tokenizeOptions(cfg, src.Names(), savePath, saveToDisk))
			if err != nil {
				return fmt.Errorf("tokenize failed: %w", err)
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)

			return nil
		},
	}

	cmd.Flags().StringVar(&savePath, "save-path", "", "Directory to save the encoded dataset to")
	cmd.Flags().BoolVar(&saveToDisk, "save-to-disk", false, "Save the encoded dataset to --save-path")

	return cmd
}

func tokenizeOptions(cfg config.Config, splits []string, savePath string, saveToDisk bool) pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.ImageColumn = cfg.Tokenize.ImageColumn
	opts.LabelColumn = cfg.Tokenize.LabelColumn
	opts.WordsColumn = cfg.Tokenize.WordsColumn
	opts.BoxesColumn = cfg.Tokenize.BoxesColumn
	opts.Batched = cfg.Tokenize.Batched
	opts.BatchSize = cfg.Tokenize.BatchSize
	opts.NumWorkers = cfg.Tokenize.NumWorkers
	opts.KeepInMemory = cfg.Tokenize.KeepInMemory
	opts.Compression = cfg.Tokenize.Compression
	opts.ProcessorConfig = cfg.ProcessorMap()
	opts.SaveToDisk = saveToDisk
	opts.SavePath = savePath
	opts.Logger = slog.Default()

	if cfg.Paths.CacheDir != "" {
		opts.CacheFiles = make(map[string]string, len(splits))
		for _, split := range splits {
			opts.CacheFiles[split] = filepath.Join(cfg.Paths.CacheDir, cfg.Tokenize.TargetModel, split)
		}
	}

	return opts
}
