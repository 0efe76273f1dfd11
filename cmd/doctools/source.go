package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/example/go-document-tools/internal/config"
	"github.com/example/go-document-tools/internal/dataset"
	"github.com/example/go-document-tools/internal/loader"
	"github.com/example/go-document-tools/internal/pipeline"
)

// loadSource opens path as a saved dataset, a saved dataset dict, a JSON
// Lines manifest or an image folder, in that order of preference.
func loadSource(ctx context.Context, path string, cfg config.Config) (*dataset.DatasetDict, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}

	opts := loader.Options{
		ImageColumn: cfg.Tokenize.ImageColumn,
		LabelColumn: cfg.Tokenize.LabelColumn,
		WordsColumn: cfg.Tokenize.WordsColumn,
		BoxesColumn: cfg.Tokenize.BoxesColumn,
		NumWorkers:  cfg.Tokenize.NumWorkers,
		Logger:      slog.Default(),
	}

	if !fi.IsDir() {
		return loader.JSONLines(ctx, path, opts)
	}

	if dataset.IsDictDir(path) {
		return dataset.LoadDictFromDisk(path)
	}

	if _, err := os.Stat(filepath.Join(path, "dataset_info.json")); err == nil {
		ds, err := dataset.LoadFromDisk(path)
		if err != nil {
			return nil, err
		}

		dict := dataset.NewDict()
		if err := dict.Set(pipeline.DefaultSplit, ds); err != nil {
			return nil, err
		}

		return dict, nil
	}

	return loader.ImageFolder(ctx, path, opts)
}
