// Package pipeline tokenizes labeled document datasets for a target model:
// it resolves the label vocabulary, selects the encoder, maps it over every
// split and optionally persists the result.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/go-document-tools/internal/dataset"
	"github.com/example/go-document-tools/internal/encoder"
	"github.com/example/go-document-tools/internal/errdefs"
	"github.com/example/go-document-tools/internal/labels"
	"github.com/example/go-document-tools/internal/processor"
)

// DefaultSplit is the split name a bare Dataset is wrapped under.
const DefaultSplit = "train"

// Options controls Tokenize.
type Options struct {
	ImageColumn string
	LabelColumn string
	// WordsColumn and BoxesColumn hold words extracted beforehand. They are
	// used instead of the OCR when the first split has both columns.
	WordsColumn string
	BoxesColumn string
	Batched     bool
	BatchSize   int
	// CacheFiles maps split name to a cache directory for the mapped split.
	CacheFiles   map[string]string
	KeepInMemory bool
	// NumWorkers bounds concurrent batches; values <= 1 run sequentially.
	NumWorkers      int
	ProcessorConfig map[string]any
	SaveToDisk      bool
	SavePath        string
	// Compression is the codec for saved and cached splits (none, zstd, lz4).
	Compression    string
	EncoderOptions []encoder.Option
	Logger         *slog.Logger
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		ImageColumn: "image",
		LabelColumn: "label",
		WordsColumn: "words",
		BoxesColumn: "boxes",
		Batched:     true,
		BatchSize:   2,
	}
}

// Tokenize encodes ds, a *dataset.Dataset or *dataset.DatasetDict, for
// targetModel. A Dataset is processed as the "train" split and returned as
// a *dataset.Dataset; a DatasetDict is returned as a *dataset.DatasetDict.
// Failing to save is logged, not returned.
func Tokenize(ctx context.Context, ds any, targetModel string, opts Options) (any, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctor, err := encoder.Lookup(targetModel)
	if err != nil {
		return nil, err
	}

	switch {
	case opts.SaveToDisk && opts.SavePath == "":
		return nil, fmt.Errorf("%w: save to disk requested without a save path", errdefs.ErrInvalidArgument)
	case !opts.SaveToDisk && opts.SavePath != "":
		logger.Warn("save path given but save to disk is disabled; the dataset will not be saved",
			"save_path", opts.SavePath)
	}

	dict, single, err := normalize(ds)
	if err != nil {
		return nil, err
	}

	firstName, first, ok := dict.First()
	if !ok {
		return nil, fmt.Errorf("%w: dataset dict has no splits", errdefs.ErrInvalidArgument)
	}

	col, err := first.Column(opts.LabelColumn)
	if err != nil {
		return nil, fmt.Errorf("resolve labels from split %q: %w", firstName, err)
	}

	vocab, err := labels.Resolve(col)
	if err != nil {
		return nil, fmt.Errorf("resolve labels from split %q: %w", firstName, err)
	}

	encOpts := []encoder.Option{encoder.WithColumns(opts.ImageColumn, opts.LabelColumn)}
	remove := []string{opts.ImageColumn, opts.LabelColumn}

	if hasColumn(first, opts.WordsColumn) {
		if !hasColumn(first, opts.BoxesColumn) {
			return nil, fmt.Errorf("%w: split %q has word column %q but no box column %q",
				errdefs.ErrNotFound, firstName, opts.WordsColumn, opts.BoxesColumn)
		}

		encOpts = append(encOpts, encoder.WithWordColumns(opts.WordsColumn, opts.BoxesColumn))
		remove = append(remove, opts.WordsColumn, opts.BoxesColumn)
	}

	encOpts = append(encOpts, opts.EncoderOptions...)

	enc, err := ctor(vocab, opts.ProcessorConfig, encOpts...)
	if err != nil {
		return nil, err
	}

	encFingerprint := ""
	if f, ok := enc.(processor.Fingerprinter); ok {
		encFingerprint = f.Fingerprint()
	}

	cacheFiles := opts.CacheFiles
	if encFingerprint == "" && len(cacheFiles) > 0 && !opts.KeepInMemory {
		logger.Warn("encoder cannot be fingerprinted; cache files are not used", "target_model", targetModel)
		cacheFiles = nil
	}

	logger.Info("tokenizing dataset",
		"target_model", targetModel,
		"splits", dict.Names(),
		"num_labels", vocab.Len(),
		"categorical", vocab.Categorical())

	encoded, err := dict.Map(ctx, enc.Encode, dataset.DictMapOptions{
		MapOptions: dataset.MapOptions{
			Batched:       opts.Batched,
			BatchSize:     opts.BatchSize,
			RemoveColumns: remove,
			Features:      enc.Schema(),
			NumWorkers:    opts.NumWorkers,
			KeepInMemory:  opts.KeepInMemory,
			Fingerprint:   transformFingerprint(targetModel, encFingerprint, vocab, opts),
			Compression:   opts.Compression,
		},
		CachePaths: cacheFiles,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", targetModel, err)
	}

	if opts.SaveToDisk {
		if err := encoded.SaveToDisk(opts.SavePath, dataset.SaveOptions{Compression: opts.Compression}); err != nil {
			logger.Error("save tokenized dataset", "save_path", opts.SavePath, "error", err)
		} else {
			logger.Info("saved tokenized dataset", "save_path", opts.SavePath)
		}
	}

	if single {
		out, _ := encoded.Get(DefaultSplit)
		return out, nil
	}

	return encoded, nil
}

// TokenizeDataset is Tokenize for a single split.
func TokenizeDataset(ctx context.Context, ds *dataset.Dataset, targetModel string, opts Options) (*dataset.Dataset, error) {
	out, err := Tokenize(ctx, ds, targetModel, opts)
	if err != nil {
		return nil, err
	}

	return out.(*dataset.Dataset), nil
}

// TokenizeDict is Tokenize for a DatasetDict.
func TokenizeDict(ctx context.Context, d *dataset.DatasetDict, targetModel string, opts Options) (*dataset.DatasetDict, error) {
	out, err := Tokenize(ctx, d, targetModel, opts)
	if err != nil {
		return nil, err
	}

	return out.(*dataset.DatasetDict), nil
}

func normalize(ds any) (*dataset.DatasetDict, bool, error) {
	switch t := ds.(type) {
	case *dataset.Dataset:
		if t == nil {
			break
		}

		dict := dataset.NewDict()
		if err := dict.Set(DefaultSplit, t); err != nil {
			return nil, false, err
		}

		return dict, true, nil
	case *dataset.DatasetDict:
		if t == nil {
			break
		}

		return t, false, nil
	}

	return nil, false, fmt.Errorf("%w: dataset must be a *dataset.Dataset or *dataset.DatasetDict, got %T", errdefs.ErrTypeMismatch, ds)
}

func hasColumn(ds *dataset.Dataset, name string) bool {
	if name == "" {
		return false
	}

	_, ok := ds.Features().Get(name)

	return ok
}

func transformFingerprint(targetModel, encFingerprint string, vocab labels.Vocabulary, opts Options) string {
	return dataset.DeriveFingerprint(targetModel,
		encFingerprint,
		fmt.Sprint(opts.ProcessorConfig),
		fmt.Sprint(vocab.Names()),
		opts.ImageColumn,
		opts.LabelColumn)
}
