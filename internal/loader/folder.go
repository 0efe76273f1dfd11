package loader

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/sourcegraph/conc/pool"

	"github.com/example/go-document-tools/internal/dataset"
	"github.com/example/go-document-tools/internal/document"
	"github.com/example/go-document-tools/internal/errdefs"
)

// SplitNames are the directory names recognised as splits by ImageFolder.
var SplitNames = []string{"train", "validation", "valid", "test", "dev", "eval"}

// DefaultSplit names the only split of a folder without split directories.
const DefaultSplit = "train"

// Options controls the loaders.
type Options struct {
	// ImageColumn and LabelColumn name the output columns.
	ImageColumn string
	LabelColumn string
	// WordsColumn and BoxesColumn name the columns of words extracted
	// beforehand, which only JSONLines produces.
	WordsColumn string
	BoxesColumn string
	// NumWorkers bounds concurrent image decoding; values <= 1 decode sequentially.
	NumWorkers int
	Logger     *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ImageColumn == "" {
		o.ImageColumn = "image"
	}

	if o.LabelColumn == "" {
		o.LabelColumn = "label"
	}

	if o.WordsColumn == "" {
		o.WordsColumn = "words"
	}

	if o.BoxesColumn == "" {
		o.BoxesColumn = "boxes"
	}

	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	return o
}

type sample struct {
	path  string
	label string
}

// ImageFolder loads root/<label>/<file> or root/<split>/<label>/<file> into a
// DatasetDict with a ClassLabel column. Class names are the sorted label
// directory names across all splits. PDFs and undecodable formats are
// skipped with a warning; files with other extensions are ignored.
func ImageFolder(ctx context.Context, root string, opts Options) (*dataset.DatasetDict, error) {
	opts = opts.withDefaults()

	splits, err := splitDirs(root)
	if err != nil {
		return nil, err
	}

	samples := make(map[string][]sample, len(splits))
	classes := map[string]bool{}

	for _, split := range splits {
		dir := root
		if split.dir != "" {
			dir = filepath.Join(root, split.dir)
		}

		found, err := scanLabelDirs(dir, opts.Logger)
		if err != nil {
			return nil, err
		}

		for _, s := range found {
			classes[s.label] = true
		}
		samples[split.name] = found
	}

	names := make([]string, 0, len(classes))
	for c := range classes {
		names = append(names, c)
	}
	sort.Strings(names)

	features := dataset.Features{
		{Name: opts.ImageColumn, Type: dataset.Image{}},
		{Name: opts.LabelColumn, Type: dataset.ClassLabel{Names: names}},
	}

	out := dataset.NewDict()

	for _, split := range splits {
		found := samples[split.name]

		paths := make([]string, len(found))
		for i, s := range found {
			paths[i] = s.path
		}

		imgs, err := decodeAll(ctx, paths, opts.NumWorkers)
		if err != nil {
			return nil, err
		}

		rows := make([]dataset.Record, 0, len(found))
		for i, s := range found {
			if imgs[i] == nil {
				opts.Logger.Warn("skip undecodable image", "path", s.path)
				continue
			}

			rows = append(rows, dataset.Record{
				opts.ImageColumn: imgs[i],
				opts.LabelColumn: int64(slices.Index(names, s.label)),
			})
		}

		ds, err := dataset.New(features, rows)
		if err != nil {
			return nil, fmt.Errorf("split %q: %w", split.name, err)
		}

		if err := out.Set(split.name, ds); err != nil {
			return nil, err
		}

		opts.Logger.Debug("loaded split", "split", split.name, "rows", ds.Len(), "classes", len(names))
	}

	return out, nil
}

type splitDir struct {
	name string
	dir  string
}

func splitDirs(root string) ([]splitDir, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read image folder: %w", err)
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}

	if len(dirs) == 0 {
		return nil, fmt.Errorf("%w: %s has no label directories", errdefs.ErrInvalidArgument, root)
	}

	for _, d := range dirs {
		if !slices.Contains(SplitNames, d) {
			return []splitDir{{name: DefaultSplit}}, nil
		}
	}

	out := make([]splitDir, len(dirs))
	for i, d := range dirs {
		out[i] = splitDir{name: d, dir: d}
	}

	slices.SortStableFunc(out, func(a, b splitDir) int {
		return slices.Index(SplitNames, a.name) - slices.Index(SplitNames, b.name)
	})

	return out, nil
}

// scanLabelDirs returns the documents below each label directory of dir in
// lexical order.
func scanLabelDirs(dir string, logger *slog.Logger) ([]sample, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read split dir: %w", err)
	}

	var out []sample

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		label := e.Name()

		err := filepath.WalkDir(filepath.Join(dir, label), func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}

			doc, err := document.Open(path)
			if err != nil {
				return nil
			}

			if doc.Kind == document.PDF {
				logger.Warn("skip pdf document; rasterize it to an image first", "path", path)
				return nil
			}

			out = append(out, sample{path: path, label: label})

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", label, err)
		}
	}

	return out, nil
}

// decodeAll decodes paths in order. Unsupported formats leave a nil entry.
func decodeAll(ctx context.Context, paths []string, workers int) ([]image.Image, error) {
	out := make([]image.Image, len(paths))

	decode := func(i int) error {
		img, err := DecodeImage(paths[i])
		if errors.Is(err, image.ErrFormat) {
			return nil
		}

		if err != nil {
			return err
		}
		out[i] = img

		return nil
	}

	if workers <= 1 {
		for i := range paths {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			if err := decode(i); err != nil {
				return nil, err
			}
		}

		return out, nil
	}

	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx).WithCancelOnError()
	for i := range paths {
		i := i
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			return decode(i)
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}
