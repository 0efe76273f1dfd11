package dataset

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"github.com/example/go-document-tools/internal/errdefs"
)

// DefaultBatchSize is used when MapOptions.BatchSize is not positive.
const DefaultBatchSize = 1000

// BatchFunc transforms one batch. The returned batch must have the same
// number of rows as the input.
type BatchFunc func(ctx context.Context, batch Batch) (Batch, error)

// MapOptions controls Dataset.Map.
type MapOptions struct {
	// Batched feeds BatchSize records per call; otherwise one record per call.
	Batched   bool
	BatchSize int
	// RemoveColumns are dropped from the input before the output columns are added.
	RemoveColumns []string
	// Features declares the columns produced by the function. Every declared
	// column must be produced and nothing undeclared may be.
	Features Features
	// NumWorkers bounds concurrent batches; values <= 1 run sequentially.
	NumWorkers int
	// CachePath, when set and KeepInMemory is false, is a directory where the
	// result is saved and from which a result with the same fingerprint is
	// reloaded instead of recomputed.
	CachePath    string
	KeepInMemory bool
	// Fingerprint identifies the transform; it is combined with the parent
	// fingerprint to key the cache.
	Fingerprint string
	// Compression is the codec used for cache files.
	Compression string
}

// Map applies fn to every batch and returns the transformed Dataset. Batches
// may run concurrently; results are reassembled in record order.
func (d *Dataset) Map(ctx context.Context, fn BatchFunc, opts MapOptions) (*Dataset, error) {
	for _, name := range opts.RemoveColumns {
		if _, ok := d.features.Get(name); !ok {
			return nil, fmt.Errorf("%w: cannot remove column %q (available: %v)", errdefs.ErrNotFound, name, d.features.Names())
		}
	}

	size := opts.BatchSize
	if !opts.Batched {
		size = 1
	} else if size <= 0 {
		size = DefaultBatchSize
	}

	fp := DeriveFingerprint(d.fingerprint, opts.Fingerprint, strconv.Itoa(size), strings.Join(opts.RemoveColumns, ","))

	useCache := opts.CachePath != "" && !opts.KeepInMemory
	if useCache {
		if cached, ok := loadCached(opts.CachePath, fp); ok {
			return cached, nil
		}
	}

	kept := d.features.Without(opts.RemoveColumns...)
	outFeatures := kept.Merge(opts.Features)

	numBatches := (len(d.rows) + size - 1) / size
	results := make([][]Record, numBatches)

	run := func(ctx context.Context, i int) error {
		start := i * size
		end := min(start+size, len(d.rows))

		out, err := fn(ctx, d.batch(start, end))
		if err != nil {
			return fmt.Errorf("batch %d [%d:%d]: %w", i, start, end, err)
		}

		recs, err := d.assemble(start, end, out, kept, outFeatures)
		if err != nil {
			return fmt.Errorf("batch %d [%d:%d]: %w", i, start, end, err)
		}

		results[i] = recs

		return nil
	}

	if opts.NumWorkers <= 1 {
		for i := 0; i < numBatches; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			if err := run(ctx, i); err != nil {
				return nil, err
			}
		}
	} else {
		p := pool.New().WithMaxGoroutines(opts.NumWorkers).WithContext(ctx).WithCancelOnError()
		for i := 0; i < numBatches; i++ {
			i := i
			p.Go(func(ctx context.Context) error {
				return run(ctx, i)
			})
		}

		if err := p.Wait(); err != nil {
			return nil, err
		}
	}

	rows := make([]Record, 0, len(d.rows))
	for _, recs := range results {
		rows = append(rows, recs...)
	}

	mapped := &Dataset{features: outFeatures, rows: rows, fingerprint: fp}

	if useCache {
		if err := mapped.SaveToDisk(opts.CachePath, SaveOptions{Compression: opts.Compression}); err != nil {
			return nil, fmt.Errorf("write map cache: %w", err)
		}
	}

	return mapped, nil
}

// assemble merges the kept input columns of rows [start:end] with the
// function output and checks the result against outFeatures.
func (d *Dataset) assemble(start, end int, out Batch, kept, outFeatures Features) ([]Record, error) {
	n, err := out.Len()
	if err != nil {
		return nil, err
	}

	if len(out) > 0 && n != end-start {
		return nil, fmt.Errorf("%w: function returned %d rows for a batch of %d", errdefs.ErrSchemaMismatch, n, end-start)
	}

	for name := range out {
		if _, ok := outFeatures.Get(name); !ok {
			return nil, fmt.Errorf("%w: undeclared output column %q", errdefs.ErrSchemaMismatch, name)
		}
	}

	recs := make([]Record, end-start)
	for i := range recs {
		src := d.rows[start+i]
		rec := make(Record, len(outFeatures))

		for _, f := range kept {
			rec[f.Name] = src[f.Name]
		}

		for name, col := range out {
			rec[name] = col[i]
		}

		for _, f := range outFeatures {
			v, ok := rec[f.Name]
			if !ok {
				return nil, fmt.Errorf("%w: output column %q was not produced", errdefs.ErrSchemaMismatch, f.Name)
			}

			if err := f.Type.Check(v); err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", start+i, f.Name, err)
			}
		}

		recs[i] = rec
	}

	return recs, nil
}

func loadCached(path, fingerprint string) (*Dataset, bool) {
	if _, err := os.Stat(path); err != nil {
		return nil, false
	}

	ds, err := LoadFromDisk(path)
	if err != nil || ds.fingerprint != fingerprint {
		return nil, false
	}

	return ds, true
}
