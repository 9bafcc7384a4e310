package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/kozaktomas/image-query/internal/histogram"
)

// imageExtensions are the file types ImageFiles picks up.
var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {},
	".bmp": {}, ".tif": {}, ".tiff": {}, ".webp": {},
}

// ImageFiles lists the image files directly inside dir, sorted by name.
func ImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read image directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := imageExtensions[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

// IDFromPath derives the image ID from a file name: "static/Photos/17.jpg" is image "17".
func IDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ExtractError reports a file whose histogram could not be computed.
type ExtractError struct {
	Path string
	Err  error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// Extract computes the histogram record of every file on pool. Records keep
// the order of files; failed files are reported instead. onDone, when set, is
// called once per file from the worker goroutines.
func Extract(ctx context.Context, pool *ants.Pool, files []string, bins int, onDone func()) ([]Record, []*ExtractError) {
	type result struct {
		rec Record
		err *ExtractError
	}
	results := make([]result, len(files))

	extract := func(i int) {
		path := files[i]
		if onDone != nil {
			defer onDone()
		}
		if err := ctx.Err(); err != nil {
			results[i].err = &ExtractError{Path: path, Err: err}
			return
		}
		data, err := os.ReadFile(path) //nolint:gosec // paths come from ImageFiles
		if err != nil {
			results[i].err = &ExtractError{Path: path, Err: err}
			return
		}
		vec, err := histogram.ComputeBytes(data, bins)
		if err != nil {
			results[i].err = &ExtractError{Path: path, Err: err}
			return
		}
		results[i].rec = Record{ID: IDFromPath(path), Histogram: vec}
	}

	var wg sync.WaitGroup
	for i := range files {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			extract(i)
		}); err != nil {
			extract(i)
			wg.Done()
		}
	}
	wg.Wait()

	records := make([]Record, 0, len(files))
	var failed []*ExtractError
	for _, r := range results {
		if r.err != nil {
			failed = append(failed, r.err)
			continue
		}
		records = append(records, r.rec)
	}
	return records, failed
}
