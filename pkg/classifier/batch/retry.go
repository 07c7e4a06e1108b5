package batch

import (
	"context"
	"errors"
	"os"
	"sort"
)

// Retry reruns the files in the failure log. Records are deduplicated by
// source path; paths that no longer exist on disk or have been stored
// since the failure are dropped. With clear set the log is emptied before
// the rerun, leaving only the files that fail again.
func (r *Runner) Retry(ctx context.Context, clear bool) (Summary, error) {
	if err := r.check(); err != nil {
		return Summary{}, err
	}
	if r.Docs == nil {
		return Summary{}, errors.New("batch: retry needs a document store")
	}
	records, err := r.Docs.Failures()
	if err != nil {
		return Summary{}, err
	}

	seen := make(map[string]struct{}, len(records))
	var files []string
	for _, rec := range records {
		if _, dup := seen[rec.FilePath]; dup {
			continue
		}
		seen[rec.FilePath] = struct{}{}
		if _, err := os.Stat(rec.FilePath); err != nil {
			continue
		}
		if _, found, err := r.Store.GetArticleByPath(ctx, rec.FilePath); err != nil {
			return Summary{}, err
		} else if found {
			continue
		}
		files = append(files, rec.FilePath)
	}
	sort.Strings(files)

	if clear {
		if err := r.Docs.ClearFailures(); err != nil {
			return Summary{}, err
		}
	}
	return r.Run(ctx, files)
}
