package syntax

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// CollectOptions controls which files Collect returns.
type CollectOptions struct {
	IncludeExt  []string
	ExcludeExt  []string
	MaxFileSize int64
	SkipHidden  bool
	// Only, when non-nil, restricts results to these slash-separated paths.
	Only map[string]bool
}

// Collect walks paths and returns every file with a supported language, in
// walk order. Duplicate paths are returned once.
func Collect(ctx context.Context, opts CollectOptions, paths ...string) ([]string, error) {
	if len(paths) == 0 {
		paths = []string{"."}
	}

	var files []string
	seen := make(map[string]bool)

	for _, root := range paths {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			if d.IsDir() {
				if path != root && opts.SkipHidden && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}

			ext := filepath.Ext(path)
			if len(opts.IncludeExt) > 0 && !slices.Contains(opts.IncludeExt, ext) {
				return nil
			}
			if slices.Contains(opts.ExcludeExt, ext) {
				return nil
			}
			if _, ok := DetectLanguage(path); !ok {
				return nil
			}
			if opts.Only != nil && !opts.Only[filepath.ToSlash(path)] {
				return nil
			}

			if info, err := d.Info(); err == nil && opts.MaxFileSize > 0 && info.Size() > opts.MaxFileSize {
				return nil
			}

			if !seen[path] {
				seen[path] = true
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return files, nil
}
