package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/harun/doctrack/pkg/progress"
)

// rootFiles names the operation for files directly inside the scanned root
const rootFiles = "."

// Result summarizes one scan
type Result struct {
	Root  string          `json:"root"`
	Dirs  int             `json:"dirs"`
	Files int             `json:"files"`
	Bytes int64           `json:"bytes"`
	Parts map[string]Part `json:"parts"`
}

// Part is the tally of one top-level entry of the scanned root
type Part struct {
	Files int   `json:"files"`
	Bytes int64 `json:"bytes"`
}

// OperationName returns the name of the root operation for dir
func OperationName(dir string) string {
	return "scan " + filepath.Clean(dir)
}

// Dir walks dir and tallies its files. The scan is tracked in reg as one
// operation per top-level directory, nested under an operation covering the
// whole tree. Files directly in dir are grouped under ".".
func Dir(ctx context.Context, reg *progress.Registry, dir string) (Result, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return Result{}, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return Result{}, fmt.Errorf("%s is not a directory", dir)
	}

	parts, err := topLevel(dir)
	if err != nil {
		return Result{}, err
	}

	res := Result{Root: filepath.Clean(dir), Parts: make(map[string]Part, len(parts))}
	rootName := OperationName(dir)

	err = progress.Track(ctx, reg, rootName, progress.StartOptions{
		Total:    len(parts),
		Message:  "Scanning " + res.Root,
		Metadata: map[string]any{"root": res.Root},
	}, func(ctx context.Context, op *progress.Op) error {
		for _, part := range parts {
			if err := ctx.Err(); err != nil {
				return err
			}

			tally, err := scanPart(ctx, reg, rootName, dir, part)
			if err != nil {
				return err
			}

			res.Parts[part] = tally
			res.Files += tally.Files
			res.Bytes += tally.Bytes
			if part != rootFiles {
				res.Dirs++
			}

			if err := op.Add(1); err != nil {
				return err
			}
		}
		return op.Message(fmt.Sprintf("Scanned %d files in %d directories", res.Files, res.Dirs))
	})

	return res, err
}

// scanPart counts the files of one top-level entry, then walks them again
// reporting progress per file.
func scanPart(ctx context.Context, reg *progress.Registry, parent, dir, part string) (Part, error) {
	files, err := listFiles(dir, part)
	if err != nil {
		return Part{}, err
	}

	name := parent + "/" + part
	var tally Part

	err = progress.Track(ctx, reg, name, progress.StartOptions{
		Total:   len(files),
		Message: "Reading " + part,
	}, func(ctx context.Context, op *progress.Op) error {
		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return err
			}

			info, err := os.Lstat(path)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to stat %s: %w", path, err)
			}
			if err == nil {
				tally.Files++
				tally.Bytes += info.Size()
			}

			if err := op.Add(1); err != nil {
				return err
			}
		}
		return op.Metadata(map[string]any{"files": tally.Files, "bytes": tally.Bytes})
	})

	return tally, err
}

// topLevel returns the sorted top-level directories of dir, prefixed with
// "." when dir holds files of its own. Hidden entries are skipped.
func topLevel(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var (
		dirs     []string
		hasFiles bool
	)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		} else {
			hasFiles = true
		}
	}
	sort.Strings(dirs)

	if hasFiles {
		dirs = append([]string{rootFiles}, dirs...)
	}
	return dirs, nil
}

func listFiles(dir, part string) ([]string, error) {
	if part == rootFiles {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", dir, err)
		}
		var files []string
		for _, e := range entries {
			if !e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
				files = append(files, filepath.Join(dir, e.Name()))
			}
		}
		return files, nil
	}

	var files []string
	err := filepath.WalkDir(filepath.Join(dir, part), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", part, err)
	}
	return files, nil
}
