package knowledge

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrUnsupportedInput marks ingestion input the service cannot process:
// unrecognized file types and invalid directories.
var ErrUnsupportedInput = errors.New("unsupported input")

// ingestConcurrency bounds parallel file ingestion within a directory.
const ingestConcurrency = 4

// FileResult is the per-file outcome of a directory ingestion.
type FileResult struct {
	Err         error
	DocumentIDs []string
}

// IngestFile reads a single file and ingests its content with the file path
// as source. Supported types: .txt, .md, .json, .csv.
func (s *Service) IngestFile(ctx context.Context, path, category string) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !s.supported[ext] {
		return nil, fmt.Errorf("%w: file type %q", ErrUnsupportedInput, ext)
	}

	content, err := readFileContent(path, ext)
	if err != nil {
		return nil, err
	}

	return s.IngestText(ctx, content, path, category)
}

// IngestDirectory ingests every supported file under dir. Failures are
// isolated per file: a broken file is recorded in its FileResult and the rest
// of the batch continues.
func (s *Service) IngestDirectory(ctx context.Context, dir, category string, recursive bool) (map[string]*FileResult, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: invalid directory %q", ErrUnsupportedInput, dir)
	}

	files, err := s.collectFiles(dir, recursive)
	if err != nil {
		return nil, err
	}

	results := make(map[string]*FileResult, len(files))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(ingestConcurrency)
	for _, path := range files {
		g.Go(func() error {
			ids, err := s.IngestFile(ctx, path, category)
			if err != nil {
				slog.Warn("skipping file during directory ingestion", "path", path, "error", err)
			}
			mu.Lock()
			results[path] = &FileResult{DocumentIDs: ids, Err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

func (s *Service) collectFiles(dir string, recursive bool) ([]string, error) {
	var files []string

	if recursive {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && s.supported[strings.ToLower(filepath.Ext(path))] {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk directory %s: %w", dir, err)
		}
		return files, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && s.supported[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

func readFileContent(path, ext string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file %s: %w", path, err)
	}

	switch ext {
	case ".txt":
		return string(data), nil

	case ".md":
		return markdownToText(data), nil

	case ".json":
		var value any
		if err := json.Unmarshal(data, &value); err != nil {
			return "", fmt.Errorf("parse JSON file %s: %w", path, err)
		}
		pretty, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return "", fmt.Errorf("format JSON file %s: %w", path, err)
		}
		return string(pretty), nil

	case ".csv":
		records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		if err != nil {
			return "", fmt.Errorf("parse CSV file %s: %w", path, err)
		}
		lines := make([]string, len(records))
		for i, record := range records {
			lines[i] = strings.Join(record, ", ")
		}
		return strings.Join(lines, "\n"), nil

	default:
		return "", fmt.Errorf("%w: file type %q", ErrUnsupportedInput, ext)
	}
}
