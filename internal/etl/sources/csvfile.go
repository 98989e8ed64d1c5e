package sources

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"sheetsync/internal/etl"
)

// ── CSV File Source ─────────────────────────────────────────
// Reads a CSV export from the local filesystem. Accepts file:// URLs and bare paths.

type csvFileSource struct{}

func init() { etl.RegisterSource(&csvFileSource{}) }

func (s *csvFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:    "csv_file",
		Label:   "CSV File",
		Schemes: []string{"file"},
	}
}

func (s *csvFileSource) Fetch(ctx context.Context, loc etl.Locator) ([]byte, error) {
	path, err := filePath(loc.URL)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return data, nil
}

func filePath(raw string) (string, error) {
	if !strings.HasPrefix(strings.ToLower(raw), "file:") {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse file url: %w", err)
	}
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	if path == "" {
		return "", fmt.Errorf("file url %q has no path", raw)
	}
	return path, nil
}
