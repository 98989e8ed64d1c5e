package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"sheetsync/internal/etl"
)

// ── HTTP Source ─────────────────────────────────────────────
// Fetches a CSV export over HTTP(S), e.g. a spreadsheet "export?format=csv" link.

// maxBodyBytes caps a single export download.
const maxBodyBytes = 64 << 20

// httpStatusError carries the response status of a failed request.
type httpStatusError struct {
	code int
	body string
}

func (e *httpStatusError) Error() string {
	if e.body == "" {
		return http.StatusText(e.code)
	}
	return fmt.Sprintf("%s: %s", http.StatusText(e.code), e.body)
}

func (e *httpStatusError) StatusCode() int { return e.code }

var _ etl.HTTPStatusError = (*httpStatusError)(nil)

type httpSource struct {
	client *http.Client
}

func init() { etl.RegisterSource(NewHTTPSource(nil)) }

// NewHTTPSource builds an HTTP source on client. A nil client uses a client
// without its own timeout; the per-fetch deadline comes from the context.
func NewHTTPSource(client *http.Client) etl.Source {
	if client == nil {
		client = &http.Client{}
	}
	return &httpSource{client: client}
}

func (s *httpSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:    "http",
		Label:   "HTTP CSV export",
		Schemes: []string{"http", "https"},
	}
}

func (s *httpSource) Fetch(ctx context.Context, loc etl.Locator) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/csv, text/plain;q=0.9, */*;q=0.5")
	if loc.Token != "" {
		req.Header.Set("Authorization", "Bearer "+loc.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	// Anything but 200 is a failure: a redirect that was not followed or a
	// 204 would otherwise load as an empty sheet and wipe the collection.
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &httpStatusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "text/html") {
		// Sheets answers a private or unpublished export with a login page.
		return nil, fmt.Errorf("unexpected content type %q (is the sheet shared?)", ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxBodyBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", maxBodyBytes)
	}
	return data, nil
}
