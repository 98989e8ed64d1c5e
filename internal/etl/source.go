package etl

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// ── Source ──────────────────────────────────────────────────
// A Source fetches raw tabular text for a locator.
// Implementations live in etl/sources/, one file per source type, and
// register themselves for one or more URL schemes.

// Locator addresses a source table. Token, when set, is sent as a bearer token
// by sources that understand it.
type Locator struct {
	Name  string `json:"name" mapstructure:"name"`
	URL   string `json:"url" mapstructure:"url"`
	Token string `json:"-" mapstructure:"token"`
}

// Scheme returns the locator's URL scheme, "file" for bare paths.
func (l Locator) Scheme() string {
	u, err := url.Parse(l.URL)
	if err != nil || u.Scheme == "" {
		return "file"
	}
	// Single-letter schemes are Windows drive letters.
	if len(u.Scheme) == 1 {
		return "file"
	}
	return strings.ToLower(u.Scheme)
}

// SourceSpec describes a source type and the schemes it serves.
type SourceSpec struct {
	Type    string   `json:"type"`
	Label   string   `json:"label"`
	Schemes []string `json:"schemes"`
}

// Source is the interface every data source must implement.
type Source interface {
	// Spec returns metadata about this source type.
	Spec() SourceSpec

	// Fetch returns the raw bytes behind loc. Implementations must honour ctx.
	Fetch(ctx context.Context, loc Locator) ([]byte, error)
}

// HTTPStatusError lets a source report the HTTP status that caused a failure.
type HTTPStatusError interface {
	error
	StatusCode() int
}

// ── Source Registry ────────────────────────────────────────
// Compile-time registration via init() in each source file.

var (
	registryMu sync.RWMutex
	registry   = map[string]Source{}
)

// RegisterSource registers a source for every scheme in its spec.
// Called from init() in each source implementation file.
func RegisterSource(s Source) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, scheme := range s.Spec().Schemes {
		registry[strings.ToLower(scheme)] = s
	}
}

// GetSource returns the source registered for scheme.
func GetSource(scheme string) (Source, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[strings.ToLower(scheme)]
	if !ok {
		return nil, fmt.Errorf("no source registered for scheme %q", scheme)
	}
	return s, nil
}

// ListSources returns the specs of all registered sources, one per type.
func ListSources() []SourceSpec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	seen := map[string]bool{}
	specs := make([]SourceSpec, 0, len(registry))
	for _, s := range registry {
		spec := s.Spec()
		if seen[spec.Type] {
			continue
		}
		seen[spec.Type] = true
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Type < specs[j].Type })
	return specs
}

// Fetch resolves the source for loc and retrieves it within timeout.
// Every failure, including a misconfigured locator, comes back as *FetchError.
func Fetch(ctx context.Context, loc Locator, timeout time.Duration) ([]byte, error) {
	if strings.TrimSpace(loc.URL) == "" {
		return nil, &FetchError{Source: loc.Name, Err: errors.New("locator is empty")}
	}

	src, err := GetSource(loc.Scheme())
	if err != nil {
		return nil, &FetchError{Source: loc.Name, Locator: redact(loc.URL), Err: err}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	data, err := src.Fetch(ctx, loc)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return nil, fe
		}
		out := &FetchError{Source: loc.Name, Locator: redact(loc.URL), Err: err}
		var se HTTPStatusError
		if errors.As(err, &se) {
			out.StatusCode = se.StatusCode()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			out.Err = fmt.Errorf("timed out after %s: %w", timeout, err)
		}
		return nil, out
	}
	return data, nil
}

// redact drops userinfo credentials from a locator for logs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = nil
	return u.String()
}
