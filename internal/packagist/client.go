// Package packagist queries a Composer v2 metadata repository
// (repo.packagist.org or a compatible mirror) for published package versions.
package packagist

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrNotFound is returned when the registry has no metadata for a package.
var ErrNotFound = stderrors.New("package not found")

// Version is one published version of a package.
type Version struct {
	Version           string
	VersionNormalized string
	// Require maps dependency names to version constraints.
	Require map[string]string
}

// Client fetches package metadata over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the debug logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Client for the repository at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Versions returns every published version of name, tagged releases first
// followed by dev branches. Returns ErrNotFound if neither listing exists.
func (c *Client) Versions(ctx context.Context, name string) ([]Version, error) {
	tagged, taggedFound, err := c.fetch(ctx, name, name+".json")
	if err != nil {
		return nil, err
	}
	dev, devFound, err := c.fetch(ctx, name, name+"~dev.json")
	if err != nil {
		return nil, err
	}
	if !taggedFound && !devFound {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return append(tagged, dev...), nil
}

// p2Response is the body of /p2/<vendor>/<name>.json.
type p2Response struct {
	Packages map[string][]map[string]json.RawMessage `json:"packages"`
	Minified string                                  `json:"minified"`
}

func (c *Client) fetch(ctx context.Context, name, file string) ([]Version, bool, error) {
	url := c.baseURL + "/p2/" + file
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("fetching package metadata", "url", url)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, nil
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}

	var body p2Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", url, err)
	}

	entries, ok := body.Packages[name]
	if !ok {
		return nil, false, nil
	}
	if body.Minified == "composer/2.0" {
		entries = expandMinified(entries)
	}

	versions := make([]Version, 0, len(entries))
	for _, e := range entries {
		v, err := decodeVersion(e)
		if err != nil {
			return nil, false, fmt.Errorf("decode %s: %w", url, err)
		}
		versions = append(versions, v)
	}
	return versions, true, nil
}

// expandMinified undoes Composer's metadata minification: each entry only
// lists keys that changed since the previous entry, and the string
// "__unset" removes a key.
func expandMinified(entries []map[string]json.RawMessage) []map[string]json.RawMessage {
	out := make([]map[string]json.RawMessage, 0, len(entries))
	var prev map[string]json.RawMessage
	for _, e := range entries {
		cur := make(map[string]json.RawMessage, len(prev)+len(e))
		for k, v := range prev {
			cur[k] = v
		}
		for k, v := range e {
			if string(v) == `"__unset"` {
				delete(cur, k)
				continue
			}
			cur[k] = v
		}
		out = append(out, cur)
		prev = cur
	}
	return out
}

func decodeVersion(e map[string]json.RawMessage) (Version, error) {
	var v Version
	if raw, ok := e["version"]; ok {
		if err := json.Unmarshal(raw, &v.Version); err != nil {
			return Version{}, fmt.Errorf("version: %w", err)
		}
	}
	if raw, ok := e["version_normalized"]; ok {
		if err := json.Unmarshal(raw, &v.VersionNormalized); err != nil {
			return Version{}, fmt.Errorf("version_normalized: %w", err)
		}
	}
	if raw, ok := e["require"]; ok {
		// "require" is an empty list rather than an object when a
		// version has no requirements.
		if err := json.Unmarshal(raw, &v.Require); err != nil {
			var empty []any
			if json.Unmarshal(raw, &empty) != nil {
				return Version{}, fmt.Errorf("require: %w", err)
			}
			v.Require = nil
		}
	}
	if v.Version == "" {
		return Version{}, fmt.Errorf("entry has no version")
	}
	return v, nil
}
