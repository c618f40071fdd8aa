// Package loader resolves resource references against a base URL and fetches
// them from the local filesystem or over HTTP.
package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"webinliner/internal/logging"
)

// DefaultTimeout bounds a single HTTP fetch.
const DefaultTimeout = 30 * time.Second

// Resource is a fetched reference.
type Resource struct {
	URL  *url.URL
	MIME string
	Data []byte
}

// Loader fetches references relative to a fixed base URL.
type Loader struct {
	base   *url.URL
	client *http.Client
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(l *Loader) { l.client.Timeout = d }
}

// New creates a Loader resolving relative references against base.
func New(base *url.URL, opts ...Option) *Loader {
	l := &Loader{
		base:   base,
		client: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Base returns the base URL.
func (l *Loader) Base() *url.URL {
	return l.base
}

// Resolve turns ref into an absolute URL. References carrying a scheme are
// used as is; everything else is joined with the base URL.
func (l *Loader) Resolve(ref string) (*url.URL, error) {
	// attribute values may carry surrounding whitespace
	ref = strings.TrimSpace(ref)
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidReference, ref, err)
	}
	if u.IsAbs() {
		return u, nil
	}
	if l.base == nil {
		return nil, fmt.Errorf("%w: %q is relative and no base URL is set", ErrInvalidReference, ref)
	}
	return l.base.ResolveReference(u), nil
}

// Load resolves and fetches ref.
func (l *Loader) Load(ctx context.Context, ref string) (*Resource, error) {
	u, err := l.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return l.LoadURL(ctx, u)
}

// LoadString fetches ref and returns its content as UTF-8 text.
func (l *Loader) LoadString(ctx context.Context, ref string) (string, error) {
	res, err := l.Load(ctx, ref)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(res.Data) {
		return "", fmt.Errorf("%w: %s", ErrDecode, res.URL)
	}
	return string(res.Data), nil
}

// LoadURL fetches an absolute URL.
func (l *Loader) LoadURL(ctx context.Context, u *url.URL) (*Resource, error) {
	switch u.Scheme {
	case "file":
		return l.loadFile(ctx, u)
	case "http", "https":
		return l.loadHTTP(ctx, u)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

func (l *Loader) loadFile(ctx context.Context, u *url.URL) (*Resource, error) {
	log := logging.From(ctx)
	if u.Host != "" && u.Host != "localhost" {
		return nil, fmt.Errorf("%w: %s is not a local file", ErrIO, u)
	}

	log.Info("reading file://" + u.Path)

	p := filepath.FromSlash(u.Path)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	mime := DetectMIME("", data, u.Path)
	log.Debug("guessed MIME type", zap.String("path", p), zap.String("mime", mime))

	return &Resource{URL: u, MIME: mime, Data: data}, nil
}

func (l *Loader) loadHTTP(ctx context.Context, u *url.URL) (*Resource, error) {
	log := logging.From(ctx)
	log.Info("requesting " + u.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{URL: u.String(), Code: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body of %s: %w", ErrNetwork, u, err)
	}

	mime := DetectMIME(resp.Header.Get("Content-Type"), data, u.Path)
	log.Debug("guessed MIME type", zap.String("url", u.String()), zap.String("mime", mime))

	return &Resource{URL: u, MIME: mime, Data: data}, nil
}
