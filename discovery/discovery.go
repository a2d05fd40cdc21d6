package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/authresolver/internal/wellknown"
)

// DefaultTimeout bounds a single Fetch when the caller's context carries no
// earlier deadline.
const DefaultTimeout = 5 * time.Second

// maxDocumentSize caps how much of a discovery response is read.
const maxDocumentSize = 1 << 20

var jsonMediaType = contenttype.NewMediaType("application/json")

// ErrFetch matches any *FetchError.
var ErrFetch = errors.New("discovery: fetch failed")

// ErrParse matches any *ParseError.
var ErrParse = errors.New("discovery: invalid document")

// Metadata is the part of a discovery document needed to verify tokens.
type Metadata struct {
	Issuer  string
	JWKSURI string
}

// FetchError reports a transport failure or a non-success HTTP status.
// StatusCode is zero when no response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("discovery: fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("discovery: fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// ParseError reports a response that could not be used as discovery metadata.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("discovery: parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// URL builds the discovery document URL for issuer. Trailing slashes on the
// issuer are dropped so the well-known suffix is never doubled.
func URL(issuer string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(issuer), "/")
	if base == "" {
		return "", errors.New("discovery: issuer is required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("discovery: invalid issuer %q: %w", issuer, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("discovery: issuer %q must be an absolute http(s) URL", issuer)
	}
	return base + wellknown.OpenIDConfigurationPath, nil
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the client used for the discovery request.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithLogger sets the logger used to report unexpected response media
// types. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.log = l
		}
	}
}

// WithTimeout bounds each Fetch. Non-positive values disable the bound.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.timeout = d }
}

// Fetcher retrieves discovery metadata. It is safe for concurrent use.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	log     *slog.Logger
}

// New returns a Fetcher using http.DefaultClient, DefaultTimeout and
// slog.Default.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{client: http.DefaultClient, timeout: DefaultTimeout, log: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs a single GET of rawURL and parses the response.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Metadata, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Metadata{}, &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("Accept", jsonMediaType.String())

	resp, err := f.client.Do(req)
	if err != nil {
		return Metadata{}, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDocumentSize))
		return Metadata{}, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	// The media type is informational; only the body decides validity.
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt := contenttype.NewMediaType(ct); !mt.Matches(jsonMediaType) {
			f.log.DebugContext(ctx, "discovery.content_type.unexpected",
				slog.String("url", rawURL),
				slog.String("content_type", ct),
			)
		}
	}

	var doc wellknown.OpenIDConfiguration
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentSize)).Decode(&doc); err != nil {
		return Metadata{}, &ParseError{URL: rawURL, Err: err}
	}

	missing := []string{}
	if strings.TrimSpace(doc.Issuer) == "" {
		missing = append(missing, "issuer")
	}
	if strings.TrimSpace(doc.JwksURI) == "" {
		missing = append(missing, "jwks_uri")
	}
	if len(missing) > 0 {
		return Metadata{}, &ParseError{URL: rawURL, Err: fmt.Errorf("missing %s", strings.Join(missing, ", "))}
	}

	return Metadata{Issuer: doc.Issuer, JWKSURI: doc.JwksURI}, nil
}
