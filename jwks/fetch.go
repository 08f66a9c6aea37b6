package jwks

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/edgefirst-dev/jwt/keys"
	"github.com/go-logr/logr"
	"github.com/hashicorp/go-retryablehttp"
	gocache "github.com/patrickmn/go-cache"
)

const (
	defaultRetries   = 2
	defaultCacheTTL  = 5 * time.Minute
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "edgefirst-jwt/1.0"
	maxDocumentBytes = 1 << 20
)

type fetchOptions struct {
	retries            int
	retryWaitMin       time.Duration
	retryWaitMax       time.Duration
	timeout            time.Duration
	cacheTTL           time.Duration
	allowLocalhost     bool
	insecureSkipVerify bool
	userAgent          string
	logger             logr.Logger
	observer           func(url string, cached bool, err error)
}

// FetchOption configures a Fetcher.
type FetchOption func(*fetchOptions)

// WithRetries sets how many times a failed request is retried.
func WithRetries(n int) FetchOption {
	return func(o *fetchOptions) { o.retries = max(n, 0) }
}

// WithRetryWait bounds the backoff between retries.
func WithRetryWait(minWait, maxWait time.Duration) FetchOption {
	return func(o *fetchOptions) {
		o.retryWaitMin = minWait
		o.retryWaitMax = maxWait
	}
}

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) FetchOption {
	return func(o *fetchOptions) { o.timeout = d }
}

// WithCacheTTL sets how long fetched documents are reused. Zero disables caching.
func WithCacheTTL(d time.Duration) FetchOption {
	return func(o *fetchOptions) { o.cacheTTL = d }
}

// WithLocalhost allows plain HTTP to localhost, 127.0.0.1, and ::1.
func WithLocalhost(allow bool) FetchOption {
	return func(o *fetchOptions) { o.allowLocalhost = allow }
}

// WithInsecureSkipVerify disables TLS certificate verification. Tests only.
func WithInsecureSkipVerify(skip bool) FetchOption {
	return func(o *fetchOptions) { o.insecureSkipVerify = skip }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetchOption {
	return func(o *fetchOptions) { o.userAgent = ua }
}

// WithLogger sets the logger. The default discards.
func WithLogger(l logr.Logger) FetchOption {
	return func(o *fetchOptions) { o.logger = l }
}

// WithObserver is called after every Fetch with whether the cache served it and the
// resulting error.
func WithObserver(fn func(url string, cached bool, err error)) FetchOption {
	return func(o *fetchOptions) { o.observer = fn }
}

// Fetcher retrieves remote JWKS documents with retries and a TTL cache.
// It is safe for concurrent use.
type Fetcher struct {
	opts   fetchOptions
	client *retryablehttp.Client
	cache  *gocache.Cache
}

// NewFetcher returns a Fetcher. HTTPS is required unless WithLocalhost(true) is given and
// the host is a loopback name.
func NewFetcher(opts ...FetchOption) *Fetcher {
	o := fetchOptions{
		retries:      defaultRetries,
		retryWaitMin: 500 * time.Millisecond,
		retryWaitMax: 2 * time.Second,
		timeout:      defaultTimeout,
		cacheTTL:     defaultCacheTTL,
		userAgent:    defaultUserAgent,
		logger:       logr.Discard(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = o.retries
	client.RetryWaitMin = o.retryWaitMin
	client.RetryWaitMax = o.retryWaitMax
	client.Logger = nil
	client.HTTPClient.Timeout = o.timeout
	if o.insecureSkipVerify {
		client.HTTPClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // opt-in for tests
		}
	}

	f := &Fetcher{opts: o, client: client}
	if o.cacheTTL > 0 {
		f.cache = gocache.New(o.cacheTTL, time.Minute)
	}
	return f
}

// Fetch returns the JWKS document at rawURL, from cache when fresh.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if f.cache != nil {
		if v, ok := f.cache.Get(rawURL); ok {
			if body, ok := v.([]byte); ok {
				f.observe(rawURL, true, nil)
				return body, nil
			}
		}
	}

	body, err := f.fetch(ctx, rawURL)
	f.observe(rawURL, false, err)
	if err != nil {
		f.opts.logger.Error(err, "fetch jwks", "url", rawURL)
		return nil, err
	}
	if f.cache != nil {
		f.cache.SetDefault(rawURL, body)
	}
	f.opts.logger.V(1).Info("fetched jwks", "url", rawURL, "bytes", len(body))
	return body, nil
}

// Invalidate drops the cached document for rawURL.
func (f *Fetcher) Invalidate(rawURL string) {
	if f.cache != nil {
		f.cache.Delete(rawURL)
	}
}

// Import fetches rawURL and imports it with ImportLocal.
func (f *Fetcher) Import(ctx context.Context, rawURL string, opts ImportOptions) ([]keys.KeyPair, error) {
	body, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	pairs, err := ImportLocal(body, opts)
	if err != nil {
		f.Invalidate(rawURL)
		return nil, err
	}
	return pairs, nil
}

var defaultFetcher = sync.OnceValue(func() *Fetcher { return NewFetcher() })

// ImportRemote fetches and imports the JWKS at rawURL with a shared default Fetcher.
func ImportRemote(ctx context.Context, rawURL string, opts ImportOptions) ([]keys.KeyPair, error) {
	return defaultFetcher().Import(ctx, rawURL, opts)
}

func (f *Fetcher) observe(rawURL string, cached bool, err error) {
	if f.opts.observer != nil {
		f.opts.observer(rawURL, cached, err)
	}
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := f.checkURL(rawURL); err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrFetch, err)
	}
	req.Header.Set("User-Agent", f.opts.userAgent)
	req.Header.Set("Accept", "application/json, application/jwk-set+json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrFetch, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetch, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty response body", ErrFetch)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: response is not JSON", ErrInvalidKeySet)
	}
	return body, nil
}

func (f *Fetcher) checkURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: invalid URL: %w", ErrFetch, err)
	}
	if strings.EqualFold(u.Scheme, "https") {
		return nil
	}
	host := u.Hostname()
	loopback := strings.EqualFold(host, "localhost") || host == "127.0.0.1" || host == "::1"
	if strings.EqualFold(u.Scheme, "http") && loopback && f.opts.allowLocalhost {
		return nil
	}
	return fmt.Errorf("%w: HTTPS scheme is required for %q", ErrFetch, rawURL)
}
