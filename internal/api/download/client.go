package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shirou/gopsutil/v4/disk"

	"github.com/oshokin/dyst/internal/domain/packages"
	"github.com/oshokin/dyst/internal/logger"
	"github.com/oshokin/dyst/internal/version"
)

const (
	// DefaultRetries is the default number of attempts per download.
	DefaultRetries uint = 3

	// DefaultHeaderTimeout bounds the wait for response headers.
	DefaultHeaderTimeout = 30 * time.Second

	// maxRedirects mirrors the limit browsers apply to release asset redirects.
	maxRedirects = 10

	// initialBackoff is the delay before the second attempt.
	initialBackoff = 500 * time.Millisecond

	// maxBackoff caps the delay between attempts.
	maxBackoff = 10 * time.Second
)

var (
	errTooManyRedirects = errors.New("too many redirects")
	errBadHTTPStatus    = errors.New("unexpected http status")
	errNotEnoughSpace   = errors.New("not enough free disk space")
)

// ProgressFunc creates a progress sink for a download of total bytes (-1 when unknown).
// The returned writer receives every byte read from the body.
type ProgressFunc func(name string, total int64) io.WriteCloser

// Option configures a Client.
type Option func(c *Client)

// WithRetries sets the number of attempts per download.
func WithRetries(retries uint) Option {
	return func(c *Client) {
		if retries > 0 {
			c.retries = retries
		}
	}
}

// WithHeaderTimeout bounds the wait for response headers.
func WithHeaderTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.headerTimeout = timeout
		}
	}
}

// WithScratchDir sets the directory whose free space is checked before a download.
func WithScratchDir(dir string) Option {
	return func(c *Client) {
		c.scratchDir = dir
	}
}

// WithProgress reports transfer progress through fn.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Client) {
		c.progress = fn
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client downloads release assets.
type Client struct {
	// httpClient performs the requests.
	httpClient *http.Client
	// retries is the number of attempts per download.
	retries uint
	// headerTimeout bounds the wait for response headers.
	headerTimeout time.Duration
	// scratchDir is checked for free space before streaming.
	scratchDir string
	// progress creates an optional progress sink per download.
	progress ProgressFunc
	// initialBackoff is the delay before the second attempt.
	initialBackoff time.Duration
	// freeSpace reports the free bytes of the filesystem holding a path.
	freeSpace func(ctx context.Context, path string) (uint64, error)
}

// NewClient creates a download client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		retries:        DefaultRetries,
		headerTimeout:  DefaultHeaderTimeout,
		initialBackoff: initialBackoff,
		freeSpace:      diskFreeSpace,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // The default transport is always *http.Transport.
		transport.ResponseHeaderTimeout = c.headerTimeout

		c.httpClient = &http.Client{
			Transport: transport,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errTooManyRedirects
				}

				return nil
			},
		}
	}

	return c
}

// Open starts downloading url and returns the response body.
// Network failures, 5xx and 429 responses are retried with exponential backoff,
// other 4xx responses fail immediately. Read failures of the returned body are
// classified as packages.ErrTransfer.
func (c *Client) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	operation := func() (*http.Response, error) {
		return c.attempt(ctx, url)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialBackoff
	policy.MaxInterval = maxBackoff

	response, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.retries),
		backoff.WithNotify(func(err error, delay time.Duration) {
			logger.WarnKV(ctx, "Download attempt failed, retrying", "url", url, "delay", delay, "error", err)
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		return nil, fmt.Errorf("download %s: %w: %w", url, packages.ErrTransfer, err)
	}

	if err = c.ensureSpace(ctx, response.ContentLength); err != nil {
		_ = response.Body.Close()
		return nil, err
	}

	stream := &body{ReadCloser: response.Body}

	if c.progress != nil {
		stream.sink = c.progress(url, response.ContentLength)
	}

	return stream, nil
}

// attempt performs one GET and decides whether a failure is worth retrying.
func (c *Client) attempt(ctx context.Context, url string) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}

	request.Header.Set("User-Agent", version.UserAgent())
	request.Header.Set("Accept", "application/octet-stream")

	response, err := c.httpClient.Do(request)
	if err != nil {
		if errors.Is(err, errTooManyRedirects) {
			return nil, backoff.Permanent(err)
		}

		return nil, fmt.Errorf("execute request: %w", err)
	}

	if response.StatusCode == http.StatusOK {
		return response, nil
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, 1<<10))
	_ = response.Body.Close()

	statusErr := fmt.Errorf("%s: %w", response.Status, errBadHTTPStatus)

	if response.StatusCode >= http.StatusInternalServerError || response.StatusCode == http.StatusTooManyRequests {
		return nil, statusErr
	}

	return nil, backoff.Permanent(statusErr)
}

// ensureSpace fails early when the scratch filesystem cannot hold the payload.
func (c *Client) ensureSpace(ctx context.Context, size int64) error {
	if size <= 0 || c.freeSpace == nil {
		return nil
	}

	dir := c.scratchDir
	if dir == "" {
		dir = os.TempDir()
	}

	free, err := c.freeSpace(ctx, dir)
	if err != nil {
		logger.DebugKV(ctx, "Could not determine free disk space", "dir", dir, "error", err)
		return nil
	}

	if free < uint64(size) {
		return fmt.Errorf("%w: %w: %d bytes needed in %s, %d available",
			packages.ErrFilesystem, errNotEnoughSpace, size, dir, free)
	}

	return nil
}

func diskFreeSpace(ctx context.Context, path string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}

	return usage.Free, nil
}

// body classifies read failures and feeds the optional progress sink.
type body struct {
	io.ReadCloser

	sink io.WriteCloser
}

func (b *body) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if n > 0 && b.sink != nil {
		_, _ = b.sink.Write(p[:n])
	}

	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("read body: %w: %w", packages.ErrTransfer, err)
	}

	return n, err //nolint:wrapcheck // io.EOF must reach callers unwrapped.
}

func (b *body) Close() error {
	if b.sink != nil {
		_ = b.sink.Close()
	}

	return b.ReadCloser.Close()
}
