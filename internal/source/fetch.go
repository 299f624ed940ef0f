package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ErrFetch wraps every failure to open a yearly source. It is recoverable:
// the caller skips that year.
var ErrFetch = errors.New("source: fetch failed")

// Options tune remote reads.
type Options struct {
	HeaderTimeout   time.Duration
	InitialInterval time.Duration
	MaxElapsed      time.Duration
	UserAgent       string
}

// Fetcher opens local files and remote URLs as streams.
type Fetcher struct {
	client *http.Client
	opts   Options
	logger *zap.Logger
}

// NewFetcher creates a fetcher. A nil logger discards output.
func NewFetcher(opts Options, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HeaderTimeout <= 0 {
		opts.HeaderTimeout = 30 * time.Second
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = 2 * time.Minute
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = opts.HeaderTimeout

	return &Fetcher{
		// No overall timeout: bodies are streamed for as long as they last.
		client: &http.Client{Transport: transport},
		opts:   opts,
		logger: logger,
	}
}

// IsRemote reports whether location is an http(s) URL.
func IsRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// Open returns a stream over location. Remote requests are retried with
// exponential backoff until a response arrives; 4xx responses are not
// retried.
func (f *Fetcher) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if location == "" {
		return nil, fmt.Errorf("%w: empty location", ErrFetch)
	}
	if !IsRemote(location) {
		file, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetch, err)
		}
		return file, nil
	}

	var body io.ReadCloser
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if f.opts.UserAgent != "" {
			req.Header.Set("User-Agent", f.opts.UserAgent)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			err := fmt.Errorf("GET %s: status %d", location, resp.StatusCode)
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			return err
		}
		body = resp.Body
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.opts.InitialInterval
	b.MaxElapsedTime = f.opts.MaxElapsed

	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), func(err error, d time.Duration) {
		f.logger.Warn("source request failed, retrying",
			zap.String("url", location),
			zap.Duration("retry_in", d),
			zap.Error(err),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return body, nil
}

// Download copies location into dest, replacing dest only once the copy
// completed.
func (f *Fetcher) Download(ctx context.Context, location, dest string) error {
	rc, err := f.Open(ctx, location)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrFetch, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: copy %s: %v", ErrFetch, location, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return nil
}
