// Package fetch downloads media assets and opens the Chrome session that
// drives the analytics page.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultUserAgent is the user agent string for media requests.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Error represents an error during a media download.
type Error struct {
	URL        string
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures the download behavior.
type Options struct {
	// Timeout bounds a whole download. Zero means no limit.
	Timeout   time.Duration
	UserAgent string
	Referer   string
	Headers   map[string]string
}

// DefaultOptions returns sensible defaults for downloading.
func DefaultOptions() *Options {
	return &Options{
		UserAgent: DefaultUserAgent,
	}
}

// Downloader streams media bodies into writers.
type Downloader struct {
	client *http.Client
	opts   Options
}

// NewDownloader creates a downloader. A nil opts uses DefaultOptions.
func NewDownloader(opts *Options) *Downloader {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	return &Downloader{
		client: &http.Client{Timeout: o.Timeout},
		opts:   o,
	}
}

// Download copies the body at urlStr into w and returns the byte count.
func (d *Downloader) Download(ctx context.Context, urlStr string, w io.Writer) (int64, error) {
	// Validate URL
	parsedURL, err := url.Parse(urlStr)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return 0, &Error{
			URL:     urlStr,
			Message: "invalid URL",
			Cause:   err,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return 0, &Error{
			URL:     urlStr,
			Message: "failed to create request",
			Cause:   err,
		}
	}

	req.Header.Set("User-Agent", d.opts.UserAgent)
	if d.opts.Referer != "" {
		req.Header.Set("Referer", d.opts.Referer)
	}
	for key, value := range d.opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, &Error{
			URL:     urlStr,
			Message: "HTTP request failed",
			Cause:   err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &Error{
			URL:        urlStr,
			Message:    fmt.Sprintf("HTTP status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, &Error{
			URL:     urlStr,
			Message: "failed to read response body",
			Cause:   err,
		}
	}
	return n, nil
}
