// Package importer accepts TPXA documents from uploads and download URLs,
// decodes them and hands them to the import queue.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/robertmeta/tpxa/tpxa"
)

// Extension is the file suffix a download URL must carry.
const Extension = ".tpxa"

// DefaultMaxSize bounds a downloaded document.
const DefaultMaxSize = 64 << 20

// Enqueuer schedules a decoded blog for application.
type Enqueuer interface {
	Enqueue(blog *tpxa.Blog, source string) (string, error)
}

// Options configures an Importer.
type Options struct {
	Client  *http.Client
	Parse   tpxa.ParseOptions
	MaxSize int64
	Logger  *slog.Logger
}

// Importer decodes documents and submits them for application.
type Importer struct {
	queue   Enqueuer
	client  *http.Client
	parse   tpxa.ParseOptions
	maxSize int64
	logger  *slog.Logger
}

// New creates an Importer. queue may be nil when only Parse is used.
func New(queue Enqueuer, opts Options) *Importer {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 2 * time.Minute}
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Parse.Logger == nil {
		opts.Parse.Logger = opts.Logger
	}
	return &Importer{
		queue:   queue,
		client:  opts.Client,
		parse:   opts.Parse,
		maxSize: opts.MaxSize,
		logger:  opts.Logger,
	}
}

var validate = validator.New()

// ValidateDownloadURL checks that raw is an absolute http(s) URL naming a
// .tpxa file. Plain feed URLs are rejected.
func ValidateDownloadURL(raw string) error {
	if err := validate.Var(raw, "required,url"); err != nil {
		return tpxa.NewError(tpxa.CodeValidation, nil, "%q is not a valid URL", raw)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return tpxa.NewError(tpxa.CodeValidation, nil, "%q is not an http or https URL", raw)
	}
	if !strings.HasSuffix(u.Path, Extension) {
		return tpxa.NewError(tpxa.CodeValidation, nil,
			"don't pass a real feed URL, it should be a regular URL where you're serving the file generated by `tpxa export`")
	}
	return nil
}

// Download validates rawURL and fetches the document behind it. The caller
// closes the returned reader.
func (i *Importer) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if err := ValidateDownloadURL(rawURL); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &DownloadError{URL: rawURL, Err: err}
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return nil, &DownloadError{URL: rawURL, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &DownloadError{URL: rawURL, Err: &url.Error{Op: "Get", URL: rawURL, Err: errors.New(resp.Status)}}
	}
	i.logger.Debug("downloading import", "url", rawURL, "content_length", resp.ContentLength)
	return &limitedBody{
		r:      io.LimitReader(resp.Body, i.maxSize+1),
		Closer: resp.Body,
		url:    rawURL,
		max:    i.maxSize,
	}, nil
}

// DownloadError reports a document that could not be fetched.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return "error downloading from URL: " + e.Err.Error()
}

func (e *DownloadError) Unwrap() error { return e.Err }

// limitedBody fails the read that takes a download past max bytes.
type limitedBody struct {
	r io.Reader
	io.Closer
	url  string
	max  int64
	read int64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	b.read += int64(n)
	if b.read > b.max {
		return 0, &DownloadError{URL: b.url, Err: fmt.Errorf("document exceeds %d bytes", b.max)}
	}
	return n, err
}

// Parse decodes a document.
func (i *Importer) Parse(r io.Reader) (*tpxa.Blog, error) {
	blog, err := tpxa.ParseFeed(r, i.parse)
	if err != nil {
		return nil, fmt.Errorf("error parsing feed: %w", err)
	}
	return blog, nil
}

// Submit decodes the document in r and queues it. It returns the job id.
func (i *Importer) Submit(ctx context.Context, r io.Reader, source string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	blog, err := i.Parse(r)
	if err != nil {
		i.logger.Warn("rejected import", "source", source, "error", err)
		return "", err
	}
	if i.queue == nil {
		return "", errors.New("importer has no queue")
	}
	id, err := i.queue.Enqueue(blog, source)
	if err != nil {
		return "", fmt.Errorf("failed to queue import: %w", err)
	}
	return id, nil
}

// SubmitURL downloads, decodes and queues a document.
func (i *Importer) SubmitURL(ctx context.Context, rawURL string) (string, error) {
	body, err := i.Download(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer body.Close()
	return i.Submit(ctx, body, rawURL)
}
