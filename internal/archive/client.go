package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/vaultshop/internal/config"
)

var clientTracer = otel.Tracer("github.com/Additional-Code/vaultshop/archive")

// Module provides the cold storage client to Fx.
var Module = fx.Provide(NewClient)

var (
	// ErrEmptyPayload is returned for zero-length uploads.
	ErrEmptyPayload = errors.New("archive: empty payload")
	// ErrMissingCredentials is returned when access or secret key is unset.
	ErrMissingCredentials = errors.New("archive: access credentials are not configured")
)

// UploadError reports a non-2xx answer to a PUT.
type UploadError struct {
	StatusCode int
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("archive: upload rejected with status %d", e.StatusCode)
}

// FetchError reports a non-2xx answer to a GET of an archived object.
type FetchError struct {
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("archive: fetch failed with status %d", e.StatusCode)
}

// Client talks to an S3-compatible cold store using archive.org's
// "LOW access:secret" authorization scheme.
type Client struct {
	http       *http.Client
	uploadBase string
	publicBase string
	accessKey  string
	secretKey  string
}

// NewClient builds a Client from application configuration. Requests carry
// no client-side timeout; callers bound them through the context.
func NewClient(cfg config.Config) *Client {
	return New(cfg.Archive, &http.Client{})
}

// New builds a Client with an explicit HTTP client.
func New(cfg config.Archive, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		http:       httpClient,
		uploadBase: cfg.UploadBaseURL,
		publicBase: cfg.PublicBaseURL,
		accessKey:  cfg.AccessKey,
		secretKey:  cfg.SecretKey,
	}
}

// Configured reports whether upload credentials are present.
func (c *Client) Configured() bool {
	return c.accessKey != "" && c.secretKey != ""
}

// ObjectPath is the deterministic key of an item's file in the store.
func ObjectPath(itemID, filename string) string {
	return "/" + url.PathEscape(itemID) + "/" + url.PathEscape(filename)
}

// PublicURL is where an uploaded object can be downloaded from.
func (c *Client) PublicURL(itemID, filename string) string {
	return c.publicBase + ObjectPath(itemID, filename)
}

// Put stores body under itemID/filename and returns the public URL. The body
// must already be encrypted. Failures are not retried.
func (c *Client) Put(ctx context.Context, itemID, filename string, body []byte) (string, error) {
	if !c.Configured() {
		return "", ErrMissingCredentials
	}
	if len(body) == 0 {
		return "", ErrEmptyPayload
	}

	ctx, span := clientTracer.Start(ctx, "Archive.Put", trace.WithAttributes(
		attribute.String("archive.item_id", itemID),
		attribute.String("archive.filename", filename),
		attribute.Int("archive.size", len(body)),
	))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.uploadBase+ObjectPath(itemID, filename), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", fmt.Sprintf("LOW %s:%s", c.accessKey, c.secretKey))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = int64(len(body))

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return "", fmt.Errorf("archive: put: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := &UploadError{StatusCode: resp.StatusCode}
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload rejected")
		return "", err
	}

	return c.PublicURL(itemID, filename), nil
}

// Fetch downloads the raw bytes stored at rawURL.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, span := clientTracer.Start(ctx, "Archive.Fetch")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, fmt.Errorf("archive: fetch: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		err := &FetchError{StatusCode: resp.StatusCode}
		span.SetStatus(codes.Error, "upstream unavailable")
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("archive: read body: %w", err)
	}
	return data, nil
}
