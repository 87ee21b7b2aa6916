// Package fetcher downloads revenue disclosure batches from the exchange open APIs.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"twrevenue/internal/config"
	apperrors "twrevenue/internal/errors"
	"twrevenue/internal/infrastructure"
	"twrevenue/internal/sources"
	"twrevenue/pkg/contracts/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Fetcher performs one synchronous GET per call with the fixed source headers.
type Fetcher struct {
	client    *http.Client
	headers   map[string]string
	userAgent string
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option customizes a Fetcher
type Option func(*Fetcher)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// WithTracer sets the tracer used for request spans
func WithTracer(tracer trace.Tracer) Option {
	return func(f *Fetcher) { f.tracer = tracer }
}

// New creates a Fetcher. A zero cfg.Timeout leaves requests without a deadline.
func New(cfg config.HTTPConfig, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: cfg.Timeout},
		headers:   sources.Headers,
		userAgent: cfg.UserAgent,
		logger:    infrastructure.GetLogger(),
		tracer:    tracenoop.NewTracerProvider().Tracer(config.AppName),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = infrastructure.WithComponent(f.logger, "fetcher")
	return f
}

// Fetch downloads and decodes the record batch at url.
//
// Failures never abort the caller: transport errors, non-2xx responses and
// malformed JSON are logged and an empty batch is returned together with the
// typed error, so a failed source is indistinguishable from an empty one
// unless the caller inspects the error.
func (f *Fetcher) Fetch(ctx context.Context, url string) (domain.RecordBatch, error) {
	ctx, span := f.tracer.Start(ctx, "fetcher.Fetch", trace.WithAttributes(attribute.String("http.url", url)))
	defer span.End()

	f.logger.InfoContext(ctx, "Fetching data from API", slog.String("url", url))

	batch, err := f.get(ctx, url)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		switch apperrors.TypeOf(err) {
		case apperrors.ErrTypeNetwork, apperrors.ErrTypeHTTPStatus:
			f.logger.ErrorContext(ctx, "HTTP error occurred", slog.String("url", url), slog.String("error", err.Error()))
		default:
			f.logger.ErrorContext(ctx, "An error occurred", slog.String("url", url), slog.String("error", err.Error()))
		}
		return domain.RecordBatch{}, err
	}

	span.SetAttributes(attribute.Int("records", len(batch)))
	f.logger.InfoContext(ctx, "Successfully fetched records from the API",
		slog.String("url", url),
		slog.Int("count", len(batch)))
	return batch, nil
}

func (f *Fetcher) get(ctx context.Context, url string) (domain.RecordBatch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.NewNetworkError("failed to build request", err).WithContext("url", url)
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("request failed", err).WithContext("url", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, apperrors.NewHTTPStatusError(resp.StatusCode, resp.Status).WithContext("url", url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewNetworkError("failed to read response body", err).WithContext("url", url)
	}

	return decodeBatch(body)
}

// decodeBatch parses a JSON array of objects, tolerating a leading UTF-8 BOM
func decodeBatch(body []byte) (domain.RecordBatch, error) {
	body = bytes.TrimPrefix(body, utf8BOM)

	var batch domain.RecordBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, apperrors.NewParsingError("failed to decode response as a JSON array of records", err)
	}
	if batch == nil {
		// a literal null body
		batch = domain.RecordBatch{}
	}
	return batch, nil
}
