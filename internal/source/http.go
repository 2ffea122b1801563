package source

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

	"golang.org/x/time/rate"

	"github.com/harvestd/harvestd/internal/model"
	"github.com/harvestd/harvestd/internal/ratelimit"
)

const (
	// urlTemplateOption is the session option naming the fetch URL template.
	// The literal "{name}" is replaced with the path-escaped item name.
	urlTemplateOption = "url_template"

	// DefaultMaxBodyBytes caps how much of a response body is read. Soft-block
	// interstitials are small; real payloads past this size are truncated
	// rather than buffered without bound.
	DefaultMaxBodyBytes = 2 << 20 // 2 MiB

	// DefaultRPSCeiling is the hard requests-per-second ceiling applied on
	// top of the shared limiter's pacing. The limiter's jittered delays
	// normally keep traffic well below it.
	DefaultRPSCeiling = 1.0

	// DefaultHTTPTimeout bounds a single fetch.
	DefaultHTTPTimeout = 30 * time.Second
)

// ErrMissingURLTemplate is returned when a session config has no url_template option.
var ErrMissingURLTemplate = errors.New("source: session config has no url_template option")

// HTTPProcessor fetches one item per Process call over HTTP. It carries the
// shared limiter's current identity on every request, enforces an absolute
// requests-per-second ceiling, and classifies responses for soft blocks.
type HTTPProcessor struct {
	client       *http.Client
	limiter      *ratelimit.Limiter
	ceiling      *rate.Limiter
	maxBodyBytes int64
	minBodyBytes int
	extraHeaders map[string]string
	logger       *slog.Logger
}

// HTTPOption configures an HTTPProcessor.
type HTTPOption func(*HTTPProcessor)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(p *HTTPProcessor) {
		if client != nil {
			p.client = client
		}
	}
}

// WithRPSCeiling sets the absolute requests-per-second ceiling.
func WithRPSCeiling(rps float64) HTTPOption {
	return func(p *HTTPProcessor) {
		if rps > 0 {
			p.ceiling = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithMaxBodyBytes caps how much of a response body is read.
func WithMaxBodyBytes(n int64) HTTPOption {
	return func(p *HTTPProcessor) {
		if n > 0 {
			p.maxBodyBytes = n
		}
	}
}

// WithMinBodyBytes sets the suspicious-response size floor used for
// soft-block classification.
func WithMinBodyBytes(n int) HTTPOption {
	return func(p *HTTPProcessor) {
		if n > 0 {
			p.minBodyBytes = n
		}
	}
}

// WithExtraHeaders sets fixed headers sent on every request, on top of the
// rotating identity's headers. Typically populated from per-source config.
func WithExtraHeaders(headers map[string]string) HTTPOption {
	return func(p *HTTPProcessor) {
		p.extraHeaders = headers
	}
}

// WithHTTPLogger sets a custom logger.
func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(p *HTTPProcessor) {
		p.logger = logger
	}
}

// NewHTTPProcessor creates a processor that paces through the given limiter.
func NewHTTPProcessor(limiter *ratelimit.Limiter, opts ...HTTPOption) *HTTPProcessor {
	p := &HTTPProcessor{
		client:       &http.Client{Timeout: DefaultHTTPTimeout},
		limiter:      limiter,
		ceiling:      rate.NewLimiter(rate.Limit(DefaultRPSCeiling), 1),
		maxBodyBytes: DefaultMaxBodyBytes,
		minBodyBytes: ratelimit.DefaultMinBodyBytes,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// fetchResult is the envelope persisted as an item's opaque result.
type fetchResult struct {
	Name       string          `json:"name"`
	URL        string          `json:"url"`
	StatusCode int             `json:"status_code"`
	BodyBytes  int             `json:"body_bytes"`
	FetchedAt  time.Time       `json:"fetched_at"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Process fetches the item named by itemName from the URL built out of the
// session's url_template option. A soft-blocked response is reported to the
// shared limiter before the error is returned, so pacing and identity
// rotation react even though the orchestrator only sees a generic failure.
func (p *HTTPProcessor) Process(ctx context.Context, itemName string, cfg model.SessionConfig) (json.RawMessage, error) {
	tmpl := cfg.Option(urlTemplateOption, "")
	if tmpl == "" {
		return nil, ErrMissingURLTemplate
	}
	target := strings.ReplaceAll(tmpl, "{name}", url.PathEscape(itemName))

	if err := p.ceiling.Wait(ctx); err != nil {
		return nil, fmt.Errorf("source: rps ceiling wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("source: build request for %s: %w", target, err)
	}
	identity := p.limiter.CurrentIdentity()
	identity.Apply(req.Header)
	for k, v := range p.extraHeaders {
		req.Header.Set(k, v)
	}

	p.logger.Debug("fetching item",
		"item", itemName,
		"url", target,
		"identity", identity.Name,
	)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("source: read body of %s: %w", target, err)
	}

	if blocked, reason := ratelimit.Classify(resp.StatusCode, body, p.minBodyBytes); blocked {
		p.limiter.RecordSoftBlock()
		return nil, fmt.Errorf("source: soft block fetching %s: %s", target, reason)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source: fetch %s: unexpected status %d", target, resp.StatusCode)
	}

	result := fetchResult{
		Name:       itemName,
		URL:        target,
		StatusCode: resp.StatusCode,
		BodyBytes:  len(body),
		FetchedAt:  time.Now().UTC(),
	}
	if json.Valid(body) {
		result.Body = json.RawMessage(body)
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("source: encode result for %s: %w", itemName, err)
	}
	return encoded, nil
}
