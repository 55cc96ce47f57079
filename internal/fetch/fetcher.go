package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/datares-tracker/constants"
	"github.com/joseph-ayodele/datares-tracker/internal/common"
	"github.com/joseph-ayodele/datares-tracker/internal/entity"
)

// Fetcher retrieves the document bytes for a descriptor.
type Fetcher interface {
	Fetch(ctx context.Context, d entity.Descriptor) Result
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, d entity.Descriptor) Result

func (f FetcherFunc) Fetch(ctx context.Context, d entity.Descriptor) Result {
	return f(ctx, d)
}

type HTTPConfig struct {
	Timeout       time.Duration
	UserAgent     string
	Referer       string
	RatePerSecond float64 // 0 = unlimited
	Burst         int
	MaxBytes      int64 // 0 = 256 MiB
}

// HTTPFetcher makes exactly one request per Fetch call and classifies the outcome.
type HTTPFetcher struct {
	client  *http.Client
	cfg     HTTPConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewHTTPFetcher(cfg HTTPConfig, logger *slog.Logger) *HTTPFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 256 << 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limiter := rate.NewLimiter(rate.Inf, cfg.Burst)
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	}
	return &HTTPFetcher{
		client:  &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		limiter: limiter,
		logger:  logger,
	}
}

// WithClient swaps the HTTP client (tests, custom transports).
func (f *HTTPFetcher) WithClient(c *http.Client) *HTTPFetcher {
	f.client = c
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, d entity.Descriptor) Result {
	u, err := url.Parse(strings.TrimSpace(d.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Fatal(fmt.Sprintf("malformed url %q", d.URL), err)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return Transient("rate limiter", err)
	}

	reqID := uuid.NewString()
	log := common.LoggerFromContext(common.WithRequestID(ctx, reqID), f.logger)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Fatal("build request", err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	if f.cfg.Referer != "" {
		req.Header.Set("Referer", f.cfg.Referer)
	}
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		log.Debug("fetch.http.error", "url", u.String(), "error", err)
		return Transient("http get", err)
	}
	defer func() { _ = resp.Body.Close() }()

	res := f.classify(resp)
	if res.Kind != KindSuccess {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		log.Debug("fetch.http.status", "url", u.String(), "status", resp.StatusCode, "kind", res.Kind.String())
		return res
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return Transient("read body", err)
	}
	if int64(len(body)) > f.cfg.MaxBytes {
		return Fatal(fmt.Sprintf("body exceeds %d bytes", f.cfg.MaxBytes), nil)
	}
	if !acceptableContent(res.ContentType, body) {
		return Fatal(fmt.Sprintf("unsupported content type %q", res.ContentType), nil)
	}

	res.Body = body
	log.Debug("fetch.http.ok",
		"url", u.String(),
		"bytes", len(body),
		"content_type", res.ContentType,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res
}

func (f *HTTPFetcher) classify(resp *http.Response) Result {
	ct := resp.Header.Get("Content-Type")
	status := resp.StatusCode
	var res Result
	switch {
	case status >= 200 && status < 300:
		res = Result{Kind: KindSuccess}
	case status == http.StatusNotFound || status == http.StatusGone:
		res = NotFound(fmt.Sprintf("status %d", status), nil)
	case status == http.StatusRequestTimeout || status == http.StatusTooEarly ||
		status == http.StatusTooManyRequests || status >= 500:
		res = Transient(fmt.Sprintf("status %d", status), nil)
	default:
		res = Fatal(fmt.Sprintf("status %d", status), nil)
	}
	res.Status = status
	res.ContentType = ct
	return res
}

// acceptableContent allows PDF, HTML and text; anything else must sniff as one of them.
func acceptableContent(contentType string, body []byte) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err == nil {
		switch mt {
		case "application/pdf", "text/html", "application/xhtml+xml":
			return constants.SniffKind(body) != constants.Unknown
		case "text/plain":
			return len(body) > 0
		}
	}
	kind := constants.SniffKind(body)
	return kind == constants.PDF || kind == constants.HTML
}

// IsCanceled reports whether the result failed because ctx ended.
func (r Result) IsCanceled() bool {
	return r.Err != nil && (errors.Is(r.Err, context.Canceled) || errors.Is(r.Err, context.DeadlineExceeded))
}
