package listing

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
)

// LinkChecker checks that a document link answers with a PDF.
type LinkChecker struct {
	http      *http.Client
	userAgent string
	referer   string
}

func NewLinkChecker(h *http.Client, userAgent, referer string) *LinkChecker {
	if h == nil {
		h = http.DefaultClient
	}
	return &LinkChecker{http: h, userAgent: userAgent, referer: referer}
}

// Reachable sends a HEAD request and falls back to reading the first KiB when
// the server refuses HEAD or omits the content type.
func (p *LinkChecker) Reachable(ctx context.Context, link string) bool {
	resp, err := p.do(ctx, http.MethodHead, link)
	if err == nil {
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusOK && strings.Contains(resp.Header.Get("Content-Type"), "application/pdf") {
			return true
		}
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			return false
		}
	}

	resp, err = p.do(ctx, http.MethodGet, link)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return false
	}
	head, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return bytes.HasPrefix(head, []byte("%PDF"))
}

func (p *LinkChecker) do(ctx context.Context, method, link string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, link, nil)
	if err != nil {
		return nil, err
	}
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-1023")
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	if p.referer != "" {
		req.Header.Set("Referer", p.referer)
	}
	return p.http.Do(req)
}
