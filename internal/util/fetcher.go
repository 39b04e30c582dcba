package util

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/time/rate"
)

// maxBody bounds how much of an upstream response is read.
const maxBody = 8 << 20

// Request describes one upstream call. A non-nil Form is sent as an
// urlencoded POST body.
type Request struct {
	Method string
	URL    string
	Form   url.Values
	Header http.Header
}

func Get(u string) Request { return Request{Method: http.MethodGet, URL: u} }

func PostForm(u string, form url.Values) Request {
	return Request{Method: http.MethodPost, URL: u, Form: form}
}

// Fetcher returns the raw body of a request. Providers depend on this
// rather than on net/http so fixtures can stand in for the network.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req Request) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, req Request) ([]byte, error) { return f(ctx, req) }

// HTTPFetcher performs requests with Client.
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
}

func NewHTTPFetcher(c *http.Client, userAgent string) *HTTPFetcher {
	return &HTTPFetcher{Client: c, UserAgent: userAgent}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, r Request) ([]byte, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if r.Form != nil {
		body = strings.NewReader(r.Form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if r.Form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if f.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBody))
}

// FixtureFetcher serves canned payloads from disk. When Path is a file
// every request gets its content; when it is a directory the file is
// chosen by the last segment of the request URL path.
type FixtureFetcher struct {
	Path string
}

func (f FixtureFetcher) Fetch(_ context.Context, r Request) ([]byte, error) {
	fi, err := os.Stat(f.Path)
	if err != nil {
		return nil, fmt.Errorf("fixture: %w", err)
	}
	if !fi.IsDir() {
		return os.ReadFile(f.Path)
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, fmt.Errorf("fixture: %w", err)
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		name = "index.html"
	}
	b, err := os.ReadFile(filepath.Join(f.Path, name))
	if err != nil {
		return nil, fmt.Errorf("fixture: %w", err)
	}
	return bytes.TrimPrefix(b, []byte("\xef\xbb\xbf")), nil
}

// RateLimited spaces out calls to one upstream.
type RateLimited struct {
	Next    Fetcher
	Limiter *rate.Limiter
}

// NewRateLimited wraps next with a token bucket. perSecond <= 0 disables limiting.
func NewRateLimited(next Fetcher, perSecond float64, burst int) Fetcher {
	if perSecond <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{Next: next, Limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimited) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if err := r.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Next.Fetch(ctx, req)
}
