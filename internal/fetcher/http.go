package fetcher

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/maps-harvest/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
}

// HTTPFetcher implements Fetcher using net/http. It makes exactly one
// request per call; there are no retries.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = 2 << 20
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (compatible; maps-harvest/1.0)"
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts: opts,
	}
}

// Fetch downloads rawURL and decodes the body to UTF-8.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: eris.Wrap(err, "create request")}
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: eris.Wrap(err, "request")}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		return "", &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: eris.Wrap(err, "read body")}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fe := &FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Block:      DetectBlock(resp, body),
			Err:        eris.Errorf("http %d from %s", resp.StatusCode, rawURL),
		}
		if fe.Block != BlockNone || resilience.IsTransientHTTPStatus(resp.StatusCode) {
			fe.Err = resilience.NewTransientError(fe.Err, resp.StatusCode)
		}
		return "", fe
	}

	if bt := DetectBlock(resp, body); bt != BlockNone {
		zap.L().Debug("fetcher: page looks like a block page",
			zap.String("url", rawURL),
			zap.String("block", string(bt)),
		)
	}

	text, err := decodeBody(body, resp.Header.Get("Content-Type"))
	if err != nil {
		zap.L().Debug("fetcher: charset decode failed, using raw bytes",
			zap.String("url", rawURL),
			zap.Error(err),
		)
		return string(body), nil
	}
	return text, nil
}
