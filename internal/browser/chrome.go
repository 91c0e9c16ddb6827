package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/maps-harvest/internal/extract"
	"github.com/sells-group/maps-harvest/internal/model"
)

// ChromeOptions configures the controlled browser.
type ChromeOptions struct {
	Headless    bool
	UserAgent   string
	ExecPath    string
	StartURL    string
	CallTimeout time.Duration
	// MaxScrolls bounds how often clickNext scrolls the results feed looking
	// for an index that is not rendered yet.
	MaxScrolls  int
	ScrollPause time.Duration
}

// ChromeChannel drives a Chrome instance through the DevTools protocol and
// answers page-context requests against its current tab.
type ChromeChannel struct {
	opts      ChromeOptions
	extractor *extract.Extractor

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	expected string
	closed   bool
}

const (
	countScript = `document.querySelectorAll('div[role="feed"] a.hfpxzc').length`

	scrollScript = `(function () {
  const feed = document.querySelector('div[role="feed"]');
  if (feed) {
    feed.scrollBy(0, feed.scrollHeight);
  }
})();`

	clickScript = `(function (i) {
  const items = document.querySelectorAll('div[role="feed"] a.hfpxzc');
  const el = items[i];
  if (!el) {
    return {found: false, label: ''};
  }
  el.scrollIntoView({block: 'center'});
  el.click();
  return {found: true, label: el.getAttribute('aria-label') || ''};
})(%d)`

	titleScript = `(function () {
  const h = document.querySelector('h1.DUwDvf') || document.querySelector('div[role="main"] h1');
  return h ? h.innerText : '';
})()`

	consentScript = `(function () {
  const selectors = [
    'button[aria-label="Accept all"]',
    'button[aria-label="I agree"]',
    'button[aria-label="Alles akzeptieren"]'
  ];
  for (const sel of selectors) {
    const btn = document.querySelector(sel);
    if (btn) {
      btn.click();
      return true;
    }
  }
  return false;
})();`
)

// NewChrome launches Chrome and, when StartURL is set, opens it.
func NewChrome(ctx context.Context, opts ChromeOptions, extractor *extract.Extractor) (*ChromeChannel, error) {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.MaxScrolls <= 0 {
		opts.MaxScrolls = 10
	}
	if opts.ScrollPause <= 0 {
		opts.ScrollPause = 1500 * time.Millisecond
	}
	if extractor == nil {
		extractor = extract.New()
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	c := &ChromeChannel{
		opts:      opts,
		extractor: extractor,
		ctx:       tabCtx,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
	}

	// Starts the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		c.cancel()
		return nil, eris.Wrap(err, "browser: launch chrome")
	}
	if opts.StartURL != "" {
		if err := c.Navigate(ctx, opts.StartURL); err != nil {
			c.cancel()
			return nil, err
		}
	}
	return c, nil
}

// Navigate opens url in the controlled tab and dismisses a consent dialog
// if one appears.
func (c *ChromeChannel) Navigate(ctx context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &ChannelError{Action: "navigate"}
	}

	tctx, cancel := c.callContext(ctx)
	defer cancel()

	err := chromedp.Run(tctx,
		chromedp.Navigate(url),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return chromedp.Evaluate(consentScript, nil).Do(ctx)
		}),
	)
	if err != nil {
		return &ChannelError{Action: "navigate", Err: eris.Wrapf(err, "open %s", url)}
	}
	c.expected = ""
	return nil
}

// Send executes req in the page.
func (c *ChromeChannel) Send(ctx context.Context, req Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Response{}, &ChannelError{Action: req.Action}
	}

	tctx, cancel := c.callContext(ctx)
	defer cancel()

	var (
		resp Response
		err  error
	)
	switch req.Action {
	case ActionExtractData:
		resp, err = c.extractData(tctx)
	case ActionClickNext:
		resp, err = c.clickNext(tctx, req.Index)
	case ActionCheckProfileLoaded:
		resp, err = c.checkProfileLoaded(tctx)
	default:
		return Response{}, &ChannelError{Action: req.Action, Err: eris.Errorf("unknown action %q", req.Action)}
	}
	if err != nil {
		return Response{}, &ChannelError{Action: req.Action, Err: err}
	}
	return resp, nil
}

// callContext derives a per-call context from the tab that also ends when
// the caller's ctx does.
func (c *ChromeChannel) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	tctx, cancel := context.WithTimeout(c.ctx, c.opts.CallTimeout)
	stop := context.AfterFunc(ctx, cancel)
	return tctx, func() {
		stop()
		cancel()
	}
}

func (c *ChromeChannel) extractData(ctx context.Context) (Response, error) {
	var markup, location string
	err := chromedp.Run(ctx,
		chromedp.OuterHTML("html", &markup, chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err != nil {
		return Response{}, eris.Wrap(err, "read page")
	}
	rec := c.extractor.Extract(extract.NewPage(markup, location))
	return Response{Data: &rec, Success: true}, nil
}

func (c *ChromeChannel) clickNext(ctx context.Context, index int) (Response, error) {
	if index < 0 {
		return Response{}, nil
	}

	var count int
	if err := chromedp.Run(ctx, chromedp.Evaluate(countScript, &count)); err != nil {
		return Response{}, eris.Wrap(err, "count results")
	}
	for scrolls := 0; index >= count && scrolls < c.opts.MaxScrolls; scrolls++ {
		before := count
		err := chromedp.Run(ctx,
			chromedp.Evaluate(scrollScript, nil),
			chromedp.Sleep(c.opts.ScrollPause),
			chromedp.Evaluate(countScript, &count),
		)
		if err != nil {
			return Response{}, eris.Wrap(err, "scroll results")
		}
		if count == before {
			break
		}
	}
	if index >= count {
		zap.L().Info("browser: no result at index",
			zap.String("component", "browser"),
			zap.Int("index", index),
			zap.Int("results", count),
		)
		return Response{Success: false}, nil
	}

	var clicked struct {
		Found bool   `json:"found"`
		Label string `json:"label"`
	}
	if err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf(clickScript, index), &clicked)); err != nil {
		return Response{}, eris.Wrapf(err, "click result %d", index)
	}
	if !clicked.Found {
		return Response{Success: false}, nil
	}
	c.expected = model.CleanText(clicked.Label)
	return Response{Success: true}, nil
}

func (c *ChromeChannel) checkProfileLoaded(ctx context.Context) (Response, error) {
	var title string
	if err := chromedp.Run(ctx, chromedp.Evaluate(titleScript, &title)); err != nil {
		return Response{}, eris.Wrap(err, "read title")
	}
	return Response{IsLoaded: ProfileMatches(title, c.expected)}, nil
}

// ProfileMatches reports whether the detail pane title belongs to the
// focused result. Feed labels can be truncated, so a prefix match counts.
// With no expectation any non-empty title counts.
func ProfileMatches(title, expected string) bool {
	title = strings.ToLower(model.CleanText(title))
	if title == "" {
		return false
	}
	expected = strings.ToLower(model.CleanText(expected))
	expected = strings.TrimSuffix(expected, "…")
	expected = strings.TrimSuffix(expected, "...")
	if expected == "" {
		return true
	}
	return title == expected || strings.HasPrefix(title, expected) || strings.HasPrefix(expected, title)
}

// Close shuts the browser down. Later calls fail with ErrChannelUnavailable.
func (c *ChromeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()
	return nil
}

var _ Channel = (*ChromeChannel)(nil)
