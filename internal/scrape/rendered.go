package scrape

import (
	"context"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
)

// RenderedFetcher retrieves page text through a headless browser that
// executes scripts. Each call spawns its own browser process and tears it
// down on every exit path, so calls are safe to sequence but expensive;
// the chain only reaches for it when the local fetch came up short.
type RenderedFetcher struct {
	settle  time.Duration
	timeout time.Duration
}

// NewRenderedFetcher creates a RenderedFetcher. settle is the fixed delay
// applied after navigation and again after scrolling; timeout bounds the
// whole browser session.
func NewRenderedFetcher(settle, timeout time.Duration) *RenderedFetcher {
	return &RenderedFetcher{settle: settle, timeout: timeout}
}

func (r *RenderedFetcher) Name() string { return "rendered_browser" }

// Fetch navigates a headless browser to the URL, waits for scripts to
// settle, scrolls once to trigger lazy content, and returns the body text.
func (r *RenderedFetcher) Fetch(ctx context.Context, targetURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.WindowSize(1920, 1080),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var text string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(normalizeURL(targetURL)),
		chromedp.Sleep(r.settle),
		chromedp.Evaluate(`window.scrollBy(0, window.innerHeight)`, nil),
		chromedp.Sleep(r.settle),
		chromedp.Text("body", &text, chromedp.ByQuery),
	)
	if err != nil {
		return "", eris.Wrap(err, "rendered_browser: run")
	}

	return strings.TrimSpace(text), nil
}
