package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// DefaultChromiumTimeout bounds one headless page load when none is configured.
const DefaultChromiumTimeout = 40 * time.Second

// Chromium loads pages with a headless Chromium instance via chromedp.
type Chromium struct {
	// Timeout bounds the whole navigation. Zero uses DefaultChromiumTimeout.
	Timeout time.Duration

	// ExecPath points at a Chromium binary. Empty lets chromedp search PATH.
	ExecPath string
}

// FetchHTML navigates to url, waits until the body is ready and returns the
// serialized document. Facebook renders most event data client side, so a
// plain HTTP GET is not enough.
func (c Chromium) FetchHTML(parentCtx context.Context, url string) (string, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultChromiumTimeout
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.UserAgent(userAgent),
	)
	if c.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, opts...)
	defer allocCancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, timeout)
	defer timeoutCancel()

	var doc string
	tasks := chromedp.Tasks{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		// let late scripts inject the JSON-LD block
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.OuterHTML("html", &doc, chromedp.ByQuery),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return "", fmt.Errorf("chromium: run failed: %w", err)
	}
	return doc, nil
}
