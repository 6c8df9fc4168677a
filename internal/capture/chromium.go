package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// Default viewport for the dashboard snapshot.
const (
	DefaultWidth   = 1280
	DefaultHeight  = 1600
	DefaultTimeout = 30 * time.Second
)

// ReadySelector is the element the dashboard page renders once its table
// (or its warning) is in place.
const ReadySelector = `[data-ready="true"]`

// Options defines parameters for a Chromium-based screenshot.
type Options struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/?status=ongoing".
	URL string

	// Width and Height are the viewport dimensions in pixels. If zero,
	// DefaultWidth / DefaultHeight are used.
	Width  int
	Height int

	// Timeout bounds the entire capture. If zero, DefaultTimeout is used.
	Timeout time.Duration
}

// Snapshotter renders a page to PNG.
type Snapshotter interface {
	Snapshot(ctx context.Context, opts Options) ([]byte, error)
}

// Chromium captures pages with a headless Chromium driven by chromedp.
type Chromium struct {
	// ExecPath overrides the browser binary; empty lets chromedp find one.
	ExecPath string
}

// Snapshot launches a headless browser, navigates to opts.URL, waits for
// ReadySelector and returns a full-page PNG.
func (c Chromium) Snapshot(parentCtx context.Context, opts Options) ([]byte, error) {
	if opts.URL == "" {
		return nil, errors.New("capture: URL is required")
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	allocOpts := chromedp.DefaultExecAllocatorOptions[:]
	if c.ExecPath != "" {
		allocOpts = append(allocOpts[:len(allocOpts):len(allocOpts)], chromedp.ExecPath(c.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, allocOpts...)
	defer allocCancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(ReadySelector, chromedp.ByQuery),
		// Let web fonts settle.
		chromedp.Sleep(300 * time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	return png, nil
}
