// Package chromedp renders slide HTML to PNG with a headless browser.
package chromedp

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	cdp "github.com/chromedp/chromedp"

	"github.com/aratatotsuka/foundry-slide-html-generator/internal/domain"
)

// Renderer drives a single headless Chrome instance. The browser is started
// lazily on first render and reused for the process lifetime.
type Renderer struct {
	mu        sync.Mutex
	allocCtx  context.Context
	browser   context.Context
	cancelFns []context.CancelFunc
}

// New constructs an idle Renderer. The browser starts on the first Render.
func New() *Renderer {
	return &Renderer{}
}

var _ domain.Renderer = (*Renderer)(nil)

// Render loads the HTML document into the browser at the aspect's canvas
// size and returns a full-viewport PNG screenshot.
func (r *Renderer) Render(ctx context.Context, html string, aspect domain.Aspect) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureBrowser(); err != nil {
		return nil, err
	}
	w, h, _ := aspect.Canvas()
	url := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(html))

	tab, cancelTab := cdp.NewContext(r.browser)
	defer cancelTab()
	if dl, ok := ctx.Deadline(); ok {
		var cancelDL context.CancelFunc
		tab, cancelDL = context.WithDeadline(tab, dl)
		defer cancelDL()
	}

	var png []byte
	err := cdp.Run(tab,
		cdp.EmulateViewport(int64(w), int64(h)),
		cdp.Navigate(url),
		cdp.WaitReady("body"),
		cdp.CaptureScreenshot(&png),
	)
	if err != nil {
		return nil, fmt.Errorf("op=render.screenshot: %w", err)
	}
	if len(png) == 0 {
		return nil, fmt.Errorf("op=render.screenshot: empty capture: %w", domain.ErrInternal)
	}
	return png, nil
}

// ensureBrowser starts the shared browser once. Callers hold r.mu.
func (r *Renderer) ensureBrowser() error {
	if r.browser != nil {
		return nil
	}
	opts := append(cdp.DefaultExecAllocatorOptions[:],
		cdp.Flag("headless", true),
		cdp.Flag("disable-gpu", true),
		cdp.Flag("no-sandbox", true),
		cdp.Flag("hide-scrollbars", true),
	)
	allocCtx, cancelAlloc := cdp.NewExecAllocator(context.Background(), opts...)
	browser, cancelBrowser := cdp.NewContext(allocCtx)
	// Start the browser process now so the first job does not pay the
	// startup cost inside its render deadline.
	if err := cdp.Run(browser); err != nil {
		cancelBrowser()
		cancelAlloc()
		return fmt.Errorf("op=render.start: %w", err)
	}
	r.allocCtx = allocCtx
	r.browser = browser
	r.cancelFns = []context.CancelFunc{cancelBrowser, cancelAlloc}
	return nil
}

// Close shuts the browser down. Safe to call when no browser was started.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cancel := range r.cancelFns {
		cancel()
	}
	r.cancelFns = nil
	r.browser = nil
	r.allocCtx = nil
}
