package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"rentradar-backend/internal/useragent"
)

// Masks the webdriver flag that trivial bot detectors check for.
const stealthScript = `Object.defineProperty(navigator, 'webdriver', { get: () => undefined });`

// Browser owns a single Chrome process for the lifetime of a collector run.
// Offer pages are opened in fresh tabs, each with its own User-Agent.
type Browser struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	rootCtx     context.Context
	rootCancel  context.CancelFunc

	uaGen *useragent.Generator
}

// NewBrowser launches Chrome. The headless flag maps straight to the HEADLESS
// environment default used in container deployments.
func NewBrowser(ctx context.Context, headless bool, uaGen *useragent.Generator) (*Browser, error) {
	opts := append([]chromedp.ExecAllocatorOption{},
		chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.NoSandbox,
	)
	if !headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	slog.Info("starting browser", "headless", headless)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	rootCtx, rootCancel := chromedp.NewContext(allocCtx)

	// an empty Run forces the browser process to start now
	if err := chromedp.Run(rootCtx); err != nil {
		rootCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	slog.Info("browser started")

	return &Browser{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		rootCtx:     rootCtx,
		rootCancel:  rootCancel,
		uaGen:       uaGen,
	}, nil
}

// NewTab opens a fresh tab with a new User-Agent, a desktop viewport and the
// webdriver mask installed.
func (b *Browser) NewTab() (context.Context, context.CancelFunc, error) {
	tabCtx, cancel := chromedp.NewContext(b.rootCtx)

	ua := b.uaGen.Random()
	err := chromedp.Run(tabCtx,
		emulation.SetUserAgentOverride(ua),
		chromedp.EmulateViewport(1920, 1080),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to prepare tab: %w", err)
	}

	return tabCtx, cancel, nil
}

// Navigate loads a URL and returns the rendered page HTML.
func (b *Browser) Navigate(tabCtx context.Context, url string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()

	var html string
	err := chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return html, nil
}

// WaitFor waits for a selector to appear; callers may ignore the error for
// best-effort waits.
func (b *Browser) WaitFor(tabCtx context.Context, selector string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()
	return chromedp.Run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

// HTML returns the current page HTML without navigating.
func (b *Browser) HTML(tabCtx context.Context, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()

	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to capture page html: %w", err)
	}
	return html, nil
}

// ClickPaginationNumber clicks the pagination control labelled with the given
// page number. Returns false when no enabled control with that label exists.
func (b *Browser) ClickPaginationNumber(tabCtx context.Context, value int, timeout time.Duration) (bool, error) {
	js := fmt.Sprintf(`(() => {
		const nav = document.querySelector("nav[data-name='Pagination']");
		if (!nav) return false;
		for (const span of nav.querySelectorAll('span')) {
			if (span.textContent.trim() !== '%d') continue;
			const btn = span.closest('button') || span.parentElement;
			if (!btn || btn.disabled) return false;
			btn.scrollIntoView({block: 'center'});
			btn.click();
			return true;
		}
		return false;
	})()`, value)

	return b.evalClick(tabCtx, js, timeout)
}

// ClickNextPage clicks the "Дальше" control, falling back to the last button
// of the pagination block when the label is missing.
func (b *Browser) ClickNextPage(tabCtx context.Context, timeout time.Duration) (bool, error) {
	js := `(() => {
		const nav = document.querySelector("nav[data-name='Pagination']");
		if (!nav) return false;
		let btn = null;
		for (const span of nav.querySelectorAll('span')) {
			if (span.textContent.trim() === 'Дальше') {
				btn = span.closest('button') || span.parentElement;
				break;
			}
		}
		if (!btn) {
			const buttons = nav.querySelectorAll('button');
			if (buttons.length === 0) return false;
			btn = buttons[buttons.length - 1];
		}
		if (btn.disabled) return false;
		btn.scrollIntoView({block: 'center'});
		btn.click();
		return true;
	})()`

	return b.evalClick(tabCtx, js, timeout)
}

func (b *Browser) evalClick(tabCtx context.Context, js string, timeout time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()

	var clicked bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &clicked)); err != nil {
		return false, fmt.Errorf("pagination click failed: %w", err)
	}
	if !clicked {
		return false, nil
	}

	// give the navigation triggered by the click a chance to settle
	if err := chromedp.Run(ctx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return true, fmt.Errorf("page did not settle after click: %w", err)
	}
	return true, nil
}

func (b *Browser) Close() {
	slog.Info("stopping browser")
	b.rootCancel()
	b.allocCancel()
}
