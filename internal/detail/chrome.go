package detail

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"
)

// ChromeOptions configures the browser behind ChromePage
type ChromeOptions struct {
	// ProfileDir keeps cookies between runs; empty uses a throwaway profile
	ProfileDir  string
	Headless    bool
	ProxyServer string
	UserAgent   string
	// PageTimeout bounds every single browser action
	PageTimeout time.Duration
}

// ChromePage drives one tab of a local Chrome through chromedp
type ChromePage struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

const readSessionStorage = `(() => {
	const out = {};
	for (let i = 0; i < sessionStorage.length; i++) {
		const key = sessionStorage.key(i);
		out[key] = sessionStorage.getItem(key) || "";
	}
	return out;
})()`

// NewChromePage launches Chrome and opens a tab. Close shuts the browser down.
func NewChromePage(ctx context.Context, opts ChromeOptions) (*ChromePage, error) {
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = 60 * time.Second
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.WindowSize(1920, 1080),
	)
	if opts.ProfileDir != "" {
		if err := os.MkdirAll(opts.ProfileDir, 0o700); err != nil {
			return nil, fmt.Errorf("create profile dir: %w", err)
		}
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.ProfileDir))
	}
	if opts.ProxyServer != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.ProxyServer))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	cancel := func() {
		cancelTab()
		cancelAlloc()
	}

	// an empty Run starts the browser
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &ChromePage{ctx: tabCtx, cancel: cancel, timeout: opts.PageTimeout}, nil
}

// run executes actions on the tab, bounded by the page timeout and by ctx
func (p *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (p *ChromePage) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *ChromePage) SessionStorage(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	if err := p.run(ctx, chromedp.Evaluate(readSessionStorage, &out)); err != nil {
		return nil, fmt.Errorf("read sessionStorage: %w", err)
	}
	return out, nil
}

func (p *ChromePage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

func (p *ChromePage) URL(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (p *ChromePage) Close() error {
	p.cancel()
	return nil
}
