// Package pwdriver backs engine.Launcher with Playwright.
package pwdriver

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/webapp/pkg/engine"
)

// Launcher starts Chromium through a lazily started Playwright driver.
// A single Launcher is meant to be shared by every session in the process.
type Launcher struct {
	// SkipInstall skips downloading the Playwright driver and browsers.
	SkipInstall bool

	mu         sync.Mutex
	playwright *playwright.Playwright
}

var _ engine.Launcher = (*Launcher)(nil)

// NewLauncher creates a Launcher. Playwright is not started until the first Launch.
func NewLauncher() *Launcher {
	return &Launcher{}
}

// start installs and runs Playwright once.
func (l *Launcher) start() (*playwright.Playwright, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.playwright != nil {
		return l.playwright, nil
	}

	// Discard driver output so it does not interleave with the CLI
	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if !l.SkipInstall {
		if err := playwright.Install(opts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	l.playwright = pw
	return pw, nil
}

// Launch implements engine.Launcher.
func (l *Launcher) Launch(ctx context.Context, opts engine.LaunchOptions) (engine.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, engine.Wrap(engine.OpLaunch, err)
	}

	pw, err := l.start()
	if err != nil {
		return nil, engine.Wrap(engine.OpLaunch, err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Timeout:  timeoutFromContext(ctx),
	}
	if opts.ExecutablePath != "" {
		launchOpts.ExecutablePath = playwright.String(opts.ExecutablePath)
	}
	if len(opts.Args) > 0 {
		launchOpts.Args = opts.Args
	}
	if opts.SlowMo > 0 {
		launchOpts.SlowMo = playwright.Float(opts.SlowMo)
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		return nil, engine.Wrap(engine.OpLaunch, err)
	}

	return &Browser{browser: browser, viewport: opts.Viewport}, nil
}

// Stop shuts the Playwright driver down. Browsers must be closed first.
func (l *Launcher) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.playwright == nil {
		return nil
	}
	if err := l.playwright.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	l.playwright = nil
	return nil
}

// Browser wraps playwright.Browser.
type Browser struct {
	browser  playwright.Browser
	viewport engine.Viewport
}

// NewContext implements engine.Browser.
func (b *Browser) NewContext(ctx context.Context) (engine.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, engine.Wrap(engine.OpNewContext, err)
	}

	contextOpts := playwright.BrowserNewContextOptions{}
	if !b.viewport.IsZero() {
		contextOpts.Viewport = &playwright.Size{
			Width:  b.viewport.Width,
			Height: b.viewport.Height,
		}
	}

	bc, err := b.browser.NewContext(contextOpts)
	if err != nil {
		return nil, engine.Wrap(engine.OpNewContext, err)
	}
	return &Context{context: bc}, nil
}

// Close implements engine.Browser.
func (b *Browser) Close(ctx context.Context) error {
	return engine.Wrap(engine.OpCloseBrowser, b.browser.Close())
}

// Context wraps playwright.BrowserContext.
type Context struct {
	context playwright.BrowserContext
}

// NewPage implements engine.Context.
func (c *Context) NewPage(ctx context.Context) (engine.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, engine.Wrap(engine.OpNewPage, err)
	}
	page, err := c.context.NewPage()
	if err != nil {
		return nil, engine.Wrap(engine.OpNewPage, err)
	}
	return &Page{page: page}, nil
}

// Close implements engine.Context.
func (c *Context) Close(ctx context.Context) error {
	return engine.Wrap(engine.OpCloseContext, c.context.Close())
}

// Page wraps playwright.Page.
type Page struct {
	page playwright.Page
}

// Goto implements engine.Page.
func (p *Page) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return engine.Wrap(engine.OpGoto, err)
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		Timeout: timeoutFromContext(ctx),
	})
	return engine.Wrap(engine.OpGoto, err)
}

// URL implements engine.Page.
func (p *Page) URL() string {
	return p.page.URL()
}

// Fill implements engine.Page.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return engine.Wrap(engine.OpFill, err)
	}
	err := p.page.Locator(selector).Fill(value, playwright.LocatorFillOptions{
		Timeout: timeoutFromContext(ctx),
	})
	return engine.Wrap(engine.OpFill, err)
}

// Click implements engine.Page.
func (p *Page) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return engine.Wrap(engine.OpClick, err)
	}
	err := p.page.Locator(selector).Click(playwright.LocatorClickOptions{
		Timeout: timeoutFromContext(ctx),
	})
	return engine.Wrap(engine.OpClick, err)
}

// IsVisible implements engine.Page.
func (p *Page) IsVisible(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, engine.Wrap(engine.OpIsVisible, err)
	}
	visible, err := p.page.Locator(selector).IsVisible()
	if err != nil {
		return false, engine.Wrap(engine.OpIsVisible, err)
	}
	return visible, nil
}

// timeoutFromContext converts a context deadline into a Playwright timeout in
// milliseconds. Nil keeps Playwright's default.
func timeoutFromContext(ctx context.Context) *float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	remaining := time.Until(deadline)
	if remaining < time.Millisecond {
		remaining = time.Millisecond
	}
	return playwright.Float(float64(remaining.Milliseconds()))
}
