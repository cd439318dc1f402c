// Package cdpdriver backs engine.Launcher with chromedp.
//
// Every Launch starts its own Chrome process. A browsing context maps to a
// Chrome browser context (incognito-like profile) and each page is a tab
// inside it.
package cdpdriver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"

	"github.com/entrhq/webapp/pkg/engine"
)

// Launcher starts local Chrome processes through chromedp's exec allocator.
type Launcher struct{}

var _ engine.Launcher = (*Launcher)(nil)

// NewLauncher creates a Launcher.
func NewLauncher() *Launcher {
	return &Launcher{}
}

// allocatorOptions builds the exec allocator flags for opts.
func allocatorOptions(opts engine.LaunchOptions) []chromedp.ExecAllocatorOption {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", opts.Headless),
	)
	if path := strings.TrimSpace(opts.ExecutablePath); path != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(path))
	}
	if !opts.Viewport.IsZero() {
		allocOpts = append(allocOpts, chromedp.WindowSize(opts.Viewport.Width, opts.Viewport.Height))
	}
	for _, raw := range opts.Args {
		name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
		if name == "" {
			continue
		}
		if hasVal {
			allocOpts = append(allocOpts, chromedp.Flag(name, val))
		} else {
			allocOpts = append(allocOpts, chromedp.Flag(name, true))
		}
	}
	return allocOpts
}

// Launch implements engine.Launcher.
func (l *Launcher) Launch(ctx context.Context, opts engine.LaunchOptions) (engine.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, engine.Wrap(engine.OpLaunch, err)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(opts)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run allocates the browser and must use the browser context
	// itself, a derived one would tie the process to the caller's deadline.
	err := allocate(ctx, allocCancel, func() error { return chromedp.Run(browserCtx) })
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, engine.Wrap(engine.OpLaunch, err)
	}

	return &Browser{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
	}, nil
}

// allocate runs start and kills the browser process if ctx ends first.
func allocate(ctx context.Context, allocCancel context.CancelFunc, start func() error) error {
	stop := context.AfterFunc(ctx, allocCancel)
	err := start()
	if !stop() {
		return ctx.Err()
	}
	return err
}

// Browser is one Chrome process.
type Browser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

// NewContext implements engine.Browser.
func (b *Browser) NewContext(ctx context.Context) (engine.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, engine.Wrap(engine.OpNewContext, err)
	}

	cctx, cancel := chromedp.NewContext(b.ctx, chromedp.WithNewBrowserContext())
	if err := chromedp.Run(cctx); err != nil {
		cancel()
		return nil, engine.Wrap(engine.OpNewContext, err)
	}
	return &Context{ctx: cctx, cancel: cancel}, nil
}

// Close implements engine.Browser.
func (b *Browser) Close(ctx context.Context) error {
	err := chromedp.Cancel(b.ctx)
	b.cancel()
	b.allocCancel()
	return engine.Wrap(engine.OpCloseBrowser, err)
}

// Context is one Chrome browser context.
type Context struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPage implements engine.Context.
func (c *Context) NewPage(ctx context.Context) (engine.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, engine.Wrap(engine.OpNewPage, err)
	}

	tabCtx, cancel := chromedp.NewContext(c.ctx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, engine.Wrap(engine.OpNewPage, err)
	}
	return &Page{ctx: tabCtx, cancel: cancel, url: "about:blank"}, nil
}

// Close implements engine.Context.
func (c *Context) Close(ctx context.Context) error {
	err := chromedp.Cancel(c.ctx)
	c.cancel()
	return engine.Wrap(engine.OpCloseContext, err)
}

// Page is one Chrome tab.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.Mutex
	url string
}

// run executes actions on the tab, bounded by the caller's context.
func (p *Page) run(caller context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()

	if deadline, ok := caller.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(caller, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Goto implements engine.Page.
func (p *Page) Goto(ctx context.Context, url string) error {
	var location string
	if err := p.run(ctx, chromedp.Navigate(url), chromedp.Location(&location)); err != nil {
		return engine.Wrap(engine.OpGoto, err)
	}
	p.mu.Lock()
	p.url = location
	p.mu.Unlock()
	return nil
}

// URL implements engine.Page. It returns the location recorded by the last
// successful Goto when the tab cannot be queried.
func (p *Page) URL() string {
	var location string
	if err := chromedp.Run(p.ctx, chromedp.Location(&location)); err == nil && location != "" {
		p.mu.Lock()
		p.url = location
		p.mu.Unlock()
		return location
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Fill implements engine.Page.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	err := p.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	return engine.Wrap(engine.OpFill, err)
}

// Click implements engine.Page.
func (p *Page) Click(ctx context.Context, selector string) error {
	return engine.Wrap(engine.OpClick, p.run(ctx, chromedp.Click(selector, chromedp.ByQuery)))
}

// IsVisible implements engine.Page.
func (p *Page) IsVisible(ctx context.Context, selector string) (bool, error) {
	script, err := visibilityScript(selector)
	if err != nil {
		return false, engine.Wrap(engine.OpIsVisible, err)
	}

	var visible bool
	if err := p.run(ctx, chromedp.Evaluate(script, &visible)); err != nil {
		return false, engine.Wrap(engine.OpIsVisible, err)
	}
	return visible, nil
}

// visibilityScript returns a JS expression reporting whether the first match
// of selector is rendered with a non-empty box.
func visibilityScript(selector string) (string, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return "", fmt.Errorf("failed to quote selector: %w", err)
	}
	return fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return false;
  const style = window.getComputedStyle(el);
  if (style.visibility === "hidden" || style.display === "none") return false;
  const rect = el.getBoundingClientRect();
  return rect.width > 0 && rect.height > 0;
})()`, quoted), nil
}
