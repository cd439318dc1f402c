// Package roddriver backs engine.Launcher with go-rod.
package roddriver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/entrhq/webapp/pkg/engine"
)

// Launcher starts a local Chrome per Launch through rod's launcher.
type Launcher struct{}

var _ engine.Launcher = (*Launcher)(nil)

// NewLauncher creates a Launcher.
func NewLauncher() *Launcher {
	return &Launcher{}
}

// newProcess builds the rod launcher for opts without starting it.
func newProcess(opts engine.LaunchOptions) *launcher.Launcher {
	l := launcher.New().Headless(opts.Headless)
	if bin := strings.TrimSpace(opts.ExecutablePath); bin != "" {
		l = l.Bin(bin)
	}
	if !opts.Viewport.IsZero() {
		l = l.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", opts.Viewport.Width, opts.Viewport.Height))
	}
	for _, raw := range opts.Args {
		name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
		if name == "" {
			continue
		}
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	return l
}

// Launch implements engine.Launcher.
func (l *Launcher) Launch(ctx context.Context, opts engine.LaunchOptions) (engine.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, engine.Wrap(engine.OpLaunch, err)
	}

	process := newProcess(opts)
	controlURL, err := process.Launch()
	if err != nil {
		return nil, engine.Wrap(engine.OpLaunch, fmt.Errorf("launch chrome: %w", err))
	}

	browser := rod.New().ControlURL(controlURL)
	if opts.SlowMo > 0 {
		browser = browser.SlowMotion(time.Duration(opts.SlowMo * float64(time.Millisecond)))
	}
	if err := browser.Connect(); err != nil {
		process.Kill()
		return nil, engine.Wrap(engine.OpLaunch, fmt.Errorf("connect to chrome: %w", err))
	}

	return &Browser{browser: browser, process: process}, nil
}

// Browser is one rod-controlled Chrome process.
type Browser struct {
	browser *rod.Browser
	process *launcher.Launcher
}

// NewContext implements engine.Browser. Contexts are incognito browser contexts.
func (b *Browser) NewContext(ctx context.Context) (engine.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, engine.Wrap(engine.OpNewContext, err)
	}
	incognito, err := b.browser.Incognito()
	if err != nil {
		return nil, engine.Wrap(engine.OpNewContext, err)
	}
	return &Context{browser: incognito}, nil
}

// Close implements engine.Browser.
func (b *Browser) Close(ctx context.Context) error {
	if err := b.browser.Close(); err != nil {
		b.process.Kill()
		return engine.Wrap(engine.OpCloseBrowser, err)
	}
	b.process.Cleanup()
	return nil
}

// Context is an incognito browser context.
type Context struct {
	browser *rod.Browser
}

// NewPage implements engine.Context.
func (c *Context) NewPage(ctx context.Context) (engine.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, engine.Wrap(engine.OpNewPage, err)
	}
	page, err := c.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, engine.Wrap(engine.OpNewPage, err)
	}
	return &Page{page: page}, nil
}

// Close implements engine.Context. It disposes the incognito context and
// every page in it.
func (c *Context) Close(ctx context.Context) error {
	return engine.Wrap(engine.OpCloseContext, c.browser.Close())
}

// Page wraps rod.Page.
type Page struct {
	page *rod.Page
}

// Goto implements engine.Page.
func (p *Page) Goto(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return engine.Wrap(engine.OpGoto, err)
	}
	return engine.Wrap(engine.OpGoto, page.WaitLoad())
}

// URL implements engine.Page.
func (p *Page) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Fill implements engine.Page. Existing text is replaced.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return engine.Wrap(engine.OpFill, fmt.Errorf("element not found: %s: %w", selector, err))
	}
	if err := el.SelectAllText(); err != nil {
		return engine.Wrap(engine.OpFill, err)
	}
	return engine.Wrap(engine.OpFill, el.Input(value))
}

// Click implements engine.Page.
func (p *Page) Click(ctx context.Context, selector string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return engine.Wrap(engine.OpClick, fmt.Errorf("element not found: %s: %w", selector, err))
	}
	return engine.Wrap(engine.OpClick, el.Click(proto.InputMouseButtonLeft, 1))
}

// IsVisible implements engine.Page.
func (p *Page) IsVisible(ctx context.Context, selector string) (bool, error) {
	has, el, err := p.page.Context(ctx).Has(selector)
	if err != nil {
		return false, engine.Wrap(engine.OpIsVisible, err)
	}
	if !has {
		return false, nil
	}
	visible, err := el.Visible()
	if err != nil {
		return false, engine.Wrap(engine.OpIsVisible, err)
	}
	return visible, nil
}
