// Package enginetest provides an in-memory engine that records every call.
//
// Failures are injected by setting the *Err fields before use. Launch can be
// held open with LaunchGate to exercise callers racing a slow launch.
package enginetest

import (
	"context"
	"sync"

	"github.com/entrhq/webapp/pkg/engine"
)

// Call is one recorded engine operation.
type Call struct {
	// Op is one of the engine.Op* constants.
	Op string
	// Browser is the 1-based launch number the call belongs to.
	Browser int
	Args    []string
}

// Launcher is a fake engine.Launcher. The zero value is ready to use.
type Launcher struct {
	LaunchErr       error
	NewContextErr   error
	NewPageErr      error
	GotoErr         error
	FillErr         error
	ClickErr        error
	IsVisibleErr    error
	CloseContextErr error
	CloseBrowserErr error

	// Visible maps selectors to the value IsVisible reports. Missing
	// selectors are not visible.
	Visible map[string]bool

	// LaunchGate, when non-nil, blocks Launch until it is closed.
	LaunchGate chan struct{}

	mu       sync.Mutex
	calls    []Call
	launches []engine.LaunchOptions
	browsers []*Browser
}

var _ engine.Launcher = (*Launcher)(nil)

func (l *Launcher) record(op string, browser int, args ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, Call{Op: op, Browser: browser, Args: args})
}

// Launch implements engine.Launcher.
func (l *Launcher) Launch(ctx context.Context, opts engine.LaunchOptions) (engine.Browser, error) {
	if l.LaunchGate != nil {
		select {
		case <-l.LaunchGate:
		case <-ctx.Done():
			return nil, engine.Wrap(engine.OpLaunch, ctx.Err())
		}
	}

	l.mu.Lock()
	l.launches = append(l.launches, opts)
	id := len(l.launches)
	l.mu.Unlock()

	l.record(engine.OpLaunch, id)
	if l.LaunchErr != nil {
		return nil, engine.Wrap(engine.OpLaunch, l.LaunchErr)
	}

	b := &Browser{launcher: l, id: id}
	l.mu.Lock()
	l.browsers = append(l.browsers, b)
	l.mu.Unlock()
	return b, nil
}

// Calls returns every recorded call in order.
func (l *Launcher) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Call, len(l.calls))
	copy(out, l.calls)
	return out
}

// Ops returns the recorded operation names in order.
func (l *Launcher) Ops() []string {
	calls := l.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

// Count returns how many times op was called.
func (l *Launcher) Count(op string) int {
	n := 0
	for _, c := range l.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Launches returns the options of every Launch call, including failed ones.
func (l *Launcher) Launches() []engine.LaunchOptions {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]engine.LaunchOptions, len(l.launches))
	copy(out, l.launches)
	return out
}

// Browsers returns the browsers launched successfully so far.
func (l *Launcher) Browsers() []*Browser {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Browser, len(l.browsers))
	copy(out, l.browsers)
	return out
}

// Browser is a fake engine.Browser.
type Browser struct {
	launcher *Launcher
	id       int

	mu       sync.Mutex
	closed   int
	contexts []*Context
}

// NewContext implements engine.Browser.
func (b *Browser) NewContext(ctx context.Context) (engine.Context, error) {
	b.launcher.record(engine.OpNewContext, b.id)
	if err := b.launcher.NewContextErr; err != nil {
		return nil, engine.Wrap(engine.OpNewContext, err)
	}
	c := &Context{browser: b}
	b.mu.Lock()
	b.contexts = append(b.contexts, c)
	b.mu.Unlock()
	return c, nil
}

// Close implements engine.Browser.
func (b *Browser) Close(ctx context.Context) error {
	b.launcher.record(engine.OpCloseBrowser, b.id)
	b.mu.Lock()
	b.closed++
	b.mu.Unlock()
	return engine.Wrap(engine.OpCloseBrowser, b.launcher.CloseBrowserErr)
}

// CloseCount reports how many times Close was called.
func (b *Browser) CloseCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Contexts returns the contexts created from b.
func (b *Browser) Contexts() []*Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Context, len(b.contexts))
	copy(out, b.contexts)
	return out
}

// Context is a fake engine.Context.
type Context struct {
	browser *Browser

	mu     sync.Mutex
	closed int
	pages  []*Page
}

// NewPage implements engine.Context.
func (c *Context) NewPage(ctx context.Context) (engine.Page, error) {
	l := c.browser.launcher
	l.record(engine.OpNewPage, c.browser.id)
	if err := l.NewPageErr; err != nil {
		return nil, engine.Wrap(engine.OpNewPage, err)
	}
	p := &Page{context: c, url: "about:blank"}
	c.mu.Lock()
	c.pages = append(c.pages, p)
	c.mu.Unlock()
	return p, nil
}

// Close implements engine.Context.
func (c *Context) Close(ctx context.Context) error {
	c.browser.launcher.record(engine.OpCloseContext, c.browser.id)
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	return engine.Wrap(engine.OpCloseContext, c.browser.launcher.CloseContextErr)
}

// CloseCount reports how many times Close was called.
func (c *Context) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Pages returns the pages opened in c.
func (c *Context) Pages() []*Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Page, len(c.pages))
	copy(out, c.pages)
	return out
}

// Page is a fake engine.Page.
type Page struct {
	context *Context

	mu     sync.Mutex
	url    string
	values map[string]string
}

func (p *Page) launcher() *Launcher {
	return p.context.browser.launcher
}

// Goto implements engine.Page.
func (p *Page) Goto(ctx context.Context, url string) error {
	l := p.launcher()
	l.record(engine.OpGoto, p.context.browser.id, url)
	if l.GotoErr != nil {
		return engine.Wrap(engine.OpGoto, l.GotoErr)
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil
}

// URL implements engine.Page.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Fill implements engine.Page.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	l := p.launcher()
	l.record(engine.OpFill, p.context.browser.id, selector, value)
	if l.FillErr != nil {
		return engine.Wrap(engine.OpFill, l.FillErr)
	}
	p.mu.Lock()
	if p.values == nil {
		p.values = make(map[string]string)
	}
	p.values[selector] = value
	p.mu.Unlock()
	return nil
}

// Value returns the last value filled into selector.
func (p *Page) Value(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[selector]
}

// Click implements engine.Page.
func (p *Page) Click(ctx context.Context, selector string) error {
	l := p.launcher()
	l.record(engine.OpClick, p.context.browser.id, selector)
	return engine.Wrap(engine.OpClick, l.ClickErr)
}

// IsVisible implements engine.Page.
func (p *Page) IsVisible(ctx context.Context, selector string) (bool, error) {
	l := p.launcher()
	l.record(engine.OpIsVisible, p.context.browser.id, selector)
	if l.IsVisibleErr != nil {
		return false, engine.Wrap(engine.OpIsVisible, l.IsVisibleErr)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Visible[selector], nil
}
