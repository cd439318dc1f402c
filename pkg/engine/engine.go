// Package engine defines the browser automation surface sessions depend on.
//
// Any automation library that can launch a browser, open an isolated context,
// open pages in it, navigate, fill, click and report element visibility can
// back a session. Drivers live in the subpackages pwdriver (playwright-go),
// cdpdriver (chromedp) and roddriver (go-rod).
package engine

import (
	"context"
	"errors"
	"fmt"
)

// Launcher starts browser engines.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// Browser is a launched engine instance.
type Browser interface {
	// NewContext creates an isolated browsing context (cookies, storage).
	NewContext(ctx context.Context) (Context, error)
	Close(ctx context.Context) error
}

// Context is an isolated browsing environment pages are opened under.
type Context interface {
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}

// Page is one open browser tab.
type Page interface {
	Goto(ctx context.Context, url string) error
	// URL returns the current page URL.
	URL() string
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	// IsVisible reports whether the first element matching selector is
	// visible right now. It does not wait for the element to appear.
	IsVisible(ctx context.Context, selector string) (bool, error)
}

// LaunchOptions configures Launcher.Launch.
type LaunchOptions struct {
	Headless bool

	// ExecutablePath overrides the browser binary. Empty uses the driver default.
	ExecutablePath string

	// Args are extra command line switches passed to the browser.
	Args []string

	// SlowMo slows every engine operation down by the given milliseconds.
	// Only honored by drivers that support it.
	SlowMo float64

	// Viewport sets the initial page size for new contexts. Zero values keep
	// the driver default.
	Viewport Viewport
}

// Viewport is a page size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

// IsZero reports whether no viewport was requested.
func (v Viewport) IsZero() bool {
	return v.Width == 0 && v.Height == 0
}

// ErrEngine is matched by every *Error.
var ErrEngine = errors.New("engine: operation failed")

// Error wraps a failure reported by the underlying automation library.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrEngine) true for any *Error.
func (e *Error) Is(target error) bool {
	return target == ErrEngine
}

// Wrap returns nil for a nil err and an *Error otherwise.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// Operation names used by drivers when wrapping errors.
const (
	OpLaunch       = "launch"
	OpNewContext   = "new context"
	OpNewPage      = "new page"
	OpGoto         = "goto"
	OpFill         = "fill"
	OpClick        = "click"
	OpIsVisible    = "is visible"
	OpCloseContext = "close context"
	OpCloseBrowser = "close browser"
)
