// Package github automates common GitHub workflows on top of a browser session.
package github

import (
	"context"
	"fmt"
	"sync"

	"github.com/entrhq/webapp/pkg/engine"
	"github.com/entrhq/webapp/pkg/session"
	"github.com/entrhq/webapp/pkg/tracing"
)

const site = "github"

// Page locations.
const (
	HomepageURL = "https://github.com"
	LoginURL    = "https://github.com/login"
)

// Selectors used by the login workflow.
const (
	AvatarSelector   = `[data-view-component="true"] header .avatar-user`
	UsernameSelector = `input[name="login"]`
	PasswordSelector = `input[name="password"]`
	SubmitSelector   = `input[type="submit"]`
)

// Navigator is the part of a session site workflows depend on.
type Navigator interface {
	GotoPage(ctx context.Context, url string) (engine.Page, error)
	Close(ctx context.Context) error
}

var _ Navigator = (*session.Session)(nil)

// Automation runs GitHub workflows through a Navigator.
type Automation struct {
	nav     Navigator
	session *session.Session
}

// New wraps nav. The caller owns nav's lifecycle until Close is called.
func New(nav Navigator) *Automation {
	a := &Automation{nav: nav}
	if s, ok := nav.(*session.Session); ok {
		a.session = s
	}
	return a
}

// Session returns the underlying session, or nil when the automation wraps
// some other Navigator.
func (a *Automation) Session() *session.Session {
	return a.session
}

// Homepage opens github.com.
func (a *Automation) Homepage(ctx context.Context) (_ engine.Page, err error) {
	ctx, span := tracing.StartSpan(ctx, "github.homepage", tracing.AttrSite.String(site))
	defer func() { tracing.End(span, err) }()

	return a.nav.GotoPage(ctx, HomepageURL)
}

// Login opens the login page and submits the credentials, unless the page
// already shows a signed-in user. Whether the submit succeeded is left to the
// caller to check on the returned page.
func (a *Automation) Login(ctx context.Context, username, password string) (_ engine.Page, err error) {
	ctx, span := tracing.StartSpan(ctx, "github.login", tracing.AttrSite.String(site))
	defer func() { tracing.End(span, err) }()

	page, err := a.nav.GotoPage(ctx, LoginURL)
	if err != nil {
		return nil, err
	}

	signedIn, err := page.IsVisible(ctx, AvatarSelector)
	if err != nil {
		return nil, err
	}
	if signedIn {
		return page, nil
	}

	if err := page.Fill(ctx, UsernameSelector, username); err != nil {
		return nil, err
	}
	if err := page.Fill(ctx, PasswordSelector, password); err != nil {
		return nil, err
	}
	if err := page.Click(ctx, SubmitSelector); err != nil {
		return nil, err
	}
	return page, nil
}

// Close closes the underlying navigator.
func (a *Automation) Close(ctx context.Context) error {
	return a.nav.Close(ctx)
}

// SessionFunc builds the uninitialized session an automation drives.
type SessionFunc func() *session.Session

type launchOptions struct {
	headless *bool
}

// LaunchOption configures Launch and Factory.Instance.
type LaunchOption func(*launchOptions)

// WithHeadless forwards a headless setting to Initialize.
func WithHeadless(headless bool) LaunchOption {
	return func(o *launchOptions) { o.headless = &headless }
}

func (o launchOptions) initOptions() []session.InitOption {
	if o.headless == nil {
		return nil
	}
	return []session.InitOption{session.InitHeadless(*o.headless)}
}

// Launch builds a new session and initializes it. Every call returns a fresh
// automation.
func Launch(ctx context.Context, newSession SessionFunc, opts ...LaunchOption) (*Automation, error) {
	var o launchOptions
	for _, opt := range opts {
		opt(&o)
	}

	s := newSession()
	if err := s.Initialize(ctx, o.initOptions()...); err != nil {
		return nil, err
	}
	return New(s), nil
}

// Factory hands out one shared Automation.
type Factory struct {
	newSession SessionFunc

	mu       sync.Mutex
	instance *Automation
}

// NewFactory creates a factory that builds its automation with newSession.
func NewFactory(newSession SessionFunc) *Factory {
	return &Factory{newSession: newSession}
}

// Instance returns the shared automation, launching it on first use. Asking
// for a headless mode different from the one the instance was launched with
// fails with session.ErrConfiguration. A failed launch leaves the factory
// empty so the next call tries again.
func (f *Factory) Instance(ctx context.Context, opts ...LaunchOption) (*Automation, error) {
	var o launchOptions
	for _, opt := range opts {
		opt(&o)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.instance != nil {
		current := f.instance.session.Headless()
		if o.headless != nil && *o.headless != current {
			return nil, fmt.Errorf("%w: github automation already launched with headless=%t", session.ErrConfiguration, current)
		}
		return f.instance, nil
	}

	a, err := Launch(ctx, f.newSession, opts...)
	if err != nil {
		return nil, err
	}
	f.instance = a
	return a, nil
}

// Reset forgets the shared automation without closing it.
func (f *Factory) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instance = nil
}
