package github

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/webapp/pkg/engine"
	"github.com/entrhq/webapp/pkg/engine/enginetest"
	"github.com/entrhq/webapp/pkg/registry"
	"github.com/entrhq/webapp/pkg/session"
)

func sessionFunc(l *enginetest.Launcher, reg *registry.Registry) SessionFunc {
	return func() *session.Session {
		return session.New(l, session.WithRegistry(reg))
	}
}

func launchAutomation(t *testing.T, l *enginetest.Launcher) *Automation {
	t.Helper()
	a, err := Launch(context.Background(), sessionFunc(l, registry.New()))
	require.NoError(t, err)
	return a
}

// pageOps returns the operations recorded after the session was set up.
func pageOps(l *enginetest.Launcher) []enginetest.Call {
	var calls []enginetest.Call
	for _, c := range l.Calls() {
		switch c.Op {
		case engine.OpLaunch, engine.OpNewContext:
			continue
		}
		calls = append(calls, enginetest.Call{Op: c.Op, Args: c.Args})
	}
	return calls
}

func TestAutomation_Homepage(t *testing.T) {
	l := &enginetest.Launcher{}
	a := launchAutomation(t, l)

	page, err := a.Homepage(context.Background())

	require.NoError(t, err)
	assert.Equal(t, HomepageURL, page.URL())
}

func TestAutomation_LoginAlreadySignedIn(t *testing.T) {
	l := &enginetest.Launcher{Visible: map[string]bool{AvatarSelector: true}}
	a := launchAutomation(t, l)

	page, err := a.Login(context.Background(), "octocat", "hunter2")

	require.NoError(t, err)
	assert.Equal(t, LoginURL, page.URL())
	assert.Equal(t, []enginetest.Call{
		{Op: engine.OpNewPage},
		{Op: engine.OpGoto, Args: []string{LoginURL}},
		{Op: engine.OpIsVisible, Args: []string{AvatarSelector}},
	}, pageOps(l))
	assert.Zero(t, l.Count(engine.OpFill))
	assert.Zero(t, l.Count(engine.OpClick))
}

func TestAutomation_LoginSubmitsCredentials(t *testing.T) {
	l := &enginetest.Launcher{}
	a := launchAutomation(t, l)

	page, err := a.Login(context.Background(), "octocat", "hunter2")

	require.NoError(t, err)
	assert.Equal(t, []enginetest.Call{
		{Op: engine.OpNewPage},
		{Op: engine.OpGoto, Args: []string{LoginURL}},
		{Op: engine.OpIsVisible, Args: []string{AvatarSelector}},
		{Op: engine.OpFill, Args: []string{UsernameSelector, "octocat"}},
		{Op: engine.OpFill, Args: []string{PasswordSelector, "hunter2"}},
		{Op: engine.OpClick, Args: []string{SubmitSelector}},
	}, pageOps(l))

	fake, ok := page.(*enginetest.Page)
	require.True(t, ok)
	assert.Equal(t, "octocat", fake.Value(UsernameSelector))
	assert.Equal(t, "hunter2", fake.Value(PasswordSelector))
}

func TestAutomation_LoginEngineErrors(t *testing.T) {
	cause := errors.New("element not found")

	tests := []struct {
		name     string
		launcher *enginetest.Launcher
		clicks   int
	}{
		{name: "visibility", launcher: &enginetest.Launcher{IsVisibleErr: cause}},
		{name: "fill", launcher: &enginetest.Launcher{FillErr: cause}},
		{name: "click", launcher: &enginetest.Launcher{ClickErr: cause}, clicks: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := launchAutomation(t, tt.launcher)

			page, err := a.Login(context.Background(), "octocat", "hunter2")

			assert.Nil(t, page)
			assert.ErrorIs(t, err, cause)
			assert.ErrorIs(t, err, engine.ErrEngine)
			assert.Equal(t, tt.clicks, tt.launcher.Count(engine.OpClick))
		})
	}
}

type stubNavigator struct {
	urls   []string
	closed int
}

func (n *stubNavigator) GotoPage(ctx context.Context, url string) (engine.Page, error) {
	n.urls = append(n.urls, url)
	return nil, errors.New("offline")
}

func (n *stubNavigator) Close(ctx context.Context) error {
	n.closed++
	return nil
}

func TestAutomation_AnyNavigator(t *testing.T) {
	nav := &stubNavigator{}
	a := New(nav)

	_, err := a.Homepage(context.Background())
	assert.EqualError(t, err, "offline")
	_, err = a.Login(context.Background(), "octocat", "hunter2")
	assert.EqualError(t, err, "offline")
	require.NoError(t, a.Close(context.Background()))

	assert.Nil(t, a.Session())
	assert.Equal(t, []string{HomepageURL, LoginURL}, nav.urls)
	assert.Equal(t, 1, nav.closed)
}

func TestLaunch_AlwaysFresh(t *testing.T) {
	l := &enginetest.Launcher{}
	reg := registry.New()

	first, err := Launch(context.Background(), sessionFunc(l, reg), WithHeadless(false))
	require.NoError(t, err)
	second, err := Launch(context.Background(), sessionFunc(l, reg))
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, 2, reg.Len())
	assert.False(t, first.Session().Headless())
	assert.True(t, second.Session().Headless())
	assert.False(t, l.Launches()[0].Headless)
}

func TestFactory_Instance(t *testing.T) {
	l := &enginetest.Launcher{}
	f := NewFactory(sessionFunc(l, registry.New()))
	ctx := context.Background()

	a, err := f.Instance(ctx, WithHeadless(true))
	require.NoError(t, err)

	again, err := f.Instance(ctx)
	require.NoError(t, err)
	assert.Same(t, a, again)

	same, err := f.Instance(ctx, WithHeadless(true))
	require.NoError(t, err)
	assert.Same(t, a, same)

	_, err = f.Instance(ctx, WithHeadless(false))
	assert.ErrorIs(t, err, session.ErrConfiguration)

	assert.Equal(t, 1, l.Count(engine.OpLaunch))
}

func TestFactory_FailedLaunchDoesNotPin(t *testing.T) {
	l := &enginetest.Launcher{LaunchErr: errors.New("no browser")}
	f := NewFactory(sessionFunc(l, registry.New()))
	ctx := context.Background()

	_, err := f.Instance(ctx, WithHeadless(true))
	require.Error(t, err)

	l.LaunchErr = nil
	a, err := f.Instance(ctx, WithHeadless(false))
	require.NoError(t, err)
	assert.False(t, a.Session().Headless())
}

func TestFactory_Reset(t *testing.T) {
	l := &enginetest.Launcher{}
	f := NewFactory(sessionFunc(l, registry.New()))
	ctx := context.Background()

	a, err := f.Instance(ctx)
	require.NoError(t, err)
	f.Reset()
	b, err := f.Instance(ctx, WithHeadless(false))
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.False(t, a.Session().Closed(), "Reset does not close the previous instance")
	assert.Equal(t, 2, l.Count(engine.OpLaunch))
}
