// Package session manages browser automation sessions.
//
// A Session owns exactly one launched engine and one browsing context created
// from it. Initialize launches both; GotoPage opens pages in the context;
// Close releases the context and then the engine.
//
// # Readiness
//
// GotoPage and Close may be called while Initialize is still running, for
// example when a caller starts both concurrently. They poll until the
// context is assigned, up to the ready timeout (5s by default), and fail with
// an error matching ErrNotInitialized and poll.ErrTimeout if it never is.
// Callers that prefer explicit sequencing can wait on Ready instead.
//
// # Registry
//
// A successful Initialize adds the session to its registry (the process-wide
// registry.Default unless WithRegistry says otherwise). CloseAll closes every
// registered session in initialization order.
//
// # Example Usage
//
//	s := session.New(pwdriver.NewLauncher(), session.WithHeadless(true))
//	if err := s.Initialize(ctx); err != nil {
//	    return err
//	}
//	defer s.Close(ctx)
//
//	page, err := s.GotoPage(ctx, "https://example.com")
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/entrhq/webapp/pkg/engine"
	"github.com/entrhq/webapp/pkg/metrics"
	"github.com/entrhq/webapp/pkg/poll"
	"github.com/entrhq/webapp/pkg/registry"
	"github.com/entrhq/webapp/pkg/tracing"
)

// State is a session lifecycle stage.
type State int

const (
	StateCreated State = iota
	StateInitializing
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Logger is the subset of logging.Logger sessions write to.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}

// Default values for sessions.
const (
	DefaultHeadless      = true
	DefaultReadyTimeout  = poll.DefaultTimeout
	DefaultReadyInterval = poll.DefaultInterval
	DefaultEngineName    = "custom"
)

// Session is one browser automation session.
type Session struct {
	id        string
	createdAt time.Time

	launcher      engine.Launcher
	engineName    string
	launchOpts    engine.LaunchOptions
	registry      *registry.Registry
	logger        Logger
	metrics       *metrics.Metrics
	policy        *URLPolicy
	readyTimeout  time.Duration
	readyInterval time.Duration

	mu       sync.Mutex
	headless bool
	state    State
	browser  engine.Browser
	context  engine.Context
	ready    chan struct{}
}

// Option configures a Session at construction.
type Option func(*Session)

// WithHeadless sets the initial headless mode. Defaults to true.
func WithHeadless(headless bool) Option {
	return func(s *Session) { s.headless = headless }
}

// WithRegistry sets the registry a successful Initialize adds the session to.
func WithRegistry(r *registry.Registry) Option {
	return func(s *Session) {
		if r != nil {
			s.registry = r
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(l Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records session activity into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithEngineName labels metrics and spans with the engine in use.
func WithEngineName(name string) Option {
	return func(s *Session) {
		if name != "" {
			s.engineName = name
		}
	}
}

// WithLaunchOptions sets extra launch settings. Its Headless field is ignored;
// headless mode comes from the session.
func WithLaunchOptions(opts engine.LaunchOptions) Option {
	return func(s *Session) { s.launchOpts = opts }
}

// WithURLPolicy restricts GotoPage to URLs allowed by p.
func WithURLPolicy(p *URLPolicy) Option {
	return func(s *Session) { s.policy = p }
}

// WithReadyTimeout sets how long GotoPage and Close wait for readiness.
func WithReadyTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.readyTimeout = d
		}
	}
}

// WithReadyInterval sets how often readiness is checked while waiting.
func WithReadyInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.readyInterval = d
		}
	}
}

// New creates a session that launches engines through launcher. Nothing is
// launched until Initialize.
func New(launcher engine.Launcher, opts ...Option) *Session {
	s := &Session{
		id:            uuid.New().String(),
		createdAt:     time.Now(),
		launcher:      launcher,
		engineName:    DefaultEngineName,
		registry:      registry.Default(),
		logger:        nopLogger{},
		readyTimeout:  DefaultReadyTimeout,
		readyInterval: DefaultReadyInterval,
		headless:      DefaultHeadless,
		state:         StateCreated,
		ready:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// CreatedAt returns when the session was constructed.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Initialized reports whether Initialize has completed successfully. It stays
// true after Close.
func (s *Session) Initialized() bool {
	st := s.State()
	return st == StateReady || st == StateClosed
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	return s.State() == StateClosed
}

// IsClosedErr reports whether err came from closing an already closed session.
func (s *Session) IsClosedErr(err error) bool {
	return errors.Is(err, ErrClosed)
}

// Ready returns a channel closed once the context is ready for use.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// Headless returns the headless mode used by the next, or last, Initialize.
func (s *Session) Headless() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headless
}

// SetHeadless changes headless mode. It fails with ErrConfiguration once
// Initialize has started.
func (s *Session) SetHeadless(headless bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCreated {
		return fmt.Errorf("%w: cannot set headless after browser has been initialized (session %s is %s)",
			ErrConfiguration, s.id, s.state)
	}
	s.headless = headless
	return nil
}

type initOptions struct {
	headless *bool
}

// InitOption configures a single Initialize call.
type InitOption func(*initOptions)

// InitHeadless overrides the session's headless mode for this launch. The
// value becomes the session's Headless setting.
func InitHeadless(headless bool) InitOption {
	return func(o *initOptions) { o.headless = &headless }
}

// Initialize launches the engine, creates one browsing context and registers
// the session. Engine errors are returned unchanged and leave the session
// unregistered and ready for another attempt. Calling Initialize on a session
// that is initializing, ready or closed returns ErrAlreadyInitialized.
func (s *Session) Initialize(ctx context.Context, opts ...InitOption) (err error) {
	var io initOptions
	for _, opt := range opts {
		opt(&io)
	}

	s.mu.Lock()
	if s.state != StateCreated {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: session %s is %s", ErrAlreadyInitialized, s.id, state)
	}
	if io.headless != nil {
		s.headless = *io.headless
	}
	headless := s.headless
	s.state = StateInitializing
	s.mu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "session.initialize",
		tracing.AttrSessionID.String(s.id),
		tracing.AttrEngine.String(s.engineName),
		tracing.AttrHeadless.Bool(headless),
	)
	defer func() { tracing.End(span, err) }()
	defer func() { s.metrics.ObserveInitialize(s.engineName, err) }()

	s.logger.Debugf("session %s: launching %s engine (headless=%t)", s.id, s.engineName, headless)

	launchOpts := s.launchOpts
	launchOpts.Headless = headless

	browser, err := s.launcher.Launch(ctx, launchOpts)
	if err != nil {
		s.resetToCreated()
		s.logger.Warnf("session %s: launch failed: %v", s.id, err)
		return err
	}

	bctx, err := browser.NewContext(ctx)
	if err != nil {
		if closeErr := browser.Close(ctx); closeErr != nil {
			s.logger.Warnf("session %s: failed to release engine after context error: %v", s.id, closeErr)
		}
		s.resetToCreated()
		s.logger.Warnf("session %s: context creation failed: %v", s.id, err)
		return err
	}

	s.mu.Lock()
	s.browser = browser
	s.context = bctx
	s.state = StateReady
	close(s.ready)
	s.mu.Unlock()

	s.registry.Add(s)
	s.logger.Infof("session %s: initialized", s.id)
	return nil
}

func (s *Session) resetToCreated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateCreated
}

// waitReady polls until the context is assigned or the session is closed.
func (s *Session) waitReady(ctx context.Context) (engine.Context, engine.Browser, error) {
	start := time.Now()
	err := poll.Until(ctx, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.context != nil || s.state == StateClosed
	},
		poll.WithTimeout(s.readyTimeout),
		poll.WithInterval(s.readyInterval),
		poll.WithMessage(fmt.Sprintf("session %s: initialization timed out after %s", s.id, s.readyTimeout)),
	)
	s.metrics.ObserveReadyWait(time.Since(start))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil, nil, fmt.Errorf("%w: session %s", ErrClosed, s.id)
	}
	if err != nil {
		if errors.Is(err, poll.ErrTimeout) {
			return nil, nil, fmt.Errorf("%w: %w", ErrNotInitialized, err)
		}
		return nil, nil, err
	}
	return s.context, s.browser, nil
}

// GotoPage opens a new page in the session context and navigates it to url.
// The page is handed to the caller; it is released when the session closes.
func (s *Session) GotoPage(ctx context.Context, url string) (_ engine.Page, err error) {
	ctx, span := tracing.StartSpan(ctx, "session.goto",
		tracing.AttrSessionID.String(s.id),
		tracing.AttrURL.String(url),
	)
	defer func() { tracing.End(span, err) }()

	if err := s.policy.Allow(url); err != nil {
		return nil, err
	}

	bctx, _, err := s.waitReady(ctx)
	if err != nil {
		return nil, err
	}

	defer func() { s.metrics.ObserveNavigation(err) }()

	page, err := bctx.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	if err := page.Goto(ctx, url); err != nil {
		s.logger.Warnf("session %s: navigation to %s failed: %v", s.id, url, err)
		return nil, err
	}

	s.logger.Debugf("session %s: navigated to %s", s.id, page.URL())
	return page, nil
}

// Close closes the context and then the engine. The engine is closed even if
// closing the context fails; both errors are returned. Closing a session that
// never initializes fails with ErrNotInitialized after the ready timeout, and
// closing it twice returns ErrClosed.
func (s *Session) Close(ctx context.Context) (err error) {
	ctx, span := tracing.StartSpan(ctx, "session.close", tracing.AttrSessionID.String(s.id))
	defer func() { tracing.End(span, err) }()

	bctx, browser, err := s.waitReady(ctx)
	if err != nil {
		return err
	}

	// Claim the handles so concurrent Close calls release them once.
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return fmt.Errorf("%w: session %s", ErrClosed, s.id)
	}
	s.state = StateClosed
	s.context = nil
	s.browser = nil
	s.mu.Unlock()

	if closeErr := bctx.Close(ctx); closeErr != nil {
		err = multierr.Append(err, closeErr)
	}
	if closeErr := browser.Close(ctx); closeErr != nil {
		err = multierr.Append(err, closeErr)
	}

	s.metrics.ObserveClose(err)
	if err != nil {
		s.logger.Warnf("session %s: close finished with errors: %v", s.id, err)
		return err
	}
	s.logger.Infof("session %s: closed", s.id)
	return nil
}

// CloseAll closes every session in the process-wide registry in
// initialization order, continuing past failures.
func CloseAll(ctx context.Context) error {
	return registry.Default().CloseAll(ctx)
}

// Instances returns the sessions in the process-wide registry in
// initialization order.
func Instances() []*Session {
	return InstancesOf(registry.Default())
}

// InstancesOf returns the sessions recorded in r in initialization order.
func InstancesOf(r *registry.Registry) []*Session {
	entries := r.Snapshot()
	sessions := make([]*Session, 0, len(entries))
	for _, e := range entries {
		if s, ok := e.(*Session); ok {
			sessions = append(sessions, s)
		}
	}
	return sessions
}
