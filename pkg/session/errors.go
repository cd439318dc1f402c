package session

import "errors"

var (
	// ErrConfiguration is returned when configuration changes after it has
	// been used, such as changing headless mode on an initialized session.
	ErrConfiguration = errors.New("session: configuration error")

	// ErrAlreadyInitialized is returned by a second Initialize call. The
	// first engine is left untouched.
	ErrAlreadyInitialized = errors.New("session: already initialized")

	// ErrNotInitialized is returned when the session context never became
	// ready. It is joined with poll.ErrTimeout when the wait timed out.
	ErrNotInitialized = errors.New("session: not initialized")

	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session: closed")

	// ErrURLNotAllowed is returned by GotoPage for URLs outside the allow-list.
	ErrURLNotAllowed = errors.New("session: url not allowed")
)
