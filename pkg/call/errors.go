package call

import "errors"

// Fatal-to-session errors returned by Start. Steady-state per-frame and
// per-message errors are contained inside the engine and never surfaced.
var (
	// ErrMissingToken means no auth credential was supplied.
	ErrMissingToken = errors.New("call: missing auth token")

	// ErrReadyTimeout means the endpoint never signalled readiness.
	ErrReadyTimeout = errors.New("call: timed out waiting for ready")

	// ErrAlreadyStarted means Start was called twice on one session.
	ErrAlreadyStarted = errors.New("call: session already started")

	// ErrEnded means the session was already torn down.
	ErrEnded = errors.New("call: session ended")
)
