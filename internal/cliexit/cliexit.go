// Package cliexit maps an error returned from a labctl command to the
// process exit code spec.md §6 assigns it: 0 on graceful shutdown
// (nil error), 1 on misconfiguration, 2 on an unrecoverable backend
// failure.
package cliexit

// Backend wraps err to mark it as an unrecoverable backend failure
// (exit code 2) rather than a misconfiguration (exit code 1, the
// default for any other non-nil error). Call sites wrap the runner's
// and daemons' own returned errors, which are themselves already
// limited to backend/policy failures after retries are exhausted —
// execution and per-item errors never reach here, they're recorded on
// the Work or counted by the daemon instead.
func Backend(err error) error {
	if err == nil {
		return nil
	}
	return &backendError{err: err}
}

type backendError struct{ err error }

func (e *backendError) Error() string { return e.err.Error() }
func (e *backendError) Unwrap() error { return e.err }

// Code returns the process exit code for err per spec.md §6: 0 for a
// nil error, 2 for one wrapped with Backend, 1 for anything else.
func Code(err error) int {
	switch {
	case err == nil:
		return 0
	case isBackend(err):
		return 2
	default:
		return 1
	}
}

func isBackend(err error) bool {
	var be *backendError
	for err != nil {
		if b, ok := err.(*backendError); ok {
			be = b
			return be != nil
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
