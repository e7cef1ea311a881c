package event

import "errors"

var (
	// ErrSessionExpired means the clearance token was present but the target rejected it.
	ErrSessionExpired = errors.New("session expired")
	// ErrChallengeTimeout means the anti-bot challenge did not resolve within its bound.
	ErrChallengeTimeout = errors.New("challenge timeout")
	// ErrSessionFailed means every acquisition attempt was exhausted.
	ErrSessionFailed = errors.New("session acquisition failed")
	// ErrSourceUnavailable means no usable text or JSON was obtained for a page.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSourceBlocked means the target refused the request for a reason other than an expired credential.
	ErrSourceBlocked = errors.New("source blocked")
	// ErrInvalidEventReference means a constructed event URL produced no content.
	ErrInvalidEventReference = errors.New("invalid event reference")
	// ErrMalformedSource means a source fragment was syntactically invalid and skipped.
	ErrMalformedSource = errors.New("malformed source")
)

// IsFatal reports whether err stops the whole scrape attempt.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrChallengeTimeout) ||
		errors.Is(err, ErrSessionFailed)
}
