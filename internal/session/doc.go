// Package session acquires and keeps the time-limited credential the target
// site hands out once its anti-bot challenge is passed.
//
// A Machine first tries the persisted credential. When that is missing,
// expired or lacks the clearance cookie, it drives a Browser through the
// challenge: launch with a fresh profile, poll the page until the
// interstitial is gone, then read the cookies. The whole cycle is retried
// under a BackoffPolicy. Every wait is bounded and honors the context.
//
// States:
//
//	INIT → LOADING_EXISTING → VALID → READY
//	                        → EXPIRED → ACQUIRING → CHALLENGE_WAIT → RESOLVED → EXTRACTING_CREDENTIAL → READY
//	                                                               → TIMEOUT → (retry) | FAILED
//
// The credential file assumes a single writer. Concurrent runs sharing one
// file are not supported.
package session
