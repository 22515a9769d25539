package backend

import "errors"

// Sentinel errors for backend failures. Callers classify with errors.Is:
// rate limiting is retryable, the other two are permanent for the request
// that produced them.
var (
	ErrRateLimited        = errors.New("backend rate limited")
	ErrInvalidCredentials = errors.New("backend credentials rejected")
	ErrMalformedResponse  = errors.New("backend response malformed")
)
