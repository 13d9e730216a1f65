package repository

import "errors"

// Sentinel errors returned by repository implementations. Callers use
// errors.Is to map these to API responses.
var (
	ErrAlertRuleNotFound = errors.New("alert rule not found")
	ErrRunNotFound       = errors.New("workflow run not found")
)
