package domain

// RateLimitResult is the outcome of one fixed-window admission check.
type RateLimitResult struct {
	Allowed      bool  `json:"allowed"`
	Limit        int   `json:"limit"`
	Remaining    int   `json:"remaining"`
	ResetSeconds int   `json:"resetSeconds"`
	RetryAfter   int   `json:"retryAfter,omitempty"`
	Count        int64 `json:"-"`
}
