package backend

import "time"

// Options configures the HTTP transport used for facet calls
type Options struct {
	// Timeout bounds one facet call end to end
	Timeout time.Duration

	UserAgent string

	// MaxResponseBytes caps how much of a response body is read
	MaxResponseBytes int64

	MaxIdleConnsPerHost int
	InsecureSkipVerify  bool
}

// DefaultOptions returns default client options
func DefaultOptions() Options {
	return Options{
		Timeout:             60 * time.Second,
		UserAgent:           "OSINT-Vision/1.0",
		MaxResponseBytes:    8 * 1024 * 1024,
		MaxIdleConnsPerHost: 3, // one per facet
		InsecureSkipVerify:  false,
	}
}

// WithTimeout returns options with a different per-call timeout.
// Non-positive values keep the current timeout.
func (opts Options) WithTimeout(timeout time.Duration) Options {
	if timeout > 0 {
		opts.Timeout = timeout
	}
	return opts
}

// WithUserAgent returns options with a custom User-Agent header
func (opts Options) WithUserAgent(userAgent string) Options {
	if userAgent != "" {
		opts.UserAgent = userAgent
	}
	return opts
}

// WithMaxResponseBytes returns options with a different body cap
func (opts Options) WithMaxResponseBytes(n int64) Options {
	if n > 0 {
		opts.MaxResponseBytes = n
	}
	return opts
}

// WithInsecureTLS disables certificate verification, for self-signed lab backends
func (opts Options) WithInsecureTLS() Options {
	opts.InsecureSkipVerify = true
	return opts
}
