package api

import (
	"net/http"
	"time"

	"github.com/aminofox/zenclient/pkg/errors"
	"github.com/aminofox/zenclient/pkg/logger"
	"golang.org/x/time/rate"
)

// Middleware wraps an outbound round tripper
type Middleware func(http.RoundTripper) http.RoundTripper

// roundTripFunc adapts a function to http.RoundTripper
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// Chain applies middlewares so the first one sees the request first
func Chain(base http.RoundTripper, mws ...Middleware) http.RoundTripper {
	for i := len(mws) - 1; i >= 0; i-- {
		base = mws[i](base)
	}
	return base
}

// WithLogging logs every request with its status and latency
func WithLogging(log logger.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return roundTripFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(r)
			if err != nil {
				log.Warn("Request failed",
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path),
					logger.Duration("latency", time.Since(start)),
					logger.Err(err),
				)
				return nil, err
			}
			log.Debug("Request completed",
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.Int("status", resp.StatusCode),
				logger.Duration("latency", time.Since(start)),
			)
			return resp, nil
		})
	}
}

// WithHeaders sets fixed headers on requests that do not carry them already
func WithHeaders(h http.Header) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if len(h) == 0 {
				return next.RoundTrip(r)
			}
			r = r.Clone(r.Context())
			for k, vs := range h {
				if r.Header.Get(k) != "" {
					continue
				}
				for _, v := range vs {
					r.Header.Add(k, v)
				}
			}
			return next.RoundTrip(r)
		})
	}
}

// WithRateLimit rejects requests beyond rps with a burst of burst
func WithRateLimit(rps float64, burst int, log logger.Logger) Middleware {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.RoundTripper) http.RoundTripper {
		return roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if !limiter.Allow() {
				log.Warn("Rate limit exceeded",
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path),
				)
				return nil, errors.New(errors.ErrCodeRateLimited, "client request rate exceeded")
			}
			return next.RoundTrip(r)
		})
	}
}
