// Package ratelimit throttles API callers with a sliding window per actor,
// falling back to client IP for requests that carry no identity.
package ratelimit

import (
	"context"
	"net/http"
	"time"
)

// Class groups routes that share a budget.
type Class string

const (
	ClassRead  Class = "read"
	ClassWrite Class = "write"
)

func (c Class) String() string { return string(c) }

// ClassOf maps a request method to its budget. Safe methods read, the rest
// write.
func ClassOf(method string) Class {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ClassRead
	}
	return ClassWrite
}

// Limit is the number of requests allowed per sliding window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Result is the outcome of one check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is whole seconds until a slot frees up. Zero when allowed.
	RetryAfter int
}

// Store counts requests per key inside a sliding window.
type Store interface {
	Allow(ctx context.Context, key string, limit Limit) (*Result, error)
	Reset(ctx context.Context, key string) error
}

// ActorKey identifies an authenticated caller's bucket.
func ActorKey(actorID string, class Class) string {
	return "rl:actor:" + actorID + ":" + class.String()
}

// IPKey identifies an anonymous caller's bucket.
func IPKey(ip string, class Class) string {
	return "rl:ip:" + ip + ":" + class.String()
}

func retryAfter(now, resetAt time.Time) int {
	d := resetAt.Sub(now)
	if d <= 0 {
		return 1
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
