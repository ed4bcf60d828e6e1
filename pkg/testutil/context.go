package testutil

import (
	"context"
	"net/http"
	"time"

	id "cdigit/pkg/domain"
	"cdigit/pkg/requestcontext"
)

// WithActor adds an authenticated actor and role to the request context.
// This simulates what the auth middleware does for authenticated requests.
func WithActor(req *http.Request, actorID, role string) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), id.ActorID(actorID), role)
	return req.WithContext(ctx)
}

// WithTime pins the request clock.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
