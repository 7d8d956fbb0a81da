package shared

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Role identifies the kind of caller behind a request.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleWorker   Role = "worker"
	RoleCustomer Role = "customer"
)

// Actor is the already-authenticated caller identity. Authentication happens
// upstream; the service trusts the X-Actor-ID and X-Actor-Role headers set by
// the gateway.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

// ActorMiddleware resolves the caller identity headers into the request
// context. Requests without a parseable identity proceed anonymously;
// handlers that require an actor reject them.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get("X-Actor-ID"))
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		actor := Actor{ID: id, Role: Role(r.Header.Get("X-Actor-Role"))}
		next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
	})
}
