package types

import "context"

// ActorType identifies the kind of authenticated entity making a request.
type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeAdmin  ActorType = "admin"
	ActorTypeSystem ActorType = "system"
)

// Actor represents the authenticated entity performing an operation.
// It carries exactly what the authorization boundary needs: identity, plan
// tier, account status, and whether the identity holds the bypass capability.
// The bypass flag is resolved once at authentication time, never re-derived
// from email comparisons inside policy code.
type Actor struct {
	ID          string
	Email       string
	Type        ActorType
	Plan        PlanTier
	Status      AccountStatus
	IsSuperUser bool
}

// Anonymous reports whether the actor is unauthenticated. Anonymous traffic
// is rate limited at half the configured ceiling.
func (a Actor) Anonymous() bool {
	return a.ID == ""
}

type contextKey string

const (
	actorKey     contextKey = "actor"
	requestIDKey contextKey = "request_id"
)

// WithActor stores the Actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor retrieves the Actor from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
