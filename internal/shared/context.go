package shared

import "context"

// Actor identifies the already-authorized caller of a posting or movement
// operation. Authorization happens upstream; the core only records who acted.
type Actor struct {
	ID       int64
	Name     string
	BranchID int64
}

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
