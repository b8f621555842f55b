package shared

import "context"

// Role identifies the business role of the acting user. The upstream auth
// layer resolves it; this core only gates transitions on it.
type Role string

const (
	RoleSales    Role = "sales"
	RoleManager  Role = "manager"
	RoleAccounts Role = "accounts"
	RoleAdmin    Role = "admin"
)

// ParseRole validates a raw role string at the boundary.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleSales, RoleManager, RoleAccounts, RoleAdmin:
		return Role(s), true
	}
	return "", false
}

// Actor is the authenticated principal attached to each request.
type Actor struct {
	ID   int64
	Role Role
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
