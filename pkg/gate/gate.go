package gate

import (
	"github.com/xzegga/ait-saas-sso/pkg/authz"
	"github.com/xzegga/ait-saas-sso/pkg/session"
)

// Decision is the outcome of evaluating a gate.
type Decision int

const (
	Loading Decision = iota
	Allowed
	Denied
)

func (d Decision) String() string {
	switch d {
	case Loading:
		return "loading"
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// Choose picks the value matching d.
func Choose[T any](d Decision, content, fallback, loading T) T {
	switch d {
	case Allowed:
		return content
	case Denied:
		return fallback
	default:
		return loading
	}
}

// Gate decides access for one snapshot.
type Gate interface {
	Name() string
	Evaluate(snap session.Snapshot) Decision
}

// DeniedHandler is implemented by gates that react to becoming Denied.
type DeniedHandler interface {
	OnDenied()
}

// Evaluate is a one-shot evaluation against src's current snapshot.
func Evaluate(src Source, g Gate) Decision {
	return g.Evaluate(src.Snapshot())
}

// viewDecision handles the states every gate treats the same way.
func viewDecision(snap session.Snapshot, allowed func(authz.View) bool) Decision {
	switch {
	case snap.State == session.StateInitializing:
		return Loading
	case !snap.Authenticated():
		return Denied
	case allowed(snap.View):
		return Allowed
	default:
		return Denied
	}
}

// PermissionGate allows holders of one permission.
type PermissionGate struct {
	Permission string
}

// Permission returns a gate requiring perm, matched exactly.
func Permission(perm string) PermissionGate {
	return PermissionGate{Permission: perm}
}

func (g PermissionGate) Name() string { return "permission" }

func (g PermissionGate) Evaluate(snap session.Snapshot) Decision {
	return viewDecision(snap, func(v authz.View) bool {
		return authz.HasPermission(v, g.Permission)
	})
}

// FeaturePrefix marks a permission as a feature flag.
const FeaturePrefix = "feature:"

// FeatureGate allows users holding a feature flag. The flag may be granted
// either as "feature:<name>" or as the bare name.
type FeatureGate struct {
	Feature string
}

// Feature returns a gate for the named feature flag.
func Feature(name string) FeatureGate {
	return FeatureGate{Feature: name}
}

func (g FeatureGate) Name() string { return "feature" }

func (g FeatureGate) Evaluate(snap session.Snapshot) Decision {
	return viewDecision(snap, func(v authz.View) bool {
		return authz.HasPermission(v, FeaturePrefix+g.Feature) || authz.HasPermission(v, g.Feature)
	})
}

// DefaultRedirect is the conventional sign-in path for hosts that redirect
// unauthenticated visitors.
const DefaultRedirect = "/login"

// AuthGuard allows any authenticated session. When it becomes Denied it
// calls OnUnauthenticated if set, otherwise Navigate(RedirectTo). An empty
// RedirectTo leaves navigation to the host.
type AuthGuard struct {
	RedirectTo        string
	OnUnauthenticated func()
	Navigate          func(path string)
}

func (g AuthGuard) Name() string { return "auth" }

func (g AuthGuard) Evaluate(snap session.Snapshot) Decision {
	return viewDecision(snap, func(authz.View) bool { return true })
}

func (g AuthGuard) OnDenied() {
	switch {
	case g.OnUnauthenticated != nil:
		g.OnUnauthenticated()
	case g.Navigate != nil && g.RedirectTo != "":
		g.Navigate(g.RedirectTo)
	}
}
