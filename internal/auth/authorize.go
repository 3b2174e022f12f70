package auth

// Reason explains a denied authorization decision.
type Reason string

const (
	ReasonUnauthenticated  Reason = "unauthenticated"
	ReasonInsufficientRole Reason = "insufficient_role"
)

// Decision is the transient outcome of one authorization check. It is
// computed per request and never cached or stored.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Authorize evaluates a role requirement against the request principal.
// A nil principal denies with ReasonUnauthenticated; a principal whose
// role is outside the required set denies with ReasonInsufficientRole.
// An empty required set admits any authenticated principal.
func Authorize(principal *Principal, required ...Role) Decision {
	if principal == nil {
		return Decision{Reason: ReasonUnauthenticated}
	}
	if len(required) == 0 {
		return Decision{Allowed: true}
	}
	for _, role := range required {
		if principal.Role == role {
			return Decision{Allowed: true}
		}
	}
	return Decision{Reason: ReasonInsufficientRole}
}
