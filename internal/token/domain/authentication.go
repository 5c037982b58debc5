package domain

// Authentication is the outcome of a successful guard run: the resolved identity and
// the token attached to it for capability checks.
type Authentication struct {
	Identity Owner
	Token    *Token

	// Stateful is set when a stateful source resolved the identity. Token is then the
	// transient always-capable token.
	Stateful bool
}
