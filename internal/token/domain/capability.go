package domain

import "slices"

// CheckAbilities returns MissingAbilityError unless token grants every ability.
// A nil token yields ErrUnauthenticated.
func CheckAbilities(token *Token, abilities ...string) error {
	if token == nil {
		return ErrUnauthenticated
	}
	var missing []string
	for _, ability := range abilities {
		if !token.Can(ability) {
			missing = append(missing, ability)
		}
	}
	if len(missing) > 0 {
		return &MissingAbilityError{Required: abilities, Missing: missing}
	}
	return nil
}

// CheckForAnyAbility returns MissingAbilityError unless token grants at least one ability.
func CheckForAnyAbility(token *Token, abilities ...string) error {
	if token == nil {
		return ErrUnauthenticated
	}
	if len(abilities) == 0 || token.CanAny(abilities...) {
		return nil
	}
	return &MissingAbilityError{Required: abilities, Missing: abilities, Any: true}
}

// CheckTokenType returns InvalidTokenTypeError unless the token type is one of types.
func CheckTokenType(token *Token, types ...string) error {
	if token == nil {
		return ErrUnauthenticated
	}
	if token.Transient || slices.Contains(types, token.Type) {
		return nil
	}
	return &InvalidTokenTypeError{Required: types, Actual: token.Type}
}

// CheckEnvironment returns InvalidEnvironmentError unless the token environment is one of environments.
func CheckEnvironment(token *Token, environments ...string) error {
	if token == nil {
		return ErrUnauthenticated
	}
	if token.Transient || slices.Contains(environments, token.Environment) {
		return nil
	}
	return &InvalidEnvironmentError{Required: environments, Actual: token.Environment}
}
