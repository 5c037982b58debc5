package domain

import (
	"maps"
	"net/netip"
	"slices"
	"strings"
	"time"
)

// Owner references the entity that owns a token or group. Kind is an opaque tag
// ("user", "team", "service") resolved by the application, ID its identifier there.
// The guard also uses Owner as the resolved request identity.
type Owner struct {
	Kind string
	ID   string
}

// IsZero reports whether the owner is unset.
func (o Owner) IsZero() bool {
	return o.Kind == "" && o.ID == ""
}

// Token is an issued API credential. Only the hash of its secret is ever persisted.
type Token struct {
	ID                 ID
	Owner              Owner
	Type               string // Free-form type tag ("sk", "pk", "rk", ...)
	Environment        string // Environment tag ("test", "live", ...)
	Name               string
	Prefix             string // Leading segment of the plaintext
	TokenHash          string //nolint:gosec // digest of the plaintext, not a secret
	Abilities          []string
	Metadata           map[string]any
	AllowedIPs         []string // nil or empty means unrestricted
	AllowedDomains     []string // nil or empty means unrestricted
	RateLimitPerMinute *int
	LastUsedAt         *time.Time
	ExpiresAt          *time.Time
	RevokedAt          *time.Time // future value means scheduled revocation
	GroupID            *ID
	ParentID           *ID
	CreatedAt          time.Time
	UpdatedAt          time.Time

	// Transient marks the sentinel token attached to stateful identities.
	Transient bool
}

// TransientToken returns the always-capable token attached when a stateful source
// resolves the identity. It is never persisted.
func TransientToken() *Token {
	return &Token{
		Name:      "transient",
		Abilities: []string{WildcardAbility},
		Transient: true,
	}
}

// IsRevoked reports whether the revocation timestamp is set and not after now.
// A future timestamp is a scheduled revocation and the token is still valid.
func (t *Token) IsRevoked(now time.Time) bool {
	return t.RevokedAt != nil && !t.RevokedAt.After(now)
}

// IsRevocationScheduled reports whether a revocation is set in the future.
func (t *Token) IsRevocationScheduled(now time.Time) bool {
	return t.RevokedAt != nil && t.RevokedAt.After(now)
}

// EffectiveExpiry returns the explicit expiry, or CreatedAt+ttl when ttl is positive.
// Returns nil when the token never expires.
func (t *Token) EffectiveExpiry(ttl time.Duration) *time.Time {
	if t.ExpiresAt != nil {
		expiry := *t.ExpiresAt
		return &expiry
	}
	if ttl <= 0 || t.CreatedAt.IsZero() {
		return nil
	}
	expiry := t.CreatedAt.Add(ttl)
	return &expiry
}

// IsExpired reports whether the effective expiry is at or before now.
func (t *Token) IsExpired(now time.Time, ttl time.Duration) bool {
	expiry := t.EffectiveExpiry(ttl)
	return expiry != nil && !expiry.After(now)
}

// Can reports whether the token grants ability. The wildcard grants everything.
func (t *Token) Can(ability string) bool {
	return slices.Contains(t.Abilities, WildcardAbility) || slices.Contains(t.Abilities, ability)
}

// CanAny reports whether the token grants at least one of abilities.
func (t *Token) CanAny(abilities ...string) bool {
	for _, ability := range abilities {
		if t.Can(ability) {
			return true
		}
	}
	return false
}

// IsIPAllowed reports whether ip passes the allow-list. Entries are exact addresses
// or CIDR prefixes.
func (t *Token) IsIPAllowed(ip string) bool {
	if len(t.AllowedIPs) == 0 {
		return true
	}

	addr, addrErr := netip.ParseAddr(ip)
	for _, allowed := range t.AllowedIPs {
		if allowed == ip {
			return true
		}
		if addrErr != nil || !strings.Contains(allowed, "/") {
			continue
		}
		prefix, err := netip.ParsePrefix(allowed)
		if err == nil && prefix.Contains(addr.Unmap()) {
			return true
		}
	}
	return false
}

// IsDomainAllowed reports whether host (host[:port], no scheme) passes the allow-list.
func (t *Token) IsDomainAllowed(host string) bool {
	if len(t.AllowedDomains) == 0 {
		return true
	}
	if host == "" {
		return false
	}
	for _, allowed := range t.AllowedDomains {
		if strings.EqualFold(allowed, host) {
			return true
		}
	}
	return false
}

// HasDomainRestrictions reports whether a non-empty domain allow-list is configured.
func (t *Token) HasDomainRestrictions() bool {
	return len(t.AllowedDomains) > 0
}

// ApplyFields applies the non-nil fields of f to the token.
func (t *Token) ApplyFields(f TokenFields, now time.Time) {
	if f.RevokedAt != nil {
		revokedAt := *f.RevokedAt
		t.RevokedAt = &revokedAt
	}
	if f.LastUsedAt != nil {
		lastUsedAt := *f.LastUsedAt
		t.LastUsedAt = &lastUsedAt
	}
	t.UpdatedAt = now
}

// Clone returns a deep copy of the token.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Abilities = slices.Clone(t.Abilities)
	cp.AllowedIPs = slices.Clone(t.AllowedIPs)
	cp.AllowedDomains = slices.Clone(t.AllowedDomains)
	cp.Metadata = maps.Clone(t.Metadata)
	cp.RateLimitPerMinute = clonePtr(t.RateLimitPerMinute)
	cp.LastUsedAt = clonePtr(t.LastUsedAt)
	cp.ExpiresAt = clonePtr(t.ExpiresAt)
	cp.RevokedAt = clonePtr(t.RevokedAt)
	cp.GroupID = clonePtr(t.GroupID)
	cp.ParentID = clonePtr(t.ParentID)
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// TokenFields is a partial token update. Nil fields are left unchanged.
type TokenFields struct {
	RevokedAt  *time.Time
	LastUsedAt *time.Time
}

// GroupFilter narrows a group-wide update. Nil Prefixes selects every member,
// a non-nil empty slice selects none.
type GroupFilter struct {
	Prefixes []string
}

// Matches reports whether token passes the filter.
func (f GroupFilter) Matches(token *Token) bool {
	if f.Prefixes == nil {
		return true
	}
	return slices.Contains(f.Prefixes, token.Prefix)
}

// TokenGroup is a named collection of tokens used as the unit of cascade revocation.
// Deleting a group never deletes its tokens.
type TokenGroup struct {
	ID        ID
	Name      string
	Owner     Owner
	CreatedAt time.Time
}

// TokenType describes a registered token family. Its name is used as the plaintext prefix.
type TokenType struct {
	Name             string
	Description      string
	DefaultAbilities []string
}

// TokenComponents is the parsed form of a presented plaintext.
type TokenComponents struct {
	Prefix      string
	Environment string
	Secret      string //nolint:gosec // transient parse result, never stored
	Raw         string
}

// NewlyIssuedToken pairs a persisted token with its one-time-visible plaintext.
// SECURITY: PlainText must be shown to the caller once and never logged or stored.
type NewlyIssuedToken struct {
	Token     *Token
	PlainText string //nolint:gosec // returned once to the caller
}

// IssueTokenInput contains the parameters for issuing a new token.
type IssueTokenInput struct {
	Name               string
	Type               string
	Environment        string
	Owner              Owner
	Abilities          []string // nil uses the token type defaults
	Metadata           map[string]any
	AllowedIPs         []string
	AllowedDomains     []string
	RateLimitPerMinute *int
	ExpiresAt          *time.Time
	GroupID            *ID
	ParentID           *ID
}
